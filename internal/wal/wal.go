/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package wal tracks which log-area page versions are visible to readers
and moves confirmed versions back into the data area.

Log records are plain page images whose headers carry the writing
transaction id and a confirmation flag. A transaction becomes durable
when its confirmation page (is_confirmed=true) reaches the log. The
in-memory index maps page id -> (version, log position) for every
confirmed image; a snapshot pins the version counter at creation, so it
resolves exactly the commits that preceded it in log order.

Checkpoint scans the log area forward, copies the newest confirmed image
of every page into the data area, truncates the log and resets the
index. Recovery on open is the same procedure driven purely by the
on-disk log: a page is committed iff its transaction has a confirmation
page later in the log. Both are idempotent.
*/
package wal

import (
	"sort"
	"sync"
	"sync/atomic"

	"flintdb/internal/disk"
	"flintdb/internal/logging"
	"flintdb/internal/storage"
)

// PagePosition pairs a page id with its log position.
type PagePosition struct {
	PageID   uint32
	Position int64
}

type version struct {
	v        int
	position int64
}

// Index is the WAL index service.
type Index struct {
	mu        sync.RWMutex
	index     map[uint32][]version
	confirmed map[uint32]struct{}

	currentVersion    int
	lastTransactionID uint32

	disk *disk.Service
}

// NewIndex creates an empty WAL index over a disk service.
func NewIndex(d *disk.Service) *Index {
	return &Index{
		index:     make(map[uint32][]version),
		confirmed: make(map[uint32]struct{}),
		disk:      d,
	}
}

// NextTransactionID allocates a monotonically increasing transaction id.
func (w *Index) NextTransactionID() uint32 {
	return atomic.AddUint32(&w.lastTransactionID, 1)
}

// CurrentReadVersion returns the version a new snapshot should pin.
func (w *Index) CurrentReadVersion() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.currentVersion
}

// GetPageIndex resolves a page id against a snapshot version, returning
// the newest confirmed log position not past the version, or -1 when the
// data-area version is current.
func (w *Index) GetPageIndex(pageID uint32, readVersion int) int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	versions := w.index[pageID]
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].v <= readVersion {
			return versions[i].position
		}
	}
	return -1
}

// ConfirmTransaction publishes a committed transaction's page positions
// under a fresh version. Called after the confirmation page is durable.
func (w *Index) ConfirmTransaction(transactionID uint32, positions []PagePosition) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.currentVersion++
	v := w.currentVersion
	for _, p := range positions {
		w.index[p.PageID] = append(w.index[p.PageID], version{v: v, position: p.Position})
	}
	w.confirmed[transactionID] = struct{}{}
}

// logEntry is one scanned log page.
type logEntry struct {
	position      int64
	pageID        uint32
	transactionID uint32
	confirmed     bool
}

// scanLog walks the log area forward, stopping at the first malformed
// page (everything from there on is discarded).
func (w *Index) scanLog() ([]logEntry, map[uint32]struct{}, error) {
	entries := []logEntry{}
	confirmed := map[uint32]struct{}{}
	buf := make([]byte, storage.PageSize)
	start := w.disk.DataLength()
	end := start + w.disk.LogLength()

	for position := start; position+storage.PageSize <= end; position += storage.PageSize {
		if err := w.disk.ReadPageDirect(position, buf); err != nil {
			// a short or unreadable tail is discarded like a malformed page
			logging.WithComponent("wal").Warn().Err(err).
				Int64("position", position).
				Msg("unreadable log page; discarding the rest of the log")
			break
		}
		page := storage.LoadBasePage(&storage.PageBuffer{Buffer: buf, Position: position})
		if page.PageType() > storage.PageTypeData {
			logging.WithComponent("wal").Warn().
				Int64("position", position).
				Msg("malformed log page; discarding the rest of the log")
			break
		}
		e := logEntry{
			position:      position,
			pageID:        page.PageID(),
			transactionID: page.TransactionID(),
			confirmed:     page.IsConfirmed(),
		}
		entries = append(entries, e)
		if e.confirmed {
			confirmed[e.transactionID] = struct{}{}
		}
	}
	return entries, confirmed, nil
}

// Checkpoint copies the newest confirmed log image of every page into
// the data area, truncates the log and resets the index. The caller must
// hold the engine exclusive (no snapshot may still reference a log
// position). Returns the number of pages moved.
func (w *Index) Checkpoint() (int, error) {
	if w.disk.LogLength() == 0 {
		return 0, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	entries, confirmed, err := w.scanLog()
	if err != nil {
		return 0, err
	}
	// anything confirmed in memory but whose confirmation page fell past
	// a malformed tail is already lost with the tail; trust the scan
	newest := map[uint32]int64{}
	for _, e := range entries {
		if _, ok := confirmed[e.transactionID]; ok {
			newest[e.pageID] = e.position
		}
	}

	// deterministic data-area write order
	pageIDs := make([]uint32, 0, len(newest))
	for id := range newest {
		pageIDs = append(pageIDs, id)
	}
	sort.Slice(pageIDs, func(i, j int) bool { return pageIDs[i] < pageIDs[j] })

	buf := make([]byte, storage.PageSize)
	maxPageID := uint32(0)
	for _, pageID := range pageIDs {
		if err := w.disk.ReadPageDirect(newest[pageID], buf); err != nil {
			return 0, err
		}
		if err := w.disk.WriteDataPage(int64(pageID)*storage.PageSize, buf); err != nil {
			return 0, err
		}
		if pageID > maxPageID {
			maxPageID = pageID
		}
	}
	if grown := int64(maxPageID+1) * storage.PageSize; grown > w.disk.DataLength() {
		w.disk.SetDataLength(grown)
	}
	if err := w.disk.Sync(); err != nil {
		return 0, err
	}
	if err := w.disk.TruncateLog(); err != nil {
		return 0, err
	}

	w.index = make(map[uint32][]version)
	w.confirmed = make(map[uint32]struct{})
	w.currentVersion = 0

	logging.WithComponent("wal").Debug().Int("pages", len(pageIDs)).Msg("checkpoint complete")
	return len(pageIDs), nil
}

// Restore runs crash recovery on open: when the log area is non-empty,
// apply the checkpoint procedure to it. Idempotent; a cleanly closed
// file has an empty log and this is a no-op.
func (w *Index) Restore() (int, error) {
	if w.disk.LogLength() == 0 {
		return 0, nil
	}
	n, err := w.Checkpoint()
	if err != nil {
		return n, err
	}
	if n > 0 {
		logging.WithComponent("wal").Info().Int("pages", n).Msg("recovered committed transactions from log")
	}
	return n, nil
}
