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
Transaction Lifecycle
=====================

	Active --safepoint--> Active --commit--> Committed
	   \----rollback--> Aborted

A transaction binds to the goroutine that began it; commit, rollback,
safepoint and snapshot creation fail with WrongThread elsewhere. Dirty
pages are bounded: a safepoint spills them to the log as unconfirmed
images and the transaction continues. Commit spills the remainder and
appends one confirmation page (the current header image) before
publishing the transaction in the WAL index.
*/
package txn

import (
	"time"

	dberrors "flintdb/errors"
	"flintdb/internal/logging"
	"flintdb/internal/storage"
	"flintdb/internal/wal"
)

// State is the transaction lifecycle state.
type State int

const (
	StateActive State = iota
	StateCommitted
	StateAborted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateCommitted:
		return "COMMITTED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Transaction is one unit of isolation. It owns one snapshot per
// collection it touches.
type Transaction struct {
	ID uint32

	env     *Env
	monitor *Monitor

	state       State
	explicit    bool
	queryOnly   bool
	system      bool
	goroutineID uint64
	startTime   time.Time

	// ReadVersion pins which committed transactions this one observes.
	ReadVersion int

	snapshots map[string]*Snapshot

	// transSize counts local dirty pages against maxTransactionSize.
	transSize          int
	maxTransactionSize int

	// pagePositions maps page id -> latest log position this transaction
	// spilled, resolved by its own snapshots and published on commit.
	pagePositions map[uint32]int64

	// newPages lists pages this transaction allocated, reclaimed on
	// rollback.
	newPages []uint32

	// addedCollections lists names registered in the header by this
	// transaction, deregistered on rollback.
	addedCollections []string

	// headerRollback undoes header directory changes (drops, renames)
	// when the transaction aborts. Run under HeaderMu.
	headerRollback []func()
}

// OnRollbackHeader registers an undo for a header directory change.
func (t *Transaction) OnRollbackHeader(fn func()) {
	t.headerRollback = append(t.headerRollback, fn)
}

func newTransaction(env *Env, monitor *Monitor, explicit bool) *Transaction {
	return &Transaction{
		ID:                 env.Wal.NextTransactionID(),
		env:                env,
		monitor:            monitor,
		explicit:           explicit,
		goroutineID:        CurrentGoroutineID(),
		startTime:          time.Now(),
		ReadVersion:        env.Wal.CurrentReadVersion(),
		snapshots:          make(map[string]*Snapshot),
		maxTransactionSize: env.MaxTransactionSize,
		pagePositions:      make(map[uint32]int64),
	}
}

// CurrentState returns the lifecycle state.
func (t *Transaction) CurrentState() State { return t.state }

// Explicit reports whether BeginTrans created this transaction.
func (t *Transaction) Explicit() bool { return t.explicit }

// StartTime returns when the transaction began.
func (t *Transaction) StartTime() time.Time { return t.startTime }

// DirtyPages returns the current local dirty page count.
func (t *Transaction) DirtyPages() int { return t.transSize }

// guard enforces goroutine binding and the Active state.
func (t *Transaction) guard() error {
	if t.goroutineID != CurrentGoroutineID() {
		return dberrors.WrongThread()
	}
	if t.state != StateActive {
		return dberrors.NoTransaction()
	}
	return nil
}

func (t *Transaction) addDirtyPage() { t.transSize++ }

// CreateSnapshot returns (creating on first use) the snapshot for a
// collection. A read snapshot upgrades in place when write mode is
// requested later.
func (t *Transaction) CreateSnapshot(mode Mode, collection string, addIfNotExists bool) (*Snapshot, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	if s, ok := t.snapshots[collection]; ok {
		if mode == WriteMode && s.Mode == ReadMode {
			s.Close(false)
			delete(t.snapshots, collection)
		} else {
			return s, nil
		}
	}
	s, err := newSnapshot(t, mode, collection, addIfNotExists)
	if err != nil {
		return nil, err
	}
	t.snapshots[collection] = s
	return s, nil
}

// Safepoint bounds transaction memory: when the local dirty pages have
// reached the budget they spill to the log as unconfirmed images. A
// transaction that managed to exceed the budget inside one operation is
// over the limit and fails.
func (t *Transaction) Safepoint() error {
	if err := t.guard(); err != nil {
		return err
	}
	if t.transSize > t.maxTransactionSize {
		return dberrors.TransactionLimit()
	}
	if t.transSize >= t.maxTransactionSize {
		return t.persist(false)
	}
	return nil
}

// persist spills every snapshot's dirty pages to the log. With confirm
// set, the current header image is appended as the confirmation page.
func (t *Transaction) persist(confirm bool) error {
	var bufs []*storage.PageBuffer
	ids := make(map[*storage.PageBuffer]uint32)
	for _, s := range t.snapshots {
		for buf, id := range s.localPageIDs() {
			ids[buf] = id
		}
		bufs = append(bufs, s.dirtyBuffers()...)
	}

	for _, buf := range bufs {
		page := storage.LoadBasePage(buf)
		page.SetTransactionID(t.ID)
		page.SetConfirmed(false)
	}

	if confirm {
		// the confirmation page is the header image, carrying the final
		// last_page_id and collection directory of this transaction
		t.env.HeaderMu.Lock()
		headerBuf := t.env.Disk.NewPage()
		t.env.Header.Clone(headerBuf)
		t.env.HeaderMu.Unlock()
		headerPage := storage.LoadBasePage(headerBuf)
		headerPage.SetTransactionID(t.ID)
		headerPage.SetConfirmed(true)
		bufs = append(bufs, headerBuf)
		ids[headerBuf] = 0
	}

	if len(bufs) == 0 {
		return nil
	}
	if err := t.env.Disk.WriteLogPages(bufs); err != nil {
		return err
	}
	for _, buf := range bufs {
		t.pagePositions[ids[buf]] = buf.Position
	}
	for _, s := range t.snapshots {
		s.clearLocal()
	}
	t.transSize = 0
	return nil
}

// Commit spills the remaining dirty pages, appends the confirmation
// page, flushes, publishes the transaction in the WAL index and releases
// every lock.
func (t *Transaction) Commit() error {
	if err := t.guard(); err != nil {
		return err
	}
	wrote := t.transSize > 0 || len(t.pagePositions) > 0 ||
		len(t.newPages) > 0 || len(t.addedCollections) > 0 ||
		len(t.headerRollback) > 0
	if wrote {
		if err := t.persist(true); err != nil {
			return err
		}
		positions := make([]wal.PagePosition, 0, len(t.pagePositions))
		for id, pos := range t.pagePositions {
			positions = append(positions, wal.PagePosition{PageID: id, Position: pos})
		}
		t.env.Wal.ConfirmTransaction(t.ID, positions)
	}
	t.close(true)
	t.state = StateCommitted
	logging.WithComponent("txn").Debug().Uint32("id", t.ID).Bool("wrote", wrote).Msg("committed")
	return nil
}

// Rollback discards local dirty pages, returns allocated pages to the
// empty-page pool and releases every lock. Any pages this transaction
// already spilled stay in the log unconfirmed; the next checkpoint
// garbage-collects them.
func (t *Transaction) Rollback() error {
	if err := t.guard(); err != nil {
		return err
	}
	if len(t.newPages) > 0 || len(t.addedCollections) > 0 {
		t.reclaimNewPages()
	}
	if len(t.headerRollback) > 0 {
		t.env.HeaderMu.Lock()
		for i := len(t.headerRollback) - 1; i >= 0; i-- {
			t.headerRollback[i]()
		}
		t.env.HeaderMu.Unlock()
		t.headerRollback = nil
	}
	t.close(false)
	t.state = StateAborted
	logging.WithComponent("txn").Debug().Uint32("id", t.ID).Msg("rolled back")
	return nil
}

// reclaimNewPages runs a small system transaction that rewrites the
// pages this transaction allocated as empty-list members and removes any
// collections it registered.
func (t *Transaction) reclaimNewPages() {
	systemID := t.env.Wal.NextTransactionID()

	t.env.HeaderMu.Lock()
	for _, name := range t.addedCollections {
		t.env.Header.DeleteCollection(name)
	}
	bufs := make([]*storage.PageBuffer, 0, len(t.newPages)+1)
	head := t.env.Header.FreeEmptyPageList()
	for _, pageID := range t.newPages {
		buf := t.env.Disk.NewPage()
		page := storage.NewBasePage(buf, pageID, storage.PageTypeEmpty)
		page.SetNextPageID(head)
		page.SetTransactionID(systemID)
		head = pageID
		bufs = append(bufs, buf)
	}
	t.env.Header.SetFreeEmptyPageList(head)
	headerBuf := t.env.Disk.NewPage()
	t.env.Header.Clone(headerBuf)
	t.env.HeaderMu.Unlock()

	headerPage := storage.LoadBasePage(headerBuf)
	headerPage.SetTransactionID(systemID)
	headerPage.SetConfirmed(true)
	bufs = append(bufs, headerBuf)

	if err := t.env.Disk.WriteLogPages(bufs); err != nil {
		logging.WithComponent("txn").Error().Err(err).Msg("page reclaim failed on rollback")
		return
	}
	positions := make([]wal.PagePosition, 0, len(bufs))
	for i, buf := range bufs {
		pageID := uint32(0)
		if i < len(t.newPages) {
			pageID = t.newPages[i]
		}
		positions = append(positions, wal.PagePosition{PageID: pageID, Position: buf.Position})
	}
	t.env.Wal.ConfirmTransaction(systemID, positions)
}

// close releases snapshots, locks and the monitor registration.
func (t *Transaction) close(commit bool) {
	for _, s := range t.snapshots {
		s.Close(commit)
	}
	t.snapshots = make(map[string]*Snapshot)
	t.monitor.releaseTransaction(t)
}
