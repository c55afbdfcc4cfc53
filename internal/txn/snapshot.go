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

package txn

import (
	dberrors "flintdb/errors"
	"flintdb/internal/storage"
)

// Mode selects how a snapshot is used.
type Mode int

const (
	// ReadMode sees the committed state at the snapshot's read version.
	ReadMode Mode = iota
	// WriteMode additionally holds the collection write lock and hands
	// out transaction-local writable page copies.
	WriteMode
)

// freeIndexSlot addresses the free index page list in freeListHead.
const freeIndexSlot = -1

// pageSlot tracks one page the snapshot has touched.
type pageSlot struct {
	buf      *storage.PageBuffer
	base     *storage.BasePage
	writable bool

	data  *storage.DataPage
	index *storage.IndexPage
}

// Snapshot is a consistent view of one collection for the life of a
// transaction.
type Snapshot struct {
	Mode           Mode
	CollectionName string

	tx  *Transaction
	env *Env

	// ReadVersion pins the WAL index state this snapshot resolves against.
	ReadVersion int

	collectionPageID uint32
	collectionPage   *storage.CollectionPage
	hasCollection    bool

	pages    map[uint32]*pageSlot
	retained []*storage.PageBuffer

	lockHeld bool
	closed   bool
}

func newSnapshot(tx *Transaction, mode Mode, collection string, addIfNotExists bool) (*Snapshot, error) {
	s := &Snapshot{
		Mode:           mode,
		CollectionName: collection,
		tx:             tx,
		env:            tx.env,
		ReadVersion:    tx.ReadVersion,
		pages:          make(map[uint32]*pageSlot),
	}
	if mode == WriteMode {
		if err := s.env.Locks.EnterCollection(collection); err != nil {
			return nil, err
		}
		s.lockHeld = true
		// holding the collection lock, a writer must see the newest
		// committed state, not the transaction's begin-time version
		s.ReadVersion = s.env.Wal.CurrentReadVersion()
	}

	s.env.HeaderMu.Lock()
	pageID, ok := s.env.Header.GetCollectionPageID(collection)
	s.env.HeaderMu.Unlock()

	switch {
	case ok:
		s.collectionPageID = pageID
		s.hasCollection = true
		if mode == ReadMode {
			// the directory entry may belong to a collection whose creating
			// transaction has not committed yet; a page this snapshot's
			// version cannot read means the collection does not exist here
			if _, err := s.CollectionPage(); err != nil {
				s.MarkDropped()
			}
		}
	case mode == WriteMode && addIfNotExists:
		if err := s.createCollection(); err != nil {
			s.Close(false)
			return nil, err
		}
	default:
		// read of a missing collection yields an empty view, not an error
		s.collectionPageID = storage.MaxPageID
	}
	return s, nil
}

// HasCollection reports whether the collection exists in this snapshot.
func (s *Snapshot) HasCollection() bool { return s.hasCollection }

// MarkDropped detaches the snapshot from its dropped collection page.
func (s *Snapshot) MarkDropped() {
	s.hasCollection = false
	s.collectionPage = nil
	s.collectionPageID = storage.MaxPageID
}

// CollectionPageID returns the collection page id.
func (s *Snapshot) CollectionPageID() uint32 { return s.collectionPageID }

// Transaction returns the owning transaction.
func (s *Snapshot) Transaction() *Transaction { return s.tx }

// createCollection allocates and registers a fresh collection page. The
// caller holds the collection write lock.
func (s *Snapshot) createCollection() error {
	id, buf, err := s.allocatePageBuffer()
	if err != nil {
		return err
	}
	page := storage.CreateCollectionPage(buf, id)
	s.pages[id] = &pageSlot{buf: buf, base: page.BasePage, writable: true}
	s.collectionPage = page
	s.collectionPageID = id
	s.hasCollection = true

	s.env.HeaderMu.Lock()
	err = s.env.Header.InsertCollection(s.CollectionName, id)
	s.env.HeaderMu.Unlock()
	if err != nil {
		return err
	}
	s.tx.addedCollections = append(s.tx.addedCollections, s.CollectionName)
	return nil
}

// CollectionPage returns the collection page, writable in write mode.
func (s *Snapshot) CollectionPage() (*storage.CollectionPage, error) {
	if !s.hasCollection {
		return nil, dberrors.NoCollection(s.CollectionName)
	}
	if s.collectionPage != nil {
		return s.collectionPage, nil
	}
	slot, err := s.getPage(s.collectionPageID, s.Mode == WriteMode)
	if err != nil {
		return nil, err
	}
	page, err := storage.LoadCollectionPage(slot.buf)
	if err != nil {
		return nil, err
	}
	slot.base = page.BasePage
	s.collectionPage = page
	return page, nil
}

// GetDataPage returns a data page, cloned writable on demand.
func (s *Snapshot) GetDataPage(pageID uint32, writable bool) (*storage.DataPage, error) {
	slot, err := s.getPage(pageID, writable)
	if err != nil {
		return nil, err
	}
	if slot.data == nil {
		page, err := storage.LoadDataPage(slot.buf)
		if err != nil {
			return nil, err
		}
		slot.data = page
		slot.base = page.BasePage
	}
	return slot.data, nil
}

// GetIndexPage returns an index page, cloned writable on demand.
func (s *Snapshot) GetIndexPage(pageID uint32, writable bool) (*storage.IndexPage, error) {
	slot, err := s.getPage(pageID, writable)
	if err != nil {
		return nil, err
	}
	if slot.index == nil {
		page, err := storage.LoadIndexPage(slot.buf)
		if err != nil {
			return nil, err
		}
		slot.index = page
		slot.base = page.BasePage
	}
	return slot.index, nil
}

// getPage resolves a page id through the snapshot chain: local pages,
// the transaction's spilled log positions, the WAL index at the read
// version, then the data area.
func (s *Snapshot) getPage(pageID uint32, writable bool) (*pageSlot, error) {
	if slot, ok := s.pages[pageID]; ok {
		if writable && !slot.writable {
			if err := s.upgradeSlot(pageID, slot); err != nil {
				return nil, err
			}
		}
		return slot, nil
	}

	buf, err := s.resolveBuffer(pageID)
	if err != nil {
		return nil, err
	}

	slot := &pageSlot{buf: buf, base: storage.LoadBasePage(buf)}
	if writable {
		clone := s.env.Disk.NewPage()
		copy(clone.Buffer, buf.Buffer)
		s.env.Disk.ReturnPage(buf)
		slot.buf = clone
		slot.base = storage.LoadBasePage(clone)
		slot.writable = true
		s.tx.addDirtyPage()
	} else {
		s.retained = append(s.retained, buf)
	}
	s.pages[pageID] = slot
	return slot, nil
}

// upgradeSlot clones a read-only slot into a transaction-local copy,
// keeping existing typed wrappers valid via buffer swap.
func (s *Snapshot) upgradeSlot(pageID uint32, slot *pageSlot) error {
	clone := s.env.Disk.NewPage()
	copy(clone.Buffer, slot.buf.Buffer)
	// the readable buffer stays retained until snapshot close
	slot.buf = clone
	slot.writable = true
	slot.base.SwapBuffer(clone)
	if slot.data != nil {
		slot.data.SwapBuffer(clone)
	}
	if slot.index != nil {
		slot.index.SwapBuffer(clone)
	}
	s.tx.addDirtyPage()
	return nil
}

// resolveBuffer reads the newest visible version of a page.
func (s *Snapshot) resolveBuffer(pageID uint32) (*storage.PageBuffer, error) {
	if pos, ok := s.tx.pagePositions[pageID]; ok {
		return s.env.Disk.GetReadablePage(pos)
	}
	if pos := s.env.Wal.GetPageIndex(pageID, s.ReadVersion); pos >= 0 {
		return s.env.Disk.GetReadablePage(pos)
	}
	return s.env.Disk.GetReadablePage(int64(pageID) * storage.PageSize)
}

// allocatePageBuffer hands out a fresh writable page: the head of the
// empty-page free list when one exists, otherwise a page past the end of
// the data area (bounded by LIMIT_SIZE).
func (s *Snapshot) allocatePageBuffer() (uint32, *storage.PageBuffer, error) {
	s.env.HeaderMu.Lock()
	defer s.env.HeaderMu.Unlock()

	free := s.env.Header.FreeEmptyPageList()
	if free != storage.MaxPageID {
		slot, err := s.getPage(free, true)
		if err != nil {
			return 0, nil, err
		}
		s.env.Header.SetFreeEmptyPageList(slot.base.NextPageID())
		slot.buf.Clear()
		slot.data, slot.index = nil, nil
		slot.base = storage.LoadBasePage(slot.buf)
		s.tx.newPages = append(s.tx.newPages, free)
		return free, slot.buf, nil
	}

	last := s.env.Header.LastPageID() + 1
	limit, _ := s.env.Header.GetPragma(storage.PragmaLimitSize)
	if limit > 0 && int64(last+1)*storage.PageSize > limit {
		return 0, nil, dberrors.IOError(nil).WithDetail("datafile reached LIMIT_SIZE")
	}
	s.env.Header.SetLastPageID(last)

	buf := s.env.Disk.NewPage()
	slot := &pageSlot{buf: buf, base: storage.LoadBasePage(buf), writable: true}
	s.pages[last] = slot
	s.tx.addDirtyPage()
	s.tx.newPages = append(s.tx.newPages, last)
	return last, buf, nil
}

// NewDataPage allocates a fresh data page for this collection.
func (s *Snapshot) NewDataPage() (*storage.DataPage, error) {
	id, buf, err := s.allocatePageBuffer()
	if err != nil {
		return nil, err
	}
	page := storage.CreateDataPage(buf, id, s.collectionPageID)
	slot := s.pages[id]
	slot.base = page.BasePage
	slot.data = page
	slot.index = nil
	return page, nil
}

// NewIndexPage allocates a fresh index page for this collection.
func (s *Snapshot) NewIndexPage() (*storage.IndexPage, error) {
	id, buf, err := s.allocatePageBuffer()
	if err != nil {
		return nil, err
	}
	page := storage.CreateIndexPage(buf, id, s.collectionPageID)
	slot := s.pages[id]
	slot.base = page.BasePage
	slot.index = page
	slot.data = nil
	return page, nil
}

// DeletePage empties a page and pushes it onto the header's
// empty-page free list.
func (s *Snapshot) DeletePage(pageID uint32) error {
	slot, err := s.getPage(pageID, true)
	if err != nil {
		return err
	}
	s.env.HeaderMu.Lock()
	head := s.env.Header.FreeEmptyPageList()
	s.env.Header.SetFreeEmptyPageList(pageID)
	s.env.HeaderMu.Unlock()

	base := storage.NewBasePage(slot.buf, pageID, storage.PageTypeEmpty)
	base.SetNextPageID(head)
	slot.base = base
	slot.data, slot.index = nil, nil
	return nil
}

// ============================================================================
// Free-list maintenance
// ============================================================================

// freeListHead reads a list head: a ladder bucket, or the free index
// page list for freeIndexSlot.
func (s *Snapshot) freeListHead(slot int) (uint32, error) {
	col, err := s.CollectionPage()
	if err != nil {
		return storage.MaxPageID, err
	}
	if slot == freeIndexSlot {
		return col.FreeIndexPageList, nil
	}
	return col.FreeDataPageList[slot], nil
}

func (s *Snapshot) setFreeListHead(slot int, pageID uint32) error {
	col, err := s.CollectionPage()
	if err != nil {
		return err
	}
	if slot == freeIndexSlot {
		col.SetFreeIndexList(pageID)
	} else {
		col.SetFreeList(slot, pageID)
	}
	return nil
}

// addToFreeList links a page at the head of a list.
func (s *Snapshot) addToFreeList(slot int, page *storage.BasePage) error {
	head, err := s.freeListHead(slot)
	if err != nil {
		return err
	}
	page.SetPrevPageID(storage.MaxPageID)
	page.SetNextPageID(head)
	if head != storage.MaxPageID {
		headSlot, err := s.getPage(head, true)
		if err != nil {
			return err
		}
		headSlot.base.SetPrevPageID(page.PageID())
	}
	return s.setFreeListHead(slot, page.PageID())
}

// removeFromFreeList unlinks a page from a list.
func (s *Snapshot) removeFromFreeList(slot int, page *storage.BasePage) error {
	prev, next := page.PrevPageID(), page.NextPageID()
	if prev != storage.MaxPageID {
		prevSlot, err := s.getPage(prev, true)
		if err != nil {
			return err
		}
		prevSlot.base.SetNextPageID(next)
	} else {
		if err := s.setFreeListHead(slot, next); err != nil {
			return err
		}
	}
	if next != storage.MaxPageID {
		nextSlot, err := s.getPage(next, true)
		if err != nil {
			return err
		}
		nextSlot.base.SetPrevPageID(prev)
	}
	page.SetPrevPageID(storage.MaxPageID)
	page.SetNextPageID(storage.MaxPageID)
	return nil
}

// AddOrRemoveFreeDataList re-buckets a data page after a mutation.
// initialSlot is the ladder bucket the page occupied before the mutation
// (-2 for a page not linked yet). An emptied page leaves the ladder and
// returns to the empty-page pool.
func (s *Snapshot) AddOrRemoveFreeDataList(page *storage.DataPage, initialSlot int) error {
	if page.ItemsCount() == 0 {
		if initialSlot != NotLinked {
			if err := s.removeFromFreeList(initialSlot, page.BasePage); err != nil {
				return err
			}
		}
		return s.DeletePage(page.PageID())
	}
	newSlot := storage.FreeListSlot(page.FreeBytes())
	if newSlot == initialSlot {
		return nil
	}
	if initialSlot != NotLinked {
		if err := s.removeFromFreeList(initialSlot, page.BasePage); err != nil {
			return err
		}
	}
	return s.addToFreeList(newSlot, page.BasePage)
}

// NotLinked marks a page that is in no free list yet.
const NotLinked = -2

// AddOrRemoveFreeIndexList links or unlinks an index page from the free
// index page list based on remaining node room.
func (s *Snapshot) AddOrRemoveFreeIndexList(page *storage.IndexPage, wasLinked bool) error {
	isFree := page.FreeBytes() >= storage.MaxIndexNodeSize
	if page.ItemsCount() == 0 {
		if wasLinked {
			if err := s.removeFromFreeList(freeIndexSlot, page.BasePage); err != nil {
				return err
			}
		}
		return s.DeletePage(page.PageID())
	}
	switch {
	case isFree && !wasLinked:
		return s.addToFreeList(freeIndexSlot, page.BasePage)
	case !isFree && wasLinked:
		return s.removeFromFreeList(freeIndexSlot, page.BasePage)
	}
	return nil
}

// ============================================================================
// Persistence hooks used by the transaction
// ============================================================================

// dirtyBuffers returns the transaction-local writable buffers of this
// snapshot, collection page last so index definition counters land after
// the pages they describe.
func (s *Snapshot) dirtyBuffers() []*storage.PageBuffer {
	if s.collectionPage != nil {
		s.collectionPage.UpdateBuffer()
	}
	out := make([]*storage.PageBuffer, 0, len(s.pages))
	var colBuf *storage.PageBuffer
	for id, slot := range s.pages {
		if !slot.writable {
			continue
		}
		if id == s.collectionPageID {
			colBuf = slot.buf
			continue
		}
		out = append(out, slot.buf)
	}
	if colBuf != nil {
		out = append(out, colBuf)
	}
	return out
}

// localPageIDs maps each local writable buffer back to its page id
// during persist.
func (s *Snapshot) localPageIDs() map[*storage.PageBuffer]uint32 {
	out := make(map[*storage.PageBuffer]uint32)
	for id, slot := range s.pages {
		if slot.writable {
			out[slot.buf] = id
		}
	}
	return out
}

// clearLocal drops all local page state after a safepoint spill. The
// writable buffers have been handed to the pool as dirty-log pages.
func (s *Snapshot) clearLocal() {
	for _, buf := range s.retained {
		s.env.Disk.ReturnPage(buf)
	}
	s.retained = nil
	s.pages = make(map[uint32]*pageSlot)
	s.collectionPage = nil
}

// Close releases the snapshot's buffers and any collection write lock it
// holds. On rollback the writable buffers are discarded.
func (s *Snapshot) Close(commit bool) {
	if s.closed {
		return
	}
	s.closed = true
	for _, slot := range s.pages {
		if slot.writable && !commit {
			s.env.Disk.DiscardPage(slot.buf)
		}
	}
	for _, buf := range s.retained {
		s.env.Disk.ReturnPage(buf)
	}
	s.retained = nil
	s.pages = nil
	if s.lockHeld {
		s.env.Locks.ExitCollection(s.CollectionName)
		s.lockHeld = false
	}
}
