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
Package data allocates variable-size document records on data pages.

A record is a chain of blocks: the first block carries the compression
tag, continuation blocks carry the extend flag, and each block points at
the next through its trailer address. Block placement walks the
collection's free-list ladder: the tightest bucket whose guarantee still
fits the block is tried first, so fuller pages fill up before emptier
ones are touched. Payloads above a small threshold are stored compressed
with the configured algorithm (snappy by default) when compression
actually wins.
*/
package data

import (
	dberrors "flintdb/errors"
	"flintdb/internal/compression"
	"flintdb/internal/storage"
	"flintdb/internal/txn"
)

// compressionThreshold skips compression for payloads too small to win.
const compressionThreshold = 128

// Service is the record allocator for one snapshot.
type Service struct {
	snapshot *txn.Snapshot
	alg      compression.Algorithm
}

// NewService creates a data service. alg selects the stored-payload
// compression (compression.None disables it).
func NewService(snapshot *txn.Snapshot, alg compression.Algorithm) *Service {
	return &Service{snapshot: snapshot, alg: alg}
}

// Insert stores a document's bytes, returning the first block's address.
func (s *Service) Insert(doc []byte) (storage.PageAddress, error) {
	if len(doc) > storage.MaxDocumentSize {
		return storage.EmptyAddress, dberrors.DocumentTooLarge(len(doc))
	}
	payload := doc
	alg := compression.None
	if len(doc) >= compressionThreshold {
		payload, alg = compression.Shrink(s.alg, doc)
	}

	blocks, err := s.writeChain(payload)
	if err != nil {
		return storage.EmptyAddress, err
	}
	if alg != compression.None {
		page, err := s.snapshot.GetDataPage(blocks[0].PageID, true)
		if err != nil {
			return storage.EmptyAddress, err
		}
		block, err := page.GetBlock(blocks[0].Index)
		if err != nil {
			return storage.EmptyAddress, err
		}
		block.SetCompressionAlg(byte(alg))
	}
	return blocks[0], nil
}

// writeChain splits a payload into blocks and links them.
func (s *Service) writeChain(payload []byte) ([]storage.PageAddress, error) {
	var blocks []storage.PageAddress
	offset := 0
	for {
		chunk := len(payload) - offset
		if chunk > storage.MaxDataBytesPerBlock {
			chunk = storage.MaxDataBytesPerBlock
		}
		page, initialSlot, err := s.getFreeDataPage(chunk + storage.DataBlockHeaderSize + storage.SlotSize)
		if err != nil {
			return nil, err
		}
		block, err := page.InsertBlock(chunk, offset > 0)
		if err != nil {
			return nil, err
		}
		copy(block.Payload(), payload[offset:offset+chunk])
		if err := s.snapshot.AddOrRemoveFreeDataList(page, initialSlot); err != nil {
			return nil, err
		}
		blocks = append(blocks, block.Position)
		offset += chunk
		if offset >= len(payload) {
			break
		}
		// a chain longer than the transaction budget spills as it grows;
		// only block addresses are carried across the spill
		if err := s.snapshot.Transaction().Safepoint(); err != nil {
			return nil, err
		}
	}
	// link after all inserts: a later insert may defrag an earlier page,
	// so block views are re-fetched rather than kept across the loop
	for i := 0; i+1 < len(blocks); i++ {
		page, err := s.snapshot.GetDataPage(blocks[i].PageID, true)
		if err != nil {
			return nil, err
		}
		block, err := page.GetBlock(blocks[i].Index)
		if err != nil {
			return nil, err
		}
		block.SetNextBlock(blocks[i+1])
		if err := s.snapshot.Transaction().Safepoint(); err != nil {
			return nil, err
		}
	}
	return blocks, nil
}

// Read reassembles a document's bytes from its block chain.
func (s *Service) Read(addr storage.PageAddress) ([]byte, error) {
	var out []byte
	alg := compression.None
	first := true
	for !addr.IsEmpty() {
		page, err := s.snapshot.GetDataPage(addr.PageID, false)
		if err != nil {
			return nil, err
		}
		block, err := page.GetBlock(addr.Index)
		if err != nil {
			return nil, err
		}
		if first {
			alg = compression.Algorithm(block.CompressionAlg())
			first = false
		} else if !block.Extend() {
			return nil, dberrors.CorruptedPage(addr.PageID, "broken data block chain")
		}
		out = append(out, block.Payload()...)
		addr = block.NextBlock()
	}
	if alg != compression.None {
		raw, err := compression.Decompress(alg, out)
		if err != nil {
			return nil, dberrors.CorruptedPage(0, "unreadable compressed document").WithCause(err)
		}
		return raw, nil
	}
	return out, nil
}

// Update rewrites a document in place when the new payload still fits in
// its single block's page; otherwise the chain is reallocated. Returns
// the (possibly new) first block address.
func (s *Service) Update(addr storage.PageAddress, doc []byte) (storage.PageAddress, error) {
	if len(doc) > storage.MaxDocumentSize {
		return storage.EmptyAddress, dberrors.DocumentTooLarge(len(doc))
	}
	payload := doc
	alg := compression.None
	if len(doc) >= compressionThreshold {
		payload, alg = compression.Shrink(s.alg, doc)
	}

	page, err := s.snapshot.GetDataPage(addr.PageID, true)
	if err != nil {
		return storage.EmptyAddress, err
	}
	block, err := page.GetBlock(addr.Index)
	if err != nil {
		return storage.EmptyAddress, err
	}
	single := block.NextBlock().IsEmpty()
	oldLen := len(block.Payload())
	fits := len(payload) <= oldLen+page.FreeBytes()

	if single && fits {
		initialSlot := storage.FreeListSlot(page.FreeBytes())
		block, err = page.UpdateBlock(addr.Index, len(payload))
		if err != nil {
			return storage.EmptyAddress, err
		}
		copy(block.Payload(), payload)
		block.SetCompressionAlg(byte(alg))
		block.SetNextBlock(storage.EmptyAddress)
		if err := s.snapshot.AddOrRemoveFreeDataList(page, initialSlot); err != nil {
			return storage.EmptyAddress, err
		}
		return addr, nil
	}

	if err := s.Delete(addr); err != nil {
		return storage.EmptyAddress, err
	}
	blocks, err := s.writeChain(payload)
	if err != nil {
		return storage.EmptyAddress, err
	}
	if alg != compression.None {
		firstPage, err := s.snapshot.GetDataPage(blocks[0].PageID, true)
		if err != nil {
			return storage.EmptyAddress, err
		}
		firstBlock, err := firstPage.GetBlock(blocks[0].Index)
		if err != nil {
			return storage.EmptyAddress, err
		}
		firstBlock.SetCompressionAlg(byte(alg))
	}
	return blocks[0], nil
}

// Delete frees a document's whole block chain.
func (s *Service) Delete(addr storage.PageAddress) error {
	for !addr.IsEmpty() {
		page, err := s.snapshot.GetDataPage(addr.PageID, true)
		if err != nil {
			return err
		}
		block, err := page.GetBlock(addr.Index)
		if err != nil {
			return err
		}
		next := block.NextBlock()
		initialSlot := storage.FreeListSlot(page.FreeBytes())
		if err := page.DeleteBlock(addr.Index); err != nil {
			return err
		}
		if err := s.snapshot.AddOrRemoveFreeDataList(page, initialSlot); err != nil {
			return err
		}
		addr = next
		if err := s.snapshot.Transaction().Safepoint(); err != nil {
			return err
		}
	}
	return nil
}

// getFreeDataPage returns a writable data page guaranteed to fit need
// bytes, trying the tightest ladder bucket first. initialSlot reports
// the bucket the page came from (txn.NotLinked for a fresh page).
func (s *Service) getFreeDataPage(need int) (*storage.DataPage, int, error) {
	col, err := s.snapshot.CollectionPage()
	if err != nil {
		return nil, 0, err
	}
	for slot := startSlot(need); slot >= 0; slot-- {
		head := col.FreeDataPageList[slot]
		if head == storage.MaxPageID {
			continue
		}
		page, err := s.snapshot.GetDataPage(head, true)
		if err != nil {
			return nil, 0, err
		}
		if page.FreeBytes() >= need {
			return page, slot, nil
		}
	}
	page, err := s.snapshot.NewDataPage()
	if err != nil {
		return nil, 0, err
	}
	return page, txn.NotLinked, nil
}

// startSlot picks the fullest bucket whose free-space guarantee still
// fits need bytes.
func startSlot(need int) int {
	switch {
	case need <= storage.ContentSize*1/8:
		return 3
	case need <= storage.ContentSize*3/8:
		return 2
	case need <= storage.ContentSize*5/8:
		return 1
	default:
		return 0
	}
}
