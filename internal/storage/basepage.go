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
Slotted Page Format
===================

	+--------------------+--------------------------------+-----------+
	| header (32B)       | heap: records grow ->          | <- slots  |
	+--------------------+--------------------------------+-----------+

Header layout (little-endian):

	[00] page_id            u32
	[04] page_type          u8
	[05] prev_page_id       u32
	[09] next_page_id       u32
	[13] items_count        u16
	[15] used_bytes         u16
	[17] fragmented_bytes   u16
	[19] next_free_position u16
	[21] highest_index      u16 (0xFFFF when the page has no items)
	[23] transaction_id     u32
	[27] is_confirmed       u8
	[28] col_id             u32

The slot directory grows down from the page tail: entry i sits at
PageSize-(i+1)*4 and holds [position u16][length u16]. A free slot is
all zero. Record payloads grow up from next_free_position; deleting a
record in the middle of the heap leaves a fragment that Defrag compacts
when a later insert needs contiguous space.
*/
package storage

import (
	"encoding/binary"

	dberrors "flintdb/errors"
)

// Header field offsets.
const (
	pPageID           = 0
	pPageType         = 4
	pPrevPageID       = 5
	pNextPageID       = 9
	pItemsCount       = 13
	pUsedBytes        = 15
	pFragmentedBytes  = 17
	pNextFreePosition = 19
	pHighestIndex     = 21
	pTransactionID    = 23
	pIsConfirmed      = 27
	pColID            = 28
)

// noHighestIndex is the highest_index value of an empty page.
const noHighestIndex = uint16(0xFFFF)

// BasePage wraps a PageBuffer with the shared header prefix and the
// slotted record directory. All mutators write through to the buffer so
// the buffer is always flushable.
type BasePage struct {
	buf *PageBuffer

	// Dirty marks pages mutated since they were loaded or flushed.
	Dirty bool
}

// NewBasePage initializes a fresh page of the given type in buf.
func NewBasePage(buf *PageBuffer, pageID uint32, pageType PageType) *BasePage {
	b := buf.Buffer
	for i := range b {
		b[i] = 0
	}
	binary.LittleEndian.PutUint32(b[pPageID:], pageID)
	b[pPageType] = byte(pageType)
	binary.LittleEndian.PutUint32(b[pPrevPageID:], MaxPageID)
	binary.LittleEndian.PutUint32(b[pNextPageID:], MaxPageID)
	binary.LittleEndian.PutUint16(b[pNextFreePosition:], PageHeaderSize)
	binary.LittleEndian.PutUint16(b[pHighestIndex:], noHighestIndex)
	binary.LittleEndian.PutUint32(b[pColID:], MaxPageID)
	return &BasePage{buf: buf, Dirty: true}
}

// LoadBasePage wraps an existing page image.
func LoadBasePage(buf *PageBuffer) *BasePage {
	return &BasePage{buf: buf}
}

// Buffer returns the underlying page buffer.
func (p *BasePage) Buffer() *PageBuffer { return p.buf }

// SwapBuffer rebinds the page onto another buffer (used when a read-only
// page is cloned into a transaction-local writable copy).
func (p *BasePage) SwapBuffer(buf *PageBuffer) { p.buf = buf }

func (p *BasePage) u16(off int) uint16  { return binary.LittleEndian.Uint16(p.buf.Buffer[off:]) }
func (p *BasePage) u32(off int) uint32  { return binary.LittleEndian.Uint32(p.buf.Buffer[off:]) }
func (p *BasePage) put16(off int, v uint16) { binary.LittleEndian.PutUint16(p.buf.Buffer[off:], v); p.Dirty = true }
func (p *BasePage) put32(off int, v uint32) { binary.LittleEndian.PutUint32(p.buf.Buffer[off:], v); p.Dirty = true }

// Header accessors.

func (p *BasePage) PageID() uint32       { return p.u32(pPageID) }
func (p *BasePage) PageType() PageType   { return PageType(p.buf.Buffer[pPageType]) }
func (p *BasePage) PrevPageID() uint32   { return p.u32(pPrevPageID) }
func (p *BasePage) NextPageID() uint32   { return p.u32(pNextPageID) }
func (p *BasePage) ItemsCount() int      { return int(p.u16(pItemsCount)) }
func (p *BasePage) UsedBytes() int       { return int(p.u16(pUsedBytes)) }
func (p *BasePage) FragmentedBytes() int { return int(p.u16(pFragmentedBytes)) }
func (p *BasePage) TransactionID() uint32 { return p.u32(pTransactionID) }
func (p *BasePage) IsConfirmed() bool    { return p.buf.Buffer[pIsConfirmed] != 0 }
func (p *BasePage) ColID() uint32        { return p.u32(pColID) }

func (p *BasePage) SetPageID(v uint32)     { p.put32(pPageID, v) }
func (p *BasePage) SetPageType(t PageType) { p.buf.Buffer[pPageType] = byte(t); p.Dirty = true }
func (p *BasePage) SetPrevPageID(v uint32) { p.put32(pPrevPageID, v) }
func (p *BasePage) SetNextPageID(v uint32) { p.put32(pNextPageID, v) }
func (p *BasePage) SetTransactionID(v uint32) { p.put32(pTransactionID, v) }
func (p *BasePage) SetColID(v uint32)      { p.put32(pColID, v) }

func (p *BasePage) SetConfirmed(v bool) {
	if v {
		p.buf.Buffer[pIsConfirmed] = 1
	} else {
		p.buf.Buffer[pIsConfirmed] = 0
	}
	p.Dirty = true
}

func (p *BasePage) nextFreePosition() int { return int(p.u16(pNextFreePosition)) }
func (p *BasePage) highestIndex() int {
	h := p.u16(pHighestIndex)
	if h == noHighestIndex {
		return -1
	}
	return int(h)
}

func (p *BasePage) setHighestIndex(v int) {
	if v < 0 {
		p.put16(pHighestIndex, noHighestIndex)
	} else {
		p.put16(pHighestIndex, uint16(v))
	}
}

// footerSize returns the bytes consumed by the slot directory.
func (p *BasePage) footerSize() int {
	return (p.highestIndex() + 1) * SlotSize
}

// FreeBytes returns the free space left between heap and slot directory.
// Callers placing a record in a new slot must also budget SlotSize bytes
// per directory entry they will add. A page with a full slot directory
// reports zero.
func (p *BasePage) FreeBytes() int {
	if p.ItemsCount() == MaxItemsCount {
		return 0
	}
	free := PageSize - PageHeaderSize - p.UsedBytes() - p.footerSize()
	if free < 0 {
		return 0
	}
	return free
}

func (p *BasePage) slotOffset(index int) int {
	return PageSize - (index+1)*SlotSize
}

func (p *BasePage) slot(index int) (position, length int) {
	off := p.slotOffset(index)
	return int(binary.LittleEndian.Uint16(p.buf.Buffer[off:])),
		int(binary.LittleEndian.Uint16(p.buf.Buffer[off+2:]))
}

func (p *BasePage) setSlot(index, position, length int) {
	off := p.slotOffset(index)
	binary.LittleEndian.PutUint16(p.buf.Buffer[off:], uint16(position))
	binary.LittleEndian.PutUint16(p.buf.Buffer[off+2:], uint16(length))
	p.Dirty = true
}

// IsSlotUsed reports whether the slot holds a record.
func (p *BasePage) IsSlotUsed(index int) bool {
	if index < 0 || index > p.highestIndex() {
		return false
	}
	_, length := p.slot(index)
	return length > 0
}

// UsedSlots returns all used slot indexes in ascending order.
func (p *BasePage) UsedSlots() []byte {
	out := make([]byte, 0, p.ItemsCount())
	for i := 0; i <= p.highestIndex(); i++ {
		if p.IsSlotUsed(i) {
			out = append(out, byte(i))
		}
	}
	return out
}

// Get returns the payload span of a used slot.
func (p *BasePage) Get(index int) ([]byte, error) {
	if !p.IsSlotUsed(index) {
		return nil, dberrors.CorruptedPage(p.PageID(), "slot in use yet marked free")
	}
	position, length := p.slot(index)
	return p.buf.Buffer[position : position+length], nil
}

// nextFreeIndex finds the lowest unused slot index.
func (p *BasePage) nextFreeIndex() int {
	h := p.highestIndex()
	for i := 0; i <= h; i++ {
		if !p.IsSlotUsed(i) {
			return i
		}
	}
	return h + 1
}

// Insert reserves length bytes in a fresh slot and returns the slot
// index plus the payload span.
func (p *BasePage) Insert(length int) (byte, []byte, error) {
	return p.InsertAt(length, p.nextFreeIndex())
}

// InsertAt reserves length bytes in a specific free slot.
func (p *BasePage) InsertAt(length, index int) (byte, []byte, error) {
	if length <= 0 || index < 0 || index >= MaxItemsCount {
		return 0, nil, dberrors.CorruptedPage(p.PageID(), "invalid insert request")
	}
	if p.IsSlotUsed(index) {
		return 0, nil, dberrors.CorruptedPage(p.PageID(), "insert into used slot")
	}
	extraFooter := 0
	if index > p.highestIndex() {
		extraFooter = (index - p.highestIndex()) * SlotSize
	}
	if p.FreeBytes() < length+extraFooter {
		return 0, nil, dberrors.CorruptedPage(p.PageID(), "no space for insert")
	}

	footer := p.footerSize()
	if index > p.highestIndex() {
		footer = (index + 1) * SlotSize
	}
	if p.nextFreePosition()+length > PageSize-footer {
		p.Defrag()
	}

	position := p.nextFreePosition()
	p.setSlot(index, position, length)
	p.put16(pItemsCount, uint16(p.ItemsCount()+1))
	p.put16(pUsedBytes, uint16(p.UsedBytes()+length))
	p.put16(pNextFreePosition, uint16(position+length))
	if index > p.highestIndex() {
		p.setHighestIndex(index)
	}
	return byte(index), p.buf.Buffer[position : position+length], nil
}

// Delete frees a slot.
func (p *BasePage) Delete(index int) error {
	if !p.IsSlotUsed(index) {
		return dberrors.CorruptedPage(p.PageID(), "delete of free slot")
	}
	position, length := p.slot(index)
	p.setSlot(index, 0, 0)
	p.put16(pItemsCount, uint16(p.ItemsCount()-1))
	p.put16(pUsedBytes, uint16(p.UsedBytes()-length))

	if position+length == p.nextFreePosition() {
		p.put16(pNextFreePosition, uint16(position))
	} else {
		p.put16(pFragmentedBytes, uint16(p.FragmentedBytes()+length))
	}

	if p.ItemsCount() == 0 {
		p.setHighestIndex(-1)
		p.put16(pNextFreePosition, PageHeaderSize)
		p.put16(pFragmentedBytes, 0)
	} else if index == p.highestIndex() {
		h := index - 1
		for h >= 0 && !p.IsSlotUsed(h) {
			h--
		}
		p.setHighestIndex(h)
	}
	return nil
}

// Update resizes a slot in place, returning the new payload span. Content
// is preserved up to min(old, new) length.
func (p *BasePage) Update(index, length int) ([]byte, error) {
	if !p.IsSlotUsed(index) {
		return nil, dberrors.CorruptedPage(p.PageID(), "update of free slot")
	}
	position, oldLength := p.slot(index)

	if length == oldLength {
		return p.buf.Buffer[position : position+length], nil
	}
	if length < oldLength {
		p.setSlot(index, position, length)
		p.put16(pUsedBytes, uint16(p.UsedBytes()-(oldLength-length)))
		if position+oldLength == p.nextFreePosition() {
			p.put16(pNextFreePosition, uint16(position+length))
		} else {
			p.put16(pFragmentedBytes, uint16(p.FragmentedBytes()+(oldLength-length)))
		}
		return p.buf.Buffer[position : position+length], nil
	}

	// Growing: free the slot and reinsert at the same index, preserving
	// the old content across the move.
	old := make([]byte, oldLength)
	copy(old, p.buf.Buffer[position:position+oldLength])
	if err := p.Delete(index); err != nil {
		return nil, err
	}
	_, span, err := p.InsertAt(length, index)
	if err != nil {
		return nil, err
	}
	copy(span, old)
	return span, nil
}

// Defrag compacts the heap, squeezing out fragmented bytes while keeping
// slot indexes stable.
func (p *BasePage) Defrag() {
	type seg struct {
		index, position, length int
	}
	segs := make([]seg, 0, p.ItemsCount())
	for i := 0; i <= p.highestIndex(); i++ {
		if p.IsSlotUsed(i) {
			pos, length := p.slot(i)
			segs = append(segs, seg{i, pos, length})
		}
	}
	// Sort by heap position so copies never overlap destructively.
	for i := 1; i < len(segs); i++ {
		for j := i; j > 0 && segs[j-1].position > segs[j].position; j-- {
			segs[j-1], segs[j] = segs[j], segs[j-1]
		}
	}
	var tmp [PageSize]byte
	next := PageHeaderSize
	for _, s := range segs {
		copy(tmp[next:], p.buf.Buffer[s.position:s.position+s.length])
		next += s.length
	}
	copy(p.buf.Buffer[PageHeaderSize:next], tmp[PageHeaderSize:next])
	next = PageHeaderSize
	for _, s := range segs {
		p.setSlot(s.index, next, s.length)
		next += s.length
	}
	p.put16(pNextFreePosition, uint16(next))
	p.put16(pFragmentedBytes, 0)
}
