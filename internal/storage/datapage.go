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

package storage

import (
	dberrors "flintdb/errors"
)

// DataBlockHeaderSize prefixes every data block: 1 flags byte plus the
// next-block address.
const DataBlockHeaderSize = 1 + PageAddressSize

// MaxDataBytesPerBlock is the largest payload one block can carry.
const MaxDataBytesPerBlock = ContentSize - SlotSize - DataBlockHeaderSize

// Data block flag bits. The compression algorithm is recorded on the
// first block of a chain only.
const (
	dataBlockExtend  = byte(0x01)
	dataBlockAlgMask = byte(0x0E)
	dataBlockAlgShift = 1
)

// DataPage is a slotted page of document segments.
type DataPage struct {
	*BasePage
}

// CreateDataPage initializes a fresh data page.
func CreateDataPage(buf *PageBuffer, pageID, colID uint32) *DataPage {
	base := NewBasePage(buf, pageID, PageTypeData)
	base.SetColID(colID)
	return &DataPage{BasePage: base}
}

// LoadDataPage wraps an existing data page image.
func LoadDataPage(buf *PageBuffer) (*DataPage, error) {
	base := LoadBasePage(buf)
	if base.PageType() != PageTypeData {
		return nil, dberrors.CorruptedPage(base.PageID(), "expected a data page")
	}
	return &DataPage{BasePage: base}, nil
}

// DataBlock is a view over one document segment inside a data page.
// A document larger than one block continues at NextBlock.
type DataBlock struct {
	page     *DataPage
	Position PageAddress

	span []byte // full slot payload including the block header
}

// GetBlock returns the block stored in a slot.
func (p *DataPage) GetBlock(index byte) (*DataBlock, error) {
	span, err := p.Get(int(index))
	if err != nil {
		return nil, err
	}
	if len(span) < DataBlockHeaderSize {
		return nil, dberrors.CorruptedPage(p.PageID(), "data block shorter than its header")
	}
	return &DataBlock{
		page:     p,
		Position: PageAddress{PageID: p.PageID(), Index: index},
		span:     span,
	}, nil
}

// InsertBlock reserves a block with the given payload size.
func (p *DataPage) InsertBlock(payloadLength int, extend bool) (*DataBlock, error) {
	index, span, err := p.Insert(payloadLength + DataBlockHeaderSize)
	if err != nil {
		return nil, err
	}
	flags := byte(0)
	if extend {
		flags = dataBlockExtend
	}
	span[0] = flags
	WriteAddress(span[1:], EmptyAddress)
	return &DataBlock{
		page:     p,
		Position: PageAddress{PageID: p.PageID(), Index: index},
		span:     span,
	}, nil
}

// UpdateBlock resizes a block in place, preserving its header.
func (p *DataPage) UpdateBlock(index byte, payloadLength int) (*DataBlock, error) {
	span, err := p.Update(int(index), payloadLength+DataBlockHeaderSize)
	if err != nil {
		return nil, err
	}
	return &DataBlock{
		page:     p,
		Position: PageAddress{PageID: p.PageID(), Index: index},
		span:     span,
	}, nil
}

// DeleteBlock frees a block slot.
func (p *DataPage) DeleteBlock(index byte) error {
	return p.Delete(int(index))
}

// Extend reports whether this block continues an earlier one.
func (b *DataBlock) Extend() bool { return b.span[0]&dataBlockExtend != 0 }

// CompressionAlg returns the compression algorithm tag of the chain
// (meaningful on the first block only).
func (b *DataBlock) CompressionAlg() byte {
	return (b.span[0] & dataBlockAlgMask) >> dataBlockAlgShift
}

// SetCompressionAlg records the chain's compression algorithm tag.
func (b *DataBlock) SetCompressionAlg(alg byte) {
	b.span[0] = (b.span[0] &^ dataBlockAlgMask) | (alg << dataBlockAlgShift & dataBlockAlgMask)
	b.page.Dirty = true
}

// NextBlock returns the continuation address, or EmptyAddress.
func (b *DataBlock) NextBlock() PageAddress {
	return ReadAddress(b.span[1:])
}

// SetNextBlock links the continuation address.
func (b *DataBlock) SetNextBlock(addr PageAddress) {
	WriteAddress(b.span[1:], addr)
	b.page.Dirty = true
}

// Payload returns the block's document bytes.
func (b *DataBlock) Payload() []byte {
	return b.span[DataBlockHeaderSize:]
}
