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
Index Node Layout
=================

An index page's slots each hold one skip-list node:

	[0]  index slot      u8  (which index definition owns the node)
	[1]  levels          u8  (1..32)
	[2]  data block      5B  (record address; _id node address on secondaries)
	[7]  next node       5B  (next index node of the same document)
	[12] prev/next per level: 2 x 5B x levels
	[..] key             type u8 + payload

Nodes are doubly linked at every level so ranges scan in both directions.
The next-node chain strings together every index entry belonging to one
document, letting delete find all entries from the primary-key node.
*/
package storage

import (
	"flintdb/bson"
	dberrors "flintdb/errors"
)

const (
	nSlot      = 0
	nLevels    = 1
	nDataBlock = 2
	nNextNode  = 7
	nLinks     = 12
)

// IndexNodeSize returns the on-page size of a node with the given height
// and serialized key length.
func IndexNodeSize(levels int, keyLength int) int {
	return nLinks + levels*2*PageAddressSize + keyLength
}

// MaxIndexNodeSize is the largest possible node: full height plus the
// maximum serialized key. Index pages with at least this much room are
// kept on the collection's free index page list.
const MaxIndexNodeSize = nLinks + MaxIndexLevels*2*PageAddressSize + 1 + MaxIndexKeyLength

// IndexPage is a slotted page of skip-list nodes.
type IndexPage struct {
	*BasePage
}

// CreateIndexPage initializes a fresh index page.
func CreateIndexPage(buf *PageBuffer, pageID, colID uint32) *IndexPage {
	base := NewBasePage(buf, pageID, PageTypeIndex)
	base.SetColID(colID)
	return &IndexPage{BasePage: base}
}

// LoadIndexPage wraps an existing index page image.
func LoadIndexPage(buf *PageBuffer) (*IndexPage, error) {
	base := LoadBasePage(buf)
	if base.PageType() != PageTypeIndex {
		return nil, dberrors.CorruptedPage(base.PageID(), "expected an index page")
	}
	return &IndexPage{BasePage: base}, nil
}

// IndexNode is a view over one skip-list node.
type IndexNode struct {
	page     *IndexPage
	Position PageAddress

	Slot   byte
	Levels byte
	Key    bson.Value

	span []byte
}

// GetIndexNode parses the node stored in a slot.
func (p *IndexPage) GetIndexNode(index byte) (*IndexNode, error) {
	span, err := p.Get(int(index))
	if err != nil {
		return nil, err
	}
	if len(span) < nLinks {
		return nil, dberrors.CorruptedPage(p.PageID(), "index node shorter than its header")
	}
	levels := span[nLevels]
	if levels == 0 || int(levels) > MaxIndexLevels {
		return nil, dberrors.CorruptedPage(p.PageID(), "index node with invalid level count")
	}
	keyOff := nLinks + int(levels)*2*PageAddressSize
	key, _, err := bson.DeserializeIndexKey(span[keyOff:])
	if err != nil {
		return nil, dberrors.CorruptedPage(p.PageID(), "unreadable index key").WithCause(err)
	}
	return &IndexNode{
		page:     p,
		Position: PageAddress{PageID: p.PageID(), Index: index},
		Slot:     span[nSlot],
		Levels:   levels,
		Key:      key,
		span:     span,
	}, nil
}

// InsertIndexNode creates a node with empty links.
func (p *IndexPage) InsertIndexNode(slot byte, levels byte, key bson.Value, dataBlock PageAddress, keyLength int) (*IndexNode, error) {
	index, span, err := p.Insert(IndexNodeSize(int(levels), keyLength))
	if err != nil {
		return nil, err
	}
	span[nSlot] = slot
	span[nLevels] = levels
	WriteAddress(span[nDataBlock:], dataBlock)
	WriteAddress(span[nNextNode:], EmptyAddress)
	for l := 0; l < int(levels); l++ {
		WriteAddress(span[nLinks+l*2*PageAddressSize:], EmptyAddress)
		WriteAddress(span[nLinks+l*2*PageAddressSize+PageAddressSize:], EmptyAddress)
	}
	copy(span[nLinks+int(levels)*2*PageAddressSize:], bson.SerializeIndexKey(key))
	return &IndexNode{
		page:     p,
		Position: PageAddress{PageID: p.PageID(), Index: index},
		Slot:     slot,
		Levels:   levels,
		Key:      key,
		span:     span,
	}, nil
}

// DeleteIndexNode frees a node slot.
func (p *IndexPage) DeleteIndexNode(index byte) error {
	return p.Delete(int(index))
}

// DataBlock returns the node's value address.
func (n *IndexNode) DataBlock() PageAddress {
	return ReadAddress(n.span[nDataBlock:])
}

// SetDataBlock rewrites the node's value address.
func (n *IndexNode) SetDataBlock(addr PageAddress) {
	WriteAddress(n.span[nDataBlock:], addr)
	n.page.Dirty = true
}

// NextNode returns the next index node of the same document.
func (n *IndexNode) NextNode() PageAddress {
	return ReadAddress(n.span[nNextNode:])
}

// SetNextNode links the next index node of the same document.
func (n *IndexNode) SetNextNode(addr PageAddress) {
	WriteAddress(n.span[nNextNode:], addr)
	n.page.Dirty = true
}

// Prev returns the backward link at a level.
func (n *IndexNode) Prev(level int) PageAddress {
	return ReadAddress(n.span[nLinks+level*2*PageAddressSize:])
}

// SetPrev rewrites the backward link at a level.
func (n *IndexNode) SetPrev(level int, addr PageAddress) {
	WriteAddress(n.span[nLinks+level*2*PageAddressSize:], addr)
	n.page.Dirty = true
}

// Next returns the forward link at a level.
func (n *IndexNode) Next(level int) PageAddress {
	return ReadAddress(n.span[nLinks+level*2*PageAddressSize+PageAddressSize:])
}

// SetNext rewrites the forward link at a level.
func (n *IndexNode) SetNext(level int, addr PageAddress) {
	WriteAddress(n.span[nLinks+level*2*PageAddressSize+PageAddressSize:], addr)
	n.page.Dirty = true
}
