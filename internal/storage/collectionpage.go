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
Collection Page
===============

One page per collection:

	[32] free-list ladder: 5 x u32 data page ids (MaxPageID = empty)
	[52] free index page list head u32 (MaxPageID = empty)
	[56] index count u8
	[57] serialized index definitions (slot-addressed, slot 0 = "_id")

The ladder holds every allocated data page of the collection, bucketed
by remaining free bytes; bucket membership is maintained on every data
mutation so the allocator finds a fitting page in O(1).
*/
package storage

import (
	"encoding/binary"

	dberrors "flintdb/errors"
)

const (
	pFreeList      = 32
	pFreeIndexList = pFreeList + PageFreeListSlots*4
	pIndexCount    = pFreeIndexList + 4
	pIndexes       = pIndexCount + 1
)

// CollectionPage holds per-collection metadata.
type CollectionPage struct {
	*BasePage

	// FreeDataPageList is the free-list ladder (page ids, MaxPageID = empty).
	FreeDataPageList [PageFreeListSlots]uint32

	// FreeIndexPageList heads the list of index pages with node room left.
	FreeIndexPageList uint32

	indexes map[string]*IndexDefinition
}

// CreateCollectionPage initializes a fresh collection page.
func CreateCollectionPage(buf *PageBuffer, pageID uint32) *CollectionPage {
	base := NewBasePage(buf, pageID, PageTypeCollection)
	base.SetColID(pageID)
	p := &CollectionPage{BasePage: base, indexes: map[string]*IndexDefinition{}}
	for i := range p.FreeDataPageList {
		p.FreeDataPageList[i] = MaxPageID
	}
	p.FreeIndexPageList = MaxPageID
	p.UpdateBuffer()
	return p
}

// LoadCollectionPage parses an existing collection page image.
func LoadCollectionPage(buf *PageBuffer) (*CollectionPage, error) {
	base := LoadBasePage(buf)
	if base.PageType() != PageTypeCollection {
		return nil, dberrors.CorruptedPage(base.PageID(), "expected a collection page")
	}
	p := &CollectionPage{BasePage: base, indexes: map[string]*IndexDefinition{}}
	b := buf.Buffer
	for i := range p.FreeDataPageList {
		p.FreeDataPageList[i] = binary.LittleEndian.Uint32(b[pFreeList+i*4:])
	}
	p.FreeIndexPageList = binary.LittleEndian.Uint32(b[pFreeIndexList:])
	count := int(b[pIndexCount])
	pos := pIndexes
	for i := 0; i < count; i++ {
		def, n := readIndexDefinition(b[pos:])
		pos += n
		p.indexes[def.Name] = def
	}
	p.Dirty = false
	return p, nil
}

// PK returns the primary-key index definition.
func (p *CollectionPage) PK() *IndexDefinition {
	return p.indexes["_id"]
}

// GetCollectionIndex resolves an index by name.
func (p *CollectionPage) GetCollectionIndex(name string) *IndexDefinition {
	return p.indexes[name]
}

// GetCollectionIndexes returns all definitions ordered by slot.
func (p *CollectionPage) GetCollectionIndexes() []*IndexDefinition {
	out := make([]*IndexDefinition, 0, len(p.indexes))
	for _, d := range p.indexes {
		out = append(out, d)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Slot > out[j].Slot; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// InsertCollectionIndex registers a new index definition, assigning the
// lowest free slot.
func (p *CollectionPage) InsertCollectionIndex(name, expression string, unique bool) (*IndexDefinition, error) {
	if len(p.indexes) >= MaxIndexesPerCollection {
		return nil, dberrors.TooManyIndexes(name)
	}
	used := map[byte]bool{}
	size := 0
	for _, d := range p.indexes {
		used[d.Slot] = true
		size += d.bufferSize()
	}
	var slot byte
	for s := 0; s < MaxItemsCount; s++ {
		if !used[byte(s)] {
			slot = byte(s)
			break
		}
	}
	def := &IndexDefinition{
		Name:       name,
		Expression: expression,
		Unique:     unique,
		Slot:       slot,
		Head:       EmptyAddress,
		Tail:       EmptyAddress,
		MaxLevel:   1,
	}
	if size+def.bufferSize() > MaxIndexDefBytes {
		return nil, dberrors.TooManyIndexes(name)
	}
	p.indexes[name] = def
	p.UpdateBuffer()
	return def, nil
}

// DeleteCollectionIndex removes an index definition.
func (p *CollectionPage) DeleteCollectionIndex(name string) {
	delete(p.indexes, name)
	p.UpdateBuffer()
}

// SetFreeList rewrites one ladder bucket head.
func (p *CollectionPage) SetFreeList(slot int, pageID uint32) {
	p.FreeDataPageList[slot] = pageID
	binary.LittleEndian.PutUint32(p.Buffer().Buffer[pFreeList+slot*4:], pageID)
	p.Dirty = true
}

// SetFreeIndexList rewrites the free index page list head.
func (p *CollectionPage) SetFreeIndexList(pageID uint32) {
	p.FreeIndexPageList = pageID
	binary.LittleEndian.PutUint32(p.Buffer().Buffer[pFreeIndexList:], pageID)
	p.Dirty = true
}

// UpdateBuffer serializes the ladder and index definitions back into the
// page image. Must be called after any definition mutation.
func (p *CollectionPage) UpdateBuffer() {
	b := p.Buffer().Buffer
	for i, v := range p.FreeDataPageList {
		binary.LittleEndian.PutUint32(b[pFreeList+i*4:], v)
	}
	binary.LittleEndian.PutUint32(b[pFreeIndexList:], p.FreeIndexPageList)
	b[pIndexCount] = byte(len(p.indexes))
	pos := pIndexes
	for _, d := range p.GetCollectionIndexes() {
		pos += d.writeTo(b[pos:])
	}
	p.Dirty = true
}
