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
Header Page (page 0)
====================

Fixed fields live at fixed offsets past the shared page header; the
collection directory is re-serialized after the fixed block on every
change. Page 0 stays cleartext in an encrypted datafile: it carries the
salt, the PBKDF2 iteration count and the key-check bytes that let open
distinguish WrongPassword from corruption.

	[32]  file magic (28 bytes)
	[60]  file version        u8
	[61]  creation time       i64 UTC ticks
	[69]  USER_VERSION        i32
	[73]  COLLATION           i32 (read-only; changes only via rebuild)
	[77]  TIMEOUT             i32 seconds
	[81]  LIMIT_SIZE          i64 bytes
	[89]  UTC_DATE            u8
	[90]  CHECKPOINT          i32 pages
	[94]  last_page_id        u32
	[98]  free_empty_page_list u32
	[102] encryption salt     16 bytes
	[118] pbkdf2 iterations   i32
	[122] encrypted flag      u8
	[123] key check           8 bytes
	[192] collection directory: count u16, then {len u8, name, page_id u32}*
*/
package storage

import (
	"encoding/binary"
	"strings"
	"time"

	"flintdb/bson"
	dberrors "flintdb/errors"
)

// Header field offsets.
const (
	pHeaderInfo       = 32
	pFileVersion      = 60
	pCreationTime     = 61
	pUserVersion      = 69
	pCollation        = 73
	pTimeout          = 77
	pLimitSize        = 81
	pUtcDate          = 89
	pCheckpoint       = 90
	pLastPageID       = 94
	pFreeEmptyList    = 98
	pEncryptionSalt   = 102
	pPbkdf2Iterations = 118
	pEncryptedFlag    = 122
	pKeyCheck         = 123
	pCollections      = 192
)

// EncryptionSaltSize is the stored salt length.
const EncryptionSaltSize = 16

// KeyCheckSize is the stored key-check length.
const KeyCheckSize = 8

// Pragma defaults.
const (
	DefaultTimeoutSeconds  = 60
	DefaultCheckpointPages = 1000
	MinLimitSize           = int64(4 * PageSize)
)

// HeaderPage is page 0: file identity, pragmas and the collection
// directory, held as one shared in-memory instance per open engine.
type HeaderPage struct {
	*BasePage

	// collections maps the lower-cased name to its original spelling and
	// collection page id (the directory is case-insensitive).
	collections map[string]collectionEntry
}

type collectionEntry struct {
	name   string
	pageID uint32
}

// CreateHeaderPage initializes a brand new page 0.
func CreateHeaderPage(buf *PageBuffer) *HeaderPage {
	base := NewBasePage(buf, 0, PageTypeHeader)
	h := &HeaderPage{BasePage: base, collections: map[string]collectionEntry{}}
	b := buf.Buffer
	copy(b[pHeaderInfo:], HeaderInfo)
	b[pFileVersion] = FileVersion
	binary.LittleEndian.PutUint64(b[pCreationTime:], uint64(bson.TimeToTicks(time.Now())))
	h.SetPragma(PragmaTimeout, int64(DefaultTimeoutSeconds))
	h.SetPragma(PragmaCheckpoint, int64(DefaultCheckpointPages))
	h.SetPragma(PragmaLimitSize, int64(0))
	h.SetCollation(bson.DefaultCollation().Code())
	h.SetLastPageID(0)
	h.SetFreeEmptyPageList(MaxPageID)
	h.updateCollectionsBuffer()
	return h
}

// LoadHeaderPage validates and parses an existing page 0.
func LoadHeaderPage(buf *PageBuffer) (*HeaderPage, error) {
	base := LoadBasePage(buf)
	b := buf.Buffer
	if string(b[pHeaderInfo:pHeaderInfo+len(HeaderInfo)]) != HeaderInfo {
		return nil, dberrors.CorruptedPage(0, "invalid file magic")
	}
	if b[pFileVersion] > FileVersion {
		return nil, dberrors.UnsupportedVersion(b[pFileVersion])
	}
	h := &HeaderPage{BasePage: base, collections: map[string]collectionEntry{}}
	pos := pCollections
	count := int(binary.LittleEndian.Uint16(b[pos:]))
	pos += 2
	for i := 0; i < count; i++ {
		nameLen := int(b[pos])
		pos++
		name := string(b[pos : pos+nameLen])
		pos += nameLen
		pageID := binary.LittleEndian.Uint32(b[pos:])
		pos += 4
		h.collections[strings.ToLower(name)] = collectionEntry{name: name, pageID: pageID}
	}
	h.Dirty = false
	return h, nil
}

// CreationTime returns the datafile creation instant.
func (h *HeaderPage) CreationTime() time.Time {
	return bson.TicksToTime(int64(binary.LittleEndian.Uint64(h.Buffer().Buffer[pCreationTime:])))
}

// LastPageID returns the highest allocated data page id.
func (h *HeaderPage) LastPageID() uint32 { return h.u32(pLastPageID) }

// SetLastPageID records the highest allocated data page id.
func (h *HeaderPage) SetLastPageID(v uint32) { h.put32(pLastPageID, v) }

// FreeEmptyPageList returns the head of the empty-page free list.
func (h *HeaderPage) FreeEmptyPageList() uint32 { return h.u32(pFreeEmptyList) }

// SetFreeEmptyPageList records the head of the empty-page free list.
func (h *HeaderPage) SetFreeEmptyPageList(v uint32) { h.put32(pFreeEmptyList, v) }

// Collation returns the persisted collation code.
func (h *HeaderPage) Collation() int32 {
	return int32(h.u32(pCollation))
}

// SetCollation writes the collation code (create and rebuild only).
func (h *HeaderPage) SetCollation(code int32) {
	h.put32(pCollation, uint32(code))
}

// Encryption metadata.

func (h *HeaderPage) Encrypted() bool { return h.Buffer().Buffer[pEncryptedFlag] != 0 }

func (h *HeaderPage) Salt() []byte {
	return h.Buffer().Buffer[pEncryptionSalt : pEncryptionSalt+EncryptionSaltSize]
}

func (h *HeaderPage) Pbkdf2Iterations() int {
	return int(h.u32(pPbkdf2Iterations))
}

func (h *HeaderPage) KeyCheck() []byte {
	return h.Buffer().Buffer[pKeyCheck : pKeyCheck+KeyCheckSize]
}

// SetEncryption records salt, iteration count and key-check bytes.
func (h *HeaderPage) SetEncryption(salt []byte, iterations int, keyCheck []byte) {
	b := h.Buffer().Buffer
	copy(b[pEncryptionSalt:], salt)
	binary.LittleEndian.PutUint32(b[pPbkdf2Iterations:], uint32(iterations))
	b[pEncryptedFlag] = 1
	copy(b[pKeyCheck:], keyCheck)
	h.Dirty = true
}

// GetCollectionPageID resolves a collection name, case-insensitively.
func (h *HeaderPage) GetCollectionPageID(name string) (uint32, bool) {
	e, ok := h.collections[strings.ToLower(name)]
	return e.pageID, ok
}

// Collections returns the original-case collection names.
func (h *HeaderPage) Collections() []string {
	out := make([]string, 0, len(h.collections))
	for _, e := range h.collections {
		out = append(out, e.name)
	}
	return out
}

// InsertCollection registers a collection, enforcing the directory cap.
func (h *HeaderPage) InsertCollection(name string, pageID uint32) error {
	size := 2
	for _, e := range h.collections {
		size += 1 + len(e.name) + 4
	}
	size += 1 + len(name) + 4
	if size > MaxCollectionNameBytes {
		return dberrors.InvalidName(name).WithDetail("collection directory is full")
	}
	h.collections[strings.ToLower(name)] = collectionEntry{name: name, pageID: pageID}
	h.updateCollectionsBuffer()
	return nil
}

// DeleteCollection removes a collection from the directory.
func (h *HeaderPage) DeleteCollection(name string) {
	delete(h.collections, strings.ToLower(name))
	h.updateCollectionsBuffer()
}

// RenameCollection renames a directory entry in place.
func (h *HeaderPage) RenameCollection(oldName, newName string) error {
	e, ok := h.collections[strings.ToLower(oldName)]
	if !ok {
		return dberrors.NoCollection(oldName)
	}
	delete(h.collections, strings.ToLower(oldName))
	if err := h.InsertCollection(newName, e.pageID); err != nil {
		h.collections[strings.ToLower(oldName)] = e
		h.updateCollectionsBuffer()
		return err
	}
	return nil
}

func (h *HeaderPage) updateCollectionsBuffer() {
	b := h.Buffer().Buffer
	// stable order keeps the page image deterministic
	names := make([]string, 0, len(h.collections))
	for k := range h.collections {
		names = append(names, k)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	pos := pCollections
	binary.LittleEndian.PutUint16(b[pos:], uint16(len(names)))
	pos += 2
	for _, k := range names {
		e := h.collections[k]
		b[pos] = byte(len(e.name))
		pos++
		copy(b[pos:], e.name)
		pos += len(e.name)
		binary.LittleEndian.PutUint32(b[pos:], e.pageID)
		pos += 4
	}
	h.Dirty = true
}

// Clone serializes the current header state into dst for logging.
func (h *HeaderPage) Clone(dst *PageBuffer) {
	copy(dst.Buffer, h.Buffer().Buffer)
}
