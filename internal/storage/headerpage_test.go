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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dberrors "flintdb/errors"
)

func TestHeaderPageCreateLoad(t *testing.T) {
	buf := NewPageBuffer()
	h := CreateHeaderPage(buf)
	require.NoError(t, h.SetPragma(PragmaUserVersion, 7))
	require.NoError(t, h.InsertCollection("Customers", 3))
	require.NoError(t, h.InsertCollection("orders", 9))
	h.SetLastPageID(9)
	h.SetFreeEmptyPageList(5)

	// reload from the raw image
	clone := NewPageBuffer()
	copy(clone.Buffer, buf.Buffer)
	got, err := LoadHeaderPage(clone)
	require.NoError(t, err)

	v, err := got.GetPragma(PragmaUserVersion)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
	assert.Equal(t, uint32(9), got.LastPageID())
	assert.Equal(t, uint32(5), got.FreeEmptyPageList())

	// the directory is case-insensitive but keeps original spelling
	id, ok := got.GetCollectionPageID("CUSTOMERS")
	assert.True(t, ok)
	assert.Equal(t, uint32(3), id)
	assert.ElementsMatch(t, []string{"Customers", "orders"}, got.Collections())
}

func TestHeaderPageRejectsBadMagic(t *testing.T) {
	buf := NewPageBuffer()
	CreateHeaderPage(buf)
	buf.Buffer[pHeaderInfo] = 'X'
	_, err := LoadHeaderPage(buf)
	assert.True(t, dberrors.Is(err, dberrors.ErrCodeCorruptedPage))
}

func TestHeaderPageRejectsNewerVersion(t *testing.T) {
	buf := NewPageBuffer()
	CreateHeaderPage(buf)
	buf.Buffer[pFileVersion] = FileVersion + 1
	_, err := LoadHeaderPage(buf)
	assert.True(t, dberrors.Is(err, dberrors.ErrCodeUnsupportedVersion))
}

func TestPragmaRules(t *testing.T) {
	h := CreateHeaderPage(NewPageBuffer())

	// defaults
	timeout, _ := h.GetPragma(PragmaTimeout)
	assert.Equal(t, int64(DefaultTimeoutSeconds), timeout)
	checkpoint, _ := h.GetPragma(PragmaCheckpoint)
	assert.Equal(t, int64(DefaultCheckpointPages), checkpoint)

	// COLLATION is read-only
	assert.Error(t, h.SetPragma(PragmaCollation, 1))

	// LIMIT_SIZE floor is four pages
	assert.Error(t, h.SetPragma(PragmaLimitSize, PageSize))
	assert.NoError(t, h.SetPragma(PragmaLimitSize, 4*PageSize))

	// LIMIT_SIZE cannot shrink below the current file size
	h.SetLastPageID(9)
	assert.Error(t, h.SetPragma(PragmaLimitSize, 5*PageSize))

	assert.Error(t, h.SetPragma(PragmaTimeout, 0))
	assert.Error(t, h.SetPragma("BOGUS", 1))
}

func TestCollectionPageIndexDefinitions(t *testing.T) {
	p := CreateCollectionPage(NewPageBuffer(), 7)
	assert.Equal(t, uint32(7), p.ColID())

	pk, err := p.InsertCollectionIndex("_id", "$._id", true)
	require.NoError(t, err)
	assert.Equal(t, byte(0), pk.Slot)

	name, err := p.InsertCollectionIndex("name", "$.Name", false)
	require.NoError(t, err)
	assert.Equal(t, byte(1), name.Slot)
	name.Head = PageAddress{PageID: 11, Index: 0}
	name.Tail = PageAddress{PageID: 11, Index: 1}
	name.KeyCount = 42
	p.SetFreeList(2, 123)
	p.SetFreeIndexList(99)
	p.UpdateBuffer()

	clone := NewPageBuffer()
	copy(clone.Buffer, p.Buffer().Buffer)
	got, err := LoadCollectionPage(clone)
	require.NoError(t, err)
	require.NotNil(t, got.PK())
	assert.True(t, got.PK().Unique)

	reloaded := got.GetCollectionIndex("name")
	require.NotNil(t, reloaded)
	assert.Equal(t, "$.Name", reloaded.Expression)
	assert.Equal(t, uint32(42), reloaded.KeyCount)
	assert.Equal(t, PageAddress{PageID: 11, Index: 0}, reloaded.Head)
	assert.Equal(t, uint32(123), got.FreeDataPageList[2])
	assert.Equal(t, uint32(99), got.FreeIndexPageList)

	got.DeleteCollectionIndex("name")
	assert.Nil(t, got.GetCollectionIndex("name"))
	assert.NotNil(t, got.PK())
}
