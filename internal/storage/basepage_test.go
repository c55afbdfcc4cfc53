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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pageAccounting checks the page-size identity: header + used payload +
// slot directory + free space always cover the whole page (fragmented
// bytes count as reclaimable free space).
func pageAccounting(t *testing.T, p *BasePage) {
	t.Helper()
	footer := 0
	if h := p.highestIndex(); h >= 0 {
		footer = (h + 1) * SlotSize
	}
	assert.Equal(t, PageSize,
		PageHeaderSize+p.UsedBytes()+footer+p.FreeBytes(),
		"page accounting identity broken")
}

func TestBasePageInsertGetDelete(t *testing.T) {
	p := NewBasePage(NewPageBuffer(), 42, PageTypeData)
	assert.Equal(t, uint32(42), p.PageID())
	assert.Equal(t, PageTypeData, p.PageType())
	pageAccounting(t, p)

	idx, span, err := p.Insert(11)
	require.NoError(t, err)
	copy(span, "hello world")
	pageAccounting(t, p)

	got, err := p.Get(int(idx))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), got)
	assert.Equal(t, 1, p.ItemsCount())

	require.NoError(t, p.Delete(int(idx)))
	assert.Equal(t, 0, p.ItemsCount())
	assert.False(t, p.IsSlotUsed(int(idx)))
	pageAccounting(t, p)

	_, err = p.Get(int(idx))
	assert.Error(t, err)
}

func TestBasePageSlotReuse(t *testing.T) {
	p := NewBasePage(NewPageBuffer(), 1, PageTypeData)
	a, _, err := p.Insert(10)
	require.NoError(t, err)
	b, _, err := p.Insert(10)
	require.NoError(t, err)
	require.NoError(t, p.Delete(int(a)))

	// the freed low slot is reused before a new one is opened
	c, _, err := p.Insert(10)
	require.NoError(t, err)
	assert.Equal(t, a, c)
	assert.NotEqual(t, b, c)
	pageAccounting(t, p)
}

func TestBasePageDefragAfterMiddleDelete(t *testing.T) {
	p := NewBasePage(NewPageBuffer(), 1, PageTypeData)

	var idxs []byte
	payload := bytes.Repeat([]byte{0xAB}, 1000)
	for i := 0; i < 7; i++ {
		idx, span, err := p.Insert(1000)
		require.NoError(t, err)
		copy(span, payload)
		span[0] = byte(i) // distinguish records
		idxs = append(idxs, idx)
	}
	// delete a middle record: its space is fragmented, not reusable
	// without compaction
	require.NoError(t, p.Delete(int(idxs[3])))
	assert.Equal(t, 1000, p.FragmentedBytes())

	// a large insert forces a defrag and still fits
	idx, span, err := p.Insert(1500)
	require.NoError(t, err)
	copy(span, bytes.Repeat([]byte{0xCD}, 1500))
	assert.Equal(t, 0, p.FragmentedBytes())
	pageAccounting(t, p)

	// surviving records keep their content and slots
	for i, id := range idxs {
		if i == 3 {
			continue
		}
		got, err := p.Get(int(id))
		require.NoError(t, err)
		assert.Equal(t, byte(i), got[0], "record %d corrupted by defrag", i)
	}
	got, err := p.Get(int(idx))
	require.NoError(t, err)
	assert.Equal(t, byte(0xCD), got[0])
}

func TestBasePageUpdateGrowShrink(t *testing.T) {
	p := NewBasePage(NewPageBuffer(), 1, PageTypeData)
	idx, span, err := p.Insert(20)
	require.NoError(t, err)
	copy(span, bytes.Repeat([]byte{7}, 20))

	shrunk, err := p.Update(int(idx), 10)
	require.NoError(t, err)
	assert.Len(t, shrunk, 10)
	assert.Equal(t, byte(7), shrunk[9])
	pageAccounting(t, p)

	grown, err := p.Update(int(idx), 40)
	require.NoError(t, err)
	assert.Len(t, grown, 40)
	assert.Equal(t, byte(7), grown[9], "content preserved across grow")
	pageAccounting(t, p)
}

func TestFreeListSlotLadder(t *testing.T) {
	tests := []struct {
		free int
		slot int
	}{
		{ContentSize, 0},
		{ContentSize * 7 / 8, 0},
		{ContentSize*7/8 - 1, 1},
		{ContentSize * 5 / 8, 1},
		{ContentSize*5/8 - 1, 2},
		{ContentSize * 3 / 8, 2},
		{ContentSize*3/8 - 1, 3},
		{ContentSize * 1 / 8, 3},
		{ContentSize*1/8 - 1, 4},
		{0, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.slot, FreeListSlot(tt.free), "free=%d", tt.free)
	}
}

func TestPageAddressSerialization(t *testing.T) {
	buf := make([]byte, PageAddressSize)
	addr := PageAddress{PageID: 12345, Index: 200}
	WriteAddress(buf, addr)
	assert.Equal(t, addr, ReadAddress(buf))

	WriteAddress(buf, EmptyAddress)
	assert.True(t, ReadAddress(buf).IsEmpty())
}
