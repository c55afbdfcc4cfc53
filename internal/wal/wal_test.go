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

package wal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flintdb/internal/disk"
	"flintdb/internal/storage"
)

// newTestDisk builds a disk service whose data area holds pages 0..dataPages-1.
func newTestDisk(t *testing.T, dataPages int) *disk.Service {
	t.Helper()
	stream := disk.NewMemoryStream()
	zero := make([]byte, storage.PageSize)
	for i := 0; i < dataPages; i++ {
		_, err := stream.WriteAt(zero, int64(i)*storage.PageSize)
		require.NoError(t, err)
	}
	svc, err := disk.NewService(stream, 32, false)
	require.NoError(t, err)
	svc.SetDataLength(int64(dataPages) * storage.PageSize)
	return svc
}

// appendLogPage writes one page image into the log with the given identity.
func appendLogPage(t *testing.T, d *disk.Service, pageID, txID uint32, confirmed bool, marker byte) int64 {
	t.Helper()
	buf := d.NewPage()
	page := storage.NewBasePage(buf, pageID, storage.PageTypeData)
	page.SetTransactionID(txID)
	page.SetConfirmed(confirmed)
	buf.Buffer[storage.PageHeaderSize] = marker
	require.NoError(t, d.WriteLogPages([]*storage.PageBuffer{buf}))
	return buf.Position
}

func readDataPage(t *testing.T, d *disk.Service, pageID uint32) []byte {
	t.Helper()
	buf := make([]byte, storage.PageSize)
	require.NoError(t, d.ReadPageDirect(int64(pageID)*storage.PageSize, buf))
	return buf
}

func TestCheckpointCopiesOnlyConfirmedTransactions(t *testing.T) {
	d := newTestDisk(t, 4)
	w := NewIndex(d)

	// tx 1 commits page 1 (old image then a newer confirmed one)
	appendLogPage(t, d, 1, 1, false, 0x0A)
	appendLogPage(t, d, 1, 1, true, 0x0B)
	// tx 2 never confirms its page 2
	appendLogPage(t, d, 2, 2, false, 0x0C)

	moved, err := w.Checkpoint()
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	assert.Equal(t, byte(0x0B), readDataPage(t, d, 1)[storage.PageHeaderSize],
		"the newest confirmed image wins")
	assert.Equal(t, byte(0x00), readDataPage(t, d, 2)[storage.PageHeaderSize],
		"an unconfirmed transaction leaves no trace")
	assert.Equal(t, int64(0), d.LogLength())

	// a second checkpoint is a no-op
	moved, err = w.Checkpoint()
	require.NoError(t, err)
	assert.Equal(t, 0, moved)
}

func TestRestoreDiscardsFromMalformedPageOnward(t *testing.T) {
	d := newTestDisk(t, 4)
	w := NewIndex(d)

	appendLogPage(t, d, 1, 1, true, 0x11)
	// a torn page: invalid page-type discriminator
	garbage := d.NewPage()
	for i := range garbage.Buffer {
		garbage.Buffer[i] = 0xDD
	}
	require.NoError(t, d.WriteLogPages([]*storage.PageBuffer{garbage}))
	// a confirmed transaction past the torn page is unreachable
	appendLogPage(t, d, 3, 3, true, 0x33)

	moved, err := w.Restore()
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	assert.Equal(t, byte(0x11), readDataPage(t, d, 1)[storage.PageHeaderSize])
	assert.Equal(t, byte(0x00), readDataPage(t, d, 3)[storage.PageHeaderSize])
	assert.Equal(t, int64(0), d.LogLength())
}

func TestVersionVisibility(t *testing.T) {
	d := newTestDisk(t, 4)
	w := NewIndex(d)

	pos1 := appendLogPage(t, d, 1, w.NextTransactionID(), false, 0x01)
	readerBefore := w.CurrentReadVersion()
	w.ConfirmTransaction(1, []PagePosition{{PageID: 1, Position: pos1}})
	readerAfter := w.CurrentReadVersion()

	assert.Equal(t, int64(-1), w.GetPageIndex(1, readerBefore),
		"a snapshot taken before the commit resolves the data area")
	assert.Equal(t, pos1, w.GetPageIndex(1, readerAfter),
		"a snapshot taken after the commit resolves the log")

	// a newer committed version shadows the old one for new readers only
	pos2 := appendLogPage(t, d, 1, w.NextTransactionID(), false, 0x02)
	w.ConfirmTransaction(2, []PagePosition{{PageID: 1, Position: pos2}})
	assert.Equal(t, pos1, w.GetPageIndex(1, readerAfter))
	assert.Equal(t, pos2, w.GetPageIndex(1, w.CurrentReadVersion()))
}
