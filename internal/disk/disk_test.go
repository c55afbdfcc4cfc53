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

package disk

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flintdb/internal/storage"
)

func TestAesStreamRoundTrip(t *testing.T) {
	inner := NewMemoryStream()
	salt, err := NewSalt()
	require.NoError(t, err)
	key := DeriveKey("secret", salt, Pbkdf2Iterations)

	aes, err := NewAesStream(inner, key, salt)
	require.NoError(t, err)

	page0 := bytes.Repeat([]byte{0x11}, storage.PageSize)
	page1 := bytes.Repeat([]byte{0x22}, storage.PageSize)
	_, err = aes.WriteAt(page0, 0)
	require.NoError(t, err)
	_, err = aes.WriteAt(page1, storage.PageSize)
	require.NoError(t, err)

	// page 0 stays cleartext on the inner stream, page 1 does not
	rawP0 := make([]byte, storage.PageSize)
	rawP1 := make([]byte, storage.PageSize)
	inner.ReadAt(rawP0, 0)
	inner.ReadAt(rawP1, storage.PageSize)
	assert.Equal(t, page0, rawP0)
	assert.NotEqual(t, page1, rawP1)

	// reading through the wrapper decrypts
	got := make([]byte, storage.PageSize)
	_, err = aes.ReadAt(got, storage.PageSize)
	require.NoError(t, err)
	assert.Equal(t, page1, got)

	// a wrong key decrypts to garbage
	wrong, err := NewAesStream(inner, DeriveKey("wrong", salt, Pbkdf2Iterations), salt)
	require.NoError(t, err)
	_, err = wrong.ReadAt(got, storage.PageSize)
	require.NoError(t, err)
	assert.NotEqual(t, page1, got)
}

func TestKeyCheckDistinguishesPasswords(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	a := KeyCheck(DeriveKey("alpha", salt, Pbkdf2Iterations))
	b := KeyCheck(DeriveKey("beta", salt, Pbkdf2Iterations))
	assert.Len(t, a, storage.KeyCheckSize)
	assert.NotEqual(t, a, b)
}

func TestCacheShareCounting(t *testing.T) {
	cache := NewMemoryCache(16)
	reads := 0
	load := func(pos int64, buf []byte) error {
		reads++
		buf[0] = byte(pos / storage.PageSize)
		return nil
	}

	a, err := cache.GetReadablePage(0, load)
	require.NoError(t, err)
	b, err := cache.GetReadablePage(0, load)
	require.NoError(t, err)
	assert.Same(t, a, b, "same position shares one buffer")
	assert.Equal(t, 1, reads, "second read served from cache")
	assert.Equal(t, int32(2), a.Shares())

	cache.Return(a)
	cache.Return(b)
	assert.Equal(t, int32(0), a.Shares())

	// still cached after release
	c, err := cache.GetReadablePage(0, load)
	require.NoError(t, err)
	assert.Equal(t, 1, reads)
	cache.Return(c)
}

func TestCacheWritablePromotion(t *testing.T) {
	cache := NewMemoryCache(16)
	buf := cache.NewPage()
	buf.Buffer[0] = 0xEE
	buf.Position = 3 * storage.PageSize
	cache.MoveToReadable(buf)

	got, err := cache.GetReadablePage(3*storage.PageSize, func(int64, []byte) error {
		t.Fatal("promoted page must be served from cache")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, byte(0xEE), got.Buffer[0])
	cache.Return(got)
}

func TestServiceLogAppendAndTruncate(t *testing.T) {
	stream := NewMemoryStream()
	// one header-sized data area
	zero := make([]byte, storage.PageSize)
	stream.WriteAt(zero, 0)

	svc, err := NewService(stream, 16, false)
	require.NoError(t, err)
	svc.SetDataLength(storage.PageSize)

	a := svc.NewPage()
	a.Buffer[0] = 1
	b := svc.NewPage()
	b.Buffer[0] = 2
	require.NoError(t, svc.WriteLogPages([]*storage.PageBuffer{a, b}))

	assert.Equal(t, int64(storage.PageSize), a.Position)
	assert.Equal(t, int64(2*storage.PageSize), b.Position)
	assert.Equal(t, int64(2*storage.PageSize), svc.LogLength())

	// log pages are immediately readable at their positions
	got, err := svc.GetReadablePage(b.Position)
	require.NoError(t, err)
	assert.Equal(t, byte(2), got.Buffer[0])
	svc.ReturnPage(got)

	require.NoError(t, svc.TruncateLog())
	assert.Equal(t, int64(0), svc.LogLength())
	size, err := stream.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(storage.PageSize), size)
}
