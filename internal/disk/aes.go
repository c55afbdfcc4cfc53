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
AES Page Encryption
===================

When the datafile is opened with a password, every page except page 0 is
encrypted with AES-256-CBC before it reaches the stream. The key derives
from the password via PBKDF2 (HMAC-SHA1); the salt and iteration count
live cleartext in the header page, alongside an 8-byte key check that
lets open reject a wrong password before touching any encrypted page.

The per-page IV is derived from the salt and the page's stream position,
so a page image re-written at a new log position never reuses an IV with
the same plaintext position pairing. The in-memory buffer pool always
holds cleartext pages.
*/
package disk

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/pbkdf2"

	"flintdb/internal/storage"
)

// Pbkdf2Iterations is the derivation cost recorded for new datafiles.
const Pbkdf2Iterations = 4096

// AesStream wraps a Stream so the on-disk form is encrypted while the
// page layer sees cleartext. Offsets must be page aligned and spans must
// be whole pages.
type AesStream struct {
	inner Stream
	block cipher.Block
	salt  []byte
}

// DeriveKey runs PBKDF2 over the password.
func DeriveKey(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, 32, sha1.New)
}

// KeyCheck returns the header key-check bytes for a derived key.
func KeyCheck(key []byte) []byte {
	sum := sha256.Sum256(key)
	return sum[:storage.KeyCheckSize]
}

// NewSalt generates a fresh random salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, storage.EncryptionSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// NewAesStream wraps inner with a key already derived and checked.
func NewAesStream(inner Stream, key, salt []byte) (*AesStream, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &AesStream{inner: inner, block: block, salt: salt}, nil
}

// iv derives the per-page initialization vector from salt and position.
func (s *AesStream) iv(position int64) []byte {
	var seed [storage.EncryptionSaltSize + 8]byte
	copy(seed[:], s.salt)
	binary.LittleEndian.PutUint64(seed[storage.EncryptionSaltSize:], uint64(position))
	sum := sha256.Sum256(seed[:])
	return sum[:aes.BlockSize]
}

func (s *AesStream) ReadAt(p []byte, off int64) (int, error) {
	n, err := s.inner.ReadAt(p, off)
	if err != nil {
		return n, err
	}
	for pageOff := int64(0); pageOff < int64(len(p)); pageOff += storage.PageSize {
		position := off + pageOff
		if position == 0 {
			continue // header page stays cleartext
		}
		span := p[pageOff : pageOff+storage.PageSize]
		dec := cipher.NewCBCDecrypter(s.block, s.iv(position))
		dec.CryptBlocks(span, span)
	}
	return n, nil
}

func (s *AesStream) WriteAt(p []byte, off int64) (int, error) {
	out := make([]byte, len(p))
	copy(out, p)
	for pageOff := int64(0); pageOff < int64(len(out)); pageOff += storage.PageSize {
		position := off + pageOff
		if position == 0 {
			continue
		}
		span := out[pageOff : pageOff+storage.PageSize]
		enc := cipher.NewCBCEncrypter(s.block, s.iv(position))
		enc.CryptBlocks(span, span)
	}
	return s.inner.WriteAt(out, off)
}

func (s *AesStream) Sync() error                { return s.inner.Sync() }
func (s *AesStream) Truncate(size int64) error  { return s.inner.Truncate(size) }
func (s *AesStream) Size() (int64, error)       { return s.inner.Size() }
func (s *AesStream) Close() error               { return s.inner.Close() }
