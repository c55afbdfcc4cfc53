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
Package compression provides block compression for document payloads.

Algorithm Selection:
====================

1. Snappy: very fast, moderate ratio - the default for data blocks
2. LZ4: fast compression/decompression, moderate ratio
3. Zstd: best ratio
4. Gzip: stdlib fallback, best compatibility

The data allocator stores a payload compressed only when the compressed
form is strictly smaller, so Decompress is only ever called on payloads
whose algorithm tag was recorded at write time.
*/
package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm byte

const (
	None Algorithm = iota
	Gzip
	LZ4
	Snappy
	Zstd
)

// String returns the algorithm name.
func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case LZ4:
		return "lz4"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	default:
		return "unknown"
	}
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
)

func zstdInit() {
	zstdOnce.Do(func() {
		zstdEnc, _ = zstd.NewWriter(nil)
		zstdDec, _ = zstd.NewReader(nil)
	})
}

// Compress encodes data with the given algorithm.
func Compress(a Algorithm, data []byte) ([]byte, error) {
	switch a {
	case None:
		return data, nil
	case Snappy:
		return snappy.Encode(nil, data), nil
	case Zstd:
		zstdInit()
		return zstdEnc.EncodeAll(data, nil), nil
	case LZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Gzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("compression: unknown algorithm %d", a)
	}
}

// Decompress decodes data previously produced by Compress.
func Decompress(a Algorithm, data []byte) ([]byte, error) {
	switch a {
	case None:
		return data, nil
	case Snappy:
		return snappy.Decode(nil, data)
	case Zstd:
		zstdInit()
		return zstdDec.DecodeAll(data, nil)
	case LZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		return io.ReadAll(r)
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("compression: unknown algorithm %d", a)
	}
}

// Shrink compresses data only when it wins, returning the stored payload
// and the algorithm that produced it.
func Shrink(a Algorithm, data []byte) ([]byte, Algorithm) {
	if a == None {
		return data, None
	}
	out, err := Compress(a, data)
	if err != nil || len(out) >= len(data) {
		return data, None
	}
	return out, a
}
