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

package compression

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripAllAlgorithms(t *testing.T) {
	payload := bytes.Repeat([]byte("flintdb page payload "), 500)
	for _, alg := range []Algorithm{None, Gzip, LZ4, Snappy, Zstd} {
		t.Run(alg.String(), func(t *testing.T) {
			packed, err := Compress(alg, payload)
			require.NoError(t, err)
			if alg != None {
				assert.Less(t, len(packed), len(payload), "repetitive payload should shrink")
			}
			got, err := Decompress(alg, packed)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestShrinkSkipsIncompressible(t *testing.T) {
	noise := make([]byte, 4096)
	_, err := rand.Read(noise)
	require.NoError(t, err)

	out, alg := Shrink(Snappy, noise)
	assert.Equal(t, None, alg, "random bytes should not be stored compressed")
	assert.Equal(t, noise, out)

	text := bytes.Repeat([]byte("aaaa"), 1024)
	out, alg = Shrink(Snappy, text)
	assert.Equal(t, Snappy, alg)
	assert.Less(t, len(out), len(text))
}

func TestUnknownAlgorithm(t *testing.T) {
	_, err := Compress(Algorithm(99), []byte("x"))
	assert.Error(t, err)
	_, err = Decompress(Algorithm(99), []byte("x"))
	assert.Error(t, err)
	assert.Equal(t, "unknown", Algorithm(99).String())
}
