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
	"sync/atomic"
)

// PageBuffer is one page-sized buffer lent out by the buffer pool. A
// readable buffer is shared by reference and counted; a writable buffer
// belongs to exactly one transaction and is never shared.
type PageBuffer struct {
	// Buffer is the PageSize byte span.
	Buffer []byte

	// Position is the stream position this buffer was read from or last
	// written to, or NoPosition for a fresh writable buffer.
	Position int64

	shareCounter int32
}

// NoPosition marks a buffer not yet bound to a stream position.
const NoPosition = int64(-1)

// NewPageBuffer allocates a zeroed page buffer.
func NewPageBuffer() *PageBuffer {
	return &PageBuffer{Buffer: make([]byte, PageSize), Position: NoPosition}
}

// Retain increments the share counter.
func (b *PageBuffer) Retain() {
	atomic.AddInt32(&b.shareCounter, 1)
}

// Release decrements the share counter and returns the new value.
func (b *PageBuffer) Release() int32 {
	return atomic.AddInt32(&b.shareCounter, -1)
}

// Shares returns the current share counter.
func (b *PageBuffer) Shares() int32 {
	return atomic.LoadInt32(&b.shareCounter)
}

// ResetShares sets the share counter for pool bookkeeping.
func (b *PageBuffer) ResetShares(v int32) {
	atomic.StoreInt32(&b.shareCounter, v)
}

// Clear zeroes the buffer and detaches it from any position.
func (b *PageBuffer) Clear() {
	for i := range b.Buffer {
		b.Buffer[i] = 0
	}
	b.Position = NoPosition
}
