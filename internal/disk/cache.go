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
Page Buffer Pool
================

The cache owns every page-sized buffer in use. Buffers are in one of two
sets:

  - readable: keyed by stream position, shared by reference with a
    share counter. A zero-share buffer stays cached and is reclaimed
    only when the pool needs its slot.
  - writable: handed to exactly one transaction, invisible to everyone
    else until a safepoint or commit moves it back with MoveToReadable.

Reads are served from the readable set when the position is cached;
misses pull a free buffer and fill it through the supplied reader.
*/
package disk

import (
	"sync"
	"sync/atomic"

	"flintdb/internal/storage"
)

// MemoryCache is the shared page buffer pool.
type MemoryCache struct {
	mu       sync.Mutex
	readable map[int64]*storage.PageBuffer
	free     []*storage.PageBuffer

	// capacity is the soft bound on cached readable pages; reclaim scans
	// drop zero-share entries past it.
	capacity int

	pagesAllocated int64
	hits           int64
	misses         int64
}

// NewMemoryCache creates a pool with the given readable-page capacity.
func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = storage.DefaultCheckpointPages
	}
	return &MemoryCache{
		readable: make(map[int64]*storage.PageBuffer),
		capacity: capacity,
	}
}

// GetReadablePage returns the shared buffer at a stream position,
// reading through the supplied loader on a miss. The caller must
// eventually call Return.
func (c *MemoryCache) GetReadablePage(position int64, load func(position int64, buf []byte) error) (*storage.PageBuffer, error) {
	c.mu.Lock()
	if buf, ok := c.readable[position]; ok {
		buf.Retain()
		c.mu.Unlock()
		atomic.AddInt64(&c.hits, 1)
		return buf, nil
	}
	buf := c.takeFreeLocked()
	c.mu.Unlock()

	atomic.AddInt64(&c.misses, 1)
	if err := load(position, buf.Buffer); err != nil {
		c.mu.Lock()
		c.free = append(c.free, buf)
		c.mu.Unlock()
		return nil, err
	}
	buf.Position = position

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.readable[position]; ok {
		// another reader won the race; reuse its buffer
		existing.Retain()
		c.free = append(c.free, buf)
		return existing, nil
	}
	buf.ResetShares(1)
	c.readable[position] = buf
	return buf, nil
}

// NewPage hands out a zeroed writable buffer owned by one transaction.
func (c *MemoryCache) NewPage() *storage.PageBuffer {
	c.mu.Lock()
	buf := c.takeFreeLocked()
	c.mu.Unlock()
	buf.ResetShares(1)
	return buf
}

// MoveToReadable publishes a transaction buffer into the readable set at
// its assigned position (safepoint and commit promotion). The buffer's
// ownership passes to the pool.
func (c *MemoryCache) MoveToReadable(buf *storage.PageBuffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf.ResetShares(0)
	c.readable[buf.Position] = buf
}

// DiscardPage returns a writable buffer to the free list without
// publishing it (rollback path).
func (c *MemoryCache) DiscardPage(buf *storage.PageBuffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf.Clear()
	c.free = append(c.free, buf)
}

// Return releases one share of a readable buffer.
func (c *MemoryCache) Return(buf *storage.PageBuffer) {
	buf.Release()
}

// Clear drops every readable buffer that no reader still shares
// (checkpoint invalidates log positions); shared buffers stay cached.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for pos, buf := range c.readable {
		if buf.Shares() == 0 {
			buf.Clear()
			c.free = append(c.free, buf)
			delete(c.readable, pos)
		}
	}
}

// FreePageCapacity estimates how many writable pages a transaction can
// hold before spilling, used to size transaction budgets.
func (c *MemoryCache) FreePageCapacity() int {
	return c.capacity
}

// Stats returns hit/miss counters and the pool size in pages.
func (c *MemoryCache) Stats() (hits, misses, allocated int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses), atomic.LoadInt64(&c.pagesAllocated)
}

// takeFreeLocked pops a free buffer, reclaiming cold readable pages when
// the pool has grown past capacity.
func (c *MemoryCache) takeFreeLocked() *storage.PageBuffer {
	if n := len(c.free); n > 0 {
		buf := c.free[n-1]
		c.free = c.free[:n-1]
		return buf
	}
	if len(c.readable) > c.capacity {
		for pos, buf := range c.readable {
			if buf.Shares() == 0 {
				delete(c.readable, pos)
				buf.Clear()
				return buf
			}
		}
	}
	atomic.AddInt64(&c.pagesAllocated, 1)
	return storage.NewPageBuffer()
}
