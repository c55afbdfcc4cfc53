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
Disk Service
============

One stream, two logical areas:

	[header+data pages 0..last_page_id] [log pages ...]

The data area length tracks the header's last_page_id. The log grows
past it through WriteLogPages, which serializes appends behind the log
mutex and flushes after the physical write: a reader resolving a log
position through the same stream must never observe a truncated page.
Checkpoint writes pages back into the data area and truncates the log.
*/
package disk

import (
	"sync"
	"sync/atomic"

	dberrors "flintdb/errors"
	"flintdb/internal/logging"
	"flintdb/internal/storage"
)

// Service reads and writes whole pages against the backing stream.
type Service struct {
	stream Stream
	cache  *MemoryCache

	// logMu is the process-wide log-append mutex.
	logMu sync.Mutex

	dataLength int64 // data-area end
	logEnd     int64 // stream end (data + log)

	readOnly bool

	pagesRead    int64
	pagesWritten int64
}

// NewService wraps a stream whose current size is known.
func NewService(stream Stream, cacheCapacity int, readOnly bool) (*Service, error) {
	size, err := stream.Size()
	if err != nil {
		return nil, dberrors.IOError(err)
	}
	return &Service{
		stream:   stream,
		cache:    NewMemoryCache(cacheCapacity),
		dataLength: size, // adjusted by SetDataLength once the header is read
		logEnd:     size,
		readOnly: readOnly,
	}, nil
}

// Cache exposes the page buffer pool.
func (s *Service) Cache() *MemoryCache { return s.cache }

// DataLength returns the data-area end position.
func (s *Service) DataLength() int64 { return atomic.LoadInt64(&s.dataLength) }

// LogLength returns the log-area length in bytes.
func (s *Service) LogLength() int64 { return atomic.LoadInt64(&s.logEnd) - s.DataLength() }

// SetDataLength pins the data-area end (from the header's last_page_id).
func (s *Service) SetDataLength(length int64) {
	atomic.StoreInt64(&s.dataLength, length)
	if atomic.LoadInt64(&s.logEnd) < length {
		atomic.StoreInt64(&s.logEnd, length)
	}
}

// GetReadablePage returns the shared buffer at a stream position.
func (s *Service) GetReadablePage(position int64) (*storage.PageBuffer, error) {
	return s.cache.GetReadablePage(position, func(pos int64, buf []byte) error {
		atomic.AddInt64(&s.pagesRead, 1)
		if _, err := s.stream.ReadAt(buf, pos); err != nil {
			return dberrors.IOError(err)
		}
		return nil
	})
}

// ReadPageDirect reads a page image bypassing the cache (recovery and
// checkpoint scans).
func (s *Service) ReadPageDirect(position int64, buf []byte) error {
	atomic.AddInt64(&s.pagesRead, 1)
	if _, err := s.stream.ReadAt(buf, position); err != nil {
		return dberrors.IOError(err)
	}
	return nil
}

// NewPage hands out a writable buffer.
func (s *Service) NewPage() *storage.PageBuffer { return s.cache.NewPage() }

// DiscardPage returns a writable buffer without publishing it.
func (s *Service) DiscardPage(buf *storage.PageBuffer) { s.cache.DiscardPage(buf) }

// ReturnPage releases one share of a readable buffer.
func (s *Service) ReturnPage(buf *storage.PageBuffer) { s.cache.Return(buf) }

// WriteLogPages appends page images to the log area in order, assigning
// each buffer its log position, then flushes so the bytes are visible to
// concurrent readers of the same stream. Ownership of the buffers moves
// to the pool's readable set.
func (s *Service) WriteLogPages(bufs []*storage.PageBuffer) error {
	if s.readOnly {
		return dberrors.ReadOnly()
	}
	if len(bufs) == 0 {
		return nil
	}
	s.logMu.Lock()
	defer s.logMu.Unlock()

	position := atomic.LoadInt64(&s.logEnd)
	for _, buf := range bufs {
		buf.Position = position
		if _, err := s.stream.WriteAt(buf.Buffer, position); err != nil {
			// a failed log flush leaves the engine unable to promise
			// durability; surface it as fatal to the caller
			logging.WithComponent("disk").Error().Err(err).Int64("position", position).
				Msg("log append failed")
			return dberrors.IOError(err)
		}
		position += storage.PageSize
		atomic.AddInt64(&s.pagesWritten, 1)
	}
	if err := s.stream.Sync(); err != nil {
		return dberrors.IOError(err)
	}
	atomic.StoreInt64(&s.logEnd, position)
	for _, buf := range bufs {
		s.cache.MoveToReadable(buf)
	}
	return nil
}

// WriteDataPage writes one page image directly into the data area
// (checkpoint only).
func (s *Service) WriteDataPage(position int64, image []byte) error {
	if s.readOnly {
		return dberrors.ReadOnly()
	}
	atomic.AddInt64(&s.pagesWritten, 1)
	if _, err := s.stream.WriteAt(image, position); err != nil {
		return dberrors.IOError(err)
	}
	return nil
}

// TruncateLog drops the log area after a checkpoint and invalidates any
// cached log positions.
func (s *Service) TruncateLog() error {
	dataLength := s.DataLength()
	if err := s.stream.Truncate(dataLength); err != nil {
		return dberrors.IOError(err)
	}
	atomic.StoreInt64(&s.logEnd, dataLength)
	s.cache.Clear()
	return nil
}

// Sync flushes the stream.
func (s *Service) Sync() error {
	if err := s.stream.Sync(); err != nil {
		return dberrors.IOError(err)
	}
	return nil
}

// Close closes the backing stream.
func (s *Service) Close() error {
	return s.stream.Close()
}

// Stats returns page I/O counters plus cache counters.
func (s *Service) Stats() (pagesRead, pagesWritten, cacheHits, cacheMisses, poolPages int64) {
	hits, misses, allocated := s.cache.Stats()
	return atomic.LoadInt64(&s.pagesRead), atomic.LoadInt64(&s.pagesWritten), hits, misses, allocated
}
