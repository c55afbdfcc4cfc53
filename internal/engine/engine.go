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
Package engine composes the FlintDB storage stack into the embedder-facing
facade: open/close with crash recovery, CRUD, index DDL, query plan
execution, explicit transactions, pragmas, checkpoint and rebuild.

The engine is the only object persistent across operations. It owns the
disk service (with the page buffer pool), the WAL index, the lock
service and the transaction monitor; everything else is created per
operation on top of a snapshot.
*/
package engine

import (
	"bytes"
	"io"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"flintdb/bson"
	dberrors "flintdb/errors"
	"flintdb/internal/compression"
	"flintdb/internal/disk"
	"flintdb/internal/logging"
	"flintdb/internal/storage"
	"flintdb/internal/txn"
	"flintdb/internal/wal"
)

// AutoID selects the policy for generating missing _id values.
type AutoID int

const (
	AutoIDObjectID AutoID = iota
	AutoIDInt32
	AutoIDInt64
	AutoIDGuid
	AutoIDNone
)

// Settings configure Open. For an existing datafile the in-file pragmas
// win; the pragma-shaped fields here only seed new files.
type Settings struct {
	Filename    string
	Password    string
	ReadOnly    bool
	InitialSize int64

	// New-file pragma seeds (zero values fall back to defaults).
	Collation      *bson.Collation
	Timeout        time.Duration
	LimitSize      int64
	UtcDate        bool
	CheckpointSize int

	// AutoID is the default id policy for inserts.
	AutoID AutoID

	// Compression is the stored-document compression algorithm.
	Compression compression.Algorithm

	// LogLevel and LogWriter configure engine logging; a nil writer
	// keeps the engine silent.
	LogLevel  string
	LogWriter io.Writer
}

// Engine state.
const (
	stateOpen int32 = iota
	stateClosed
	statePanicked
)

var nameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Engine is the FlintDB storage engine facade.
type Engine struct {
	settings Settings

	disk     *disk.Service
	walIndex *wal.Index
	header   *storage.HeaderPage
	headerMu sync.Mutex
	locks    *txn.LockService
	monitor  *txn.Monitor
	env      *txn.Env

	collation *bson.Collation
	utcDate   bool

	state int32

	seqMu     sync.Mutex
	sequences map[string]int64

	checkpoints int64
}

// Open opens (or creates) a datafile and runs crash recovery.
func Open(settings Settings) (*Engine, error) {
	logging.Init(logging.ParseLevel(settings.LogLevel), settings.LogWriter)
	e := &Engine{settings: settings, sequences: make(map[string]int64)}
	if err := e.init(); err != nil {
		return nil, err
	}
	return e, nil
}

// init builds every service over the backing stream. Also the re-open
// path after rebuild.
func (e *Engine) init() error {
	log := logging.WithComponent("engine")
	settings := e.settings

	stream, err := disk.OpenStream(settings.Filename, settings.ReadOnly)
	if err != nil {
		return dberrors.IOError(err)
	}
	size, err := stream.Size()
	if err != nil {
		stream.Close()
		return dberrors.IOError(err)
	}

	var header *storage.HeaderPage
	if size == 0 {
		if settings.ReadOnly {
			stream.Close()
			return dberrors.ReadOnly().WithDetail("cannot create a datafile in read-only mode")
		}
		if header, stream, err = createDatafile(stream, settings); err != nil {
			stream.Close()
			return err
		}
		log.Info().Str("file", settings.Filename).Msg("created datafile")
	} else {
		if header, stream, err = openDatafile(stream, settings); err != nil {
			stream.Close()
			return err
		}
	}

	checkpointPages, _ := header.GetPragma(storage.PragmaCheckpoint)
	cacheCapacity := int(checkpointPages)
	if cacheCapacity <= 0 {
		cacheCapacity = storage.DefaultCheckpointPages
	}
	diskService, err := disk.NewService(stream, cacheCapacity, settings.ReadOnly)
	if err != nil {
		stream.Close()
		return err
	}
	diskService.SetDataLength(int64(header.LastPageID()+1) * storage.PageSize)

	walIndex := wal.NewIndex(diskService)
	if !settings.ReadOnly {
		if _, err := walIndex.Restore(); err != nil {
			diskService.Close()
			return err
		}
		// recovery may have replayed a newer header image
		if header, err = readHeader(stream); err != nil {
			diskService.Close()
			return err
		}
		diskService.SetDataLength(int64(header.LastPageID()+1) * storage.PageSize)
	}

	timeoutSecs, _ := header.GetPragma(storage.PragmaTimeout)
	utc, _ := header.GetPragma(storage.PragmaUtcDate)
	maxTrans := cacheCapacity
	if free := diskService.Cache().FreePageCapacity(); free < maxTrans {
		maxTrans = free
	}

	e.disk = diskService
	e.walIndex = walIndex
	e.header = header
	e.locks = txn.NewLockService(time.Duration(timeoutSecs) * time.Second)
	e.collation = bson.CollationFromCode(header.Collation())
	e.utcDate = utc != 0
	e.env = &txn.Env{
		Disk:               diskService,
		Wal:                walIndex,
		Header:             header,
		HeaderMu:           &e.headerMu,
		Locks:              e.locks,
		Collation:          e.collation,
		MaxTransactionSize: maxTrans,
	}
	e.monitor = txn.NewMonitor(e.env)
	atomic.StoreInt32(&e.state, stateOpen)

	log.Info().Str("file", settings.Filename).
		Uint32("last_page", header.LastPageID()).
		Str("collation", e.collation.String()).
		Msg("engine open")
	return nil
}

// createDatafile writes a fresh header page (and the optional
// preallocated empty pages), wiring up encryption when a password is set.
func createDatafile(stream disk.Stream, settings Settings) (*storage.HeaderPage, disk.Stream, error) {
	buf := storage.NewPageBuffer()
	header := storage.CreateHeaderPage(buf)

	if settings.Collation != nil {
		header.SetCollation(settings.Collation.Code())
	}
	if settings.Timeout > 0 {
		header.SetPragma(storage.PragmaTimeout, int64(settings.Timeout/time.Second))
	}
	if settings.LimitSize > 0 {
		if err := header.SetPragma(storage.PragmaLimitSize, settings.LimitSize); err != nil {
			return nil, stream, err
		}
	}
	if settings.UtcDate {
		header.SetPragma(storage.PragmaUtcDate, 1)
	}
	if settings.CheckpointSize > 0 {
		header.SetPragma(storage.PragmaCheckpoint, int64(settings.CheckpointSize))
	}

	out := stream
	if settings.Password != "" {
		salt, err := disk.NewSalt()
		if err != nil {
			return nil, stream, dberrors.IOError(err)
		}
		key := disk.DeriveKey(settings.Password, salt, disk.Pbkdf2Iterations)
		header.SetEncryption(salt, disk.Pbkdf2Iterations, disk.KeyCheck(key))
		if out, err = disk.NewAesStream(stream, key, salt); err != nil {
			return nil, stream, dberrors.IOError(err)
		}
	}

	// preallocate empty pages chained into the free list
	if pages := int(settings.InitialSize / storage.PageSize); pages > 1 {
		empty := storage.NewPageBuffer()
		for id := uint32(1); id < uint32(pages); id++ {
			page := storage.NewBasePage(empty, id, storage.PageTypeEmpty)
			if id < uint32(pages)-1 {
				page.SetNextPageID(id + 1)
			}
			if _, err := out.WriteAt(empty.Buffer, int64(id)*storage.PageSize); err != nil {
				return nil, out, dberrors.IOError(err)
			}
		}
		header.SetFreeEmptyPageList(1)
		header.SetLastPageID(uint32(pages) - 1)
	}

	if _, err := out.WriteAt(buf.Buffer, 0); err != nil {
		return nil, out, dberrors.IOError(err)
	}
	if err := out.Sync(); err != nil {
		return nil, out, dberrors.IOError(err)
	}
	return header, out, nil
}

// openDatafile validates page 0 of an existing file and wraps the stream
// with AES when the file is encrypted.
func openDatafile(stream disk.Stream, settings Settings) (*storage.HeaderPage, disk.Stream, error) {
	header, err := readHeader(stream)
	if err != nil {
		return nil, stream, err
	}
	if !header.Encrypted() {
		if settings.Password != "" {
			return nil, stream, dberrors.WrongPassword().WithDetail("datafile is not encrypted")
		}
		return header, stream, nil
	}
	if settings.Password == "" {
		return nil, stream, dberrors.WrongPassword().WithDetail("datafile requires a password")
	}
	key := disk.DeriveKey(settings.Password, header.Salt(), header.Pbkdf2Iterations())
	if !bytes.Equal(disk.KeyCheck(key), header.KeyCheck()) {
		return nil, stream, dberrors.WrongPassword()
	}
	salt := append([]byte(nil), header.Salt()...)
	aes, err := disk.NewAesStream(stream, key, salt)
	if err != nil {
		return nil, stream, dberrors.IOError(err)
	}
	return header, aes, nil
}

// readHeader loads page 0 straight from the stream.
func readHeader(stream disk.Stream) (*storage.HeaderPage, error) {
	buf := storage.NewPageBuffer()
	if _, err := stream.ReadAt(buf.Buffer, 0); err != nil {
		return nil, dberrors.IOError(err)
	}
	buf.Position = 0
	return storage.LoadHeaderPage(buf)
}

// guardOpen rejects operations on a closed or panicked engine.
func (e *Engine) guardOpen() error {
	switch atomic.LoadInt32(&e.state) {
	case stateClosed:
		return dberrors.IOError(nil).WithDetail("engine is closed")
	case statePanicked:
		return dberrors.CorruptedPage(0, "engine is in read-only panic state; reopen the database")
	}
	return nil
}

func (e *Engine) guardWrite() error {
	if err := e.guardOpen(); err != nil {
		return err
	}
	if e.settings.ReadOnly {
		return dberrors.ReadOnly()
	}
	return nil
}

// Collation returns the engine's collation.
func (e *Engine) Collation() *bson.Collation { return e.collation }

// Settings returns the open settings.
func (e *Engine) Settings() Settings { return e.settings }

// UtcDate reports the UTC_DATE pragma.
func (e *Engine) UtcDate() bool { return e.utcDate }

// Close flushes, checkpoints (unless CHECKPOINT=0), aborts in-flight
// transactions and releases the file.
func (e *Engine) Close() error {
	if !atomic.CompareAndSwapInt32(&e.state, stateOpen, stateClosed) {
		if !atomic.CompareAndSwapInt32(&e.state, statePanicked, stateClosed) {
			return nil
		}
	}
	log := logging.WithComponent("engine")

	e.monitor.AbortAll()

	var firstErr error
	if !e.settings.ReadOnly {
		checkpointPages, _ := e.header.GetPragma(storage.PragmaCheckpoint)
		if checkpointPages > 0 {
			if err := e.locks.EnterExclusive(); err == nil {
				if _, err := e.walIndex.Checkpoint(); err != nil && firstErr == nil {
					firstErr = err
				}
				e.locks.ExitExclusive()
			}
		}
		if err := e.disk.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.disk.Close(); err != nil && firstErr == nil {
		firstErr = dberrors.IOError(err)
	}
	log.Info().Str("file", e.settings.Filename).Msg("engine closed")
	return firstErr
}

// panicReadOnly switches the engine into the read-only panic state after
// an inconsistency was detected at runtime.
func (e *Engine) panicReadOnly(why string) {
	if atomic.CompareAndSwapInt32(&e.state, stateOpen, statePanicked) {
		logging.WithComponent("engine").Error().Str("reason", why).
			Msg("inconsistency detected; engine switched to read-only panic state")
	}
}

// Checkpoint copies confirmed log pages into the data area and truncates
// the log. Blocks until every snapshot drains, bounded by TIMEOUT.
func (e *Engine) Checkpoint() error {
	if err := e.guardWrite(); err != nil {
		return err
	}
	if err := e.locks.EnterExclusive(); err != nil {
		return err
	}
	defer e.locks.ExitExclusive()
	_, err := e.walIndex.Checkpoint()
	if err == nil {
		atomic.AddInt64(&e.checkpoints, 1)
	}
	return err
}

// tryCheckpoint runs the automatic checkpoint after commits once the log
// passes the CHECKPOINT threshold. A timeout is swallowed; the next
// trigger retries.
func (e *Engine) tryCheckpoint() {
	checkpointPages, _ := e.header.GetPragma(storage.PragmaCheckpoint)
	if checkpointPages <= 0 {
		return
	}
	if e.disk.LogLength() < checkpointPages*storage.PageSize {
		return
	}
	if !e.locks.TryEnterExclusive() {
		// a transaction or reader is still active; the next trigger retries
		return
	}
	defer e.locks.ExitExclusive()
	if _, err := e.walIndex.Checkpoint(); err != nil {
		logging.WithComponent("engine").Debug().Err(err).
			Msg("automatic checkpoint deferred")
		return
	}
	atomic.AddInt64(&e.checkpoints, 1)
}

// Pragma reads a pragma value.
func (e *Engine) Pragma(name string) (int64, error) {
	if err := e.guardOpen(); err != nil {
		return 0, err
	}
	e.headerMu.Lock()
	defer e.headerMu.Unlock()
	return e.header.GetPragma(storage.Pragma(name))
}

// SetPragma writes a pragma value and persists the header.
func (e *Engine) SetPragma(name string, value int64) error {
	if err := e.guardWrite(); err != nil {
		return err
	}
	if err := e.locks.EnterExclusive(); err != nil {
		return err
	}
	defer e.locks.ExitExclusive()

	e.headerMu.Lock()
	err := e.header.SetPragma(storage.Pragma(name), value)
	e.headerMu.Unlock()
	if err != nil {
		return err
	}
	if storage.Pragma(name) == storage.PragmaTimeout {
		e.locks.SetTimeout(time.Duration(value) * time.Second)
	}
	return e.commitHeader()
}

// commitHeader appends the current header image to the log as a
// confirmed single-page system transaction.
func (e *Engine) commitHeader() error {
	systemID := e.walIndex.NextTransactionID()
	buf := e.disk.NewPage()
	e.headerMu.Lock()
	e.header.Clone(buf)
	e.headerMu.Unlock()
	page := storage.LoadBasePage(buf)
	page.SetTransactionID(systemID)
	page.SetConfirmed(true)
	if err := e.disk.WriteLogPages([]*storage.PageBuffer{buf}); err != nil {
		return err
	}
	e.walIndex.ConfirmTransaction(systemID, []wal.PagePosition{{PageID: 0, Position: buf.Position}})
	return nil
}

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	Collections  int
	LastPageID   uint32
	DataFileSize int64
	LogSize      int64
	PagesRead    int64
	PagesWritten int64
	CacheHitRate float64
	PoolPages    int64
	Checkpoints  int64
}

// EngineStats returns the current counters.
func (e *Engine) EngineStats() Stats {
	pagesRead, pagesWritten, hits, misses, pool := e.disk.Stats()
	hitRate := 0.0
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses) * 100
	}
	e.headerMu.Lock()
	collections := len(e.header.Collections())
	lastPage := e.header.LastPageID()
	e.headerMu.Unlock()
	return Stats{
		Collections:  collections,
		LastPageID:   lastPage,
		DataFileSize: e.disk.DataLength(),
		LogSize:      e.disk.LogLength(),
		PagesRead:    pagesRead,
		PagesWritten: pagesWritten,
		CacheHitRate: hitRate,
		PoolPages:    pool,
		Checkpoints:  atomic.LoadInt64(&e.checkpoints),
	}
}

// CollectionNames lists the collections in the datafile.
func (e *Engine) CollectionNames() []string {
	e.headerMu.Lock()
	defer e.headerMu.Unlock()
	return e.header.Collections()
}

func validName(name string) error {
	if !nameRe.MatchString(name) || len(name) > 200 {
		return dberrors.InvalidName(name)
	}
	return nil
}
