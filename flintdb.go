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
Package flintdb is a single-file, serverless, embedded document database.

A process links the engine as a library, opens one datafile and gets
transactional access to schema-less BSON documents organized into named
collections with secondary skip-list indexes, a write-ahead log with
crash recovery, and optional AES encryption of the file.

Basic usage:

	db, err := flintdb.Open("app.db", nil)
	if err != nil { ... }
	defer db.Close()

	customers := db.Collection("customers")
	customers.Insert(bson.D("_id", bson.Int32(1), "Name", bson.String("John")))
	customers.EnsureIndex("Name", "$.Name", false)

	cur, _ := customers.Find(flintdb.Query{
		Predicates: []flintdb.Predicate{flintdb.Eq("Name", bson.String("John"))},
	})
	defer cur.Close()
	for cur.Next() {
		doc := cur.Doc()
		...
	}

The special filenames ":memory:" and ":temp:" bypass a named datafile.
*/
package flintdb

import (
	"io"
	"time"

	"flintdb/bson"
	"flintdb/internal/compression"
	"flintdb/internal/engine"
)

// AutoID selects how missing _id values are generated on insert.
type AutoID = engine.AutoID

// AutoID policies.
const (
	AutoIDObjectID = engine.AutoIDObjectID
	AutoIDInt32    = engine.AutoIDInt32
	AutoIDInt64    = engine.AutoIDInt64
	AutoIDGuid     = engine.AutoIDGuid
	AutoIDNone     = engine.AutoIDNone
)

// Options configure Open. All fields are optional; for an existing
// datafile the in-file pragmas are the source of truth and the
// pragma-shaped fields here only seed brand-new files.
type Options struct {
	// Password enables AES encryption of the datafile.
	Password string

	// ReadOnly rejects every write operation.
	ReadOnly bool

	// InitialSize preallocates the datafile (bytes, rounded to pages).
	InitialSize int64

	// Collation fixes string ordering for the life of the datafile.
	// Defaults to English, case-insensitive.
	Collation *bson.Collation

	// Timeout bounds lock and checkpoint waits (TIMEOUT pragma).
	Timeout time.Duration

	// LimitSize caps the datafile size in bytes (LIMIT_SIZE pragma).
	LimitSize int64

	// UtcDate controls how stored dates read back (UTC_DATE pragma).
	UtcDate bool

	// Checkpoint is the log-size threshold in pages that triggers the
	// automatic checkpoint (CHECKPOINT pragma). 0 keeps the default of
	// 1,000 pages; SetPragma("CHECKPOINT", 0) disables checkpoints.
	Checkpoint int

	// AutoID is the default id policy for inserts.
	AutoID AutoID

	// Compression selects stored-document compression: "snappy"
	// (default), "zstd", "lz4", "gzip" or "none".
	Compression string

	// LogLevel and LogWriter configure engine logging ("debug", "info",
	// "warn", "error"); a nil writer keeps the engine silent.
	LogLevel  string
	LogWriter io.Writer
}

// Database is an open FlintDB datafile.
type Database struct {
	engine *engine.Engine
}

// Open opens (or creates) a datafile and runs crash recovery.
func Open(filename string, opts *Options) (*Database, error) {
	if opts == nil {
		opts = &Options{}
	}
	alg := compression.Snappy
	switch opts.Compression {
	case "none":
		alg = compression.None
	case "zstd":
		alg = compression.Zstd
	case "lz4":
		alg = compression.LZ4
	case "gzip":
		alg = compression.Gzip
	}
	checkpoint := opts.Checkpoint
	e, err := engine.Open(engine.Settings{
		Filename:       filename,
		Password:       opts.Password,
		ReadOnly:       opts.ReadOnly,
		InitialSize:    opts.InitialSize,
		Collation:      opts.Collation,
		Timeout:        opts.Timeout,
		LimitSize:      opts.LimitSize,
		UtcDate:        opts.UtcDate,
		CheckpointSize: checkpoint,
		AutoID:         opts.AutoID,
		Compression:    alg,
		LogLevel:       opts.LogLevel,
		LogWriter:      opts.LogWriter,
	})
	if err != nil {
		return nil, err
	}
	return &Database{engine: e}, nil
}

// Close flushes, checkpoints (unless disabled) and releases the file.
// Any in-flight transaction is aborted.
func (db *Database) Close() error {
	return db.engine.Close()
}

// Collection returns a handle on a named collection. The collection is
// created implicitly on first insert.
func (db *Database) Collection(name string) *Collection {
	return &Collection{db: db, name: name}
}

// CollectionNames lists the collections in the datafile.
func (db *Database) CollectionNames() []string {
	return db.engine.CollectionNames()
}

// BeginTrans opens an explicit transaction bound to the calling
// goroutine; every operation until Commit or Rollback joins it.
func (db *Database) BeginTrans() error {
	return db.engine.BeginTrans()
}

// Commit commits the calling goroutine's transaction.
func (db *Database) Commit() error {
	return db.engine.Commit()
}

// Rollback aborts the calling goroutine's transaction.
func (db *Database) Rollback() error {
	return db.engine.Rollback()
}

// Pragma reads a pragma value by name (USER_VERSION, COLLATION,
// TIMEOUT, LIMIT_SIZE, UTC_DATE, CHECKPOINT).
func (db *Database) Pragma(name string) (int64, error) {
	return db.engine.Pragma(name)
}

// SetPragma writes a pragma value. COLLATION is read-only and only
// changes through Rebuild.
func (db *Database) SetPragma(name string, value int64) error {
	return db.engine.SetPragma(name, value)
}

// Checkpoint moves confirmed log pages into the data area and truncates
// the log, waiting (bounded by TIMEOUT) for readers to drain.
func (db *Database) Checkpoint() error {
	return db.engine.Checkpoint()
}

// DropCollection removes a collection and all its documents and indexes.
func (db *Database) DropCollection(name string) (bool, error) {
	return db.engine.DropCollection(name)
}

// RenameCollection renames a collection.
func (db *Database) RenameCollection(oldName, newName string) error {
	return db.engine.RenameCollection(oldName, newName)
}

// Rebuild compacts the datafile into a fresh file, optionally changing
// collation or password, and reopens it. Returns the bytes reclaimed.
func (db *Database) Rebuild(newCollation *bson.Collation, newPassword *string) (int64, error) {
	return db.engine.Rebuild(newCollation, newPassword)
}

// Stats returns engine counters.
func (db *Database) Stats() engine.Stats {
	return db.engine.EngineStats()
}
