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

package engine

import (
	"os"
	"sync/atomic"

	"flintdb/bson"
	dberrors "flintdb/errors"
	"flintdb/internal/data"
	"flintdb/internal/disk"
	"flintdb/internal/index"
	"flintdb/internal/logging"
	"flintdb/internal/storage"
	"flintdb/internal/txn"
)

// rebuildBatch sizes the insert batches streamed into the new file.
const rebuildBatch = 100

// Rebuild compacts the datafile by streaming every collection in _id
// order into a fresh file, re-creating all indexes, then swapping the
// files and reopening. Collation and password can change here and only
// here. Returns the bytes reclaimed.
func (e *Engine) Rebuild(newCollation *bson.Collation, newPassword *string) (int64, error) {
	if err := e.guardWrite(); err != nil {
		return 0, err
	}
	if e.settings.Filename == disk.MemorySelector || e.settings.Filename == disk.TempSelector {
		return 0, dberrors.IOError(nil).WithDetail("rebuild requires a file-backed datafile")
	}
	log := logging.WithComponent("rebuild")

	if err := e.locks.EnterExclusive(); err != nil {
		return 0, err
	}
	defer e.locks.ExitExclusive()

	if _, err := e.walIndex.Checkpoint(); err != nil {
		return 0, err
	}
	oldSize := e.disk.DataLength()

	tmpFile := e.settings.Filename + "-rebuild"
	os.Remove(tmpFile)
	newSettings := e.settings
	newSettings.Filename = tmpFile
	newSettings.InitialSize = 0
	if newCollation != nil {
		newSettings.Collation = newCollation
	} else {
		newSettings.Collation = e.collation
	}
	if newPassword != nil {
		newSettings.Password = *newPassword
	}
	fresh, err := Open(newSettings)
	if err != nil {
		return 0, err
	}

	if err := e.copyInto(fresh); err != nil {
		fresh.Close()
		os.Remove(tmpFile)
		return 0, err
	}
	if err := fresh.Close(); err != nil {
		os.Remove(tmpFile)
		return 0, err
	}

	// swap the files and reopen in place
	if err := e.disk.Close(); err != nil {
		return 0, dberrors.IOError(err)
	}
	if err := os.Rename(tmpFile, e.settings.Filename); err != nil {
		return 0, dberrors.IOError(err)
	}
	atomic.StoreInt32(&e.state, stateClosed)
	e.settings = newSettings
	e.settings.Filename = newSettings.Filename[:len(newSettings.Filename)-len("-rebuild")]
	e.sequences = make(map[string]int64)
	if err := e.init(); err != nil {
		return 0, err
	}

	newSize := e.disk.DataLength()
	log.Info().Int64("reclaimed", oldSize-newSize).Msg("rebuild complete")
	return oldSize - newSize, nil
}

// copyInto streams pragmas, index definitions and documents into the
// fresh engine.
func (e *Engine) copyInto(fresh *Engine) error {
	for _, name := range []storage.Pragma{
		storage.PragmaUserVersion, storage.PragmaTimeout,
		storage.PragmaLimitSize, storage.PragmaUtcDate, storage.PragmaCheckpoint,
	} {
		value, err := e.header.GetPragma(name)
		if err != nil {
			return err
		}
		if err := fresh.SetPragma(string(name), value); err != nil {
			// LIMIT_SIZE zero means unlimited and needs no copy
			if name != storage.PragmaLimitSize || value != 0 {
				return err
			}
		}
	}

	for _, collection := range e.CollectionNames() {
		tx := e.monitor.CreateSystemTransaction()
		if err := e.copyCollection(tx, fresh, collection); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) copyCollection(tx *txn.Transaction, fresh *Engine, collection string) error {
	snap, err := tx.CreateSnapshot(txn.ReadMode, collection, false)
	if err != nil {
		return err
	}
	if !snap.HasCollection() {
		return nil
	}
	idx := index.NewService(snap, e.collation)
	dataSvc := data.NewService(snap, e.settings.Compression)
	col, err := snap.CollectionPage()
	if err != nil {
		return err
	}
	pk := col.PK()

	for _, def := range col.GetCollectionIndexes() {
		if def.Slot == pk.Slot {
			continue
		}
		if _, err := fresh.EnsureIndex(collection, def.Name, def.Expression, def.Unique); err != nil {
			return err
		}
	}

	batch := make([]*bson.Document, 0, rebuildBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := fresh.Insert(collection, batch, AutoIDNone); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	node, err := idx.First(pk)
	if err != nil {
		return err
	}
	for node != nil {
		raw, err := dataSvc.Read(node.DataBlock())
		if err != nil {
			return err
		}
		doc, err := bson.DeserializeDocument(raw)
		if err != nil {
			return err
		}
		batch = append(batch, doc)
		if len(batch) >= rebuildBatch {
			if err := flush(); err != nil {
				return err
			}
		}
		if node, err = idx.Sibling(pk, node, 1); err != nil {
			return err
		}
	}
	return flush()
}
