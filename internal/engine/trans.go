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
	dberrors "flintdb/errors"
	"flintdb/internal/txn"
)

// BeginTrans opens an explicit transaction bound to the calling
// goroutine.
func (e *Engine) BeginTrans() error {
	if err := e.guardOpen(); err != nil {
		return err
	}
	_, _, err := e.monitor.GetTransaction(true)
	return err
}

// Commit commits the calling goroutine's explicit transaction. From any
// other goroutine the transaction is untouched and WrongThread is
// returned.
func (e *Engine) Commit() error {
	if err := e.guardOpen(); err != nil {
		return err
	}
	tx := e.monitor.GetGoroutineTransaction()
	if tx == nil {
		if e.monitor.HasOpenTransactions() {
			return dberrors.WrongThread()
		}
		return dberrors.NoTransaction()
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.tryCheckpoint()
	return nil
}

// Rollback aborts the calling goroutine's explicit transaction.
func (e *Engine) Rollback() error {
	if err := e.guardOpen(); err != nil {
		return err
	}
	tx := e.monitor.GetGoroutineTransaction()
	if tx == nil {
		if e.monitor.HasOpenTransactions() {
			return dberrors.WrongThread()
		}
		return dberrors.NoTransaction()
	}
	return tx.Rollback()
}

// autoTransaction runs fn inside the calling goroutine's transaction,
// creating an implicit single-operation transaction when none is open.
// Implicit transactions commit on success and roll back on error;
// explicit transactions stay open either way (the caller decides).
func (e *Engine) autoTransaction(collection string, mode txn.Mode, addIfNotExists bool, fn func(snap *txn.Snapshot) error) error {
	tx, isNew, err := e.monitor.GetTransaction(false)
	if err != nil {
		return err
	}
	snap, err := tx.CreateSnapshot(mode, collection, addIfNotExists)
	if err != nil {
		if isNew {
			tx.Rollback()
		}
		return err
	}
	if err := fn(snap); err != nil {
		if isNew {
			tx.Rollback()
		}
		return err
	}
	if isNew {
		if err := tx.Commit(); err != nil {
			return err
		}
		e.tryCheckpoint()
		return nil
	}
	return tx.Safepoint()
}
