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

package txn

import (
	"sync"

	dberrors "flintdb/errors"
)

// Monitor issues transactions, binds them to goroutines and tracks the
// set in flight. Engine shutdown aborts whatever is left; finalizers
// never touch transaction state.
type Monitor struct {
	env *Env

	mu           sync.Mutex
	transactions map[uint32]*Transaction
	byGoroutine  map[uint64]*Transaction
}

// NewMonitor creates an empty transaction monitor.
func NewMonitor(env *Env) *Monitor {
	return &Monitor{
		env:          env,
		transactions: make(map[uint32]*Transaction),
		byGoroutine:  make(map[uint64]*Transaction),
	}
}

// GetGoroutineTransaction returns the transaction bound to the calling
// goroutine, or nil.
func (m *Monitor) GetGoroutineTransaction() *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byGoroutine[CurrentGoroutineID()]
}

// GetTransaction returns (creating on demand) the calling goroutine's
// transaction. isNew tells the caller whether it owns completion (the
// implicit single-operation transaction pattern). An explicit begin on a
// goroutine that already has a transaction fails with AlreadyInTrans.
func (m *Monitor) GetTransaction(explicit bool) (tx *Transaction, isNew bool, err error) {
	gid := CurrentGoroutineID()
	m.mu.Lock()
	if existing := m.byGoroutine[gid]; existing != nil {
		m.mu.Unlock()
		if explicit {
			return nil, false, dberrors.AlreadyInTrans()
		}
		return existing, false, nil
	}
	m.mu.Unlock()

	if err := m.env.Locks.EnterTransaction(); err != nil {
		return nil, false, err
	}
	tx = newTransaction(m.env, m, explicit)

	m.mu.Lock()
	m.transactions[tx.ID] = tx
	m.byGoroutine[gid] = tx
	m.mu.Unlock()
	return tx, true, nil
}

// CreateQueryTransaction creates a read-only transaction owned by a
// cursor. It is not bound into the per-goroutine map, so other
// operations on the same goroutine run their own transactions while the
// cursor stays open.
func (m *Monitor) CreateQueryTransaction() (*Transaction, error) {
	if err := m.env.Locks.EnterTransaction(); err != nil {
		return nil, err
	}
	tx := newTransaction(m.env, m, false)
	tx.queryOnly = true
	m.mu.Lock()
	m.transactions[tx.ID] = tx
	m.mu.Unlock()
	return tx, nil
}

// CreateSystemTransaction creates a transaction for engine-internal work
// running under the exclusive engine lock (rebuild, drop sweeps). It
// bypasses the shared-lock slot the exclusive holder already owns.
func (m *Monitor) CreateSystemTransaction() *Transaction {
	tx := newTransaction(m.env, m, false)
	tx.system = true
	m.mu.Lock()
	m.transactions[tx.ID] = tx
	m.mu.Unlock()
	return tx
}

// releaseTransaction unregisters a finished transaction and frees its
// engine shared-lock slot.
func (m *Monitor) releaseTransaction(tx *Transaction) {
	m.mu.Lock()
	delete(m.transactions, tx.ID)
	if m.byGoroutine[tx.goroutineID] == tx {
		delete(m.byGoroutine, tx.goroutineID)
	}
	m.mu.Unlock()
	if !tx.system {
		m.env.Locks.ExitTransaction()
	}
}

// HasOpenTransactions reports whether any transaction is in flight,
// which classifies a commit from a foreign goroutine as WrongThread
// rather than NoTransaction.
func (m *Monitor) HasOpenTransactions() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions) > 0
}

// AbortAll force-rolls-back every in-flight transaction at engine close.
// Goroutine binding is bypassed: close is the engine's own cleanup path.
func (m *Monitor) AbortAll() {
	m.mu.Lock()
	open := make([]*Transaction, 0, len(m.transactions))
	for _, tx := range m.transactions {
		open = append(open, tx)
	}
	m.mu.Unlock()
	for _, tx := range open {
		tx.close(false)
		tx.state = StateAborted
	}
}
