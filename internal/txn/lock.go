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
Lock Service
============

Three lock planes. Waits on the engine lock and the collection locks are
bounded by the TIMEOUT pragma so a blocked caller gets a Timeout error
instead of a deadlock:

  - engine reader/writer lock: every transaction holds a shared slot for
    its lifetime; checkpoint and DDL-style operations take it exclusive,
    draining all transactions and snapshots.
  - per-collection write locks: serialize write transactions on one
    collection. Reads take no collection lock.
  - the log-append mutex lives in the disk service; it is a plain mutex
    with no wait bound.
*/
package txn

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	dberrors "flintdb/errors"
)

// maxSharedHolders bounds concurrent shared holders of the engine lock.
const maxSharedHolders = int64(1) << 20

// LockService issues the engine and per-collection locks.
type LockService struct {
	mu      sync.Mutex
	timeout time.Duration

	engine      *semaphore.Weighted
	collections map[string]*semaphore.Weighted
}

// NewLockService creates a lock service with the given wait bound.
func NewLockService(timeout time.Duration) *LockService {
	return &LockService{
		timeout:     timeout,
		engine:      semaphore.NewWeighted(maxSharedHolders),
		collections: make(map[string]*semaphore.Weighted),
	}
}

// SetTimeout updates the wait bound (TIMEOUT pragma changes).
func (l *LockService) SetTimeout(timeout time.Duration) {
	l.mu.Lock()
	l.timeout = timeout
	l.mu.Unlock()
}

func (l *LockService) waitBound() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timeout
}

func (l *LockService) acquire(sem *semaphore.Weighted, weight int64, what string) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.waitBound())
	defer cancel()
	if err := sem.Acquire(ctx, weight); err != nil {
		return dberrors.Timeout(what)
	}
	return nil
}

// EnterTransaction takes a shared slot on the engine lock.
func (l *LockService) EnterTransaction() error {
	return l.acquire(l.engine, 1, "engine shared lock")
}

// ExitTransaction releases a shared slot.
func (l *LockService) ExitTransaction() {
	l.engine.Release(1)
}

// EnterExclusive drains every transaction and takes the engine lock
// exclusively (checkpoint, DDL coordination, close).
func (l *LockService) EnterExclusive() error {
	return l.acquire(l.engine, maxSharedHolders, "engine exclusive lock")
}

// TryEnterExclusive takes the engine lock exclusively only when no
// transaction holds it (the automatic checkpoint path, which never
// blocks commits behind draining readers).
func (l *LockService) TryEnterExclusive() bool {
	return l.engine.TryAcquire(maxSharedHolders)
}

// ExitExclusive releases the exclusive hold.
func (l *LockService) ExitExclusive() {
	l.engine.Release(maxSharedHolders)
}

// EnterCollection takes the write lock of one collection.
func (l *LockService) EnterCollection(name string) error {
	l.mu.Lock()
	sem, ok := l.collections[name]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.collections[name] = sem
	}
	l.mu.Unlock()
	return l.acquire(sem, 1, "collection write lock: "+name)
}

// ExitCollection releases a collection write lock.
func (l *LockService) ExitCollection(name string) {
	l.mu.Lock()
	sem := l.collections[name]
	l.mu.Unlock()
	if sem != nil {
		sem.Release(1)
	}
}
