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
Package txn implements transactions and per-collection snapshots: the
monitor that binds transactions to goroutines, the lock service, the
safepoint spill that bounds transaction memory, and the snapshot page
resolution chain (transaction-local pages, the transaction's own spilled
log pages, the WAL index at the snapshot's read version, then the data
area).
*/
package txn

import (
	"sync"

	"flintdb/bson"
	"flintdb/internal/disk"
	"flintdb/internal/storage"
	"flintdb/internal/wal"
)

// Env bundles the engine-owned services a transaction works against.
type Env struct {
	Disk *disk.Service
	Wal  *wal.Index

	// Header is the one shared in-memory page 0; HeaderMu guards it and
	// the page-allocation state it carries.
	Header   *storage.HeaderPage
	HeaderMu *sync.Mutex

	Locks     *LockService
	Collation *bson.Collation

	// MaxTransactionSize is the dirty-page budget in pages.
	MaxTransactionSize int
}
