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
	"flintdb/bson"
	dberrors "flintdb/errors"
	"flintdb/internal/data"
	"flintdb/internal/index"
	"flintdb/internal/storage"
	"flintdb/internal/txn"
)

// EnsureIndex creates a named index when it does not exist yet,
// backfilling it from the primary key. Returns whether it was created;
// re-ensuring an identical index is a no-op.
func (e *Engine) EnsureIndex(collection, name, expression string, unique bool) (bool, error) {
	if err := e.guardWrite(); err != nil {
		return false, err
	}
	if err := validName(collection); err != nil {
		return false, err
	}
	if err := validName(name); err != nil {
		return false, err
	}
	if expression == "" {
		expression = "$." + name
	}

	created := false
	err := e.autoTransaction(collection, txn.WriteMode, true, func(snap *txn.Snapshot) error {
		idx := index.NewService(snap, e.collation)
		dataSvc := data.NewService(snap, e.settings.Compression)
		if err := e.ensurePK(snap, idx); err != nil {
			return err
		}
		col, err := snap.CollectionPage()
		if err != nil {
			return err
		}
		if existing := col.GetCollectionIndex(name); existing != nil {
			if existing.Expression == expression && existing.Unique == unique {
				return nil
			}
			return dberrors.IndexAlreadyExists(name)
		}

		def, err := idx.CreateIndex(name, expression, unique)
		if err != nil {
			return err
		}
		created = true
		return e.backfillIndex(snap, idx, dataSvc, def)
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// backfillIndex walks the primary key and emits the new index's entries
// for every live document. Node views never survive a safepoint, so the
// walk carries addresses across iterations.
func (e *Engine) backfillIndex(snap *txn.Snapshot, idx *index.Service, dataSvc *data.Service, def *storage.IndexDefinition) error {
	col, err := snap.CollectionPage()
	if err != nil {
		return err
	}
	pk := col.PK()

	first, err := idx.First(pk)
	if err != nil || first == nil {
		return err
	}
	cur := first.Position
	for !cur.IsEmpty() {
		pkNode, err := idx.GetNode(cur)
		if err != nil {
			return err
		}
		raw, err := dataSvc.Read(pkNode.DataBlock())
		if err != nil {
			return err
		}
		doc, err := bson.DeserializeDocument(raw)
		if err != nil {
			return err
		}

		// append behind the last node of the document chain
		last := pkNode
		for !last.NextNode().IsEmpty() {
			if last, err = idx.GetNode(last.NextNode()); err != nil {
				return err
			}
		}
		for _, key := range indexKeys(doc, def.Expression) {
			node, created, err := idx.AddNode(def, key, cur, last)
			if err != nil {
				return err
			}
			if created {
				last = node
			}
		}

		next, err := idx.Sibling(pk, pkNode, 1)
		if err != nil {
			return err
		}
		if next == nil {
			break
		}
		cur = next.Position
		if err := snap.Transaction().Safepoint(); err != nil {
			return err
		}
	}
	return nil
}

// DropIndex removes a named index. The primary key cannot be dropped.
func (e *Engine) DropIndex(collection, name string) (bool, error) {
	if err := e.guardWrite(); err != nil {
		return false, err
	}
	if name == bson.IDField {
		return false, dberrors.CannotDropPrimaryKey()
	}
	e.headerMu.Lock()
	_, exists := e.header.GetCollectionPageID(collection)
	e.headerMu.Unlock()
	if !exists {
		return false, nil
	}

	dropped := false
	err := e.autoTransaction(collection, txn.WriteMode, false, func(snap *txn.Snapshot) error {
		col, err := snap.CollectionPage()
		if err != nil {
			return err
		}
		if col.GetCollectionIndex(name) == nil {
			return nil
		}
		idx := index.NewService(snap, e.collation)
		if err := idx.DropIndex(name); err != nil {
			return err
		}
		dropped = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return dropped, nil
}

// DropCollection removes a collection and frees every page it owns.
func (e *Engine) DropCollection(name string) (bool, error) {
	if err := e.guardWrite(); err != nil {
		return false, err
	}
	e.headerMu.Lock()
	pageID, exists := e.header.GetCollectionPageID(name)
	e.headerMu.Unlock()
	if !exists {
		return false, nil
	}

	err := e.autoTransaction(name, txn.WriteMode, false, func(snap *txn.Snapshot) error {
		idx := index.NewService(snap, e.collation)
		col, err := snap.CollectionPage()
		if err != nil {
			return err
		}

		pages := map[uint32]struct{}{}
		for _, def := range col.GetCollectionIndexes() {
			pages[def.Head.PageID] = struct{}{}
			pages[def.Tail.PageID] = struct{}{}
			node, err := idx.GetNode(def.Head)
			if err != nil {
				return err
			}
			for {
				next := node.Next(0)
				if next.IsEmpty() {
					break
				}
				pages[next.PageID] = struct{}{}
				if next.Equals(def.Tail) {
					break
				}
				if node, err = idx.GetNode(next); err != nil {
					return err
				}
			}
		}
		for slot := 0; slot < storage.PageFreeListSlots; slot++ {
			cur := col.FreeDataPageList[slot]
			for cur != storage.MaxPageID {
				page, err := snap.GetDataPage(cur, false)
				if err != nil {
					return err
				}
				pages[cur] = struct{}{}
				cur = page.NextPageID()
			}
		}

		for id := range pages {
			if err := snap.DeletePage(id); err != nil {
				return err
			}
		}
		if err := snap.DeletePage(pageID); err != nil {
			return err
		}

		tx := snap.Transaction()
		e.headerMu.Lock()
		e.header.DeleteCollection(name)
		e.headerMu.Unlock()
		tx.OnRollbackHeader(func() {
			e.header.InsertCollection(name, pageID)
		})
		snap.MarkDropped()

		e.seqMu.Lock()
		delete(e.sequences, name)
		e.seqMu.Unlock()
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// RenameCollection renames a collection in the header directory.
func (e *Engine) RenameCollection(oldName, newName string) error {
	if err := e.guardWrite(); err != nil {
		return err
	}
	if err := validName(newName); err != nil {
		return err
	}
	e.headerMu.Lock()
	_, exists := e.header.GetCollectionPageID(oldName)
	_, taken := e.header.GetCollectionPageID(newName)
	e.headerMu.Unlock()
	if !exists {
		return dberrors.NoCollection(oldName)
	}
	if taken {
		return dberrors.InvalidName(newName).WithDetail("a collection with this name already exists")
	}

	return e.autoTransaction(oldName, txn.WriteMode, false, func(snap *txn.Snapshot) error {
		tx := snap.Transaction()
		e.headerMu.Lock()
		err := e.header.RenameCollection(oldName, newName)
		e.headerMu.Unlock()
		if err != nil {
			return err
		}
		tx.OnRollbackHeader(func() {
			e.header.RenameCollection(newName, oldName)
		})
		e.seqMu.Lock()
		if seq, ok := e.sequences[oldName]; ok {
			delete(e.sequences, oldName)
			e.sequences[newName] = seq
		}
		e.seqMu.Unlock()
		return nil
	})
}
