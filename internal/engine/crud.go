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
	"github.com/google/uuid"

	"flintdb/bson"
	dberrors "flintdb/errors"
	"flintdb/internal/data"
	"flintdb/internal/index"
	"flintdb/internal/storage"
	"flintdb/internal/txn"
)

// Insert stores documents, generating missing _id values per the id
// policy. Returns the number inserted.
func (e *Engine) Insert(collection string, docs []*bson.Document, autoID AutoID) (int, error) {
	if err := e.guardWrite(); err != nil {
		return 0, err
	}
	if err := validName(collection); err != nil {
		return 0, err
	}
	count := 0
	err := e.autoTransaction(collection, txn.WriteMode, true, func(snap *txn.Snapshot) error {
		idx := index.NewService(snap, e.collation)
		dataSvc := data.NewService(snap, e.settings.Compression)
		if err := e.ensurePK(snap, idx); err != nil {
			return err
		}
		for _, doc := range docs {
			if err := e.assignID(collection, snap, idx, doc, autoID); err != nil {
				return err
			}
			if err := e.insertDocument(snap, idx, dataSvc, doc); err != nil {
				return err
			}
			count++
			if err := snap.Transaction().Safepoint(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return count, err
	}
	return count, nil
}

// ensurePK plants the primary-key index when the collection page is
// brand new.
func (e *Engine) ensurePK(snap *txn.Snapshot, idx *index.Service) error {
	col, err := snap.CollectionPage()
	if err != nil {
		return err
	}
	if col.PK() != nil {
		return nil
	}
	_, err = idx.CreateIndex(bson.IDField, "$._id", true)
	return err
}

// assignID fills a missing _id per the policy and validates it.
func (e *Engine) assignID(collection string, snap *txn.Snapshot, idx *index.Service, doc *bson.Document, autoID AutoID) error {
	id := doc.ID()
	if id.IsNull() || !doc.Has(bson.IDField) {
		switch autoID {
		case AutoIDInt32:
			seq, err := e.nextSequence(collection, snap, idx)
			if err != nil {
				return err
			}
			doc.Set(bson.IDField, bson.Int32(int32(seq)))
		case AutoIDInt64:
			seq, err := e.nextSequence(collection, snap, idx)
			if err != nil {
				return err
			}
			doc.Set(bson.IDField, bson.Int64(seq))
		case AutoIDGuid:
			doc.Set(bson.IDField, bson.Guid(uuid.New()))
		case AutoIDObjectID:
			doc.Set(bson.IDField, bson.ObjectIDV(bson.NewObjectID()))
		default:
			return dberrors.InvalidName(bson.IDField).
				WithDetail("document has no _id and the id policy is None")
		}
		id = doc.ID()
	}
	if id.IsNull() || id.IsMinOrMax() {
		return dberrors.InvalidName(bson.IDField).
			WithDetail("_id cannot be null, minvalue or maxvalue")
	}
	return nil
}

// nextSequence returns the next auto-increment id, seeding the counter
// from the largest existing _id.
func (e *Engine) nextSequence(collection string, snap *txn.Snapshot, idx *index.Service) (int64, error) {
	e.seqMu.Lock()
	defer e.seqMu.Unlock()
	last, ok := e.sequences[collection]
	if !ok {
		col, err := snap.CollectionPage()
		if err != nil {
			return 0, err
		}
		if pk := col.PK(); pk != nil {
			node, err := idx.Last(pk)
			if err != nil {
				return 0, err
			}
			if node != nil && node.Key.IsNumeric() {
				last = node.Key.DecimalValue().IntPart()
			}
		}
	}
	last++
	e.sequences[collection] = last
	return last, nil
}

// insertDocument writes the record and every index entry.
func (e *Engine) insertDocument(snap *txn.Snapshot, idx *index.Service, dataSvc *data.Service, doc *bson.Document) error {
	raw := bson.SerializeDocument(doc)
	if len(raw) > storage.MaxDocumentSize {
		return dberrors.DocumentTooLarge(len(raw))
	}
	addr, err := dataSvc.Insert(raw)
	if err != nil {
		return err
	}

	col, err := snap.CollectionPage()
	if err != nil {
		return err
	}
	pk := col.PK()
	pkNode, _, err := idx.AddNode(pk, doc.ID(), addr, nil)
	if err != nil {
		// the record never became reachable; reclaim its blocks so a
		// refused insert leaves no orphan behind
		dataSvc.Delete(addr)
		return err
	}

	last := pkNode
	for _, def := range col.GetCollectionIndexes() {
		if def.Slot == pk.Slot {
			continue
		}
		for _, key := range indexKeys(doc, def.Expression) {
			node, created, err := idx.AddNode(def, key, pkNode.Position, last)
			if err != nil {
				return err
			}
			if created {
				last = node
			}
		}
	}
	return nil
}

// indexKeys evaluates an index expression against a document. An array
// value emits one key per distinct element (multi-key index).
func indexKeys(doc *bson.Document, expression string) []bson.Value {
	v := doc.GetPath(expression)
	if v.Type() != bson.TypeArray {
		return []bson.Value{v}
	}
	elements := v.ArrayValue()
	out := make([]bson.Value, 0, len(elements))
	for _, e := range elements {
		dup := false
		for _, seen := range out {
			if bson.Compare(e, seen, bson.BinaryCollation()) == 0 {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return []bson.Value{bson.Null}
	}
	return out
}

// Update rewrites documents matched by _id. Returns the number updated.
func (e *Engine) Update(collection string, docs []*bson.Document) (int, error) {
	if err := e.guardWrite(); err != nil {
		return 0, err
	}
	e.headerMu.Lock()
	_, exists := e.header.GetCollectionPageID(collection)
	e.headerMu.Unlock()
	if !exists {
		return 0, dberrors.NoCollection(collection)
	}

	count := 0
	err := e.autoTransaction(collection, txn.WriteMode, false, func(snap *txn.Snapshot) error {
		idx := index.NewService(snap, e.collation)
		dataSvc := data.NewService(snap, e.settings.Compression)
		for _, doc := range docs {
			updated, err := e.updateDocument(snap, idx, dataSvc, doc)
			if err != nil {
				return err
			}
			if updated {
				count++
			}
			if err := snap.Transaction().Safepoint(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return count, err
	}
	return count, nil
}

func (e *Engine) updateDocument(snap *txn.Snapshot, idx *index.Service, dataSvc *data.Service, doc *bson.Document) (bool, error) {
	id := doc.ID()
	if id.IsNull() || id.IsMinOrMax() {
		return false, dberrors.InvalidName(bson.IDField).
			WithDetail("update requires a valid _id")
	}
	col, err := snap.CollectionPage()
	if err != nil {
		return false, err
	}
	pk := col.PK()
	pkNode, err := idx.Find(pk, id, false, 1)
	if err != nil || pkNode == nil {
		return false, err
	}
	pkAddr := pkNode.Position

	raw := bson.SerializeDocument(doc)
	newAddr, err := dataSvc.Update(pkNode.DataBlock(), raw)
	if err != nil {
		return false, err
	}

	// drop and re-emit the secondary entries; the _id node survives
	if err := idx.DeleteDocumentNodes(pkAddr, true); err != nil {
		return false, err
	}
	pkNode, err = idx.GetNode(pkAddr)
	if err != nil {
		return false, err
	}
	if !pkNode.DataBlock().Equals(newAddr) {
		page, err := snap.GetIndexPage(pkAddr.PageID, true)
		if err != nil {
			return false, err
		}
		writable, err := page.GetIndexNode(pkAddr.Index)
		if err != nil {
			return false, err
		}
		writable.SetDataBlock(newAddr)
		pkNode = writable
	}

	last := pkNode
	for _, def := range col.GetCollectionIndexes() {
		if def.Slot == pk.Slot {
			continue
		}
		for _, key := range indexKeys(doc, def.Expression) {
			node, created, err := idx.AddNode(def, key, pkAddr, last)
			if err != nil {
				return false, err
			}
			if created {
				last = node
			}
		}
	}
	return true, nil
}

// Upsert inserts documents whose _id is absent and updates the rest.
func (e *Engine) Upsert(collection string, docs []*bson.Document, autoID AutoID) (inserted, updated int, err error) {
	if err := e.guardWrite(); err != nil {
		return 0, 0, err
	}
	if err := validName(collection); err != nil {
		return 0, 0, err
	}
	err = e.autoTransaction(collection, txn.WriteMode, true, func(snap *txn.Snapshot) error {
		idx := index.NewService(snap, e.collation)
		dataSvc := data.NewService(snap, e.settings.Compression)
		if err := e.ensurePK(snap, idx); err != nil {
			return err
		}
		for _, doc := range docs {
			done := false
			if doc.Has(bson.IDField) && !doc.ID().IsNull() {
				ok, err := e.updateDocument(snap, idx, dataSvc, doc)
				if err != nil {
					return err
				}
				if ok {
					updated++
					done = true
				}
			}
			if !done {
				if err := e.assignID(collection, snap, idx, doc, autoID); err != nil {
					return err
				}
				if err := e.insertDocument(snap, idx, dataSvc, doc); err != nil {
					return err
				}
				inserted++
			}
			if err := snap.Transaction().Safepoint(); err != nil {
				return err
			}
		}
		return nil
	})
	return inserted, updated, err
}

// Delete removes documents by _id. Returns the number deleted. A missing
// collection fails with NoCollection.
func (e *Engine) Delete(collection string, ids []bson.Value) (int, error) {
	if err := e.guardWrite(); err != nil {
		return 0, err
	}
	e.headerMu.Lock()
	_, exists := e.header.GetCollectionPageID(collection)
	e.headerMu.Unlock()
	if !exists {
		return 0, dberrors.NoCollection(collection)
	}

	count := 0
	err := e.autoTransaction(collection, txn.WriteMode, false, func(snap *txn.Snapshot) error {
		idx := index.NewService(snap, e.collation)
		dataSvc := data.NewService(snap, e.settings.Compression)
		col, err := snap.CollectionPage()
		if err != nil {
			return err
		}
		pk := col.PK()
		for _, id := range ids {
			node, err := idx.Find(pk, id, false, 1)
			if err != nil {
				return err
			}
			if node == nil {
				continue
			}
			if err := dataSvc.Delete(node.DataBlock()); err != nil {
				return err
			}
			if err := idx.DeleteDocumentNodes(node.Position, false); err != nil {
				return err
			}
			count++
			if err := snap.Transaction().Safepoint(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return count, err
	}
	return count, nil
}
