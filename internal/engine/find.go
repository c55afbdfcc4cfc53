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
	"flintdb/internal/query"
	"flintdb/internal/storage"
	"flintdb/internal/txn"
)

// Query describes a find request against one collection.
type Query struct {
	Predicates []query.Predicate
	OrderBy    string
	OrderDesc  bool
	GroupBy    string
	Projection []string
	Limit      int
	Offset     int
}

// Cursor is a forward cursor of documents. It pins a snapshot for its
// whole lifetime: a concurrent committed write is invisible until a new
// cursor is opened.
type Cursor struct {
	engine *Engine
	tx     *txn.Transaction
	ownTx  bool
	snap   *txn.Snapshot
	idx    *index.Service
	data   *data.Service

	plan query.Plan
	def  *storage.IndexDefinition
	pk   *storage.IndexDefinition

	eqIdx   int
	node    *storage.IndexNode
	started bool
	skipped int
	yielded int
	limit   int
	offset  int

	doc    *bson.Document
	err    error
	closed bool
}

// Query plans and opens a cursor. Reading a collection that does not
// exist yields an empty cursor.
func (e *Engine) Query(collection string, q Query) (*Cursor, error) {
	if err := e.guardOpen(); err != nil {
		return nil, err
	}

	tx := e.monitor.GetGoroutineTransaction()
	ownTx := false
	if tx == nil {
		var err error
		if tx, err = e.monitor.CreateQueryTransaction(); err != nil {
			return nil, err
		}
		ownTx = true
	}
	snap, err := tx.CreateSnapshot(txn.ReadMode, collection, false)
	if err != nil {
		if ownTx {
			tx.Rollback()
		}
		return nil, err
	}

	c := &Cursor{
		engine: e,
		tx:     tx,
		ownTx:  ownTx,
		snap:   snap,
		idx:    index.NewService(snap, e.collation),
		data:   data.NewService(snap, e.settings.Compression),
		limit:  q.Limit,
		offset: q.Offset,
	}
	if !snap.HasCollection() {
		c.plan = query.Plan{IndexName: bson.IDField, Direction: 1, Range: query.FullRange()}
		c.closeWhenDone(true)
		return c, nil
	}

	col, err := snap.CollectionPage()
	if err != nil {
		c.Close()
		return nil, err
	}
	var infos []query.IndexInfo
	for _, def := range col.GetCollectionIndexes() {
		infos = append(infos, query.IndexInfo{
			Name:           def.Name,
			Expression:     def.Expression,
			Unique:         def.Unique,
			KeyCount:       def.KeyCount,
			UniqueKeyCount: def.UniqueKeyCount,
		})
	}
	c.plan = query.ChoosePlan(query.Input{
		Predicates: q.Predicates,
		OrderBy:    q.OrderBy,
		OrderDesc:  q.OrderDesc,
		GroupBy:    q.GroupBy,
		Projection: q.Projection,
		Indexes:    infos,
	})
	c.def = col.GetCollectionIndex(c.plan.IndexName)
	c.pk = col.PK()
	if c.def == nil || c.pk == nil {
		c.Close()
		return nil, dberrors.NoIndex(c.plan.IndexName)
	}
	return c, nil
}

// Plan returns the chosen access path.
func (c *Cursor) Plan() query.Plan { return c.plan }

// Err returns the first error hit during iteration.
func (c *Cursor) Err() error { return c.err }

// Doc returns the current document.
func (c *Cursor) Doc() *bson.Document { return c.doc }

func (c *Cursor) closeWhenDone(done bool) {
	if done {
		c.Close()
	}
}

// Close releases the cursor's snapshot (and its query transaction when
// the cursor opened one).
func (c *Cursor) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.ownTx {
		c.tx.Commit()
	}
}

// Next advances to the next matching document. It returns false at the
// end of the scan or on error (see Err), closing cursor-owned resources.
func (c *Cursor) Next() bool {
	if c.closed && c.doc == nil {
		return false
	}
	for {
		node, err := c.advance()
		if err != nil {
			c.err = err
			c.Close()
			return false
		}
		if node == nil {
			c.Close()
			return false
		}
		doc, err := c.load(node)
		if err != nil {
			c.err = err
			c.Close()
			return false
		}
		if doc == nil {
			continue
		}
		match := true
		for _, pred := range c.plan.Residual {
			if !query.Match(doc, pred, c.engine.collation) {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		if c.skipped < c.offset {
			c.skipped++
			continue
		}
		if c.limit > 0 && c.yielded >= c.limit {
			c.Close()
			return false
		}
		c.yielded++
		c.doc = doc
		return true
	}
}

// load resolves an index node to its document (hopping through the
// primary key for secondary indexes) or to a key-only projection.
func (c *Cursor) load(node *storage.IndexNode) (*bson.Document, error) {
	if c.plan.ProjectFromKeyOnly {
		return bson.NewDocument().Set(normalizedField(c.def.Expression), node.Key), nil
	}
	dataAddr := node.DataBlock()
	if c.def.Slot != c.pk.Slot {
		pkNode, err := c.idx.GetNode(node.DataBlock())
		if err != nil {
			return nil, err
		}
		dataAddr = pkNode.DataBlock()
	}
	raw, err := c.data.Read(dataAddr)
	if err != nil {
		return nil, err
	}
	return bson.DeserializeDocument(raw)
}

func normalizedField(expr string) string {
	if len(expr) > 2 && expr[:2] == "$." {
		return expr[2:]
	}
	return expr
}

// advance steps the underlying index scan.
func (c *Cursor) advance() (*storage.IndexNode, error) {
	if c.closed {
		return nil, nil
	}

	// point lookups: walk each equal-key run in turn
	if len(c.plan.Range.Eq) > 0 {
		for {
			if !c.started {
				if c.eqIdx >= len(c.plan.Range.Eq) {
					return nil, nil
				}
				node, err := c.idx.Find(c.def, c.plan.Range.Eq[c.eqIdx], false, 1)
				if err != nil {
					return nil, err
				}
				c.started = true
				if node == nil {
					c.started = false
					c.eqIdx++
					continue
				}
				c.node = node
				return node, nil
			}
			next, err := c.idx.Sibling(c.def, c.node, 1)
			if err != nil {
				return nil, err
			}
			if next == nil || bson.Compare(next.Key, c.plan.Range.Eq[c.eqIdx], c.engine.collation) != 0 {
				c.started = false
				c.eqIdx++
				continue
			}
			c.node = next
			return next, nil
		}
	}

	// range scan
	r := c.plan.Range
	if !c.started {
		c.started = true
		node, err := c.rangeStart()
		if err != nil || node == nil {
			return nil, err
		}
		c.node = node
	} else {
		next, err := c.idx.Sibling(c.def, c.node, c.plan.Direction)
		if err != nil || next == nil {
			return nil, err
		}
		c.node = next
	}

	// stop bound in scan direction
	if c.plan.Direction >= 0 {
		cmp := bson.Compare(c.node.Key, r.Max, c.engine.collation)
		if cmp > 0 || (cmp == 0 && !r.MaxInclusive && r.Max.Type() != bson.TypeMaxValue) {
			return nil, nil
		}
	} else {
		cmp := bson.Compare(c.node.Key, r.Min, c.engine.collation)
		if cmp < 0 || (cmp == 0 && !r.MinInclusive && r.Min.Type() != bson.TypeMinValue) {
			return nil, nil
		}
	}
	return c.node, nil
}

// rangeStart positions the scan at its first in-bounds node.
func (c *Cursor) rangeStart() (*storage.IndexNode, error) {
	r := c.plan.Range
	if c.plan.Direction >= 0 {
		if r.Min.Type() == bson.TypeMinValue {
			return c.idx.First(c.def)
		}
		node, err := c.idx.Find(c.def, r.Min, true, 1)
		if err != nil || node == nil {
			return nil, err
		}
		for !r.MinInclusive && node != nil &&
			bson.Compare(node.Key, r.Min, c.engine.collation) == 0 {
			if node, err = c.idx.Sibling(c.def, node, 1); err != nil {
				return nil, err
			}
		}
		return node, nil
	}
	if r.Max.Type() == bson.TypeMaxValue {
		return c.idx.Last(c.def)
	}
	node, err := c.idx.Find(c.def, r.Max, true, -1)
	if err != nil || node == nil {
		return nil, err
	}
	for !r.MaxInclusive && node != nil &&
		bson.Compare(node.Key, r.Max, c.engine.collation) == 0 {
		if node, err = c.idx.Sibling(c.def, node, -1); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// FindByID loads one document by primary key, or nil when absent.
func (e *Engine) FindByID(collection string, id bson.Value) (*bson.Document, error) {
	if err := e.guardOpen(); err != nil {
		return nil, err
	}
	c, err := e.Query(collection, Query{
		Predicates: []query.Predicate{{Expression: "$._id", Op: query.OpEq, Values: []bson.Value{id}}},
	})
	if err != nil {
		return nil, err
	}
	defer c.Close()
	if c.Next() {
		return c.Doc(), nil
	}
	return nil, c.Err()
}

// Count returns the number of live documents in a collection (zero for
// a missing collection).
func (e *Engine) Count(collection string) (int64, error) {
	if err := e.guardOpen(); err != nil {
		return 0, err
	}
	tx := e.monitor.GetGoroutineTransaction()
	ownTx := false
	if tx == nil {
		var err error
		if tx, err = e.monitor.CreateQueryTransaction(); err != nil {
			return 0, err
		}
		ownTx = true
	}
	if ownTx {
		defer tx.Commit()
	}
	snap, err := tx.CreateSnapshot(txn.ReadMode, collection, false)
	if err != nil {
		return 0, err
	}
	if !snap.HasCollection() {
		return 0, nil
	}
	col, err := snap.CollectionPage()
	if err != nil {
		return 0, err
	}
	pk := col.PK()
	if pk == nil {
		return 0, nil
	}
	return int64(pk.KeyCount), nil
}
