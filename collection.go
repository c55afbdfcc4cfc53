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

package flintdb

import (
	"flintdb/bson"
	"flintdb/internal/engine"
	"flintdb/internal/query"
)

// Query describes a find request: predicates, ordering, projection and
// paging. The access-path chooser picks one index (or a primary-key
// scan) to serve it.
type Query = engine.Query

// Cursor is a forward cursor of documents. It pins a consistent
// snapshot for its whole lifetime; always Close it.
type Cursor = engine.Cursor

// Predicate is one <field> <op> <literal> condition.
type Predicate = query.Predicate

// Op is a predicate operator.
type Op = query.Op

// Predicate operators.
const (
	OpEq         = query.OpEq
	OpGt         = query.OpGt
	OpGte        = query.OpGte
	OpLt         = query.OpLt
	OpLte        = query.OpLte
	OpBetween    = query.OpBetween
	OpIn         = query.OpIn
	OpStartsWith = query.OpStartsWith
)

// Predicate constructors.

func Eq(field string, v bson.Value) Predicate {
	return Predicate{Expression: field, Op: query.OpEq, Values: []bson.Value{v}}
}

func Gt(field string, v bson.Value) Predicate {
	return Predicate{Expression: field, Op: query.OpGt, Values: []bson.Value{v}}
}

func Gte(field string, v bson.Value) Predicate {
	return Predicate{Expression: field, Op: query.OpGte, Values: []bson.Value{v}}
}

func Lt(field string, v bson.Value) Predicate {
	return Predicate{Expression: field, Op: query.OpLt, Values: []bson.Value{v}}
}

func Lte(field string, v bson.Value) Predicate {
	return Predicate{Expression: field, Op: query.OpLte, Values: []bson.Value{v}}
}

func Between(field string, lo, hi bson.Value) Predicate {
	return Predicate{Expression: field, Op: query.OpBetween, Values: []bson.Value{lo, hi}}
}

func In(field string, vs ...bson.Value) Predicate {
	return Predicate{Expression: field, Op: query.OpIn, Values: vs}
}

func StartsWith(field string, prefix string) Predicate {
	return Predicate{Expression: field, Op: query.OpStartsWith, Values: []bson.Value{bson.String(prefix)}}
}

// Collection is a handle on one named collection.
type Collection struct {
	db   *Database
	name string
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Insert stores documents, generating missing _id values with the
// database's id policy. Returns the number inserted.
func (c *Collection) Insert(docs ...*bson.Document) (int, error) {
	return c.db.engine.Insert(c.name, docs, c.db.engine.Settings().AutoID)
}

// InsertWithAutoID stores documents under an explicit id policy.
func (c *Collection) InsertWithAutoID(autoID AutoID, docs ...*bson.Document) (int, error) {
	return c.db.engine.Insert(c.name, docs, autoID)
}

// Update rewrites documents matched by _id. Returns the number updated.
func (c *Collection) Update(docs ...*bson.Document) (int, error) {
	return c.db.engine.Update(c.name, docs)
}

// Upsert inserts documents whose _id is absent and updates the rest.
func (c *Collection) Upsert(docs ...*bson.Document) (inserted, updated int, err error) {
	return c.db.engine.Upsert(c.name, docs, c.db.engine.Settings().AutoID)
}

// Delete removes documents by id. Returns the number deleted.
func (c *Collection) Delete(ids ...bson.Value) (int, error) {
	return c.db.engine.Delete(c.name, ids)
}

// DeleteMany removes every document matching the query. Returns the
// number deleted.
func (c *Collection) DeleteMany(q Query) (int, error) {
	cur, err := c.Find(q)
	if err != nil {
		return 0, err
	}
	var ids []bson.Value
	for cur.Next() {
		ids = append(ids, cur.Doc().ID())
	}
	if err := cur.Err(); err != nil {
		return 0, err
	}
	return c.db.engine.Delete(c.name, ids)
}

// FindByID loads one document by primary key, or nil when absent.
func (c *Collection) FindByID(id bson.Value) (*bson.Document, error) {
	return c.db.engine.FindByID(c.name, id)
}

// Find plans and opens a cursor over the collection.
func (c *Collection) Find(q Query) (*Cursor, error) {
	return c.db.engine.Query(c.name, q)
}

// FindAll materializes every match of a query.
func (c *Collection) FindAll(q Query) ([]*bson.Document, error) {
	cur, err := c.Find(q)
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	var out []*bson.Document
	for cur.Next() {
		out = append(out, cur.Doc())
	}
	return out, cur.Err()
}

// Count returns the number of live documents (zero for a missing
// collection).
func (c *Collection) Count() (int64, error) {
	return c.db.engine.Count(c.name)
}

// EnsureIndex creates a named index over an expression like "$.Name"
// (an empty expression indexes the field named like the index). Returns
// whether it was created; re-ensuring an identical index is a no-op.
func (c *Collection) EnsureIndex(name, expression string, unique bool) (bool, error) {
	return c.db.engine.EnsureIndex(c.name, name, expression, unique)
}

// DropIndex removes a named index. The "_id" index cannot be dropped.
func (c *Collection) DropIndex(name string) (bool, error) {
	return c.db.engine.DropIndex(c.name, name)
}
