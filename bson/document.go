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

package bson

import (
	"strings"
)

// IDField is the reserved primary-key field name.
const IDField = "_id"

// Document is a schema-less set of named values with insertion order
// preserved. Field comparison order and serialization order both follow
// insertion order.
type Document struct {
	keys   []string
	values map[string]Value
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{values: make(map[string]Value)}
}

// D builds a document from alternating name/value pairs for test and
// embedder convenience: D("x", Int32(1), "y", String("a")).
func D(pairs ...any) *Document {
	doc := NewDocument()
	for i := 0; i+1 < len(pairs); i += 2 {
		name := pairs[i].(string)
		doc.Set(name, pairs[i+1].(Value))
	}
	return doc
}

// Set inserts or replaces a field. Insertion order is kept for new fields.
func (d *Document) Set(name string, v Value) *Document {
	if _, ok := d.values[name]; !ok {
		d.keys = append(d.keys, name)
	}
	d.values[name] = v
	return d
}

// Get returns the field value, or Null when absent.
func (d *Document) Get(name string) Value {
	if v, ok := d.values[name]; ok {
		return v
	}
	return Null
}

// Has reports whether the field exists.
func (d *Document) Has(name string) bool {
	_, ok := d.values[name]
	return ok
}

// Remove deletes a field, reporting whether it existed.
func (d *Document) Remove(name string) bool {
	if _, ok := d.values[name]; !ok {
		return false
	}
	delete(d.values, name)
	for i, k := range d.keys {
		if k == name {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the field names in insertion order.
func (d *Document) Keys() []string {
	return d.keys
}

// Len returns the number of fields.
func (d *Document) Len() int {
	return len(d.keys)
}

// ID returns the primary-key value, or Null when unset.
func (d *Document) ID() Value {
	return d.Get(IDField)
}

// GetPath resolves a dotted field path ("address.city"). A leading "$."
// prefix, as stored in index expressions, is accepted and stripped.
// Traversal through a missing field or a non-document yields Null.
func (d *Document) GetPath(path string) Value {
	path = strings.TrimPrefix(path, "$.")
	if path == "$" || path == "" {
		return Doc(d)
	}
	cur := Doc(d)
	for _, part := range strings.Split(path, ".") {
		if cur.Type() != TypeDocument {
			return Null
		}
		cur = cur.DocumentValue().Get(part)
	}
	return cur
}

// Copy returns a shallow copy with its own key order and value map.
func (d *Document) Copy() *Document {
	out := &Document{
		keys:   append([]string(nil), d.keys...),
		values: make(map[string]Value, len(d.values)),
	}
	for k, v := range d.values {
		out.values[k] = v
	}
	return out
}

// String renders a debug representation.
func (d *Document) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte(':')
		sb.WriteString(d.values[k].String())
	}
	sb.WriteByte('}')
	return sb.String()
}
