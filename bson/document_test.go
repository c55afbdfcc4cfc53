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
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentInsertionOrder(t *testing.T) {
	doc := NewDocument().
		Set("z", Int32(1)).
		Set("a", Int32(2)).
		Set("m", Int32(3))
	assert.Equal(t, []string{"z", "a", "m"}, doc.Keys())

	// replacing keeps the original position
	doc.Set("a", Int32(9))
	assert.Equal(t, []string{"z", "a", "m"}, doc.Keys())
	assert.Equal(t, int32(9), doc.Get("a").Int32Value())

	assert.True(t, doc.Remove("z"))
	assert.Equal(t, []string{"a", "m"}, doc.Keys())
	assert.False(t, doc.Remove("z"))
}

func TestDocumentSerializeRoundTrip(t *testing.T) {
	when := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	id := uuid.New()
	oid := NewObjectID()

	doc := D(
		"_id", Int32(7),
		"name", String("Ada Lovelace"),
		"score", Double(99.25),
		"big", Int64(1<<40),
		"price", Decimal(decimal.RequireFromString("19.90")),
		"active", Boolean(true),
		"joined", DateTime(when),
		"tags", Array(String("a"), String("b"), Int32(3)),
		"address", Doc(D("city", String("London"), "zip", String("N1"))),
		"blob", Binary([]byte{0, 1, 2, 254, 255}),
		"ref", ObjectIDV(oid),
		"ext", Guid(id),
		"nothing", Null,
	)

	raw := SerializeDocument(doc)
	require.Equal(t, DocumentSize(doc), len(raw))

	got, err := DeserializeDocument(raw)
	require.NoError(t, err)
	require.Equal(t, doc.Keys(), got.Keys())
	assert.Equal(t, 0, Compare(Doc(doc), Doc(got), BinaryCollation()))
	assert.Equal(t, "Ada Lovelace", got.Get("name").StringValue())
	assert.Equal(t, when, got.Get("joined").TimeValue())
	assert.Equal(t, oid, got.Get("ref").ObjectIDValue())
	assert.Equal(t, id, got.Get("ext").GuidValue())
	assert.True(t, got.Get("nothing").IsNull())
}

func TestIndexKeyRoundTrip(t *testing.T) {
	keys := []Value{
		MinValue, Null, Int32(-1), Int64(1 << 50), Double(3.14),
		String("hello"), Boolean(true), MaxValue,
		Array(Int32(1), String("x")),
	}
	for _, key := range keys {
		raw := SerializeIndexKey(key)
		require.Equal(t, IndexKeySize(key), len(raw))
		got, n, err := DeserializeIndexKey(raw)
		require.NoError(t, err)
		assert.Equal(t, len(raw), n)
		assert.Equal(t, 0, Compare(key, got, BinaryCollation()), "key %s", key)
	}
}

func TestGetPath(t *testing.T) {
	doc := D(
		"name", String("x"),
		"address", Doc(D("city", String("Berlin"))),
	)
	assert.Equal(t, "Berlin", doc.GetPath("address.city").StringValue())
	assert.Equal(t, "Berlin", doc.GetPath("$.address.city").StringValue())
	assert.True(t, doc.GetPath("address.street").IsNull())
	assert.True(t, doc.GetPath("name.sub").IsNull())
}

func TestDeserializeTruncated(t *testing.T) {
	raw := SerializeDocument(D("a", String("hello world")))
	for _, cut := range []int{3, 7, len(raw) - 1} {
		_, err := DeserializeDocument(raw[:cut])
		assert.Error(t, err, "cut at %d", cut)
	}
}
