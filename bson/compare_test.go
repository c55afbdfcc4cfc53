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
)

func TestTypeRankOrder(t *testing.T) {
	c := DefaultCollation()
	// one representative per rank, in expected order
	ordered := []Value{
		MinValue,
		Null,
		Int32(1),
		String("a"),
		Doc(D("x", Int32(1))),
		Array(Int32(1)),
		Binary([]byte{1}),
		ObjectIDV(NewObjectID()),
		Guid(uuid.New()),
		Boolean(false),
		DateTime(time.Now()),
		MaxValue,
	}
	for i := 0; i < len(ordered); i++ {
		for j := 0; j < len(ordered); j++ {
			got := Compare(ordered[i], ordered[j], c)
			switch {
			case i < j:
				assert.Equal(t, -1, got, "%s should order before %s", ordered[i], ordered[j])
			case i > j:
				assert.Equal(t, 1, got, "%s should order after %s", ordered[i], ordered[j])
			default:
				assert.Equal(t, 0, got)
			}
		}
	}
}

func TestNumericPromotion(t *testing.T) {
	c := DefaultCollation()
	tests := []struct {
		name string
		a, b Value
		want int
	}{
		{"int32 vs int64 equal", Int32(42), Int64(42), 0},
		{"int32 vs double equal", Int32(3), Double(3.0), 0},
		{"double vs int64", Double(2.5), Int64(3), -1},
		{"int64 vs decimal", Int64(10), Decimal(decimal.RequireFromString("9.99")), 1},
		{"decimal precision", Decimal(decimal.RequireFromString("0.1")), Double(0.1), 0},
		{"negative", Int32(-5), Int64(-4), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b, c))
		})
	}
}

func TestStringCollation(t *testing.T) {
	ci := DefaultCollation() // en, case-insensitive
	assert.Equal(t, 0, Compare(String("Jane"), String("jane"), ci))
	assert.Equal(t, -1, Compare(String("jane"), String("janet"), ci))

	bin := BinaryCollation()
	assert.NotEqual(t, 0, Compare(String("Jane"), String("jane"), bin))
}

func TestArrayAndDocumentCompare(t *testing.T) {
	c := DefaultCollation()

	// shorter prefix orders first
	assert.Equal(t, -1, Compare(Array(Int32(1)), Array(Int32(1), Int32(2)), c))
	assert.Equal(t, 0, Compare(Array(Int32(1), Int32(2)), Array(Int32(1), Int32(2)), c))
	assert.Equal(t, 1, Compare(Array(Int32(2)), Array(Int32(1), Int32(9)), c))

	// documents compare field by field in insertion order
	a := D("x", Int32(1), "y", Int32(2))
	b := D("x", Int32(1), "y", Int32(3))
	assert.Equal(t, -1, Compare(Doc(a), Doc(b), c))
	assert.Equal(t, 0, Compare(Doc(a), Doc(a.Copy()), c))
}

func TestDateTimeTicksRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 123456700, time.UTC)
	v := DateTime(now)
	assert.Equal(t, now, v.TimeValue())

	earlier := DateTime(now.Add(-time.Hour))
	assert.Equal(t, -1, Compare(earlier, v, DefaultCollation()))
}

func TestCollationCodeRoundTrip(t *testing.T) {
	tests := []*Collation{
		DefaultCollation(),
		BinaryCollation(),
		NewCollation("de", false),
		NewCollation("tr", true),
	}
	for _, c := range tests {
		got := CollationFromCode(c.Code())
		assert.Equal(t, c.Culture, got.Culture)
		assert.Equal(t, c.IgnoreCase, got.IgnoreCase)
	}
}
