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

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"flintdb/bson"
)

func catalog() []IndexInfo {
	return []IndexInfo{
		{Name: "_id", Expression: "$._id", Unique: true, KeyCount: 1000, UniqueKeyCount: 1000},
		{Name: "name", Expression: "$.Name", KeyCount: 1000, UniqueKeyCount: 900},
		{Name: "age", Expression: "$.Age", KeyCount: 1000, UniqueKeyCount: 50},
	}
}

func TestChoosePlanPrefersEqualityIndex(t *testing.T) {
	plan := ChoosePlan(Input{
		Predicates: []Predicate{
			{Expression: "$.Name", Op: OpEq, Values: []bson.Value{bson.String("Jane")}},
			{Expression: "$.Age", Op: OpGt, Values: []bson.Value{bson.Int32(30)}},
		},
		Indexes: catalog(),
	})
	assert.Equal(t, "name", plan.IndexName)
	assert.Len(t, plan.Range.Eq, 1)
	// the open-range predicate stays residual
	assert.Len(t, plan.Residual, 1)
	assert.Equal(t, OpGt, plan.Residual[0].Op)
}

func TestChoosePlanFallsBackToPKScan(t *testing.T) {
	plan := ChoosePlan(Input{
		Predicates: []Predicate{
			{Expression: "$.City", Op: OpEq, Values: []bson.Value{bson.String("Berlin")}},
		},
		Indexes: catalog(),
	})
	assert.Equal(t, "_id", plan.IndexName)
	assert.Equal(t, 1, plan.Direction)
	// the whole predicate set is re-checked against documents
	assert.Len(t, plan.Residual, 1)
	assert.Equal(t, bson.TypeMinValue, plan.Range.Min.Type())
	assert.Equal(t, bson.TypeMaxValue, plan.Range.Max.Type())
}

func TestChoosePlanOrderByTieBreak(t *testing.T) {
	// equality on both indexed fields; the OrderBy match wins the tie
	indexes := []IndexInfo{
		{Name: "_id", Expression: "$._id", Unique: true, KeyCount: 100, UniqueKeyCount: 100},
		{Name: "a", Expression: "$.A", KeyCount: 100, UniqueKeyCount: 100},
		{Name: "b", Expression: "$.B", KeyCount: 100, UniqueKeyCount: 100},
	}
	plan := ChoosePlan(Input{
		Predicates: []Predicate{
			{Expression: "$.A", Op: OpEq, Values: []bson.Value{bson.Int32(1)}},
			{Expression: "$.B", Op: OpEq, Values: []bson.Value{bson.Int32(2)}},
		},
		OrderBy: "$.B",
		Indexes: indexes,
	})
	assert.Equal(t, "b", plan.IndexName)
	assert.True(t, plan.OrderReusesIndex)
}

func TestChoosePlanOrderByDescDirection(t *testing.T) {
	plan := ChoosePlan(Input{
		Predicates: []Predicate{
			{Expression: "$.Age", Op: OpBetween, Values: []bson.Value{bson.Int32(10), bson.Int32(20)}},
		},
		OrderBy:   "$.Age",
		OrderDesc: true,
		Indexes:   catalog(),
	})
	assert.Equal(t, "age", plan.IndexName)
	assert.True(t, plan.OrderReusesIndex)
	assert.Equal(t, -1, plan.Direction)
	assert.True(t, plan.Range.MinInclusive)
	assert.True(t, plan.Range.MaxInclusive)
}

func TestChoosePlanStartsWithStaysResidual(t *testing.T) {
	plan := ChoosePlan(Input{
		Predicates: []Predicate{
			{Expression: "$.Name", Op: OpStartsWith, Values: []bson.Value{bson.String("Ja")}},
		},
		Indexes: catalog(),
	})
	assert.Equal(t, "name", plan.IndexName)
	assert.Len(t, plan.Residual, 1, "prefix match is re-verified per document")
}

func TestMatchOperators(t *testing.T) {
	c := bson.DefaultCollation()
	doc := bson.D(
		"Name", bson.String("Jane"),
		"Age", bson.Int32(31),
		"Tags", bson.Array(bson.String("a"), bson.String("b")),
	)
	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"eq hit", Predicate{Expression: "$.Name", Op: OpEq, Values: []bson.Value{bson.String("jane")}}, true},
		{"eq miss", Predicate{Expression: "$.Name", Op: OpEq, Values: []bson.Value{bson.String("janet")}}, false},
		{"gt", Predicate{Expression: "$.Age", Op: OpGt, Values: []bson.Value{bson.Int32(30)}}, true},
		{"lte miss", Predicate{Expression: "$.Age", Op: OpLte, Values: []bson.Value{bson.Int32(30)}}, false},
		{"between", Predicate{Expression: "$.Age", Op: OpBetween, Values: []bson.Value{bson.Int32(30), bson.Int32(40)}}, true},
		{"in", Predicate{Expression: "$.Age", Op: OpIn, Values: []bson.Value{bson.Int32(1), bson.Int32(31)}}, true},
		{"startswith", Predicate{Expression: "$.Name", Op: OpStartsWith, Values: []bson.Value{bson.String("ja")}}, true},
		{"array contains", Predicate{Expression: "$.Tags", Op: OpEq, Values: []bson.Value{bson.String("b")}}, true},
		{"array miss", Predicate{Expression: "$.Tags", Op: OpEq, Values: []bson.Value{bson.String("z")}}, false},
		{"missing field", Predicate{Expression: "$.Nope", Op: OpEq, Values: []bson.Value{bson.Int32(1)}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(doc, tt.pred, c))
		})
	}
}
