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
Package query chooses the access path for a predicate set.

Cost Model:
===========

For each predicate of the form <indexed_expression> <op> <literal> over
an index with keyCount keys and uniqueKeyCount distinct keys:

	| op          | estimated cost                 |
	|-------------|--------------------------------|
	| =           | keyCount / uniqueKeyCount      |
	| IN (n)      | n * keyCount / uniqueKeyCount  |
	| BETWEEN     | keyCount / 4                   |
	| STARTS_WITH | keyCount / 10                  |
	| > >= < <=   | keyCount / 2                   |
	| full scan   | pk keyCount + 1                |

The cheapest candidate wins. Ties prefer the index whose expression
matches the OrderBy (so the caller skips sorting), then the GroupBy,
then the sole projected field. With no usable index the plan is a
primary-key full scan in id order.
*/
package query

import (
	"strings"

	"flintdb/bson"
)

// Op is a predicate operator.
type Op int

const (
	OpEq Op = iota
	OpGt
	OpGte
	OpLt
	OpLte
	OpBetween
	OpIn
	OpStartsWith
)

// String returns the operator symbol.
func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpBetween:
		return "BETWEEN"
	case OpIn:
		return "IN"
	case OpStartsWith:
		return "STARTS_WITH"
	default:
		return "?"
	}
}

// Predicate is one <expression> <op> <literal(s)> condition.
type Predicate struct {
	Expression string
	Op         Op
	Values     []bson.Value
}

// KeyRange bounds an index scan. Eq lists explicit point keys (=, IN);
// otherwise Min/Max bound a range scan.
type KeyRange struct {
	Eq []bson.Value

	Min          bson.Value
	Max          bson.Value
	MinInclusive bool
	MaxInclusive bool
}

// FullRange scans every key.
func FullRange() KeyRange {
	return KeyRange{Min: bson.MinValue, Max: bson.MaxValue}
}

// IndexInfo is the catalog input to the chooser.
type IndexInfo struct {
	Name           string
	Expression     string
	Unique         bool
	KeyCount       uint32
	UniqueKeyCount uint32
}

// Plan is the chosen access path, consumed by query execution.
type Plan struct {
	IndexName string
	// Direction is +1 for ascending, -1 for descending scans.
	Direction int
	Range     KeyRange
	// Residual predicates re-checked against each loaded document.
	Residual []Predicate
	// OrderReusesIndex is set when the scan order satisfies the OrderBy.
	OrderReusesIndex bool
	// ProjectFromKeyOnly is set when the projection's only field is the
	// indexed expression, so the executor can skip document loads.
	ProjectFromKeyOnly bool

	// Cost is the estimate that won (kept for explain-style output).
	Cost float64
}

// Input gathers everything the chooser looks at.
type Input struct {
	Predicates []Predicate
	OrderBy    string // indexed expression, "" when unordered
	OrderDesc  bool
	GroupBy    string
	Projection []string
	Indexes    []IndexInfo
}

// normalizeExpr canonicalizes "$."-prefixed and bare field paths.
func normalizeExpr(expr string) string {
	return strings.TrimPrefix(expr, "$.")
}

// ChoosePlan selects one index (or the primary-key full scan) for a
// predicate set.
func ChoosePlan(in Input) Plan {
	var pk IndexInfo
	for _, idx := range in.Indexes {
		if idx.Name == "_id" {
			pk = idx
		}
	}

	type candidate struct {
		pred  Predicate
		index IndexInfo
		cost  float64
	}
	var candidates []candidate
	for _, pred := range in.Predicates {
		for _, idx := range in.Indexes {
			if normalizeExpr(idx.Expression) != normalizeExpr(pred.Expression) {
				continue
			}
			candidates = append(candidates, candidate{pred, idx, predicateCost(pred, idx)})
		}
	}

	fullScanCost := float64(pk.KeyCount) + 1
	best := -1
	for i, c := range candidates {
		if c.cost >= fullScanCost {
			continue
		}
		switch {
		case best < 0 || c.cost < candidates[best].cost:
			best = i
		case c.cost == candidates[best].cost:
			if tieBreak(c.index, in) > tieBreak(candidates[best].index, in) {
				best = i
			}
		}
	}

	if best < 0 {
		// no usable index: prefer an OrderBy-matching index over the PK
		// scan when one exists, so the caller still skips sorting
		if in.OrderBy != "" {
			for _, idx := range in.Indexes {
				if normalizeExpr(idx.Expression) == normalizeExpr(in.OrderBy) {
					return Plan{
						IndexName:        idx.Name,
						Direction:        direction(in.OrderDesc),
						Range:            FullRange(),
						Residual:         in.Predicates,
						OrderReusesIndex: true,
						Cost:             fullScanCost,
					}
				}
			}
		}
		return Plan{
			IndexName:        "_id",
			Direction:        1,
			Range:            FullRange(),
			Residual:         in.Predicates,
			OrderReusesIndex: normalizeExpr(in.OrderBy) == "_id" && !in.OrderDesc,
			Cost:             fullScanCost,
		}
	}

	chosen := candidates[best]
	plan := Plan{
		IndexName: chosen.index.Name,
		Direction: 1,
		Range:     keyRangeFor(chosen.pred),
		Cost:      chosen.cost,
	}
	for _, pred := range in.Predicates {
		if pred.Expression == chosen.pred.Expression && pred.Op == chosen.pred.Op {
			// the chosen equality/range is enforced by the scan itself;
			// STARTS_WITH stays residual because collation order can
			// admit non-prefix keys into the range
			if pred.Op == OpStartsWith {
				plan.Residual = append(plan.Residual, pred)
			}
			continue
		}
		plan.Residual = append(plan.Residual, pred)
	}
	if in.OrderBy != "" && normalizeExpr(in.OrderBy) == normalizeExpr(chosen.index.Expression) {
		plan.OrderReusesIndex = true
		plan.Direction = direction(in.OrderDesc)
	}
	if len(in.Projection) == 1 &&
		normalizeExpr(in.Projection[0]) == normalizeExpr(chosen.index.Expression) &&
		len(plan.Residual) == 0 {
		plan.ProjectFromKeyOnly = true
	}
	return plan
}

func direction(desc bool) int {
	if desc {
		return -1
	}
	return 1
}

func predicateCost(pred Predicate, idx IndexInfo) float64 {
	keys := float64(idx.KeyCount)
	unique := float64(idx.UniqueKeyCount)
	if unique < 1 {
		unique = 1
	}
	switch pred.Op {
	case OpEq:
		return keys / unique
	case OpIn:
		return float64(len(pred.Values)) * keys / unique
	case OpBetween:
		return keys / 4
	case OpStartsWith:
		return keys / 10
	default:
		return keys / 2
	}
}

func tieBreak(idx IndexInfo, in Input) int {
	expr := normalizeExpr(idx.Expression)
	switch {
	case in.OrderBy != "" && expr == normalizeExpr(in.OrderBy):
		return 3
	case in.GroupBy != "" && expr == normalizeExpr(in.GroupBy):
		return 2
	case len(in.Projection) == 1 && expr == normalizeExpr(in.Projection[0]):
		return 1
	}
	return 0
}

func keyRangeFor(pred Predicate) KeyRange {
	switch pred.Op {
	case OpEq:
		return KeyRange{Eq: pred.Values[:1]}
	case OpIn:
		return KeyRange{Eq: pred.Values}
	case OpGt:
		return KeyRange{Min: pred.Values[0], Max: bson.MaxValue}
	case OpGte:
		return KeyRange{Min: pred.Values[0], Max: bson.MaxValue, MinInclusive: true}
	case OpLt:
		return KeyRange{Min: bson.MinValue, Max: pred.Values[0]}
	case OpLte:
		return KeyRange{Min: bson.MinValue, Max: pred.Values[0], MaxInclusive: true}
	case OpBetween:
		return KeyRange{Min: pred.Values[0], Max: pred.Values[1], MinInclusive: true, MaxInclusive: true}
	case OpStartsWith:
		prefix := pred.Values[0].StringValue()
		return KeyRange{
			Min:          bson.String(prefix),
			Max:          bson.String(prefix + "\U0010FFFF"),
			MinInclusive: true,
			MaxInclusive: true,
		}
	default:
		return FullRange()
	}
}

// Match evaluates one predicate against a document. An array field
// matches when any element matches, mirroring multi-key index emission.
func Match(doc *bson.Document, pred Predicate, collation *bson.Collation) bool {
	v := doc.GetPath(pred.Expression)
	if v.Type() == bson.TypeArray {
		for _, e := range v.ArrayValue() {
			if matchValue(e, pred, collation) {
				return true
			}
		}
		return false
	}
	return matchValue(v, pred, collation)
}

func matchValue(v bson.Value, pred Predicate, collation *bson.Collation) bool {
	switch pred.Op {
	case OpEq:
		return bson.Compare(v, pred.Values[0], collation) == 0
	case OpIn:
		for _, want := range pred.Values {
			if bson.Compare(v, want, collation) == 0 {
				return true
			}
		}
		return false
	case OpGt:
		return bson.Compare(v, pred.Values[0], collation) > 0
	case OpGte:
		return bson.Compare(v, pred.Values[0], collation) >= 0
	case OpLt:
		return bson.Compare(v, pred.Values[0], collation) < 0
	case OpLte:
		return bson.Compare(v, pred.Values[0], collation) <= 0
	case OpBetween:
		return bson.Compare(v, pred.Values[0], collation) >= 0 &&
			bson.Compare(v, pred.Values[1], collation) <= 0
	case OpStartsWith:
		if v.Type() != bson.TypeString {
			return false
		}
		prefix := pred.Values[0].StringValue()
		sv := v.StringValue()
		if len(sv) < len(prefix) {
			return false
		}
		return collation.Equal(sv[:len(prefix)], prefix)
	default:
		return false
	}
}
