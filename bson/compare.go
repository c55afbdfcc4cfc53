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
	"bytes"
)

// rank maps a value type to its cross-type ordering rank. Numeric types
// share one rank and compare by content after promotion to Decimal.
func rank(t Type) int {
	switch t {
	case TypeMinValue:
		return 1
	case TypeNull:
		return 2
	case TypeInt32, TypeInt64, TypeDouble, TypeDecimal:
		return 3
	case TypeString:
		return 4
	case TypeDocument:
		return 5
	case TypeArray:
		return 6
	case TypeBinary:
		return 7
	case TypeObjectID:
		return 8
	case TypeGuid:
		return 9
	case TypeBoolean:
		return 10
	case TypeDateTime:
		return 11
	case TypeMaxValue:
		return 12
	default:
		return 13
	}
}

// Compare defines the total order used by every index. Returns -1, 0 or 1.
func Compare(a, b Value, collation *Collation) int {
	ra, rb := rank(a.t), rank(b.t)
	if ra != rb {
		return sign(ra - rb)
	}

	switch {
	case ra == 1 || ra == 2 || ra == 12:
		// MinValue, Null and MaxValue are each equal to themselves.
		return 0
	case ra == 3:
		return compareNumeric(a, b)
	}

	switch a.t {
	case TypeString:
		return collation.Compare(a.s, b.s)
	case TypeDocument:
		return compareDocuments(a.doc, b.doc, collation)
	case TypeArray:
		return compareArrays(a.arr, b.arr, collation)
	case TypeBinary:
		return bytes.Compare(a.b, b.b)
	case TypeObjectID:
		return a.oid.Compare(b.oid)
	case TypeGuid:
		return bytes.Compare(a.g[:], b.g[:])
	case TypeBoolean:
		return sign(int(a.i) - int(b.i))
	case TypeDateTime:
		return sign64(a.i - b.i)
	default:
		return 0
	}
}

// compareNumeric promotes both sides to Decimal before comparing, except
// for the same-type fast paths that need no promotion.
func compareNumeric(a, b Value) int {
	if a.t == b.t {
		switch a.t {
		case TypeInt32, TypeInt64:
			return sign64(a.i - b.i)
		case TypeDouble:
			switch {
			case a.f < b.f:
				return -1
			case a.f > b.f:
				return 1
			}
			return 0
		}
	}
	return a.DecimalValue().Cmp(b.DecimalValue())
}

// compareDocuments walks fields in insertion order until a difference:
// first by field name (binary), then by field value. A document that is a
// strict prefix of the other orders first.
func compareDocuments(a, b *Document, collation *Collation) int {
	n := len(a.keys)
	if len(b.keys) < n {
		n = len(b.keys)
	}
	for i := 0; i < n; i++ {
		if c := bytes.Compare([]byte(a.keys[i]), []byte(b.keys[i])); c != 0 {
			return c
		}
		if c := Compare(a.values[a.keys[i]], b.values[b.keys[i]], collation); c != 0 {
			return c
		}
	}
	return sign(len(a.keys) - len(b.keys))
}

// compareArrays walks elements until a difference; a shorter prefix
// orders before a longer one.
func compareArrays(a, b []Value, collation *Collation) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i], collation); c != 0 {
			return c
		}
	}
	return sign(len(a) - len(b))
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}

func sign64(v int64) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}
