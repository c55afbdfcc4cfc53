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
Package bson implements the FlintDB value model: a BSON-subset tagged scalar
space with two sentinel values (MinValue, MaxValue), an insertion-ordered
document type, a bit-exact binary serializer, and a collation-aware total
order across heterogeneous types.

Type Ranking:
=============

Values of different types compare by rank before content:

	MinValue < Null < Numeric < String < Document < Array < Binary
	         < ObjectId < Guid < Boolean < DateTime < MaxValue

Numeric values (Int32, Int64, Double, Decimal) form one rank and compare
after promotion to Decimal. String comparison is collation-dependent.
*/
package bson

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type identifies the concrete type carried by a Value.
type Type byte

// Value type tags. The byte values are part of the on-disk format.
const (
	TypeMinValue Type = 0
	TypeNull     Type = 1
	TypeInt32    Type = 2
	TypeInt64    Type = 3
	TypeDouble   Type = 4
	TypeDecimal  Type = 5
	TypeString   Type = 6
	TypeDocument Type = 7
	TypeArray    Type = 8
	TypeBinary   Type = 9
	TypeObjectID Type = 10
	TypeGuid     Type = 11
	TypeBoolean  Type = 12
	TypeDateTime Type = 13
	TypeMaxValue Type = 14
)

// String returns the type name.
func (t Type) String() string {
	switch t {
	case TypeMinValue:
		return "minvalue"
	case TypeNull:
		return "null"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeDouble:
		return "double"
	case TypeDecimal:
		return "decimal"
	case TypeString:
		return "string"
	case TypeDocument:
		return "document"
	case TypeArray:
		return "array"
	case TypeBinary:
		return "binary"
	case TypeObjectID:
		return "objectid"
	case TypeGuid:
		return "guid"
	case TypeBoolean:
		return "boolean"
	case TypeDateTime:
		return "datetime"
	case TypeMaxValue:
		return "maxvalue"
	default:
		return "unknown"
	}
}

// Value is a tagged scalar from the BSON value space.
// The zero Value is MinValue (type tag 0).
type Value struct {
	t   Type
	i   int64
	f   float64
	s   string
	b   []byte
	dec decimal.Decimal
	doc *Document
	arr []Value
	oid ObjectID
	g   uuid.UUID
}

// Sentinel values shared by index head/tail nodes and range bounds.
var (
	MinValue = Value{t: TypeMinValue}
	MaxValue = Value{t: TypeMaxValue}
	Null     = Value{t: TypeNull}
)

// Constructors.

func Int32(v int32) Value        { return Value{t: TypeInt32, i: int64(v)} }
func Int64(v int64) Value        { return Value{t: TypeInt64, i: v} }
func Double(v float64) Value     { return Value{t: TypeDouble, f: v} }
func String(v string) Value      { return Value{t: TypeString, s: v} }
func Binary(v []byte) Value      { return Value{t: TypeBinary, b: v} }
func Guid(v uuid.UUID) Value     { return Value{t: TypeGuid, g: v} }
func ObjectIDV(v ObjectID) Value { return Value{t: TypeObjectID, oid: v} }
func Array(v ...Value) Value     { return Value{t: TypeArray, arr: v} }

func Boolean(v bool) Value {
	if v {
		return Value{t: TypeBoolean, i: 1}
	}
	return Value{t: TypeBoolean}
}

// Decimal wraps an arbitrary-precision decimal value.
func Decimal(v decimal.Decimal) Value { return Value{t: TypeDecimal, dec: v} }

// DateTime stores the instant as UTC ticks (100ns units since year 1).
func DateTime(v time.Time) Value {
	return Value{t: TypeDateTime, i: TimeToTicks(v)}
}

// DateTimeTicks builds a DateTime from raw UTC ticks.
func DateTimeTicks(ticks int64) Value { return Value{t: TypeDateTime, i: ticks} }

// Doc wraps a document value. A nil document becomes Null.
func Doc(d *Document) Value {
	if d == nil {
		return Null
	}
	return Value{t: TypeDocument, doc: d}
}

// ticksPerSecond and the Unix epoch expressed in ticks (100ns since year 1, UTC).
const (
	ticksPerSecond = int64(10_000_000)
	unixEpochTicks = int64(621355968000000000)
)

// TimeToTicks converts a time.Time to UTC ticks.
func TimeToTicks(t time.Time) int64 {
	u := t.UTC()
	return unixEpochTicks + u.Unix()*ticksPerSecond + int64(u.Nanosecond()/100)
}

// TicksToTime converts UTC ticks back to a time.Time in UTC.
func TicksToTime(ticks int64) time.Time {
	rel := ticks - unixEpochTicks
	return time.Unix(rel/ticksPerSecond, (rel%ticksPerSecond)*100).UTC()
}

// Type returns the value's type tag.
func (v Value) Type() Type { return v.t }

// IsNull reports whether the value is Null.
func (v Value) IsNull() bool { return v.t == TypeNull }

// IsNumeric reports whether the value belongs to the numeric rank.
func (v Value) IsNumeric() bool {
	return v.t == TypeInt32 || v.t == TypeInt64 || v.t == TypeDouble || v.t == TypeDecimal
}

// IsMinOrMax reports whether the value is one of the two sentinels.
func (v Value) IsMinOrMax() bool { return v.t == TypeMinValue || v.t == TypeMaxValue }

// Accessors. Each returns the zero value when the type does not match.

func (v Value) Int32Value() int32     { return int32(v.i) }
func (v Value) Int64Value() int64     { return v.i }
func (v Value) DoubleValue() float64  { return v.f }
func (v Value) StringValue() string   { return v.s }
func (v Value) BoolValue() bool       { return v.i != 0 }
func (v Value) BinaryValue() []byte   { return v.b }
func (v Value) ObjectIDValue() ObjectID { return v.oid }
func (v Value) GuidValue() uuid.UUID  { return v.g }
func (v Value) DocumentValue() *Document { return v.doc }
func (v Value) ArrayValue() []Value   { return v.arr }
func (v Value) TicksValue() int64     { return v.i }

// DecimalValue returns the decimal content, promoting other numeric types.
func (v Value) DecimalValue() decimal.Decimal {
	switch v.t {
	case TypeInt32, TypeInt64:
		return decimal.NewFromInt(v.i)
	case TypeDouble:
		return decimal.NewFromFloat(v.f)
	case TypeDecimal:
		return v.dec
	default:
		return decimal.Zero
	}
}

// TimeValue returns the DateTime content as a time.Time in UTC.
func (v Value) TimeValue() time.Time { return TicksToTime(v.i) }

// TimeValueAt returns the DateTime content in UTC or local time, per the
// engine's UTC_DATE pragma. Storage is always UTC ticks; only the
// materialized zone changes.
func (v Value) TimeValueAt(utc bool) time.Time {
	if utc {
		return TicksToTime(v.i)
	}
	return TicksToTime(v.i).Local()
}

// String renders a debug representation of the value.
func (v Value) String() string {
	switch v.t {
	case TypeMinValue:
		return "$minvalue"
	case TypeMaxValue:
		return "$maxvalue"
	case TypeNull:
		return "null"
	case TypeInt32, TypeInt64:
		return fmt.Sprintf("%d", v.i)
	case TypeDouble:
		return fmt.Sprintf("%g", v.f)
	case TypeDecimal:
		return v.dec.String()
	case TypeString:
		return fmt.Sprintf("%q", v.s)
	case TypeBoolean:
		if v.i != 0 {
			return "true"
		}
		return "false"
	case TypeDateTime:
		return v.TimeValue().Format(time.RFC3339Nano)
	case TypeObjectID:
		return v.oid.String()
	case TypeGuid:
		return v.g.String()
	case TypeBinary:
		return fmt.Sprintf("binary(%d bytes)", len(v.b))
	case TypeDocument:
		return v.doc.String()
	case TypeArray:
		s := "["
		for i, e := range v.arr {
			if i > 0 {
				s += ","
			}
			s += e.String()
		}
		return s + "]"
	default:
		return "?"
	}
}
