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
Binary Serialization
====================

Documents and index keys share one little-endian element encoding:

	value   := type(1B) payload
	int32   := 4B LE            double   := IEEE-754 8B LE
	int64   := 8B LE            datetime := UTC ticks 8B LE
	decimal := len(2B) text     string   := len(4B) UTF-8 bytes
	binary  := len(4B) bytes    objectid := 12B
	guid    := 16B              boolean  := 1B
	null/minvalue/maxvalue have no payload

	document := total_len(4B) { type(1B) name(cstring) payload }* 0xFF
	array    := count(2B) value*

The document terminator is 0xFF, which is not a valid type tag. The total
length includes the length field and the terminator, so a document can be
skipped without parsing its elements.
*/
package bson

import (
	"encoding/binary"
	"math"
)

// docTerminator ends a serialized document's element list.
const docTerminator = 0xFF

// ValueSize returns the payload size of a value, excluding its type byte.
func ValueSize(v Value) int {
	switch v.t {
	case TypeMinValue, TypeNull, TypeMaxValue:
		return 0
	case TypeInt32:
		return 4
	case TypeInt64, TypeDouble, TypeDateTime:
		return 8
	case TypeDecimal:
		return 2 + len(v.dec.String())
	case TypeString:
		return 4 + len(v.s)
	case TypeBinary:
		return 4 + len(v.b)
	case TypeObjectID:
		return 12
	case TypeGuid:
		return 16
	case TypeBoolean:
		return 1
	case TypeDocument:
		return DocumentSize(v.doc)
	case TypeArray:
		size := 2
		for _, e := range v.arr {
			size += 1 + ValueSize(e)
		}
		return size
	default:
		return 0
	}
}

// IndexKeySize returns the full serialized size of an index key.
func IndexKeySize(v Value) int {
	return 1 + ValueSize(v)
}

// DocumentSize returns the full serialized size of a document.
func DocumentSize(d *Document) int {
	size := 4 + 1 // length prefix + terminator
	for _, k := range d.keys {
		size += 1 + len(k) + 1 + ValueSize(d.values[k])
	}
	return size
}

// SerializeDocument encodes a document into a fresh buffer.
func SerializeDocument(d *Document) []byte {
	buf := make([]byte, 0, DocumentSize(d))
	return appendDocument(buf, d)
}

// SerializeIndexKey encodes a value as an index key: type byte + payload.
func SerializeIndexKey(v Value) []byte {
	buf := make([]byte, 0, IndexKeySize(v))
	buf = append(buf, byte(v.t))
	return appendPayload(buf, v)
}

func appendDocument(buf []byte, d *Document) []byte {
	start := len(buf)
	buf = append(buf, 0, 0, 0, 0)
	for _, k := range d.keys {
		v := d.values[k]
		buf = append(buf, byte(v.t))
		buf = append(buf, k...)
		buf = append(buf, 0)
		buf = appendPayload(buf, v)
	}
	buf = append(buf, docTerminator)
	binary.LittleEndian.PutUint32(buf[start:], uint32(len(buf)-start))
	return buf
}

func appendPayload(buf []byte, v Value) []byte {
	switch v.t {
	case TypeMinValue, TypeNull, TypeMaxValue:
		return buf
	case TypeInt32:
		return binary.LittleEndian.AppendUint32(buf, uint32(v.i))
	case TypeInt64, TypeDateTime:
		return binary.LittleEndian.AppendUint64(buf, uint64(v.i))
	case TypeDouble:
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.f))
	case TypeDecimal:
		text := v.dec.String()
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(text)))
		return append(buf, text...)
	case TypeString:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.s)))
		return append(buf, v.s...)
	case TypeBinary:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.b)))
		return append(buf, v.b...)
	case TypeObjectID:
		return append(buf, v.oid[:]...)
	case TypeGuid:
		return append(buf, v.g[:]...)
	case TypeBoolean:
		if v.i != 0 {
			return append(buf, 1)
		}
		return append(buf, 0)
	case TypeDocument:
		return appendDocument(buf, v.doc)
	case TypeArray:
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(v.arr)))
		for _, e := range v.arr {
			buf = append(buf, byte(e.t))
			buf = appendPayload(buf, e)
		}
		return buf
	default:
		return buf
	}
}
