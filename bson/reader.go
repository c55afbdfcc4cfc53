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
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrTruncated is returned when a buffer ends inside an element.
var ErrTruncated = errors.New("bson: truncated buffer")

type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) take(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, ErrTruncated
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) byte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// DeserializeDocument decodes a document from the start of buf.
func DeserializeDocument(buf []byte) (*Document, error) {
	r := &reader{buf: buf}
	return r.document()
}

// DeserializeIndexKey decodes an index key, returning the value and the
// number of bytes consumed.
func DeserializeIndexKey(buf []byte) (Value, int, error) {
	r := &reader{buf: buf}
	t, err := r.byte()
	if err != nil {
		return Null, 0, err
	}
	v, err := r.payload(Type(t))
	if err != nil {
		return Null, 0, err
	}
	return v, r.pos, nil
}

func (r *reader) document() (*Document, error) {
	length, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if length < 5 || int(length) > r.remaining()+4 {
		return nil, fmt.Errorf("bson: invalid document length %d", length)
	}
	end := r.pos - 4 + int(length)
	doc := NewDocument()
	for {
		t, err := r.byte()
		if err != nil {
			return nil, err
		}
		if t == docTerminator {
			break
		}
		name, err := r.cstring()
		if err != nil {
			return nil, err
		}
		v, err := r.payload(Type(t))
		if err != nil {
			return nil, err
		}
		doc.Set(name, v)
	}
	if r.pos != end {
		return nil, fmt.Errorf("bson: document length mismatch (%d != %d)", r.pos, end)
	}
	return doc, nil
}

func (r *reader) cstring() (string, error) {
	idx := bytes.IndexByte(r.buf[r.pos:], 0)
	if idx < 0 {
		return "", ErrTruncated
	}
	s := string(r.buf[r.pos : r.pos+idx])
	r.pos += idx + 1
	return s, nil
}

func (r *reader) payload(t Type) (Value, error) {
	switch t {
	case TypeMinValue:
		return MinValue, nil
	case TypeNull:
		return Null, nil
	case TypeMaxValue:
		return MaxValue, nil
	case TypeInt32:
		u, err := r.uint32()
		if err != nil {
			return Null, err
		}
		return Int32(int32(u)), nil
	case TypeInt64:
		u, err := r.uint64()
		if err != nil {
			return Null, err
		}
		return Int64(int64(u)), nil
	case TypeDateTime:
		u, err := r.uint64()
		if err != nil {
			return Null, err
		}
		return DateTimeTicks(int64(u)), nil
	case TypeDouble:
		u, err := r.uint64()
		if err != nil {
			return Null, err
		}
		return Double(math.Float64frombits(u)), nil
	case TypeDecimal:
		n, err := r.uint16()
		if err != nil {
			return Null, err
		}
		b, err := r.take(int(n))
		if err != nil {
			return Null, err
		}
		dec, err := decimal.NewFromString(string(b))
		if err != nil {
			return Null, fmt.Errorf("bson: invalid decimal: %w", err)
		}
		return Decimal(dec), nil
	case TypeString:
		n, err := r.uint32()
		if err != nil {
			return Null, err
		}
		b, err := r.take(int(n))
		if err != nil {
			return Null, err
		}
		return String(string(b)), nil
	case TypeBinary:
		n, err := r.uint32()
		if err != nil {
			return Null, err
		}
		b, err := r.take(int(n))
		if err != nil {
			return Null, err
		}
		return Binary(append([]byte(nil), b...)), nil
	case TypeObjectID:
		b, err := r.take(12)
		if err != nil {
			return Null, err
		}
		var oid ObjectID
		copy(oid[:], b)
		return ObjectIDV(oid), nil
	case TypeGuid:
		b, err := r.take(16)
		if err != nil {
			return Null, err
		}
		var g uuid.UUID
		copy(g[:], b)
		return Guid(g), nil
	case TypeBoolean:
		b, err := r.byte()
		if err != nil {
			return Null, err
		}
		return Boolean(b != 0), nil
	case TypeDocument:
		doc, err := r.document()
		if err != nil {
			return Null, err
		}
		return Doc(doc), nil
	case TypeArray:
		count, err := r.uint16()
		if err != nil {
			return Null, err
		}
		arr := make([]Value, 0, count)
		for i := 0; i < int(count); i++ {
			et, err := r.byte()
			if err != nil {
				return Null, err
			}
			e, err := r.payload(Type(et))
			if err != nil {
				return Null, err
			}
			arr = append(arr, e)
		}
		return Array(arr...), nil
	default:
		return Null, fmt.Errorf("bson: unknown type tag 0x%02x", byte(t))
	}
}
