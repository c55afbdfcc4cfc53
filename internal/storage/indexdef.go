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

package storage

import (
	"encoding/binary"
)

// IndexDefinition describes one named index of a collection. Slot 0 is
// always the primary key over "_id". The expression is an opaque string
// the storage engine never parses beyond field-path key extraction.
type IndexDefinition struct {
	Name       string
	Expression string
	Unique     bool
	Slot       byte

	// Head and Tail locate the skip-list sentinel nodes.
	Head PageAddress
	Tail PageAddress

	// MaxLevel is the tallest node ever inserted (sentinels are full height).
	MaxLevel byte

	// KeyCount and UniqueKeyCount feed the access-path cost model.
	KeyCount       uint32
	UniqueKeyCount uint32

	// Reserved keeps layout room for auxiliary index metadata.
	Reserved uint16
}

// bufferSize returns the serialized size of the definition.
func (d *IndexDefinition) bufferSize() int {
	return 1 + 1 + 1 + len(d.Name) + 2 + len(d.Expression) +
		PageAddressSize*2 + 1 + 4 + 4 + 2
}

// writeTo serializes the definition, returning the bytes written.
func (d *IndexDefinition) writeTo(buf []byte) int {
	pos := 0
	buf[pos] = d.Slot
	pos++
	if d.Unique {
		buf[pos] = 1
	} else {
		buf[pos] = 0
	}
	pos++
	buf[pos] = byte(len(d.Name))
	pos++
	copy(buf[pos:], d.Name)
	pos += len(d.Name)
	binary.LittleEndian.PutUint16(buf[pos:], uint16(len(d.Expression)))
	pos += 2
	copy(buf[pos:], d.Expression)
	pos += len(d.Expression)
	WriteAddress(buf[pos:], d.Head)
	pos += PageAddressSize
	WriteAddress(buf[pos:], d.Tail)
	pos += PageAddressSize
	buf[pos] = d.MaxLevel
	pos++
	binary.LittleEndian.PutUint32(buf[pos:], d.KeyCount)
	pos += 4
	binary.LittleEndian.PutUint32(buf[pos:], d.UniqueKeyCount)
	pos += 4
	binary.LittleEndian.PutUint16(buf[pos:], d.Reserved)
	pos += 2
	return pos
}

// readIndexDefinition deserializes one definition, returning it and the
// bytes consumed.
func readIndexDefinition(buf []byte) (*IndexDefinition, int) {
	d := &IndexDefinition{}
	pos := 0
	d.Slot = buf[pos]
	pos++
	d.Unique = buf[pos] != 0
	pos++
	nameLen := int(buf[pos])
	pos++
	d.Name = string(buf[pos : pos+nameLen])
	pos += nameLen
	exprLen := int(binary.LittleEndian.Uint16(buf[pos:]))
	pos += 2
	d.Expression = string(buf[pos : pos+exprLen])
	pos += exprLen
	d.Head = ReadAddress(buf[pos:])
	pos += PageAddressSize
	d.Tail = ReadAddress(buf[pos:])
	pos += PageAddressSize
	d.MaxLevel = buf[pos]
	pos++
	d.KeyCount = binary.LittleEndian.Uint32(buf[pos:])
	pos += 4
	d.UniqueKeyCount = binary.LittleEndian.Uint32(buf[pos:])
	pos += 4
	d.Reserved = binary.LittleEndian.Uint16(buf[pos:])
	pos += 2
	return d, pos
}
