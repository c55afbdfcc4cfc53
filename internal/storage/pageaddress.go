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
	"fmt"
)

// PageAddressSize is the serialized size of a PageAddress.
const PageAddressSize = 5

// MaxPageID marks an unset page id.
const MaxPageID = uint32(0xFFFFFFFF)

// PageAddress locates one record: a page id plus a slot index on that page.
type PageAddress struct {
	PageID uint32
	Index  byte
}

// EmptyAddress is the null record address.
var EmptyAddress = PageAddress{PageID: MaxPageID, Index: 0xFF}

// IsEmpty reports whether the address is unset.
func (a PageAddress) IsEmpty() bool {
	return a.PageID == MaxPageID
}

// Equals compares two addresses.
func (a PageAddress) Equals(other PageAddress) bool {
	return a.PageID == other.PageID && a.Index == other.Index
}

// String returns a debug form like "0042:003".
func (a PageAddress) String() string {
	if a.IsEmpty() {
		return "(empty)"
	}
	return fmt.Sprintf("%04d:%03d", a.PageID, a.Index)
}

// WriteAddress serializes an address into buf.
func WriteAddress(buf []byte, a PageAddress) {
	binary.LittleEndian.PutUint32(buf, a.PageID)
	buf[4] = a.Index
}

// ReadAddress deserializes an address from buf.
func ReadAddress(buf []byte) PageAddress {
	return PageAddress{
		PageID: binary.LittleEndian.Uint32(buf),
		Index:  buf[4],
	}
}
