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
Collation
=========

Collation defines how strings compare and sort across the whole datafile:
index key order, range bounds, and equality in residual predicates all go
through one Collation instance.

A collation is persisted in the header page as a single int32: the low 16
bits select a culture from a fixed registry, bit 16 selects case-insensitive
comparison. Culture 0 is binary (byte-wise) comparison; other cultures use
Unicode collation rules for their language. The on-disk code is read-only
after creation and can only change through a rebuild, since every index key
on disk is ordered by it.
*/
package bson

import (
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// cultureRegistry maps the persisted culture code to a BCP-47 tag.
// Appending is allowed; reordering or removing entries breaks old files.
var cultureRegistry = []string{
	"",   // 0: binary
	"en", // 1
	"de",
	"fr",
	"es",
	"pt",
	"it",
	"sv",
	"tr",
	"nl",
	"pl",
}

const ignoreCaseBit = int32(1) << 16

// Collation is a culture plus compare options.
type Collation struct {
	Culture    string // BCP-47 tag; "" means binary comparison
	IgnoreCase bool

	coll *collate.Collator
}

// DefaultCollation is English, case-insensitive.
func DefaultCollation() *Collation {
	return NewCollation("en", true)
}

// BinaryCollation compares strings byte-wise.
func BinaryCollation() *Collation {
	return NewCollation("", false)
}

// NewCollation builds a collation for the given culture tag.
func NewCollation(culture string, ignoreCase bool) *Collation {
	c := &Collation{Culture: culture, IgnoreCase: ignoreCase}
	if culture != "" {
		tag := language.Make(culture)
		if tag == language.Und {
			tag = language.English
		}
		opts := []collate.Option{}
		if ignoreCase {
			opts = append(opts, collate.IgnoreCase)
		}
		c.coll = collate.New(tag, opts...)
	}
	return c
}

// CollationFromCode decodes the persisted int32 form.
func CollationFromCode(code int32) *Collation {
	idx := int(code & 0xFFFF)
	culture := ""
	if idx > 0 && idx < len(cultureRegistry) {
		culture = cultureRegistry[idx]
	}
	return NewCollation(culture, code&ignoreCaseBit != 0)
}

// Code encodes the collation into its persisted int32 form.
func (c *Collation) Code() int32 {
	code := int32(0)
	for i, tag := range cultureRegistry {
		if tag == c.Culture {
			code = int32(i)
			break
		}
	}
	if c.IgnoreCase {
		code |= ignoreCaseBit
	}
	return code
}

// Compare orders two strings under this collation.
func (c *Collation) Compare(a, b string) int {
	if c.coll != nil {
		return c.coll.CompareString(a, b)
	}
	if c.IgnoreCase {
		a = strings.ToLower(a)
		b = strings.ToLower(b)
	}
	return strings.Compare(a, b)
}

// Equal reports string equality under this collation.
func (c *Collation) Equal(a, b string) bool {
	return c.Compare(a, b) == 0
}

// String returns a debug form like "en/ignorecase".
func (c *Collation) String() string {
	culture := c.Culture
	if culture == "" {
		culture = "binary"
	}
	if c.IgnoreCase {
		return culture + "/ignorecase"
	}
	return culture
}
