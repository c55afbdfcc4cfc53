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

	dberrors "flintdb/errors"
)

// Pragma names persisted in the header page. The in-file values are the
// source of truth once a datafile exists.
type Pragma string

const (
	PragmaUserVersion Pragma = "USER_VERSION"
	PragmaCollation   Pragma = "COLLATION"
	PragmaTimeout     Pragma = "TIMEOUT"
	PragmaLimitSize   Pragma = "LIMIT_SIZE"
	PragmaUtcDate     Pragma = "UTC_DATE"
	PragmaCheckpoint  Pragma = "CHECKPOINT"
)

// Pragmas lists every pragma name.
func Pragmas() []Pragma {
	return []Pragma{
		PragmaUserVersion, PragmaCollation, PragmaTimeout,
		PragmaLimitSize, PragmaUtcDate, PragmaCheckpoint,
	}
}

// GetPragma reads a pragma value from the header page.
func (h *HeaderPage) GetPragma(name Pragma) (int64, error) {
	b := h.Buffer().Buffer
	switch name {
	case PragmaUserVersion:
		return int64(int32(binary.LittleEndian.Uint32(b[pUserVersion:]))), nil
	case PragmaCollation:
		return int64(int32(binary.LittleEndian.Uint32(b[pCollation:]))), nil
	case PragmaTimeout:
		return int64(int32(binary.LittleEndian.Uint32(b[pTimeout:]))), nil
	case PragmaLimitSize:
		return int64(binary.LittleEndian.Uint64(b[pLimitSize:])), nil
	case PragmaUtcDate:
		if b[pUtcDate] != 0 {
			return 1, nil
		}
		return 0, nil
	case PragmaCheckpoint:
		return int64(int32(binary.LittleEndian.Uint32(b[pCheckpoint:]))), nil
	default:
		return 0, dberrors.InvalidName(string(name)).WithDetail("unknown pragma")
	}
}

// SetPragma writes a pragma value, enforcing per-pragma validity rules.
// COLLATION is read-only here; it changes only through rebuild.
func (h *HeaderPage) SetPragma(name Pragma, value int64) error {
	b := h.Buffer().Buffer
	switch name {
	case PragmaUserVersion:
		binary.LittleEndian.PutUint32(b[pUserVersion:], uint32(int32(value)))
	case PragmaTimeout:
		if value <= 0 {
			return dberrors.InvalidName(string(name)).WithDetail("TIMEOUT must be positive")
		}
		binary.LittleEndian.PutUint32(b[pTimeout:], uint32(int32(value)))
	case PragmaLimitSize:
		if value != 0 {
			if value < MinLimitSize {
				return dberrors.InvalidName(string(name)).WithDetail("LIMIT_SIZE below the 4-page minimum")
			}
			current := int64(h.LastPageID()+1) * PageSize
			if value < current {
				return dberrors.InvalidName(string(name)).WithDetail("LIMIT_SIZE cannot shrink below the current file size")
			}
		}
		binary.LittleEndian.PutUint64(b[pLimitSize:], uint64(value))
	case PragmaUtcDate:
		if value != 0 {
			b[pUtcDate] = 1
		} else {
			b[pUtcDate] = 0
		}
	case PragmaCheckpoint:
		if value < 0 {
			return dberrors.InvalidName(string(name)).WithDetail("CHECKPOINT must be >= 0")
		}
		binary.LittleEndian.PutUint32(b[pCheckpoint:], uint32(int32(value)))
	case PragmaCollation:
		return &dberrors.DatabaseError{
			Code:     dberrors.ErrCodeReadOnly,
			Category: dberrors.CategoryOpen,
			Message:  "COLLATION is read-only; use rebuild to change it",
		}
	default:
		return dberrors.InvalidName(string(name)).WithDetail("unknown pragma")
	}
	h.Dirty = true
	return nil
}
