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

package flintdb

import (
	dberrors "flintdb/errors"
)

// ErrorCode identifies one of the engine's closed set of error kinds.
// The full set and helpers live in the flintdb/errors package.
type ErrorCode = dberrors.ErrorCode

// Error codes, re-exported for convenience.
const (
	ErrIO                 = dberrors.ErrCodeIO
	ErrWrongPassword      = dberrors.ErrCodeWrongPassword
	ErrUnsupportedVersion = dberrors.ErrCodeUnsupportedVersion
	ErrReadOnly           = dberrors.ErrCodeReadOnly
	ErrNoCollection       = dberrors.ErrCodeNoCollection
	ErrNoIndex            = dberrors.ErrCodeNoIndex
	ErrIndexAlreadyExists = dberrors.ErrCodeIndexAlreadyExists
	ErrTooManyIndexes     = dberrors.ErrCodeTooManyIndexes
	ErrCannotDropPK       = dberrors.ErrCodeCannotDropPrimaryKey
	ErrDuplicateKey       = dberrors.ErrCodeDuplicateKey
	ErrIndexKeyTooLarge   = dberrors.ErrCodeIndexKeyTooLarge
	ErrWrongThread        = dberrors.ErrCodeWrongThread
	ErrNoTransaction      = dberrors.ErrCodeNoTransaction
	ErrAlreadyInTrans     = dberrors.ErrCodeAlreadyInTrans
	ErrTransactionLimit   = dberrors.ErrCodeTransactionLimit
	ErrTimeout            = dberrors.ErrCodeTimeout
	ErrCorruptedPage      = dberrors.ErrCodeCorruptedPage
	ErrInvalidName        = dberrors.ErrCodeInvalidName
	ErrDocumentTooLarge   = dberrors.ErrCodeDocumentTooLarge
)

// ErrorIs reports whether err is a database error with the given code.
func ErrorIs(err error, code ErrorCode) bool {
	return dberrors.Is(err, code)
}
