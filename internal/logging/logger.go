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
Package logging provides structured logging for the FlintDB engine.

Each subsystem obtains a component-scoped child logger. Output is silent
until a writer is configured, so the engine stays quiet when embedded; the
embedder sets the writer and the level (info when unset) through the open
options.
*/
package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Level represents a log level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
	Disabled   Level = "disabled"
)

// root is the engine-wide logger. Disabled until Init is called.
var root = zerolog.Nop()

// Init configures the engine logger. A nil writer keeps logging disabled.
func Init(level Level, w io.Writer) {
	if w == nil {
		root = zerolog.Nop()
		return
	}
	root = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger().Level(parseLevel(level))
}

// InitJSON configures the engine logger with JSON output.
func InitJSON(level Level, w io.Writer) {
	if w == nil {
		root = zerolog.Nop()
		return
	}
	root = zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(level))
}

func parseLevel(level Level) zerolog.Level {
	switch level {
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	case Disabled:
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel maps a level name to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return DebugLevel
	case "warn", "WARN", "warning", "WARNING":
		return WarnLevel
	case "error", "ERROR":
		return ErrorLevel
	case "disabled", "off":
		return Disabled
	default:
		return InfoLevel
	}
}

// WithComponent creates a child logger tagged with the subsystem name.
func WithComponent(component string) *zerolog.Logger {
	l := root.With().Str("component", component).Logger()
	return &l
}
