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

package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"WARN", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"off", Disabled},
		{"unknown", InfoLevel}, // default
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestNilWriterStaysSilent(t *testing.T) {
	Init(DebugLevel, nil)
	// must not panic; output goes nowhere
	WithComponent("test").Info().Msg("dropped")
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	InitJSON(DebugLevel, &buf)
	defer Init(Disabled, nil)

	WithComponent("wal").Info().Str("key", "value").Msg("test message")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	if entry["component"] != "wal" {
		t.Errorf("expected component 'wal', got: %v", entry["component"])
	}
	if entry["message"] != "test message" {
		t.Errorf("expected message 'test message', got: %v", entry["message"])
	}
	if entry["key"] != "value" {
		t.Errorf("expected field key=value, got: %v", entry)
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	InitJSON(WarnLevel, &buf)
	defer Init(Disabled, nil)

	logger := WithComponent("engine")
	logger.Debug().Msg("hidden")
	logger.Warn().Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line leaked through warn level: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("warn line missing: %s", out)
	}
}
