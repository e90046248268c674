package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{Level(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("Level.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"WARNING", WarnLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"invalid", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, InfoLevel)

	logger.Info("state transition", State("Ready"), Epoch(7), Pid(1234), Error(errors.New("boom")))

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e["msg"] != "state transition" {
		t.Errorf("unexpected msg %v", e["msg"])
	}
	if e["level"] != "INFO" {
		t.Errorf("unexpected level %v", e["level"])
	}
	if e["state"] != "Ready" {
		t.Errorf("unexpected state %v", e["state"])
	}
	if e["epoch"] != float64(7) {
		t.Errorf("unexpected epoch %v", e["epoch"])
	}
	if e["error"] != "boom" {
		t.Errorf("unexpected error %v", e["error"])
	}
}

func TestWriterLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, WarnLevel)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Error("shown")

	if got := len(decodeLines(t, &buf)); got != 2 {
		t.Errorf("expected 2 entries at WARN, got %d", got)
	}
}

func TestWithPresetsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, DebugLevel).With(Component("control"), Node("node-1"))

	logger.Debug("tick", Tick(3))

	entries := decodeLines(t, &buf)
	if entries[0]["component"] != "control" || entries[0]["node"] != "node-1" {
		t.Errorf("preset fields missing: %v", entries[0])
	}
	if entries[0]["tick"] != float64(3) {
		t.Errorf("tick missing: %v", entries[0])
	}
}

func TestFieldConstructors(t *testing.T) {
	if f := Duration("wait", 2*time.Second); f.Value != "2s" {
		t.Errorf("Duration value = %v", f.Value)
	}
	if f := Error(nil); f.Value != nil {
		t.Errorf("Error(nil) value = %v", f.Value)
	}
	if f := Helper("loader"); f.Key != "helper" || f.Value != "loader" {
		t.Errorf("Helper field = %+v", f)
	}
	if f := Client(9); f.Value != uint64(9) {
		t.Errorf("Client field = %+v", f)
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Info("ignored", String("k", "v"))
	if _, ok := logger.With(Component("x")).(NopLogger); !ok {
		t.Error("With on NopLogger should return NopLogger")
	}
}

func TestOrDefault(t *testing.T) {
	nop := NewNopLogger()
	if OrDefault(nop) != nop {
		t.Error("OrDefault should keep a non-nil logger")
	}
	SetDefaultLogger(nop)
	if OrDefault(nil) != nop {
		t.Error("OrDefault(nil) should return the default logger")
	}
}
