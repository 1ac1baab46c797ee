package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, test := range tests {
		result := test.level.String()
		if result != test.expected {
			t.Errorf("LogLevel(%d).String() = %s, expected %s", test.level, result, test.expected)
		}
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{LogLevel(999), slog.LevelInfo}, // Default for unknown
	}

	for _, test := range tests {
		result := test.level.SlogLevel()
		if result != test.expected {
			t.Errorf("LogLevel(%d).SlogLevel() = %v, expected %v", test.level, result, test.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected LogLevel
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
	}

	for _, test := range tests {
		if got := ParseLevel(test.in); got != test.expected {
			t.Errorf("ParseLevel(%q) = %v, expected %v", test.in, got, test.expected)
		}
	}
}

func TestInit(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelInfo, &buf)

	Info("test-subsystem", "test message")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Error("Expected log message to appear in output")
	}
	if !strings.Contains(output, "test-subsystem") {
		t.Error("Expected subsystem to appear in output")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelInfo, &buf)

	Debug("test", "debug message")
	Info("test", "info message")

	output := buf.String()
	if strings.Contains(output, "debug message") {
		t.Error("Debug message should be filtered out at INFO level")
	}
	if !strings.Contains(output, "info message") {
		t.Error("Info message should appear at INFO level")
	}
}

type recordingSink struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (s *recordingSink) Capture(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

func (s *recordingSink) snapshot() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LogEntry(nil), s.entries...)
}

func TestRegisterSink(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelInfo, &buf)

	sink := &recordingSink{}
	remove := RegisterSink(sink)

	testErr := errors.New("boom")
	Error("test", testErr, "failure %d", 42)

	entries := sink.snapshot()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 captured entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Message != "failure 42" {
		t.Errorf("Captured message = %q, expected %q", entry.Message, "failure 42")
	}
	if entry.Level != LevelError {
		t.Errorf("Captured level = %v, expected LevelError", entry.Level)
	}
	if entry.Subsystem != "test" {
		t.Errorf("Captured subsystem = %q, expected %q", entry.Subsystem, "test")
	}
	if entry.Err == nil || entry.Err.Error() != "boom" {
		t.Errorf("Captured error = %v, expected boom", entry.Err)
	}

	remove()
	Info("test", "after removal")
	if len(sink.snapshot()) != 1 {
		t.Error("Sink should not capture entries after removal")
	}
}

func TestSinkRespectsLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelWarn, &buf)

	sink := &recordingSink{}
	remove := RegisterSink(sink)
	defer remove()

	Info("test", "filtered out")
	Warn("test", "captured")

	entries := sink.snapshot()
	if len(entries) != 1 || entries[0].Message != "captured" {
		t.Errorf("Expected only the warning to be captured, got %v", entries)
	}
}
