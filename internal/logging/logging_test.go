package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "WARN")

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected INFO to be filtered, got %s", buf.String())
	}

	logger.Warn("kept", "k", "v")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["msg"] != "kept" || entry["k"] != "v" {
		t.Errorf("unexpected entry %v", entry)
	}
	if entry["service"] != "portfolio-api" {
		t.Errorf("expected service attribute, got %v", entry["service"])
	}
	if _, ok := entry["stacktrace"]; ok {
		t.Error("WARN entries should not carry a stack trace")
	}
}

func TestNew_ErrorIncludesStackTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "INFO").With("request_id", "abc")

	logger.Error("boom")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	trace, _ := entry["stacktrace"].(string)
	if !strings.Contains(trace, "goroutine") {
		t.Errorf("expected a stack trace, got %q", trace)
	}
	if entry["request_id"] != "abc" {
		t.Errorf("expected attrs to survive WithAttrs, got %v", entry["request_id"])
	}
}
