package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"nojerky/core"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "info", Format: "json"})
	logger.Info("planned", slog.Int("steps", 100))
	logger.Debug("dropped")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("expected a single JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "planned" || rec["steps"] != float64(100) {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestBridgeCore(t *testing.T) {
	defer core.SetDebugWriter(func(string) {})
	defer core.SetDebugEnabled(false)

	var buf bytes.Buffer
	BridgeCore(New(&buf, Config{Level: "debug"}))
	if !core.IsDebugEnabled() {
		t.Fatal("core debug output should follow the logger level")
	}
	core.DebugPrintln("[MOVE] oid=0 steps=3\n")
	if !strings.Contains(buf.String(), "component=core") || !strings.Contains(buf.String(), "steps=3") {
		t.Errorf("core message not bridged: %q", buf.String())
	}

	BridgeCore(New(&buf, Config{Level: "info"}))
	if core.IsDebugEnabled() {
		t.Error("core debug output should be off at info level")
	}
}

func TestWithCommandID(t *testing.T) {
	var buf bytes.Buffer
	logger, id := WithCommandID(New(&buf, Config{Format: "json"}))
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("command id %q is not a UUID: %v", id, err)
	}
	logger.Info("move")
	if !strings.Contains(buf.String(), id) {
		t.Errorf("record missing command id: %q", buf.String())
	}
}
