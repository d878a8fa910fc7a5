package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		m := map[string]interface{}{}
		if err := json.Unmarshal(line, &m); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestZerolog_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerolog(zerolog.New(&buf))

	l.Info("line sent",
		String("address", "/dev/ttyUSB0"),
		Int("lines", 3),
		Bool("ok", true),
		Duration("took", time.Second),
		Err(errors.New("boom")),
	)

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e["message"] != "line sent" {
		t.Errorf("message = %v", e["message"])
	}
	if e["level"] != "info" {
		t.Errorf("level = %v, want info", e["level"])
	}
	if e["address"] != "/dev/ttyUSB0" {
		t.Errorf("address = %v", e["address"])
	}
	if e["lines"] != float64(3) {
		t.Errorf("lines = %v", e["lines"])
	}
	if e["error"] != "boom" {
		t.Errorf("error = %v", e["error"])
	}
}

func TestZerolog_With(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerolog(zerolog.New(&buf)).With(String("session", "abc"))

	l.Warn("first")
	l.Error("second", Int("n", 2))

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e["session"] != "abc" {
			t.Errorf("session = %v, want abc", e["session"])
		}
	}
	if entries[1]["level"] != "error" {
		t.Errorf("level = %v, want error", entries[1]["level"])
	}
}

func TestZerolog_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerolog(zerolog.New(&buf).Level(zerolog.InfoLevel))

	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug entry written at info level: %s", buf.String())
	}
}

func TestNop(t *testing.T) {
	l := NewNop()
	l.Info("ignored", String("k", "v"))
	if l.With(String("k", "v")) == nil {
		t.Fatal("With returned nil")
	}
}
