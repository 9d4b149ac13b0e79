package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewLogger_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level to be info, got %s", cfg.Level)
	}
	if cfg.Component != "airtime" {
		t.Errorf("expected default component to be airtime, got %s", cfg.Component)
	}
	if cfg.JSONFormat {
		t.Error("expected default format to be human-readable")
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{
		Level:      LevelDebug,
		Component:  "test",
		JSONFormat: true,
		Output:     &buf,
	})

	log.Info("speaker started", F("gender", "women"), F("elapsed", 12.5))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry["component"] != "test" {
		t.Errorf("component = %v, want test", entry["component"])
	}
	if entry["message"] != "speaker started" {
		t.Errorf("message = %v, want 'speaker started'", entry["message"])
	}
	if entry["gender"] != "women" {
		t.Errorf("gender = %v, want women", entry["gender"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{
		Level:      LevelWarn,
		Component:  "test",
		JSONFormat: true,
		Output:     &buf,
	})

	log.Debug("debug message")
	log.Info("info message")
	log.Warn("warn message")

	out := buf.String()
	if strings.Contains(out, "debug message") {
		t.Error("debug message should be filtered at warn level")
	}
	if strings.Contains(out, "info message") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "warn message") {
		t.Error("warn message should be logged at warn level")
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{
		Level:      LevelInfo,
		Component:  "test",
		JSONFormat: true,
		Output:     &buf,
	})

	child := log.With(F("session", "abc-123"))
	child.Info("hello")

	if !strings.Contains(buf.String(), "abc-123") {
		t.Error("expected session field from With() in output")
	}
}

func TestLogger_ErrField(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{
		Level:      LevelInfo,
		Component:  "test",
		JSONFormat: true,
		Output:     &buf,
	})

	log.Error("send failed", Err(errors.New("peer gone")))

	if !strings.Contains(buf.String(), "peer gone") {
		t.Error("expected error text in output")
	}
}

func TestLogger_SendsToSinks(t *testing.T) {
	sink := &recordingSink{}
	log := NewLogger(&Config{
		Level:      LevelInfo,
		Component:  "test",
		JSONFormat: true,
		Output:     &bytes.Buffer{},
		Sinks:      []Sink{sink},
	})

	log.Info("committed sample", F("gender", "men"), F("duration", 5.0))

	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 sink entry, got %d", len(sink.entries))
	}
	entry := sink.entries[0]
	if entry.Level != "info" {
		t.Errorf("level = %s, want info", entry.Level)
	}
	if entry.Message != "committed sample" {
		t.Errorf("message = %s, want 'committed sample'", entry.Message)
	}
	if entry.Fields["gender"] != "men" {
		t.Errorf("gender field = %s, want men", entry.Fields["gender"])
	}
	if time.Since(entry.Timestamp) > time.Minute {
		t.Error("entry timestamp should be recent")
	}
}

// recordingSink collects entries synchronously.
type recordingSink struct {
	entries []JournalEntry
}

func (s *recordingSink) Write(entry JournalEntry)      { s.entries = append(s.entries, entry) }
func (s *recordingSink) Flush(_ context.Context) error { return nil }
func (s *recordingSink) Close() error                  { return nil }
