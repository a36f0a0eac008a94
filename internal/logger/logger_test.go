package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriter(t *testing.T) {
	t.Run("JSON format", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewWithWriter(&buf, "debug", "json")
		l.Debug().Str("key", "conv-1").Msg("Saved draft")

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("Expected one JSON line, got %q: %v", buf.String(), err)
		}
		if entry["message"] != "Saved draft" || entry["key"] != "conv-1" {
			t.Errorf("Unexpected entry %v", entry)
		}
		for _, field := range []string{"pid", "go_version", "git_revision", "caller"} {
			if _, ok := entry[field]; !ok {
				t.Errorf("Expected field %q", field)
			}
		}
	})

	t.Run("Console format", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewWithWriter(&buf, "info", "console")
		l.Info().Msg("Hello")

		if !strings.Contains(buf.String(), "Hello") || strings.HasPrefix(buf.String(), "{") {
			t.Errorf("Expected console output, got %q", buf.String())
		}
	})

	t.Run("Level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewWithWriter(&buf, "WARN", "json")
		l.Info().Msg("hidden")

		if buf.Len() != 0 {
			t.Errorf("Expected info to be filtered at warn, got %q", buf.String())
		}
		if l.GetLevel() != zerolog.WarnLevel {
			t.Errorf("Expected warn level, got %s", l.GetLevel())
		}
	})

	t.Run("Invalid level", func(t *testing.T) {
		l := NewWithWriter(&bytes.Buffer{}, "loud", "json")
		if l.GetLevel() != zerolog.InfoLevel {
			t.Errorf("Expected fallback to info, got %s", l.GetLevel())
		}
	})
}
