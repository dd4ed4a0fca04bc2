package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	tests := []struct {
		level     string
		debugSeen bool
	}{
		{"debug", true},
		{"INFO", false},
		{"", false},
		{"bogus", false},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := NewWithWriter(&buf, tt.level, false)
		logger.Debug().Msg("probe")
		if got := strings.Contains(buf.String(), "probe"); got != tt.debugSeen {
			t.Errorf("level %q: debug written = %v", tt.level, got)
		}
	}
}

func TestJSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", false)
	logger.Info().Str("component", "engine").Msg("[+] done")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not JSON: %v (%s)", err, buf.String())
	}
	if entry["component"] != "engine" || entry["message"] != "[+] done" || entry["time"] == nil {
		t.Errorf("entry = %v", entry)
	}
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	if got := LevelFromEnv("warn"); got != "warn" {
		t.Errorf("fallback = %s", got)
	}
	t.Setenv("LOG_LEVEL", "trace")
	if got := LevelFromEnv("warn"); got != "trace" {
		t.Errorf("env = %s", got)
	}
}
