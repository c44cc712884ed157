package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "production", true)

	log.Info("relay started", "address", ":8080")
	log.Debug("hidden in production")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %q", len(lines), buf.String())
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("expected JSON log line: %v", err)
	}
	if record["msg"] != "relay started" {
		t.Errorf("msg = %v, want %q", record["msg"], "relay started")
	}
	if record["address"] != ":8080" {
		t.Errorf("address = %v, want %q", record["address"], ":8080")
	}
}

func TestNew_DevelopmentText(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "development", false)

	log.Debug("debug visible")

	out := buf.String()
	if !strings.Contains(out, "debug visible") {
		t.Errorf("expected debug record in development, got %q", out)
	}
	if !strings.Contains(out, "source=") {
		t.Errorf("expected source attribute in development, got %q", out)
	}
}

func TestRedactClientID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"short", "short"},
		{"Iv1.0123456789abcdef", "Iv1.0123..."},
	}

	for _, tt := range tests {
		if got := RedactClientID(tt.in); got != tt.want {
			t.Errorf("RedactClientID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
