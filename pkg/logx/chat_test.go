package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestFormatChatLine(t *testing.T) {
	t.Parallel()
	line := `{"level":"warn","time":"x","message":"save failed","path":"/tmp/a.json","err":"disk full"}`
	got := formatChatLine([]byte(line))
	want := "[WARN] save failed\n- err=disk full\n- path=/tmp/a.json"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFormatChatLineNotJSON(t *testing.T) {
	t.Parallel()
	if got := formatChatLine([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("got %q", got)
	}
	long := strings.Repeat("a", chatMaxLen+10)
	if got := formatChatLine([]byte(long)); len(got) != chatMaxLen || !strings.HasSuffix(got, "...") {
		t.Fatalf("expected truncation to %d, got %d", chatMaxLen, len(got))
	}
}

func TestLoggerWithFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("component", "link"))
	log.Info("linked", String("chat_id", "42"), Int("ids", 2))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("not JSON: %v (%q)", err, buf.String())
	}
	if m["component"] != "link" || m["chat_id"] != "42" || m["ids"] != float64(2) {
		t.Fatalf("fields = %v", m)
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "chat_test.go:") {
		t.Fatalf("caller = %v", m["caller"])
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Error("dropped", Err(nil))
	if Nop().IsZero() {
		t.Fatal("Nop is not the zero value")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	if ParseLevel(" WARNING ", LevelDebug) != LevelWarn {
		t.Fatal("warning alias")
	}
	if ParseLevel("loud", LevelInfo) != LevelInfo {
		t.Fatal("unknown should fall back")
	}
}
