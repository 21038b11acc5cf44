package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	lg := NewWithOutput("WARN", "scheduler", &buf)

	lg.Debug("debug line")
	lg.Info("info line")
	lg.Warn("warn line: n=%d", 3)
	lg.Error("error line")

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Fatalf("Expected DEBUG and INFO to be filtered, got:\n%s", out)
	}
	if !strings.Contains(out, "[WARN] scheduler: ") || !strings.Contains(out, "warn line: n=3") {
		t.Fatalf("Missing WARN line, got:\n%s", out)
	}
	if !strings.Contains(out, "[ERROR] scheduler: ") {
		t.Fatalf("Missing ERROR line, got:\n%s", out)
	}
	if !strings.Contains(out, "log_test.go") {
		t.Fatalf("Expected caller file name in output, got:\n%s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"DEBUG": DEBUG,
		"debug": DEBUG,
		"WARN":  WARN,
		"ERROR": ERROR,
		"bogus": INFO,
		"":      INFO,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFieldsSorted(t *testing.T) {
	got := Fields(map[string]interface{}{"task_num": 4, "phase": "map"})
	if got != "phase=map task_num=4" {
		t.Fatalf("Unexpected fields rendering: %q", got)
	}
}
