package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("query", Warn, &buf)

	logger.Debug("hidden %d", 1)
	logger.Info("hidden %d", 2)
	logger.Warn("visible %d", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("Expected debug/info to be filtered, got: %s", out)
	}
	if !strings.Contains(out, "visible 3") || !strings.Contains(out, "[query]") {
		t.Fatalf("Expected warn line with name, got: %s", out)
	}
}

func TestLogger_NamedAndJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("mdquery", Debug, &buf)
	logger.JSON = true

	logger.Named("engine").Info("gathered %d items", 4)

	var e entry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &e); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if e.Service != "mdquery/engine" || e.Message != "gathered 4 items" || e.Level != "INFO" {
		t.Fatalf("Unexpected entry: %+v", e)
	}
}

func TestLogger_FatalUsesExit(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("", Debug, &buf)

	code := -1
	logger.exit = func(c int) { code = c }
	logger.Fatal("boom")

	if code != 1 {
		t.Fatalf("Expected exit code 1, got %d", code)
	}
}

func TestLogger_DiscardAndNil(t *testing.T) {
	Discard().Error("nothing")

	var logger *Logger
	logger.Info("nil logger must not panic")
	if logger.Named("x") != nil {
		t.Fatalf("Expected nil child for nil logger")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": Debug,
		"":      Info,
		"WARN":  Warn,
		"off":   Off,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("Expected error for invalid level")
	}
}
