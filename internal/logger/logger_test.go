package logger

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func captured(level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(level)
	l.logger = log.New(&buf, "", 0)
	return l, &buf
}

func TestLevelFiltering(t *testing.T) {
	l, buf := captured(WARN)

	l.Debug("debug message")
	l.Info("info message")
	if buf.Len() != 0 {
		t.Fatalf("below-level messages were logged: %q", buf.String())
	}

	l.Warn("warn message")
	l.Error("error message")
	out := buf.String()
	if !strings.Contains(out, "[WARN] warn message") {
		t.Fatalf("missing warn line in %q", out)
	}
	if !strings.Contains(out, "[ERROR] error message") {
		t.Fatalf("missing error line in %q", out)
	}
}

func TestLevelString(t *testing.T) {
	cases := map[Level]string{
		DEBUG:     "DEBUG",
		INFO:      "INFO",
		WARN:      "WARN",
		ERROR:     "ERROR",
		Level(42): "UNKNOWN",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Fatalf("Level(%d).String() = %q, want %q", level, got, want)
		}
	}
}

func TestFormattingWithArgs(t *testing.T) {
	l, buf := captured(DEBUG)
	l.Info("loaded %d assets in %s", 3, "12ms")
	if !strings.Contains(buf.String(), "loaded 3 assets in 12ms") {
		t.Fatalf("formatted output missing: %q", buf.String())
	}
}
