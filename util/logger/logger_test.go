package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestHandleWritesToFileNotStderr(t *testing.T) {
	var buf bytes.Buffer
	debug := false
	h := NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, &debug)

	logger := slog.New(h)
	logger.Info("tcbsl started", "variant", "simos18")

	out := buf.String()
	if !strings.Contains(out, "tcbsl started") {
		t.Fatalf("log output = %q, want it to contain the message", out)
	}
	if !strings.Contains(out, "simos18") {
		t.Fatalf("log output = %q, want it to contain the attribute value", out)
	}
	if !strings.Contains(out, "INFO:") {
		t.Fatalf("log output = %q, want a level prefix", out)
	}
}

func TestWithAttrsPropagates(t *testing.T) {
	var buf bytes.Buffer
	debug := false
	h := NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, &debug)

	logger := slog.New(h).With("component", "sboot")
	logger.Info("induction started")

	if !strings.Contains(buf.String(), "induction started") {
		t.Fatalf("expected message in output: %q", buf.String())
	}
}
