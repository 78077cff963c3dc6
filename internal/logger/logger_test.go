package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("quantized", "dtype", "quint8")

	output := buf.String()
	if !strings.Contains(output, `"msg":"quantized"`) {
		t.Fatalf("expected message in output, got: %s", output)
	}
	if !strings.Contains(output, `"dtype":"quint8"`) {
		t.Fatalf("expected dtype attr in JSON output, got: %s", output)
	}
}

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("should not appear")
	if buf.Len() > 0 {
		t.Fatalf("expected no output for info at warn level, got: %s", buf.String())
	}
	log.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected warn message in output, got: %s", buf.String())
	}
}

func TestSetup(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log, err := Setup(&buf, "json", "debug")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	log.Debug("visible")
	if !strings.Contains(buf.String(), `"level":"DEBUG"`) {
		t.Fatalf("expected debug JSON record, got: %s", buf.String())
	}

	buf.Reset()
	log, err = Setup(&buf, "text", "warn")
	if err != nil {
		t.Fatalf("Setup text: %v", err)
	}
	log.Info("hidden")
	log.Warn("shown", "k", "v")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "k=v") {
		t.Fatalf("unexpected text output: %s", buf.String())
	}

	if _, err := Setup(&buf, "xml", "info"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))
	FromContext(ctx).With("component", "launch").Info("roundtrip")
	if !strings.Contains(buf.String(), `"component":"launch"`) {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext with no logger returned nil")
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard()
	log.With("a", 1).WithGroup("g").Error("dropped")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{" warning ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.input); got != tc.expected {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tc.input, tc.expected, got)
		}
	}
}

func TestPrettyWithoutColor(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil).WithoutColor()
	slog.New(h).Info("launch", "workers", 4, "elapsed", 1500*time.Millisecond)

	output := buf.String()
	if strings.Contains(output, "\033[") {
		t.Fatalf("expected no ANSI escapes, got: %q", output)
	}
	if !strings.Contains(output, "INFO  launch workers=4 elapsed=1.5s") {
		t.Fatalf("unexpected pretty output: %q", output)
	}
}

func TestPrettyGroups(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil).WithoutColor()
	logger := slog.New(h.WithGroup("a").WithGroup("b"))
	logger.Info("nested", "key", "val", slog.Group("q", "scale", 0.5))

	output := buf.String()
	if !strings.Contains(output, "a.b.key=val") {
		t.Fatalf("expected 'a.b.key=val' in output, got: %s", output)
	}
	if !strings.Contains(output, "a.b.q.scale=0.5") {
		t.Fatalf("expected flattened group attr in output, got: %s", output)
	}
	if h.WithGroup("") != slog.Handler(h) {
		t.Fatal("WithGroup empty string should return same handler")
	}
}

func TestPrettyHandlerEnabled(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info to be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error to be enabled at warn level")
	}
}

func TestPrettyQuoting(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	slog.New(NewPrettyHandler(&buf, nil).WithoutColor()).Info("test", "msg", "hello world", "key", "simple")

	output := buf.String()
	if !strings.Contains(output, `msg="hello world"`) {
		t.Fatalf("expected quoted string with spaces, got: %s", output)
	}
	if !strings.Contains(output, "key=simple") {
		t.Fatalf("expected unquoted simple string, got: %s", output)
	}
}

func TestTimed(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	done := Timed(JSON(&buf, slog.LevelDebug), "write", "path", "out.safetensors")
	if buf.Len() > 0 {
		t.Fatalf("Timed logged before completion: %s", buf.String())
	}
	done()
	out := buf.String()
	if !strings.Contains(out, `"msg":"write"`) || !strings.Contains(out, `"path":"out.safetensors"`) || !strings.Contains(out, `"elapsed"`) {
		t.Fatalf("unexpected Timed output: %s", out)
	}
}

func TestPrettyWithAttrsKeepsGroupAtCallTime(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	base := slog.New(NewPrettyHandler(&buf, nil).WithoutColor())
	base.With("op", "int_repr").WithGroup("q").With("scale", 0.25).Info("run", "zero_point", 3)

	output := buf.String()
	if !strings.Contains(output, "run op=int_repr q.scale=0.25 q.zero_point=3") {
		t.Fatalf("unexpected attr qualification: %q", output)
	}
}
