package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"longform-scriptgen/internal/config"
)

func TestWith_AddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := newWithWriter(config.LogConfig{Level: "info", Format: "json"}, false, &buf)

	ctx := WithJobID(WithTraceID(context.Background(), "tr-1"), "job-1")
	With(ctx, base).Info().Msg("hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if rec["trace_id"] != "tr-1" || rec["job_id"] != "job-1" {
		t.Fatalf("missing context fields: %v", rec)
	}
	if TraceID(ctx) != "tr-1" {
		t.Fatalf("TraceID = %q", TraceID(ctx))
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("short", false); got != "***" {
		t.Errorf("Redact(short) = %q", got)
	}
	if got := Redact("sk-abcdefghijkl", false); got != "sk-a...kl" {
		t.Errorf("Redact(long) = %q", got)
	}
	if got := Redact("secret", true); got != "secret" {
		t.Errorf("dev Redact = %q", got)
	}
}

func TestTraceDuration(t *testing.T) {
	var buf bytes.Buffer
	base := newWithWriter(config.LogConfig{Level: "trace", Format: "json"}, false, &buf)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	done := TraceDuration(base, "Library.Export")
	done()

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("want start and finish lines, got %q", buf.String())
	}
	var end map[string]any
	if err := json.Unmarshal(lines[1], &end); err != nil {
		t.Fatal(err)
	}
	if end["method"] != "Library.Export" || end["message"] != "finish" {
		t.Fatalf("finish line = %v", end)
	}
	if _, ok := end["duration"]; !ok {
		t.Errorf("finish line without duration: %v", end)
	}
}
