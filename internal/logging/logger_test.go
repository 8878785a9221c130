package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"curator/internal/services"
)

func TestConsoleHandlerFormatsComponent(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	logger.Info("job enqueued", String(FieldComponent, "scheduler"), String(FieldJobID, "abc"))

	line := buf.String()
	if !strings.Contains(line, "INFO scheduler: job enqueued") {
		t.Fatalf("unexpected console line: %q", line)
	}
	if !strings.Contains(line, "job_id=abc") {
		t.Fatalf("expected job_id attr in line: %q", line)
	}
}

func TestConsoleHandlerQuotesValues(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	logger.Warn("phase failed", String("error_message", "archive unreachable"))

	line := buf.String()
	if !strings.Contains(line, `error_message="archive unreachable"`) {
		t.Fatalf("expected quoted value in line: %q", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be suppressed: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn line should appear: %q", out)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	ctx := services.WithJobID(context.Background(), "job-7")
	ctx = services.WithPhase(ctx, "uploading")
	WithContext(ctx, logger).Info("phase started")

	line := buf.String()
	if !strings.Contains(line, "job_id=job-7") || !strings.Contains(line, "phase=uploading") {
		t.Fatalf("expected context fields in line: %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNop()
	// Must not panic and must report disabled for all levels.
	logger.Error("ignored")
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should be disabled")
	}
}
