package services_test

import (
	"errors"
	"strings"
	"testing"

	"curator/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("connection refused")
	err := services.Wrap(services.ErrUpload, "uploading", "create item", "archive unreachable", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrUpload) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"uploading", "create item", "archive unreachable"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"extraction", services.Wrap(services.ErrExtraction, "downloading", "fetch", "503", nil), true},
		{"tagging", services.Wrap(services.ErrTagging, "tagging", "tag", "model busy", nil), true},
		{"upload", services.Wrap(services.ErrUpload, "uploading", "create", "rate limited", nil), true},
		{"timeout", services.Wrap(services.ErrTimeout, "downloading", "fetch", "deadline exceeded", nil), true},
		{"validation", services.Wrap(services.ErrValidation, "", "enqueue", "bad url", nil), false},
		{"configuration", services.Wrap(services.ErrConfiguration, "uploading", "credentials", "missing", nil), false},
		{"cancelled", services.Wrap(services.ErrCancelled, "tagging", "", "stop requested", nil), false},
		{"nil", nil, false},
		{"plain", errors.New("unclassified"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.IsRetryable(tc.err); got != tc.retryable {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.retryable)
			}
		})
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := t.Context()
	ctx = services.WithJobID(ctx, "job-42")
	ctx = services.WithPhase(ctx, "downloading")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "job-42" {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if phase, ok := services.PhaseFromContext(ctx); !ok || phase != "downloading" {
		t.Fatalf("unexpected phase: %v %v", phase, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankPhasePreservesContext(t *testing.T) {
	ctx := services.WithPhase(t.Context(), "")
	if _, ok := services.PhaseFromContext(ctx); ok {
		t.Fatal("expected no phase value")
	}
}
