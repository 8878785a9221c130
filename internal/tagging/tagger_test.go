package tagging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"curator/internal/config"
	"curator/internal/services"
)

func newTestTagger(t *testing.T, minConfidence float64, handler http.HandlerFunc) Tagger {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tagger, err := NewTagger(config.Tagging{
		Enabled:        true,
		URL:            server.URL,
		MinConfidence:  minConfidence,
		RequestTimeout: 5,
	})
	if err != nil {
		t.Fatalf("new tagger: %v", err)
	}
	return tagger
}

func TestTagFiltersByConfidence(t *testing.T) {
	tagger := newTestTagger(t, 0.5, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"predictions": []Prediction{
				{Tag: "Landscape", Confidence: 0.93},
				{Tag: "water color", Confidence: 0.61},
				{Tag: "blurry", Confidence: 0.2},
			},
		})
	})

	tags, err := tagger.Tag(context.Background(), Request{JobID: "j1", Path: "/staging/a.png"})
	if err != nil {
		t.Fatalf("tag: %v", err)
	}
	want := []string{"landscape", "water_color"}
	if !reflect.DeepEqual(tags, want) {
		t.Fatalf("tags = %v, want %v", tags, want)
	}
}

func TestTagServiceErrorIsRetryable(t *testing.T) {
	tagger := newTestTagger(t, 0.5, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	})

	_, err := tagger.Tag(context.Background(), Request{Path: "/staging/a.png"})
	if !errors.Is(err, services.ErrTagging) {
		t.Fatalf("expected tagging error, got %v", err)
	}
	if !services.IsRetryable(err) {
		t.Fatal("tagging failures should be retryable")
	}
}

func TestTagRejectsEmptyPath(t *testing.T) {
	tagger := newTestTagger(t, 0.5, func(w http.ResponseWriter, r *http.Request) {})
	_, err := tagger.Tag(context.Background(), Request{JobID: "j1"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDisabledTaggingReturnsNoop(t *testing.T) {
	tagger, err := NewTagger(config.Tagging{Enabled: false})
	if err != nil {
		t.Fatalf("new tagger: %v", err)
	}
	tags, err := tagger.Tag(context.Background(), Request{Path: "/staging/a.png"})
	if err != nil {
		t.Fatalf("noop tag: %v", err)
	}
	if tags != nil {
		t.Fatalf("noop tags = %v", tags)
	}
}

func TestEnabledTaggingRequiresURL(t *testing.T) {
	_, err := NewTagger(config.Tagging{Enabled: true})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
