package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"curator/internal/config"
	"curator/internal/queue"
	"curator/internal/services"
)

func newTestExtractor(t *testing.T, handler http.HandlerFunc) Extractor {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	ext, err := NewHTTPExtractor(config.Extractor{URL: server.URL, RequestTimeout: 5})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	return ext
}

func TestExtractSuccess(t *testing.T) {
	ext := newTestExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.SourceURL != "https://example.com/post/1" {
			t.Errorf("source url = %q", req.SourceURL)
		}
		_ = json.NewEncoder(w).Encode(Result{
			Files:  []File{{Path: "/staging/a.png", ContentType: "image/png"}},
			Tags:   []string{"landscape"},
			Safety: queue.SafetySafe,
		})
	})

	result, err := ext.Extract(context.Background(), Request{
		JobID:     "j1",
		SourceURL: "https://example.com/post/1",
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(result.Files) != 1 || result.Files[0].Path != "/staging/a.png" {
		t.Fatalf("files = %v", result.Files)
	}
	if result.Safety != queue.SafetySafe {
		t.Fatalf("safety = %s", result.Safety)
	}
}

func TestExtractRejectsEmptyURL(t *testing.T) {
	ext := newTestExtractor(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := ext.Extract(context.Background(), Request{JobID: "j1"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExtractServerErrorIsRetryable(t *testing.T) {
	ext := newTestExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream gone", http.StatusBadGateway)
	})
	_, err := ext.Extract(context.Background(), Request{SourceURL: "https://example.com/x"})
	if !errors.Is(err, services.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	if !services.IsRetryable(err) {
		t.Fatal("extraction failures should be retryable")
	}
}

func TestExtractValidationRejection(t *testing.T) {
	ext := newTestExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "url points at a feed, not an item", http.StatusUnprocessableEntity)
	})
	_, err := ext.Extract(context.Background(), Request{SourceURL: "https://example.com/feed"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if services.IsRetryable(err) {
		t.Fatal("validation rejections must not auto-retry")
	}
}

func TestExtractEmptyFileListRejected(t *testing.T) {
	ext := newTestExtractor(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Result{})
	})
	_, err := ext.Extract(context.Background(), Request{SourceURL: "https://example.com/x"})
	if !errors.Is(err, services.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
}

func TestNewHTTPExtractorRequiresURL(t *testing.T) {
	_, err := NewHTTPExtractor(config.Extractor{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
