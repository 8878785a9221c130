package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"curator/internal/config"
	"curator/internal/queue"
	"curator/internal/services"
)

const userAgent = "Curator-Go/0.1.0"

// Request names the source a worker wants resolved.
type Request struct {
	JobID      string   `json:"job_id"`
	SourceURL  string   `json:"source_url"`
	Overrides  []string `json:"source_overrides,omitempty"`
	StagingDir string   `json:"staging_dir"`
}

// File is one staged media file produced by extraction. Multi-file sources
// (galleries, threads) yield several.
type File struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type,omitempty"`
}

// Result carries everything the source knew about the content.
type Result struct {
	Files  []File       `json:"files"`
	Tags   []string     `json:"tags,omitempty"`
	Safety queue.Safety `json:"safety,omitempty"`
	Source string       `json:"source,omitempty"`
}

// Extractor resolves source URLs into staged files.
type Extractor interface {
	Extract(ctx context.Context, req Request) (*Result, error)
}

type httpExtractor struct {
	baseURL string
	client  *http.Client
}

// NewHTTPExtractor builds an extractor backed by the configured extraction
// service.
func NewHTTPExtractor(cfg config.Extractor) (Extractor, error) {
	base := strings.TrimSpace(cfg.URL)
	if base == "" {
		return nil, services.Wrap(services.ErrConfiguration, "downloading", "extractor", "extractor url not configured", nil)
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &httpExtractor{
		baseURL: strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (e *httpExtractor) Extract(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.SourceURL) == "" {
		return nil, services.Wrap(services.ErrValidation, "downloading", "extract", "source url is empty", nil)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode extract request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build extract request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, services.Wrap(services.ErrTimeout, "downloading", "extract", "request deadline exceeded", err)
		}
		return nil, services.Wrap(services.ErrExtraction, "downloading", "extract", "extractor unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity, resp.StatusCode == http.StatusBadRequest:
		detail := readErrorBody(resp.Body)
		return nil, services.Wrap(services.ErrValidation, "downloading", "extract", detail, nil)
	case resp.StatusCode >= 300:
		detail := fmt.Sprintf("extractor returned %d: %s", resp.StatusCode, readErrorBody(resp.Body))
		return nil, services.Wrap(services.ErrExtraction, "downloading", "extract", detail, nil)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, services.Wrap(services.ErrExtraction, "downloading", "extract", "malformed extractor response", err)
	}
	if len(result.Files) == 0 {
		return nil, services.Wrap(services.ErrExtraction, "downloading", "extract", "extractor produced no files", nil)
	}
	return &result, nil
}

func readErrorBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 2048))
	detail := strings.TrimSpace(string(body))
	if detail == "" {
		detail = "no detail"
	}
	return detail
}
