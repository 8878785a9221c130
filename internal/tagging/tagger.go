package tagging

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
	"curator/internal/services"
	"curator/internal/tagnorm"
)

const userAgent = "Curator-Go/0.1.0"

// Prediction is one tag candidate with the model's confidence.
type Prediction struct {
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
}

// Request identifies the staged file to tag.
type Request struct {
	JobID string `json:"job_id"`
	Path  string `json:"path"`
}

// Tagger predicts tags for a staged media file.
type Tagger interface {
	Tag(ctx context.Context, req Request) ([]string, error)
}

// NewTagger builds the configured tagging adapter. Disabled tagging yields a
// noop that returns no tags.
func NewTagger(cfg config.Tagging) (Tagger, error) {
	if !cfg.Enabled {
		return noopTagger{}, nil
	}
	base := strings.TrimSpace(cfg.URL)
	if base == "" {
		return nil, services.Wrap(services.ErrConfiguration, "tagging", "tagger", "tagging url not configured", nil)
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &httpTagger{
		baseURL:       strings.TrimRight(base, "/"),
		minConfidence: cfg.MinConfidence,
		client:        &http.Client{Timeout: timeout},
	}, nil
}

type httpTagger struct {
	baseURL       string
	minConfidence float64
	client        *http.Client
}

func (t *httpTagger) Tag(ctx context.Context, req Request) ([]string, error) {
	if strings.TrimSpace(req.Path) == "" {
		return nil, services.Wrap(services.ErrValidation, "tagging", "tag", "file path is empty", nil)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode tag request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/tag", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build tag request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, services.Wrap(services.ErrTimeout, "tagging", "tag", "request deadline exceeded", err)
		}
		return nil, services.Wrap(services.ErrTagging, "tagging", "tag", "tagging service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, services.Wrap(services.ErrTagging, "tagging", "tag",
			fmt.Sprintf("tagging service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))), nil)
	}

	var payload struct {
		Predictions []Prediction `json:"predictions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrTagging, "tagging", "tag", "malformed tagging response", err)
	}

	return t.filter(payload.Predictions), nil
}

func (t *httpTagger) filter(predictions []Prediction) []string {
	tags := make([]string, 0, len(predictions))
	for _, p := range predictions {
		if p.Confidence < t.minConfidence {
			continue
		}
		tags = append(tags, p.Tag)
	}
	return tagnorm.NormalizeAll(tags)
}

type noopTagger struct{}

func (noopTagger) Tag(context.Context, Request) ([]string, error) { return nil, nil }
