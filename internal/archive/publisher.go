package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"curator/internal/config"
	"curator/internal/creds"
	"curator/internal/queue"
	"curator/internal/services"
)

const userAgent = "Curator-Go/0.1.0"

// Item is an archive record as returned by the archive API.
type Item struct {
	ID          int64        `json:"id"`
	Tags        []string     `json:"tags"`
	Safety      queue.Safety `json:"safety"`
	RelatedIDs  []int64      `json:"related_ids,omitempty"`
	Fingerprint string       `json:"fingerprint,omitempty"`
}

// CreateRequest describes a new item to upload.
type CreateRequest struct {
	FilePath    string
	ContentType string
	Fingerprint string
	Tags        []string
	Safety      queue.Safety
}

// UpdateRequest carries the mutable item fields.
type UpdateRequest struct {
	Tags   []string     `json:"tags"`
	Safety queue.Safety `json:"safety"`
}

// Publisher is the archive surface the pipeline depends on.
type Publisher interface {
	// FindByFingerprint returns the matching item, or nil when the archive
	// holds no item with that fingerprint.
	FindByFingerprint(ctx context.Context, owner, fingerprint string) (*Item, error)
	Create(ctx context.Context, owner string, req CreateRequest) (*Item, error)
	Update(ctx context.Context, owner string, id int64, req UpdateRequest) (*Item, error)
	// Relate links two items bidirectionally.
	Relate(ctx context.Context, owner string, a, b int64) error
}

type httpPublisher struct {
	endpoint string
	creds    *creds.Store
	client   *http.Client
}

// NewHTTPPublisher builds the archive client over the configured endpoint and
// credential store.
func NewHTTPPublisher(cfg config.Archive, store *creds.Store) (Publisher, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, "uploading", "archive", "archive endpoint not configured", nil)
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &httpPublisher{
		endpoint: strings.TrimRight(endpoint, "/"),
		creds:    store,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (p *httpPublisher) FindByFingerprint(ctx context.Context, owner, fingerprint string) (*Item, error) {
	if strings.TrimSpace(fingerprint) == "" {
		return nil, services.Wrap(services.ErrValidation, "uploading", "lookup", "fingerprint is empty", nil)
	}
	cred, endpoint, err := p.resolve(owner)
	if err != nil {
		return nil, err
	}

	lookupURL := endpoint + "/items?fingerprint=" + url.QueryEscape(fingerprint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build lookup request: %w", err)
	}
	p.authorize(req, cred)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, p.transportError(ctx, "lookup", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var item Item
		if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
			return nil, services.Wrap(services.ErrUpload, "uploading", "lookup", "malformed archive response", err)
		}
		return &item, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, p.statusError("lookup", resp)
	}
}

func (p *httpPublisher) Create(ctx context.Context, owner string, createReq CreateRequest) (*Item, error) {
	cred, endpoint, err := p.resolve(owner)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(createReq.FilePath)
	if err != nil {
		return nil, services.Wrap(services.ErrUpload, "uploading", "create", "open staged file", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("content", filepath.Base(createReq.FilePath))
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, services.Wrap(services.ErrUpload, "uploading", "create", "read staged file", err)
	}
	meta := map[string]any{
		"fingerprint": createReq.Fingerprint,
		"tags":        createReq.Tags,
		"safety":      createReq.Safety,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode item metadata: %w", err)
	}
	if err := writer.WriteField("metadata", string(metaJSON)); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/items", &body)
	if err != nil {
		return nil, fmt.Errorf("build create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	p.authorize(req, cred)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, p.transportError(ctx, "create", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, p.statusError("create", resp)
	}
	var item Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, services.Wrap(services.ErrUpload, "uploading", "create", "malformed archive response", err)
	}
	return &item, nil
}

func (p *httpPublisher) Update(ctx context.Context, owner string, id int64, updateReq UpdateRequest) (*Item, error) {
	cred, endpoint, err := p.resolve(owner)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(updateReq)
	if err != nil {
		return nil, fmt.Errorf("encode update request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		fmt.Sprintf("%s/items/%d", endpoint, id), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	p.authorize(req, cred)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, p.transportError(ctx, "update", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.statusError("update", resp)
	}
	var item Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, services.Wrap(services.ErrUpload, "uploading", "update", "malformed archive response", err)
	}
	return &item, nil
}

func (p *httpPublisher) Relate(ctx context.Context, owner string, a, b int64) error {
	cred, endpoint, err := p.resolve(owner)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]int64{"related_id": b})
	if err != nil {
		return fmt.Errorf("encode relation request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/items/%d/relations", endpoint, a), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build relation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	p.authorize(req, cred)

	resp, err := p.client.Do(req)
	if err != nil {
		return p.transportError(ctx, "relate", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return p.statusError("relate", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// resolve decrypts the owner's credential and picks the effective endpoint.
// A credential may carry a per-user endpoint overriding the global one.
func (p *httpPublisher) resolve(owner string) (creds.Credential, string, error) {
	cred, err := p.creds.ForOwner(owner)
	if err != nil {
		return creds.Credential{}, "", err
	}
	endpoint := p.endpoint
	if override := strings.TrimRight(strings.TrimSpace(cred.Endpoint), "/"); override != "" {
		endpoint = override
	}
	return cred, endpoint, nil
}

func (p *httpPublisher) authorize(req *http.Request, cred creds.Credential) {
	req.Header.Set("User-Agent", userAgent)
	req.SetBasicAuth(cred.Username, cred.APIKey)
}

func (p *httpPublisher) transportError(ctx context.Context, operation string, err error) error {
	if ctx.Err() != nil {
		return services.Wrap(services.ErrTimeout, "uploading", operation, "request deadline exceeded", err)
	}
	return services.Wrap(services.ErrUpload, "uploading", operation, "archive unreachable", err)
}

func (p *httpPublisher) statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	detail := strings.TrimSpace(string(body))
	if detail == "" {
		detail = "no detail"
	}
	return services.Wrap(services.ErrUpload, "uploading", operation,
		fmt.Sprintf("archive returned %d: %s", resp.StatusCode, detail), nil)
}
