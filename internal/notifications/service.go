package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"curator/internal/config"
)

const userAgent = "Curator-Go/0.1.0"

// Service is the notification surface used by the scheduler.
type Service interface {
	NotifyCompleted(ctx context.Context, jobID string, publishedID int64, tagCount int) error
	NotifyMerged(ctx context.Context, jobID string, publishedID int64) error
	NotifyFailed(ctx context.Context, jobID, message string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no topic is configured, a noop implementation is returned.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Completed,
		merged:    cfg.Merged,
		errors:    cfg.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	merged    bool
	errors    bool
}

func (n *ntfyService) NotifyCompleted(ctx context.Context, jobID string, publishedID int64, tagCount int) error {
	if !n.completed {
		return nil
	}
	data := payload{
		title:   "Curator - Published",
		message: fmt.Sprintf("Job %s published as item %d with %d tags", jobID, publishedID, tagCount),
		tags:    []string{"curator", "job", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyMerged(ctx context.Context, jobID string, publishedID int64) error {
	if !n.merged {
		return nil
	}
	data := payload{
		title:   "Curator - Merged",
		message: fmt.Sprintf("Job %s merged into existing item %d", jobID, publishedID),
		tags:    []string{"curator", "job", "merged"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyFailed(ctx context.Context, jobID, message string) error {
	if !n.errors {
		return nil
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = "unknown error"
	}
	data := payload{
		title:    "Curator - Job Failed",
		message:  fmt.Sprintf("Job %s failed: %s", jobID, message),
		tags:     []string{"curator", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Curator - Test",
		message:  "Notification system test",
		tags:     []string{"curator", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyCompleted(context.Context, string, int64, int) error { return nil }
func (noopService) NotifyMerged(context.Context, string, int64) error         { return nil }
func (noopService) NotifyFailed(context.Context, string, string) error        { return nil }
func (noopService) TestNotification(context.Context) error                    { return nil }
