package notifications

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"curator/internal/config"
)

func TestNoTopicReturnsNoop(t *testing.T) {
	service := NewService(config.Notifications{})
	if err := service.NotifyCompleted(context.Background(), "j1", 42, 5); err != nil {
		t.Fatalf("noop notify: %v", err)
	}
	if err := service.TestNotification(context.Background()); err != nil {
		t.Fatalf("noop test: %v", err)
	}
}

func TestNotifyCompletedSendsMessage(t *testing.T) {
	var gotTitle, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
	}))
	t.Cleanup(server.Close)

	service := NewService(config.Notifications{
		NtfyTopic:      server.URL,
		RequestTimeout: 5,
		Completed:      true,
	})
	if err := service.NotifyCompleted(context.Background(), "j1", 42, 5); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if gotTitle != "Curator - Published" {
		t.Fatalf("title = %q", gotTitle)
	}
	if !strings.Contains(gotBody, "item 42") {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestDisabledCategorySkipsSend(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	t.Cleanup(server.Close)

	service := NewService(config.Notifications{
		NtfyTopic:      server.URL,
		RequestTimeout: 5,
		Completed:      false,
	})
	if err := service.NotifyCompleted(context.Background(), "j1", 42, 5); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if called {
		t.Fatal("disabled category still sent a notification")
	}
}

func TestNotifyFailedSetsHighPriority(t *testing.T) {
	var gotPriority string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPriority = r.Header.Get("Priority")
	}))
	t.Cleanup(server.Close)

	service := NewService(config.Notifications{
		NtfyTopic:      server.URL,
		RequestTimeout: 5,
		Errors:         true,
	})
	if err := service.NotifyFailed(context.Background(), "j1", "extractor down"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if gotPriority != "high" {
		t.Fatalf("priority = %q", gotPriority)
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	service := NewService(config.Notifications{
		NtfyTopic:      server.URL,
		RequestTimeout: 5,
	})
	if err := service.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error from ntfy failure")
	}
}
