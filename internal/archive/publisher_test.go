package archive

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"curator/internal/config"
	"curator/internal/creds"
	"curator/internal/queue"
	"curator/internal/services"
)

func newTestPublisher(t *testing.T, handler http.HandlerFunc) Publisher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	root := t.TempDir()
	store := creds.NewStore(filepath.Join(root, "credentials.enc"), filepath.Join(root, "credentials.key"))
	if err := store.Set("alice", creds.Credential{Username: "alice", APIKey: "k-alice"}); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}
	if err := store.Set(creds.DefaultOwner, creds.Credential{Username: "svc", APIKey: "k-svc"}); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}

	pub, err := NewHTTPPublisher(config.Archive{Endpoint: server.URL, RequestTimeout: 5}, store)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	return pub
}

func TestFindByFingerprintHit(t *testing.T) {
	pub := newTestPublisher(t, func(w http.ResponseWriter, r *http.Request) {
		user, key, ok := r.BasicAuth()
		if !ok || user != "alice" || key != "k-alice" {
			t.Errorf("credentials not forwarded: %s/%s", user, key)
		}
		if got := r.URL.Query().Get("fingerprint"); got != "fp-1" {
			t.Errorf("fingerprint = %q", got)
		}
		_ = json.NewEncoder(w).Encode(Item{ID: 7, Tags: []string{"sunset"}, Safety: queue.SafetySafe})
	})

	item, err := pub.FindByFingerprint(context.Background(), "alice", "fp-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if item == nil || item.ID != 7 {
		t.Fatalf("item = %+v", item)
	}
}

func TestFindByFingerprintMiss(t *testing.T) {
	pub := newTestPublisher(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	item, err := pub.FindByFingerprint(context.Background(), "alice", "fp-none")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if item != nil {
		t.Fatalf("expected no match, got %+v", item)
	}
}

func TestFindByFingerprintServerErrorIsUploadError(t *testing.T) {
	pub := newTestPublisher(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "db down", http.StatusInternalServerError)
	})

	_, err := pub.FindByFingerprint(context.Background(), "alice", "fp-1")
	if !errors.Is(err, services.ErrUpload) {
		t.Fatalf("expected upload error, got %v", err)
	}
	if !services.IsRetryable(err) {
		t.Fatal("archive failures should be retryable")
	}
}

func TestCreateUploadsFileAndMetadata(t *testing.T) {
	staged := filepath.Join(t.TempDir(), "item.png")
	if err := os.WriteFile(staged, []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("stage file: %v", err)
	}

	pub := newTestPublisher(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/items" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		var meta struct {
			Fingerprint string   `json:"fingerprint"`
			Tags        []string `json:"tags"`
		}
		if err := json.Unmarshal([]byte(r.FormValue("metadata")), &meta); err != nil {
			t.Errorf("parse metadata: %v", err)
		}
		if meta.Fingerprint != "fp-new" || len(meta.Tags) != 1 {
			t.Errorf("metadata = %+v", meta)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Item{ID: 42, Tags: meta.Tags, Safety: queue.SafetySafe})
	})

	item, err := pub.Create(context.Background(), "alice", CreateRequest{
		FilePath:    staged,
		Fingerprint: "fp-new",
		Tags:        []string{"sunset"},
		Safety:      queue.SafetySafe,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if item.ID != 42 {
		t.Fatalf("item id = %d", item.ID)
	}
}

func TestUpdateSendsTagsAndSafety(t *testing.T) {
	pub := newTestPublisher(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/items/7" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Safety != queue.SafetyExplicit {
			t.Errorf("safety = %s", req.Safety)
		}
		_ = json.NewEncoder(w).Encode(Item{ID: 7, Tags: req.Tags, Safety: req.Safety})
	})

	item, err := pub.Update(context.Background(), "alice", 7, UpdateRequest{
		Tags:   []string{"sunset", "beach"},
		Safety: queue.SafetyExplicit,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if item.Safety != queue.SafetyExplicit {
		t.Fatalf("safety = %s", item.Safety)
	}
}

func TestRelatePostsRelation(t *testing.T) {
	var gotPath string
	pub := newTestPublisher(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var req map[string]int64
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["related_id"] != 9 {
			t.Errorf("related_id = %d", req["related_id"])
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := pub.Relate(context.Background(), "alice", 7, 9); err != nil {
		t.Fatalf("relate: %v", err)
	}
	if gotPath != "/items/7/relations" {
		t.Fatalf("path = %s", gotPath)
	}
}

func TestMissingCredentialIsConfigurationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(server.Close)

	root := t.TempDir()
	store := creds.NewStore(filepath.Join(root, "credentials.enc"), filepath.Join(root, "credentials.key"))

	pub, err := NewHTTPPublisher(config.Archive{Endpoint: server.URL, RequestTimeout: 5}, store)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	_, err = pub.FindByFingerprint(context.Background(), "alice", "fp-1")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
