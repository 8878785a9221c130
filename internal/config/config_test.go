package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"curator/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func minimalConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	return `
[paths]
staging_dir = "` + filepath.Join(base, "staging") + `"
log_dir = "` + filepath.Join(base, "logs") + `"

[extractor]
url = "http://localhost:9001"

[tagging]
url = "http://localhost:9002"

[archive]
endpoint = "http://localhost:9003"
`
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig(t))
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Workers.Concurrency != 3 {
		t.Fatalf("expected default concurrency 3, got %d", cfg.Workers.Concurrency)
	}
	if cfg.Workers.MaxRetries != 3 {
		t.Fatalf("expected default max_retries 3, got %d", cfg.Workers.MaxRetries)
	}
	if cfg.Events.SubscriberBuffer != 64 {
		t.Fatalf("expected default subscriber buffer, got %d", cfg.Events.SubscriberBuffer)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("expected console format, got %q", cfg.Logging.Format)
	}
}

func TestLoadRequiresExtractorURL(t *testing.T) {
	base := t.TempDir()
	path := writeConfig(t, `
[paths]
staging_dir = "`+filepath.Join(base, "staging")+`"
log_dir = "`+filepath.Join(base, "logs")+`"

[archive]
endpoint = "http://localhost:9003"
`)
	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for missing extractor url")
	}
	if !strings.Contains(err.Error(), "extractor.url") {
		t.Fatalf("expected extractor.url error, got %v", err)
	}
}

func TestLoadRejectsBadBackoff(t *testing.T) {
	path := writeConfig(t, minimalConfig(t)+`
[workers]
backoff_factor = 0.5
`)
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "backoff_factor") {
		t.Fatalf("expected backoff_factor error, got %v", err)
	}
}

func TestLoadRejectsTaggingWithoutURL(t *testing.T) {
	base := t.TempDir()
	path := writeConfig(t, `
[paths]
staging_dir = "`+filepath.Join(base, "staging")+`"
log_dir = "`+filepath.Join(base, "logs")+`"

[extractor]
url = "http://localhost:9001"

[tagging]
enabled = true

[archive]
endpoint = "http://localhost:9003"
`)
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "tagging.url") {
		t.Fatalf("expected tagging.url error, got %v", err)
	}
}

func TestTaggingDisabledSkipsURLCheck(t *testing.T) {
	base := t.TempDir()
	path := writeConfig(t, `
[paths]
staging_dir = "`+filepath.Join(base, "staging")+`"
log_dir = "`+filepath.Join(base, "logs")+`"

[extractor]
url = "http://localhost:9001"

[tagging]
enabled = false

[archive]
endpoint = "http://localhost:9003"
`)
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Tagging.Enabled {
		t.Fatal("expected tagging disabled")
	}
}

func TestNormalizeTrimsEndpoints(t *testing.T) {
	base := t.TempDir()
	path := writeConfig(t, `
[paths]
staging_dir = "`+filepath.Join(base, "staging")+`"
log_dir = "`+filepath.Join(base, "logs")+`"

[extractor]
url = "http://localhost:9001/"

[tagging]
url = "http://localhost:9002"

[archive]
endpoint = "http://localhost:9003/"
`)
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Archive.Endpoint != "http://localhost:9003" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Archive.Endpoint)
	}
	if cfg.Extractor.URL != "http://localhost:9001" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Extractor.URL)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[workers]") {
		t.Fatal("sample config missing workers section")
	}
}
