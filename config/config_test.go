package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andreyvit/streamrep/backoff"
	"github.com/andreyvit/streamrep/jsonext"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTemp(t, "config.json", `{
		// trailing comma and comments are fine, jsonfix cleans them up
		"remote_url": "https://example.com/log",
		"start_index": 42,
		"checked": true,
		"local_db_path": "/var/lib/streamrepd/local.db",
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RemoteURL != "https://example.com/log" {
		t.Errorf("RemoteURL = %q", cfg.RemoteURL)
	}
	if cfg.StartIndex != 42 {
		t.Errorf("StartIndex = %d", cfg.StartIndex)
	}
	if !cfg.Checked {
		t.Error("Checked = false, want true")
	}
	if !cfg.ReconnectBackoff.IsZero() {
		t.Error("ReconnectBackoff should default to zero value")
	}
	if got := cfg.ReconnectBackoff.Backoff(); got != backoff.GoodBackoff {
		t.Errorf("zero BackoffConfig.Backoff() should fall back to GoodBackoff, got %+v", got)
	}
}

func TestLoad_MissingRemoteURL(t *testing.T) {
	path := writeTemp(t, "config.json", `{"start_index": 1}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing remote_url")
	}
}

func TestBackoffConfig_Backoff(t *testing.T) {
	b := BackoffConfig{
		ImmediateRetries:  2,
		FixedDelayRetries: 1,
		FixedDelay:        jsonext.Duration(500 * time.Millisecond),
	}
	got := b.Backoff()
	if got.ImmediateRetries != 2 || got.FixedDelayRetries != 1 {
		t.Fatalf("Backoff() = %+v", got)
	}
	if got.FixedDelay != 500*time.Millisecond {
		t.Fatalf("FixedDelay = %v", got.FixedDelay)
	}
}
