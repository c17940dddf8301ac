package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
range:
  start_id: "2311.05222"
  end_id: "2311.05322"
paths:
  output_dir: /tmp/harvest
  progress_file: /tmp/progress.json
  stats_file: /tmp/statistics.json
  audit_db: /tmp/harvest.db
workers:
  count: 8
  resume: false
arxiv:
  download_timeout_seconds: 45
  page_timeout_seconds: 5
  pacing_ms: 500
semantic_scholar:
  max_retries: 4
  interval_keyed_ms: 100
  interval_anon_ms: 2000
ops:
  enabled: true
  port: 9191
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Range.StartID != "2311.05222" || cfg.Range.EndID != "2311.05322" {
		t.Errorf("range not loaded: %+v", cfg.Range)
	}
	if cfg.Workers.Count != 8 || cfg.Workers.Resume {
		t.Errorf("workers not loaded: %+v", cfg.Workers)
	}
	if cfg.DownloadTimeout() != 45*time.Second {
		t.Errorf("DownloadTimeout() = %v", cfg.DownloadTimeout())
	}
	if cfg.PageTimeout() != 5*time.Second {
		t.Errorf("PageTimeout() = %v", cfg.PageTimeout())
	}
	if cfg.S2.MaxRetries != 4 {
		t.Errorf("max retries = %d", cfg.S2.MaxRetries)
	}
	if !cfg.Ops.Enabled || cfg.Ops.Port != 9191 {
		t.Errorf("ops not loaded: %+v", cfg.Ops)
	}
	if cfg.Logging.Development {
		t.Error("logging.development should be false")
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
range:
  start_id: "2311.05222"
  end_id: "2311.05224"
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Workers.Count != 5 {
		t.Errorf("default workers.count = %d, want 5", cfg.Workers.Count)
	}
	if !cfg.Workers.Resume {
		t.Error("default workers.resume should be true")
	}
	if cfg.S2.MaxRetries != 3 {
		t.Errorf("default max_retries = %d, want 3", cfg.S2.MaxRetries)
	}
	if cfg.Arxiv.EPrintURL != "https://arxiv.org/e-print" {
		t.Errorf("default eprint url = %q", cfg.Arxiv.EPrintURL)
	}
}

func TestS2IntervalDependsOnKey(t *testing.T) {
	cfg := Config{S2: S2Config{IntervalKeyedMs: 150, IntervalAnonMs: 1500}}
	if got := cfg.S2Interval(); got != 1500*time.Millisecond {
		t.Errorf("anonymous interval = %v, want 1.5s", got)
	}
	cfg.S2.APIKey = "secret"
	if got := cfg.S2Interval(); got != 150*time.Millisecond {
		t.Errorf("keyed interval = %v, want 150ms", got)
	}
}

func TestValidateRejectsMissingRange(t *testing.T) {
	cfg := Config{
		Workers: WorkerConfig{Count: 5},
		Arxiv:   ArxivConfig{DownloadTimeoutSeconds: 30},
		S2:      S2Config{MaxRetries: 3},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty range")
	}
}
