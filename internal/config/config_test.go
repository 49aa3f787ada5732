package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: 0.0.0.0
  port: 9090
storage:
  database_path: ./data/cards.db
images:
  base_dir: ./data/images
  remote_base_url: https://example.com/images
  download_timeout_seconds: 5
embed:
  batch_size: 50
  concurrency: 8
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Debug {
		t.Error("Debug should be true")
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9090 {
		t.Errorf("server config = %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Storage.DatabasePath != filepath.Join(dir, "data/cards.db") {
		t.Errorf("database path not expanded relative to config dir: %q", cfg.Storage.DatabasePath)
	}
	if cfg.Images.RemoteBaseURL != "https://example.com/images" {
		t.Errorf("remote base url = %q", cfg.Images.RemoteBaseURL)
	}
	if cfg.Images.DownloadTimeout() != 5*time.Second {
		t.Errorf("download timeout = %v", cfg.Images.DownloadTimeout())
	}
	if cfg.Embed.BatchSize != 50 || cfg.Embed.Concurrency != 8 {
		t.Errorf("embed config = %+v", cfg.Embed)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)

	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Images.DownloadTimeout() != 15*time.Second {
		t.Errorf("default download timeout = %v", cfg.Images.DownloadTimeout())
	}
	if cfg.Encoder.FeatureDimensions != 512 {
		t.Errorf("default feature dimensions = %d", cfg.Encoder.FeatureDimensions)
	}
	if cfg.Encoder.InputSize != 224 {
		t.Errorf("default input size = %d", cfg.Encoder.InputSize)
	}
	if cfg.Embed.BatchSize != 100 || cfg.Embed.Concurrency != 4 || cfg.Embed.MaxWorkers != 2 {
		t.Errorf("default embed config = %+v", cfg.Embed)
	}
	if cfg.Search.DefaultLimit != 10 || cfg.Search.MaxLimit != 100 {
		t.Errorf("default search config = %+v", cfg.Search)
	}
	if cfg.Search.CorpusTTL() != 30*time.Second {
		t.Errorf("default corpus ttl = %v", cfg.Search.CorpusTTL())
	}
}

func TestApplyDefaults_keepsExisting(t *testing.T) {
	cfg := Config{}
	cfg.Server.Port = 3000
	cfg.Embed.Concurrency = 1
	ApplyDefaults(&cfg)
	if cfg.Server.Port != 3000 {
		t.Errorf("explicit port overridden: %d", cfg.Server.Port)
	}
	if cfg.Embed.Concurrency != 1 {
		t.Errorf("explicit concurrency overridden: %d", cfg.Embed.Concurrency)
	}
}
