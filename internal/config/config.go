// Package config provides configuration loading and structs for the cardvision server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Images  ImagesConfig  `yaml:"images"`
	Encoder EncoderConfig `yaml:"encoder"`
	Embed   EmbedConfig   `yaml:"embed"`
	Search  SearchConfig  `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the card database and the keyword index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// ImagesConfig holds image cache and remote source settings.
type ImagesConfig struct {
	BaseDir                string `yaml:"base_dir"`
	IncomingDir            string `yaml:"incoming_dir"` // drop folder for pre-fetched images; empty disables the watcher
	RemoteBaseURL          string `yaml:"remote_base_url"`
	DownloadTimeoutSeconds int    `yaml:"download_timeout_seconds"`
}

// DownloadTimeout returns the remote download timeout as a duration.
func (c *ImagesConfig) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSeconds) * time.Second
}

// EncoderConfig holds ONNX encoder settings.
type EncoderConfig struct {
	FeatureModelPath  string `yaml:"feature_model_path"`
	FeatureDimensions int    `yaml:"feature_dimensions"`
	ConceptModelPath  string `yaml:"concept_model_path"`
	ConceptAnchorPath string `yaml:"concept_anchor_path"`
	InputSize         int    `yaml:"input_size"` // model input geometry (square), e.g. 224
	// AllowMock substitutes the deterministic mock encoder when the ONNX
	// model fails to load, for development machines without the runtime.
	// Mock vectors are persisted like real ones, so never enable this
	// where the database matters.
	AllowMock bool `yaml:"allow_mock"`
}

// EmbedConfig holds batch embedding pipeline settings.
type EmbedConfig struct {
	BatchSize   int `yaml:"batch_size"`
	Concurrency int `yaml:"concurrency"`
	MaxWorkers  int `yaml:"max_workers"`
}

// SearchConfig holds search settings.
type SearchConfig struct {
	DefaultLimit     int `yaml:"default_limit"`
	MaxLimit         int `yaml:"max_limit"`
	CorpusTTLSeconds int `yaml:"corpus_ttl_seconds"` // how long a corpus snapshot may be reused across queries
}

// CorpusTTL returns the corpus snapshot TTL as a duration.
func (c *SearchConfig) CorpusTTL() time.Duration {
	return time.Duration(c.CorpusTTLSeconds) * time.Second
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Images.BaseDir = expandPath(cfg.Images.BaseDir, configDir)
	if cfg.Images.IncomingDir != "" {
		cfg.Images.IncomingDir = expandPath(cfg.Images.IncomingDir, configDir)
	}
	cfg.Encoder.FeatureModelPath = expandPath(cfg.Encoder.FeatureModelPath, configDir)
	cfg.Encoder.ConceptModelPath = expandPath(cfg.Encoder.ConceptModelPath, configDir)
	cfg.Encoder.ConceptAnchorPath = expandPath(cfg.Encoder.ConceptAnchorPath, configDir)

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
