package main

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/shirogane/cardvision/internal/config"
	"github.com/shirogane/cardvision/internal/models"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    models.VectorKind
		wantErr bool
	}{
		{"feature", models.VectorKindFeature, false},
		{"concept", models.VectorKindConcept, false},
		{"hue", "", true},
		{"", "", true},
		{"Feature", "", true}, // kinds are lowercase
	}
	for _, tt := range tests {
		got, err := parseKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseKind(%q) error = %v, wantErr %t", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func encoderTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	dir := t.TempDir()
	cfg.Encoder.FeatureModelPath = filepath.Join(dir, "missing-feature.onnx")
	cfg.Encoder.FeatureDimensions = 8
	cfg.Encoder.ConceptModelPath = filepath.Join(dir, "missing-concept.onnx")
	cfg.Encoder.ConceptAnchorPath = filepath.Join(dir, "missing-anchors.bin")
	return cfg
}

// A model that fails to load must fail the run, not silently hand back the
// mock encoder: mock vectors persist like real ones and block re-embedding.
func TestEncoderProvider_missingModelIsAnError(t *testing.T) {
	cfg := encoderTestConfig(t)
	provider := encoderProvider(cfg, zap.NewNop())

	if enc, err := provider(models.VectorKindFeature); err == nil {
		_ = enc.Close()
		t.Fatal("missing feature model produced a working encoder, want an error")
	}
	if enc, err := provider(models.VectorKindConcept); err == nil {
		_ = enc.Close()
		t.Fatal("missing concept model produced a working encoder, want an error")
	}
}

func TestEncoderProvider_mockSubstituteIsOptIn(t *testing.T) {
	cfg := encoderTestConfig(t)
	cfg.Encoder.AllowMock = true

	enc, err := encoderProvider(cfg, zap.NewNop())(models.VectorKindFeature)
	if err != nil {
		t.Fatalf("allow_mock should cover a missing feature model: %v", err)
	}
	defer enc.Close()
	if got := enc.Dimensions(); got != cfg.Encoder.FeatureDimensions {
		t.Errorf("Dimensions() = %d, want %d", got, cfg.Encoder.FeatureDimensions)
	}
}

// allow_mock substitutes a model, never the anchor data: a missing anchor
// file stays an error.
func TestEncoderProvider_mockDoesNotCoverMissingAnchors(t *testing.T) {
	cfg := encoderTestConfig(t)
	cfg.Encoder.AllowMock = true

	if enc, err := encoderProvider(cfg, zap.NewNop())(models.VectorKindConcept); err == nil {
		_ = enc.Close()
		t.Fatal("missing anchor file produced a working encoder, want an error")
	}
}

func TestReadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	content := `[
  {"id": "c1", "name": "Blue-Eyes White Dragon", "identifier": "089631139"},
  {"id": "c2", "name": "Token"}
]`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cards, err := readCatalog(path)
	if err != nil {
		t.Fatalf("readCatalog: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("cards = %d, want 2", len(cards))
	}
	// Leading zeros are stripped on import.
	if cards[0].Identifier != "89631139" {
		t.Errorf("identifier = %q, want %q", cards[0].Identifier, "89631139")
	}
	if cards[1].Identifier != "" {
		t.Errorf("missing identifier should stay empty, got %q", cards[1].Identifier)
	}
}

func TestReadCatalog_rejectsBadEntries(t *testing.T) {
	dir := t.TempDir()

	missingName := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(missingName, []byte(`[{"id": "c1"}]`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := readCatalog(missingName); err == nil {
		t.Error("entry without a name should be rejected")
	}

	notArray := filepath.Join(dir, "obj.json")
	if err := os.WriteFile(notArray, []byte(`{"id": "c1"}`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := readCatalog(notArray); err == nil {
		t.Error("non-array catalog should be rejected")
	}

	if _, err := readCatalog(filepath.Join(dir, "nonexistent.json")); err == nil {
		t.Error("missing file should be rejected")
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while configPath from t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}
