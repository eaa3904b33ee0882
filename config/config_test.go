package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeTempConfig writes content to a configuration file and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

const minimalConfig = `app:
  name: "TestApp"
  version: "1.0"
data:
  asset_category: spot
  raw_dir: /tmp/raw
  store_dir: /tmp/store
  timeframes: ["5m", "1h"]
fetcher:
  timeout: 30s
sync:
  max_workers: 2
`

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.App.Name)
	}
	if cfg.Sync.MaxWorkers != 2 {
		t.Errorf("unexpected max workers: %d", cfg.Sync.MaxWorkers)
	}
	if cfg.Fetcher.Timeout != 30*time.Second {
		t.Errorf("unexpected timeout: %v", cfg.Fetcher.Timeout)
	}
	if len(cfg.Data.Timeframes) != 2 || cfg.Data.Timeframes[1] != "1h" {
		t.Errorf("unexpected timeframes: %v", cfg.Data.Timeframes)
	}
	// defaults survive partial files
	if cfg.Data.FileTemplate != "[[Symbol]]-[[Timeframe]]-[[Date]]" {
		t.Errorf("unexpected file template: %s", cfg.Data.FileTemplate)
	}
	if cfg.Sync.Freshness != FreshnessStale {
		t.Errorf("unexpected freshness: %s", cfg.Sync.Freshness)
	}
	if got := cfg.Data.ArchiveURI("spot", "daily"); got != "https://data.binance.vision/data/spot/daily/klines" {
		t.Errorf("unexpected archive uri: %s", got)
	}
}

func TestLoadConfigExpandsHome(t *testing.T) {
	content := strings.Replace(minimalConfig, "raw_dir: /tmp/raw", "raw_dir: ~/klines/raw", 1)
	cfg, err := LoadConfig(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if strings.HasPrefix(cfg.Data.RawDir, "~") || !strings.HasSuffix(cfg.Data.RawDir, filepath.Join("klines", "raw")) {
		t.Errorf("raw dir not expanded: %s", cfg.Data.RawDir)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		"category":  strings.Replace(minimalConfig, "asset_category: spot", "asset_category: options", 1),
		"timeframe": strings.Replace(minimalConfig, `["5m", "1h"]`, `["5x"]`, 1),
		"workers":   strings.Replace(minimalConfig, "max_workers: 2", "max_workers: 0", 1),
		"static":    minimalConfig + "universe:\n  source: static\n",
		"s3":        minimalConfig + "storage:\n  s3:\n    enabled: true\n    bucket: Bad_Bucket\n    region: eu-west-1\n    access_key_id: a\n    secret_access_key: b\n",
	}
	for name, content := range cases {
		if _, err := LoadConfig(writeTempConfig(t, content)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadConfigS3EnvOverride(t *testing.T) {
	t.Setenv("S3_BUCKET", "env-bucket")
	t.Setenv("AWS_ACCESS_KEY_ID", "key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_REGION", "ap-south-1")
	content := minimalConfig + "storage:\n  s3:\n    enabled: true\n    bucket: file-bucket\n"

	cfg, err := LoadConfig(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Storage.S3.Bucket != "env-bucket" || cfg.Storage.S3.Region != "ap-south-1" {
		t.Errorf("env overrides not applied: %+v", cfg.Storage.S3)
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}

func TestAppEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", " Prod ")
	if got := AppEnvironment(); got != EnvironmentProduction {
		t.Errorf("AppEnvironment() = %q", got)
	}
	if !IsProductionLike(AppEnvironment()) {
		t.Error("production should be production-like")
	}
	t.Setenv("APP_ENV", "")
	if got := AppEnvironment(); got != EnvironmentDevelopment {
		t.Errorf("AppEnvironment() = %q", got)
	}
}

func TestResolveEnvSpecificPath(t *testing.T) {
	dir := t.TempDir()
	prodPath := filepath.Join(dir, "prod.yml")
	defaultPath := filepath.Join(dir, "config.yml")
	envPaths := map[string]string{EnvironmentProduction: prodPath}

	t.Setenv("APP_ENV", "production")
	if got := resolveEnvSpecificPath("", defaultPath, envPaths); got != defaultPath {
		t.Errorf("missing env file should fall back, got %s", got)
	}

	if err := os.WriteFile(prodPath, []byte("app:\n  name: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := resolveEnvSpecificPath("", defaultPath, envPaths); got != prodPath {
		t.Errorf("expected env path, got %s", got)
	}
	if got := resolveEnvSpecificPath("custom.yml", defaultPath, envPaths); got != "custom.yml" {
		t.Errorf("explicit path overridden: %s", got)
	}
}
