package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Data      DataConfig      `yaml:"data"`
	Fetcher   FetcherConfig   `yaml:"fetcher"`
	Sync      SyncConfig      `yaml:"sync"`
	Universe  UniverseConfig  `yaml:"universe"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type DataConfig struct {
	AssetCategory     string            `yaml:"asset_category"`
	RawDir            string            `yaml:"raw_dir"`
	StoreDir          string            `yaml:"store_dir"`
	BaseTimeframe     string            `yaml:"base_timeframe"`
	FileTemplate      string            `yaml:"file_template"`
	DateFormatMonthly string            `yaml:"date_format_monthly"`
	DateFormatDaily   string            `yaml:"date_format_daily"`
	Timeframes        []string          `yaml:"timeframes"`
	Compression       string            `yaml:"compression"`
	ArchiveURIs       ArchiveURIsConfig `yaml:"archive_uris"`
}

type ArchiveURIsConfig struct {
	Spot  GranularityURIs `yaml:"spot"`
	USDM  GranularityURIs `yaml:"um"`
	COINM GranularityURIs `yaml:"cm"`
}

type GranularityURIs struct {
	Monthly string `yaml:"monthly"`
	Daily   string `yaml:"daily"`
}

type FetcherConfig struct {
	Timeout   time.Duration   `yaml:"timeout"`
	UserAgent string          `yaml:"user_agent"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// SyncConfig controls the per-symbol sync. RetryMissingAfter is how long a
// build that already planned through yesterday counts as current while its
// trailing partitions are unavailable.
type SyncConfig struct {
	MaxWorkers        int           `yaml:"max_workers"`
	Freshness         string        `yaml:"freshness"`
	RetryMissingAfter time.Duration `yaml:"retry_missing_after"`
}

type UniverseConfig struct {
	Source              string         `yaml:"source"`
	APIBaseURL          string         `yaml:"api_base_url"`
	QuoteAssets         []string       `yaml:"quote_assets"`
	FallbackOnboardDate string         `yaml:"fallback_onboard_date"`
	Symbols             []StaticSymbol `yaml:"symbols"`
}

type StaticSymbol struct {
	Name        string `yaml:"name"`
	OnboardDate string `yaml:"onboard_date"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type ScheduleConfig struct {
	Cron       string `yaml:"cron"`
	RunOnStart bool   `yaml:"run_on_start"`
}

type DashboardConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Address        string `yaml:"address"`
	LogHistory     int    `yaml:"log_history"`
	MetricsHistory int    `yaml:"metrics_history"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

const (
	FreshnessStale = "stale"
	FreshnessNever = "never"

	UniverseExchange = "exchange"
	UniverseStatic   = "static"

	// DateLayout is the layout used for onboard dates in configuration.
	DateLayout = "2006-01-02"
)

// Default returns a configuration populated with the values used when a
// key is absent from the YAML file.
func Default() Config {
	return Config{
		App: AppConfig{Name: "klinevault", Version: "dev"},
		Data: DataConfig{
			AssetCategory:     "um",
			RawDir:            "data/raw",
			StoreDir:          "data/store",
			BaseTimeframe:     "1m",
			FileTemplate:      "[[Symbol]]-[[Timeframe]]-[[Date]]",
			DateFormatMonthly: "2006-01",
			DateFormatDaily:   "2006-01-02",
			Timeframes:        []string{"5m", "15m", "1h", "4h", "1d"},
			Compression:       "snappy",
			ArchiveURIs: ArchiveURIsConfig{
				Spot: GranularityURIs{
					Monthly: "https://data.binance.vision/data/spot/monthly/klines",
					Daily:   "https://data.binance.vision/data/spot/daily/klines",
				},
				USDM: GranularityURIs{
					Monthly: "https://data.binance.vision/data/futures/um/monthly/klines",
					Daily:   "https://data.binance.vision/data/futures/um/daily/klines",
				},
				COINM: GranularityURIs{
					Monthly: "https://data.binance.vision/data/futures/cm/monthly/klines",
					Daily:   "https://data.binance.vision/data/futures/cm/daily/klines",
				},
			},
		},
		Fetcher: FetcherConfig{
			Timeout:   2 * time.Minute,
			UserAgent: "klinevault",
			RateLimit: RateLimitConfig{RequestsPerSecond: 10, BurstSize: 10},
			Retry:     RetryConfig{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second},
		},
		Sync:      SyncConfig{MaxWorkers: 4, Freshness: FreshnessStale, RetryMissingAfter: 6 * time.Hour},
		Universe:  UniverseConfig{Source: UniverseExchange, FallbackOnboardDate: "2017-01-01"},
		Metrics:   MetricsConfig{CloudWatch: CloudWatchConfig{Namespace: "KlineVault", Dashboard: "KlineVault"}},
		Schedule:  ScheduleConfig{Cron: "0 30 1 * * *"},
		Dashboard: DashboardConfig{Address: ":8080", LogHistory: 200, MetricsHistory: 200},
		Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

// ArchiveURI returns the base URI configured for a category and granularity.
func (d DataConfig) ArchiveURI(category, granularity string) string {
	var uris GranularityURIs
	switch category {
	case "spot":
		uris = d.ArchiveURIs.Spot
	case "um":
		uris = d.ArchiveURIs.USDM
	case "cm":
		uris = d.ArchiveURIs.COINM
	}
	if granularity == "daily" {
		return uris.Daily
	}
	return uris.Monthly
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := expandPaths(&config); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func expandPaths(cfg *Config) error {
	for _, p := range []*string{&cfg.Data.RawDir, &cfg.Data.StoreDir} {
		expanded, err := homedir.Expand(strings.TrimSpace(*p))
		if err != nil {
			return fmt.Errorf("expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	switch cfg.Logging.Output {
	case "", "stdout", "stderr":
	default:
		expanded, err := homedir.Expand(cfg.Logging.Output)
		if err != nil {
			return fmt.Errorf("expand path %q: %w", cfg.Logging.Output, err)
		}
		cfg.Logging.Output = expanded
	}
	return nil
}

var timeframeRegexp = regexp.MustCompile(`^[1-9][0-9]*[smhdw]$`)

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	switch cfg.Data.AssetCategory {
	case "spot", "um", "cm":
	default:
		return fmt.Errorf("data.asset_category '%s' is invalid", cfg.Data.AssetCategory)
	}

	if cfg.Data.RawDir == "" || cfg.Data.StoreDir == "" {
		return fmt.Errorf("data.raw_dir and data.store_dir are required")
	}
	if cfg.Data.BaseTimeframe == "" {
		return fmt.Errorf("data.base_timeframe is required")
	}
	for _, placeholder := range []string{"[[Symbol]]", "[[Date]]"} {
		if !strings.Contains(cfg.Data.FileTemplate, placeholder) {
			return fmt.Errorf("data.file_template must contain %s", placeholder)
		}
	}
	if cfg.Data.DateFormatMonthly == "" || cfg.Data.DateFormatDaily == "" {
		return fmt.Errorf("data.date_format_monthly and data.date_format_daily are required")
	}
	for _, tf := range cfg.Data.Timeframes {
		if !timeframeRegexp.MatchString(tf) {
			return fmt.Errorf("data.timeframes entry '%s' is invalid", tf)
		}
	}
	if cfg.Data.ArchiveURI(cfg.Data.AssetCategory, "monthly") == "" || cfg.Data.ArchiveURI(cfg.Data.AssetCategory, "daily") == "" {
		return fmt.Errorf("data.archive_uris.%s requires monthly and daily uris", cfg.Data.AssetCategory)
	}

	if cfg.Fetcher.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("fetcher.rate_limit.requests_per_second must be greater than 0")
	}
	if cfg.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher.timeout must be greater than 0")
	}

	if cfg.Sync.MaxWorkers <= 0 {
		return fmt.Errorf("sync.max_workers must be greater than 0")
	}
	switch cfg.Sync.Freshness {
	case FreshnessStale, FreshnessNever:
	default:
		return fmt.Errorf("sync.freshness '%s' is invalid", cfg.Sync.Freshness)
	}
	if cfg.Sync.RetryMissingAfter < 0 {
		return fmt.Errorf("sync.retry_missing_after must not be negative")
	}

	switch cfg.Universe.Source {
	case UniverseExchange:
	case UniverseStatic:
		if len(cfg.Universe.Symbols) == 0 {
			return fmt.Errorf("universe.symbols is required when universe.source is static")
		}
		for _, s := range cfg.Universe.Symbols {
			if strings.TrimSpace(s.Name) == "" {
				return fmt.Errorf("universe.symbols entries require a name")
			}
			if s.OnboardDate != "" {
				if _, err := time.Parse(DateLayout, s.OnboardDate); err != nil {
					return fmt.Errorf("universe.symbols %s: invalid onboard_date: %w", s.Name, err)
				}
			}
		}
	default:
		return fmt.Errorf("universe.source '%s' is invalid", cfg.Universe.Source)
	}
	if _, err := time.Parse(DateLayout, cfg.Universe.FallbackOnboardDate); err != nil {
		return fmt.Errorf("universe.fallback_onboard_date is invalid: %w", err)
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
