// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Range   RangeConfig   `mapstructure:"range"`
	Paths   PathsConfig   `mapstructure:"paths"`
	Workers WorkerConfig  `mapstructure:"workers"`
	Arxiv   ArxivConfig   `mapstructure:"arxiv"`
	S2      S2Config      `mapstructure:"semantic_scholar"`
	Ops     OpsConfig     `mapstructure:"ops"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// RangeConfig names the contiguous identifier range to harvest.
type RangeConfig struct {
	StartID string `mapstructure:"start_id"`
	EndID   string `mapstructure:"end_id"`
}

// PathsConfig sets output locations for artifacts and run bookkeeping.
type PathsConfig struct {
	OutputDir    string `mapstructure:"output_dir"`
	ProgressFile string `mapstructure:"progress_file"`
	StatsFile    string `mapstructure:"stats_file"`
	AuditDB      string `mapstructure:"audit_db"`
}

// WorkerConfig governs pool size and resumption.
type WorkerConfig struct {
	Count  int  `mapstructure:"count"`
	Resume bool `mapstructure:"resume"`
}

// ArxivConfig configures the arXiv-side clients.
type ArxivConfig struct {
	SearchURL              string `mapstructure:"search_url"`
	AbsURL                 string `mapstructure:"abs_url"`
	EPrintURL              string `mapstructure:"eprint_url"`
	DownloadTimeoutSeconds int    `mapstructure:"download_timeout_seconds"`
	PageTimeoutSeconds     int    `mapstructure:"page_timeout_seconds"`
	PacingMs               int    `mapstructure:"pacing_ms"`
}

// S2Config configures the Semantic Scholar citation client. The API key is
// taken from the SEMANTIC_SCHOLAR_API_KEY environment variable, optionally
// supplied through a .env file.
type S2Config struct {
	BaseURL           string `mapstructure:"base_url"`
	APIKey            string `mapstructure:"api_key"`
	MaxRetries        int    `mapstructure:"max_retries"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	IntervalKeyedMs   int    `mapstructure:"interval_keyed_ms"`
	IntervalAnonMs    int    `mapstructure:"interval_anon_ms"`
	BackoffBaseSec    int    `mapstructure:"backoff_base_seconds"`
	BackoffCapSec     int    `mapstructure:"backoff_cap_seconds"`
	RetryPauseSeconds int    `mapstructure:"retry_pause_seconds"`
}

// OpsConfig toggles the local metrics/progress HTTP endpoint.
type OpsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	// Same convention as the original deployment: secrets may live in .env.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("HARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.BindEnv("semantic_scholar.api_key", "SEMANTIC_SCHOLAR_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind api key env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("range.start_id", "")
	v.SetDefault("range.end_id", "")
	v.SetDefault("paths.output_dir", "./data")
	v.SetDefault("paths.progress_file", "./progress.json")
	v.SetDefault("paths.stats_file", "./statistics.json")
	v.SetDefault("paths.audit_db", "./harvest.db")
	v.SetDefault("workers.count", 5)
	v.SetDefault("workers.resume", true)
	v.SetDefault("arxiv.search_url", "https://export.arxiv.org/api/query")
	v.SetDefault("arxiv.abs_url", "https://arxiv.org/abs")
	v.SetDefault("arxiv.eprint_url", "https://arxiv.org/e-print")
	v.SetDefault("arxiv.download_timeout_seconds", 30)
	v.SetDefault("arxiv.page_timeout_seconds", 10)
	v.SetDefault("arxiv.pacing_ms", 0)
	v.SetDefault("semantic_scholar.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("semantic_scholar.max_retries", 3)
	v.SetDefault("semantic_scholar.timeout_seconds", 10)
	v.SetDefault("semantic_scholar.interval_keyed_ms", 150)
	v.SetDefault("semantic_scholar.interval_anon_ms", 1500)
	v.SetDefault("semantic_scholar.backoff_base_seconds", 5)
	v.SetDefault("semantic_scholar.backoff_cap_seconds", 60)
	v.SetDefault("semantic_scholar.retry_pause_seconds", 2)
	v.SetDefault("ops.enabled", false)
	v.SetDefault("ops.port", 9090)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Range.StartID == "" || c.Range.EndID == "" {
		return fmt.Errorf("range.start_id and range.end_id must be set")
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be > 0")
	}
	if c.Arxiv.DownloadTimeoutSeconds <= 0 {
		return fmt.Errorf("arxiv.download_timeout_seconds must be > 0")
	}
	if c.S2.MaxRetries <= 0 {
		return fmt.Errorf("semantic_scholar.max_retries must be > 0")
	}
	if c.Ops.Enabled && c.Ops.Port <= 0 {
		return fmt.Errorf("ops.port must be > 0 when ops is enabled")
	}
	return nil
}

// DownloadTimeout converts the configured archive timeout into a duration.
func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Arxiv.DownloadTimeoutSeconds) * time.Second
}

// PageTimeout converts the abstract-page timeout into a duration.
func (c Config) PageTimeout() time.Duration {
	return time.Duration(c.Arxiv.PageTimeoutSeconds) * time.Second
}

// S2Interval picks the citation-gate spacing depending on whether an API key
// is available; anonymous access runs under a stricter quota.
func (c Config) S2Interval() time.Duration {
	if c.S2.APIKey != "" {
		return time.Duration(c.S2.IntervalKeyedMs) * time.Millisecond
	}
	return time.Duration(c.S2.IntervalAnonMs) * time.Millisecond
}
