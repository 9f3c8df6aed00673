// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/webharvest/webharvest/internal/fetch"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Parallel ParallelConfig `mapstructure:"parallel"`
	Render   RenderConfig   `mapstructure:"render"`
	Output   OutputConfig   `mapstructure:"output"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ScraperConfig governs the polite-fetch engine.
type ScraperConfig struct {
	DefaultDelay   time.Duration `mapstructure:"default_delay"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffFactor  float64       `mapstructure:"backoff_factor"`
	Jitter         float64       `mapstructure:"jitter"`
	RespectRobots  bool          `mapstructure:"respect_robots"`
	VerifySSL      bool          `mapstructure:"verify_ssl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	GlobalRPS      float64       `mapstructure:"global_rps"`
	UserAgents     []string      `mapstructure:"user_agents"`
}

// ParallelConfig governs the batch coordinator.
type ParallelConfig struct {
	MaxWorkers  int           `mapstructure:"max_workers"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	BatchDelay  time.Duration `mapstructure:"batch_delay"`
	FailFast    bool          `mapstructure:"fail_fast"`
}

// RenderConfig governs the headless JS renderer.
type RenderConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	MaxParallel int           `mapstructure:"max_parallel"`
}

// OutputConfig sets where and how results are persisted.
type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Format string `mapstructure:"format"`
	DBFile string `mapstructure:"db_file"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	v.SetDefault("scraper.default_delay", "1s")
	v.SetDefault("scraper.max_retries", 3)
	v.SetDefault("scraper.backoff_factor", 2.0)
	v.SetDefault("scraper.jitter", fetch.DefaultJitter)
	v.SetDefault("scraper.respect_robots", true)
	v.SetDefault("scraper.verify_ssl", true)
	v.SetDefault("scraper.request_timeout", "30s")
	v.SetDefault("scraper.global_rps", 0)
	v.SetDefault("parallel.max_workers", 5)
	v.SetDefault("parallel.task_timeout", "120s")
	v.SetDefault("parallel.batch_delay", "1s")
	v.SetDefault("parallel.fail_fast", false)
	v.SetDefault("render.enabled", false)
	v.SetDefault("render.nav_timeout", "30s")
	v.SetDefault("render.max_parallel", 1)
	v.SetDefault("output.dir", "./data")
	v.SetDefault("output.format", "json")
	v.SetDefault("output.db_file", "webharvest.db")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Scraper.DefaultDelay < 0 {
		return fmt.Errorf("scraper.default_delay must be >= 0")
	}
	if c.Scraper.MaxRetries < 0 {
		return fmt.Errorf("scraper.max_retries must be >= 0")
	}
	if c.Scraper.BackoffFactor < 1 {
		return fmt.Errorf("scraper.backoff_factor must be >= 1")
	}
	if c.Scraper.Jitter < 0 || c.Scraper.Jitter > 1 {
		return fmt.Errorf("scraper.jitter must be in [0, 1]")
	}
	if c.Scraper.RequestTimeout <= 0 {
		return fmt.Errorf("scraper.request_timeout must be > 0")
	}
	if c.Parallel.MaxWorkers <= 0 {
		return fmt.Errorf("parallel.max_workers must be > 0")
	}
	if c.Parallel.TaskTimeout <= 0 {
		return fmt.Errorf("parallel.task_timeout must be > 0")
	}
	if c.Render.Enabled && c.Render.MaxParallel <= 0 {
		return fmt.Errorf("render.max_parallel must be > 0 when rendering is enabled")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must be set")
	}
	switch c.Output.Format {
	case "json", "csv", "yaml", "xlsx", "sqlite":
	default:
		return fmt.Errorf("output.format must be one of json, csv, yaml, xlsx, sqlite")
	}
	return nil
}
