// Package config loads and validates jobradar configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/careermap/jobradar/internal/fetch"
	"github.com/careermap/jobradar/internal/forward"
	"github.com/careermap/jobradar/internal/sites"
	"github.com/careermap/jobradar/internal/storage/postgres"
)

// Config captures every knob the CLI and the status server read.
type Config struct {
	Logging  LoggingConfig      `mapstructure:"logging"`
	Server   ServerConfig       `mapstructure:"server"`
	Crawl    CrawlConfig        `mapstructure:"crawl"`
	Fetch    fetch.Config       `mapstructure:"fetch"`
	Output   OutputConfig       `mapstructure:"output"`
	Postgres postgres.Config    `mapstructure:"postgres"`
	Forward  forward.Config     `mapstructure:"forward"`
	Boards   []sites.Descriptor `mapstructure:"boards"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ServerConfig controls the status HTTP server. An empty APIKey leaves
// the /v1 routes open.
type ServerConfig struct {
	Port    int           `mapstructure:"port"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CrawlConfig carries crawl defaults the CLI flags can override.
type CrawlConfig struct {
	Workers  int           `mapstructure:"workers"`
	MaxJobs  int           `mapstructure:"max_jobs"`
	MaxPages int           `mapstructure:"max_pages"`
	Keywords []string      `mapstructure:"keywords"`
	Sites    []string      `mapstructure:"sites"`
	Skills   bool          `mapstructure:"skills"`
	Interval time.Duration `mapstructure:"interval"`
}

// OutputConfig selects the file sinks written after each run.
type OutputConfig struct {
	Dir       string `mapstructure:"dir"`
	JSON      bool   `mapstructure:"json"`
	CSV       bool   `mapstructure:"csv"`
	Snapshots bool   `mapstructure:"snapshots"`
}

// Load builds a Config from disk/environment. An empty path searches
// for jobradar.yaml in the working directory and ~/.jobradar; a missing
// file there is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBRADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("jobradar")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.jobradar")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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
	v.SetDefault("logging.development", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.timeout", "1m")
	v.SetDefault("crawl.workers", 1)
	v.SetDefault("crawl.skills", true)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.retry_base", "3s")
	v.SetDefault("fetch.throttle_wait", "1m")
	v.SetDefault("fetch.block_wait", "2m")
	v.SetDefault("fetch.block_step", "1m")
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.json", true)
	v.SetDefault("output.csv", true)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.table", "job_records")
	v.SetDefault("forward.endpoint", "")
	v.SetDefault("forward.timeout", "10s")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if c.Crawl.Interval < 0 {
		return fmt.Errorf("crawl.interval must not be negative")
	}
	if c.Fetch.MaxAttempts <= 0 {
		return fmt.Errorf("fetch.max_attempts must be > 0")
	}
	if c.Output.Dir == "" && (c.Output.JSON || c.Output.CSV || c.Output.Snapshots) {
		return fmt.Errorf("output.dir must be set when file output is enabled")
	}
	for i, b := range c.Boards {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("boards[%d]: %w", i, err)
		}
	}
	return nil
}

// Catalog returns the builtin boards with the configured ones merged
// in. A configured board replaces a builtin of the same name, so a
// config stanza can repair a builtin's selectors without code changes.
func (c Config) Catalog() []sites.Descriptor {
	out := sites.Builtin()
	for _, b := range c.Boards {
		replaced := false
		for i, d := range out {
			if strings.EqualFold(d.Name, b.Name) {
				out[i] = b
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, b)
		}
	}
	return out
}
