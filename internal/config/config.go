package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/amosWeiskopf/linkcrawl/pkg/canon"
	"github.com/amosWeiskopf/linkcrawl/pkg/reporter"
)

// AppName names the config directory and environment prefix.
const AppName = "linkcrawl"

// FormatSQLite writes results to a SQLite file instead of rendering them.
const FormatSQLite = "sqlite"

// Config holds all application configuration
type Config struct {
	// Crawler configuration
	Crawler CrawlerConfig `mapstructure:"crawler"`

	// Fetcher configuration
	Fetcher FetcherConfig `mapstructure:"fetcher"`

	// Output configuration
	Output OutputConfig `mapstructure:"output"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlerConfig holds crawler-specific configuration
type CrawlerConfig struct {
	MaxConcurrency int      `mapstructure:"max_concurrency"` // 0 is unbounded
	Strategy       string   `mapstructure:"strategy"`
	SkipMalformed  bool     `mapstructure:"skip_malformed"`
	Schemes        []string `mapstructure:"schemes"` // empty follows every scheme
	Selector       string   `mapstructure:"selector"`
	Quiet          bool     `mapstructure:"quiet"`
}

// FetcherConfig holds HTTP client configuration
type FetcherConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Retries           int           `mapstructure:"retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
}

// OutputConfig holds result output configuration
type OutputConfig struct {
	Path    string `mapstructure:"path"`   // empty writes to stdout
	Format  string `mapstructure:"format"` // empty picks text for stdout, list for a file
	Summary bool   `mapstructure:"summary"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// flagKeys maps command-line flag names to config keys
var flagKeys = map[string]string{
	"max-concurrency": "crawler.max_concurrency",
	"strategy":        "crawler.strategy",
	"skip-malformed":  "crawler.skip_malformed",
	"schemes":         "crawler.schemes",
	"selector":        "crawler.selector",
	"quiet":           "crawler.quiet",
	"user-agent":      "fetcher.user_agent",
	"timeout":         "fetcher.timeout",
	"rate-limit":      "fetcher.requests_per_second",
	"retries":         "fetcher.retries",
	"output":          "output.path",
	"format":          "output.format",
	"summary":         "output.summary",
	"log-level":       "logging.level",
	"log-format":      "logging.format",
}

// Load reads configuration from defaults, an optional YAML file, LINKCRAWL_*
// environment variables and flags, in increasing order of precedence.
// configPath, when set, must name an existing file. flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, AppName))
		v.AddConfigPath("$HOME/." + AppName)
	}

	setDefaults(v)
	bindEnvVars(v)
	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error, we'll use defaults and env
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	config.Crawler.Strategy = strings.ToLower(config.Crawler.Strategy)
	config.Output.Format = strings.ToLower(config.Output.Format)
	config.Logging.Level = strings.ToLower(config.Logging.Level)
	config.Logging.Format = strings.ToLower(config.Logging.Format)

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Crawler defaults
	v.SetDefault("crawler.max_concurrency", 0)
	v.SetDefault("crawler.strategy", canon.StrategyStandard)
	v.SetDefault("crawler.skip_malformed", false)
	v.SetDefault("crawler.schemes", []string{"http", "https"})
	v.SetDefault("crawler.selector", "")
	v.SetDefault("crawler.quiet", false)

	// Fetcher defaults
	v.SetDefault("fetcher.user_agent", "linkcrawl/1.0")
	v.SetDefault("fetcher.timeout", "15s")
	v.SetDefault("fetcher.requests_per_second", 0)
	v.SetDefault("fetcher.burst", 1)
	v.SetDefault("fetcher.retries", 0)
	v.SetDefault("fetcher.retry_backoff", "100ms")
	v.SetDefault("fetcher.max_body_bytes", 10*1024*1024)

	// Output defaults
	v.SetDefault("output.path", "")
	v.SetDefault("output.format", "")
	v.SetDefault("output.summary", false)

	// Logging defaults
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "text")
}

// bindEnvVars maps crawler.max_concurrency to LINKCRAWL_CRAWLER_MAX_CONCURRENCY and so on
func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// bindFlags binds every known flag present in flags
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Crawler.MaxConcurrency < 0 {
		return ErrInvalidMaxConcurrency
	}
	if err := canon.ValidateName(c.Crawler.Strategy); err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, c.Crawler.Strategy)
	}

	if c.Fetcher.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Fetcher.RequestsPerSecond < 0 || c.Fetcher.Burst < 0 {
		return ErrInvalidRateLimit
	}
	if c.Fetcher.Retries < 0 {
		return ErrInvalidRetries
	}
	if c.Fetcher.MaxBodyBytes < 0 {
		return ErrInvalidMaxBodySize
	}

	switch {
	case c.Output.Format == "":
	case c.Output.Format == FormatSQLite:
		if c.Output.Path == "" {
			return ErrSQLiteNeedsPath
		}
	case !reporter.Supports(c.Output.Format):
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, c.Output.Format)
	}

	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}
	return nil
}

// OutputFormat returns the configured format, or the default for the
// destination: text on stdout, list in a file.
func (c *Config) OutputFormat() string {
	if c.Output.Format != "" {
		return c.Output.Format
	}
	if c.Output.Path != "" {
		return reporter.FormatList
	}
	return reporter.FormatText
}

// LogLevel parses logging.level
func (c *Config) LogLevel() (slog.Level, error) {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}
}
