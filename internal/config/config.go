package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for the stockdesk application.
type Config struct {
	// Quote API
	AlphavantageAPIKey            string        `mapstructure:"alphavantage_api_key"`
	AlphavantageBaseURL           string        `mapstructure:"alphavantage_base_url"`
	AlphavantageRequestsPerMinute float64       `mapstructure:"alphavantage_requests_per_minute"`
	HTTPRetryCount                int           `mapstructure:"http_retry_count"`
	FetchTimeout                  time.Duration `mapstructure:"fetch_timeout"`
	DemoFallback                  bool          `mapstructure:"demo_fallback"`
	MaxConcurrency                int           `mapstructure:"max_concurrency"`
	PopularSymbols                []string      `mapstructure:"popular_symbols"`

	// Persistence
	StorageBackend string `mapstructure:"storage_backend"`
	StoragePath    string `mapstructure:"storage_path"`
	StorageDSN     string `mapstructure:"storage_dsn"`

	// HTTP server
	ListenAddr      string        `mapstructure:"listen_addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Relay to the external quote streaming process
	RelayEnabled     bool   `mapstructure:"relay_enabled"`
	RelayCommand     string `mapstructure:"relay_command"`
	RelayArgs        string `mapstructure:"relay_args"`
	RelayUpstreamURL string `mapstructure:"relay_upstream_url"`
	RelayMaxRestarts int    `mapstructure:"relay_max_restarts"`
}

// RelayArgv splits RelayArgs on whitespace
func (c *Config) RelayArgv() []string {
	return strings.Fields(c.RelayArgs)
}

var (
	storageBackends = []string{"memory", "file", "sqlite", "postgres", "none"}
	logLevels       = []string{"debug", "info", "warn", "error"}
	logFormats      = []string{"text", "json"}
)

// flagKeys maps command-line flags to configuration keys
var flagKeys = map[string]string{
	"api-key":          "alphavantage_api_key",
	"listen":           "listen_addr",
	"storage":          "storage_backend",
	"storage-path":     "storage_path",
	"storage-dsn":      "storage_dsn",
	"log-level":        "log_level",
	"log-format":       "log_format",
	"demo-fallback":    "demo_fallback",
	"refresh-interval": "refresh_interval",
	"relay":            "relay_enabled",
}

// RegisterFlags adds the configuration flags to fs. Flags override every other source.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a config file (default ./config.yaml or $HOME/.stockdesk/config.yaml)")
	fs.String("api-key", "", "AlphaVantage API key")
	fs.String("listen", "", "HTTP listen address")
	fs.String("storage", "", "storage backend: "+strings.Join(storageBackends, ", "))
	fs.String("storage-path", "", "directory for the file and sqlite backends")
	fs.String("storage-dsn", "", "PostgreSQL connection string")
	fs.String("log-level", "", "log level: "+strings.Join(logLevels, ", "))
	fs.String("log-format", "", "log format: text or json")
	fs.Bool("demo-fallback", true, "serve demo quotes when the quote API fails")
	fs.Duration("refresh-interval", 0, "refresh favorites on this interval (0 disables)")
	fs.Bool("relay", false, "spawn the quote streaming process and serve /ws")
}

// Loader reads configuration from, in increasing precedence: defaults, a
// config file, a .env file, the environment and command-line flags.
type Loader struct {
	v     *viper.Viper
	flags *pflag.FlagSet
}

// NewLoader creates a Loader. flags may be nil.
func NewLoader(flags *pflag.FlagSet) *Loader {
	return &Loader{v: viper.New(), flags: flags}
}

// Load reads configuration from environment variables and optional config file.
// Environment variables take precedence over config file values.
//
// Environment variables use the upper-cased key, e.g.:
//   - ALPHAVANTAGE_API_KEY (defaults to the public "demo" key)
//   - ALPHAVANTAGE_BASE_URL (optional, defaults to production)
//   - STORAGE_BACKEND, STORAGE_PATH, STORAGE_DSN
//   - LISTEN_ADDR, CORS_ORIGINS (comma separated)
//   - LOG_LEVEL, LOG_FORMAT
//   - REFRESH_INTERVAL (Go duration, e.g. 5m)
//   - RELAY_ENABLED, RELAY_COMMAND, RELAY_ARGS, RELAY_UPSTREAM_URL
func Load() (*Config, error) {
	return NewLoader(nil).Load()
}

// Load resolves the configuration
func (l *Loader) Load() (*Config, error) {
	// .env never overrides variables already set in the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	v := l.v
	setDefaults(v)

	v.SetEnvPrefix("") // No prefix, use full names
	v.AutomaticEnv()
	v.BindEnv("alphavantage_api_key", "ALPHAVANTAGE_API_KEY")
	v.BindEnv("alphavantage_base_url", "ALPHAVANTAGE_BASE_URL")

	configFile := ""
	if l.flags != nil {
		if f := l.flags.Lookup("config"); f != nil {
			configFile = f.Value.String()
		}
		for flag, key := range flagKeys {
			if f := l.flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.stockdesk")

		// Read config file (ignore if not found)
		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return l.decode()
}

// ConfigFile returns the config file in use, or "" when there is none
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Watch calls onChange with the new configuration whenever the config file
// changes. Invalid edits are logged and ignored. It does nothing without a config file.
func (l *Loader) Watch(onChange func(*Config)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			slog.Warn("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}
		slog.Info("config reloaded", "file", e.Name, "op", e.Op.String())
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := l.v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("alphavantage_api_key", "demo")
	v.SetDefault("alphavantage_base_url", "https://www.alphavantage.co/query")
	v.SetDefault("alphavantage_requests_per_minute", 5)
	v.SetDefault("http_retry_count", 3)
	v.SetDefault("fetch_timeout", 30*time.Second)
	v.SetDefault("demo_fallback", true)
	v.SetDefault("max_concurrency", 4)
	v.SetDefault("popular_symbols", []string{"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA", "META"})

	v.SetDefault("storage_backend", "file")
	v.SetDefault("storage_path", defaultStoragePath())
	v.SetDefault("storage_dsn", "")

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("refresh_interval", time.Duration(0))

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("relay_enabled", false)
	v.SetDefault("relay_command", "./rtf")
	v.SetDefault("relay_args", "serve --port 8081")
	v.SetDefault("relay_upstream_url", "ws://localhost:8081")
	v.SetDefault("relay_max_restarts", 5)
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stockdesk"
	}
	return filepath.Join(home, ".stockdesk")
}

func (c *Config) normalize() {
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))

	symbols := c.PopularSymbols[:0]
	for _, s := range c.PopularSymbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}
	c.PopularSymbols = symbols
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var problems []string

	if c.AlphavantageAPIKey == "" {
		problems = append(problems, "missing required configuration: ALPHAVANTAGE_API_KEY")
	}
	if !slices.Contains(storageBackends, c.StorageBackend) {
		problems = append(problems, fmt.Sprintf("storage_backend %q must be one of %s",
			c.StorageBackend, strings.Join(storageBackends, ", ")))
	}
	if c.StorageBackend == "postgres" && c.StorageDSN == "" {
		problems = append(problems, "storage_dsn is required for the postgres backend")
	}
	if (c.StorageBackend == "file" || c.StorageBackend == "sqlite") && c.StoragePath == "" {
		problems = append(problems, "storage_path is required for the "+c.StorageBackend+" backend")
	}
	if !slices.Contains(logLevels, c.LogLevel) {
		problems = append(problems, fmt.Sprintf("log_level %q must be one of %s", c.LogLevel, strings.Join(logLevels, ", ")))
	}
	if !slices.Contains(logFormats, c.LogFormat) {
		problems = append(problems, fmt.Sprintf("log_format %q must be text or json", c.LogFormat))
	}
	if c.MaxConcurrency <= 0 {
		problems = append(problems, "max_concurrency must be positive")
	}
	if c.HTTPRetryCount < 0 {
		problems = append(problems, "http_retry_count cannot be negative")
	}
	if c.FetchTimeout <= 0 {
		problems = append(problems, "fetch_timeout must be positive")
	}
	if c.RefreshInterval < 0 {
		problems = append(problems, "refresh_interval cannot be negative")
	}
	if c.RelayEnabled && c.RelayCommand == "" {
		problems = append(problems, "relay_command is required when the relay is enabled")
	}
	if c.RelayEnabled && c.RelayUpstreamURL == "" {
		problems = append(problems, "relay_upstream_url is required when the relay is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
