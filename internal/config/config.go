package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Page fetch configuration
	Fetcher FetcherConfig `mapstructure:"fetcher"`

	// Link probe configuration
	Verifier VerifierConfig `mapstructure:"verifier"`

	Analysis   AnalysisConfig   `mapstructure:"analysis"`
	Classifier ClassifierConfig `mapstructure:"classifier"`

	// Storage configuration
	Storage StorageConfig `mapstructure:"storage"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Host           string        `mapstructure:"host"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// FetcherConfig controls retrieval of the analyzed page.
type FetcherConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	MaxRedirects int           `mapstructure:"max_redirects"`
}

// VerifierConfig controls the link reachability probes.
type VerifierConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxWorkers        int           `mapstructure:"max_workers"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Coalesce          bool          `mapstructure:"coalesce"`
}

// AnalysisConfig bounds one full analysis (fetch plus every probe).
type AnalysisConfig struct {
	Deadline time.Duration `mapstructure:"deadline"`
}

// ClassifierConfig selects the internal/external policy.
type ClassifierConfig struct {
	Policy string `mapstructure:"policy"` // "substring" or "registrable"
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// Load loads configuration from file and environment. An empty configPath
// searches the default locations; a missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.pagesmith")
	}

	setDefaults(v)
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &config, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	// Defaults always decode.
	_ = v.Unmarshal(&config)
	return &config
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Fetcher defaults
	v.SetDefault("fetcher.timeout", "15s")
	v.SetDefault("fetcher.user_agent", "pagesmith/1.0")
	v.SetDefault("fetcher.max_body_bytes", 10*1024*1024)
	v.SetDefault("fetcher.max_redirects", 10)

	// Verifier defaults
	v.SetDefault("verifier.timeout", "5s")
	v.SetDefault("verifier.max_workers", 16)
	v.SetDefault("verifier.requests_per_second", 0)
	v.SetDefault("verifier.coalesce", false)

	v.SetDefault("analysis.deadline", "60s")
	v.SetDefault("classifier.policy", "substring")

	v.SetDefault("storage.path", "./pagesmith.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// bindEnvVars binds environment variables
func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix("PAGESMITH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher.timeout must be positive")
	}
	if c.Fetcher.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetcher.max_body_bytes must be positive")
	}
	if c.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must not be negative")
	}
	if c.Verifier.Timeout <= 0 {
		return fmt.Errorf("verifier.timeout must be positive")
	}
	if c.Verifier.MaxWorkers <= 0 {
		return fmt.Errorf("verifier.max_workers must be positive")
	}
	if c.Verifier.RequestsPerSecond < 0 {
		return fmt.Errorf("verifier.requests_per_second must not be negative")
	}
	if c.Analysis.Deadline <= 0 {
		return fmt.Errorf("analysis.deadline must be positive")
	}

	switch c.Classifier.Policy {
	case "substring", "registrable":
	default:
		return fmt.Errorf("classifier.policy %q is not one of substring, registrable", c.Classifier.Policy)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("logging.level %q is not a known level", c.Logging.Level)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q is not one of json, console", c.Logging.Format)
	}

	return nil
}
