package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	logFormatConsole = "console"
	logFormatJSON    = "json"
)

// UpstreamClientSlack is added to upstream.timeout for the HTTP client timeout,
// so the per-call context deadline normally fires first.
const UpstreamClientSlack = 5 * time.Second

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Limits    LimitsConfig    `yaml:"limits"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port         int      `yaml:"port"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	IdleTimeout  Duration `yaml:"idle_timeout"`
}

// LogConfig controls log verbosity and output encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// UpstreamConfig describes the generative backend and where its credential comes from.
type UpstreamConfig struct {
	BaseURL         string   `yaml:"base_url"`
	Model           string   `yaml:"model"`
	Timeout         Duration `yaml:"timeout"`
	Temperature     float64  `yaml:"temperature"`
	MaxOutputTokens int      `yaml:"max_output_tokens"`
	APIKeyEnv       string   `yaml:"api_key_env"`
	APIKey          string   `yaml:"api_key"`
	SecretsFile     string   `yaml:"secrets_file"`
}

// RateLimitConfig configures the fixed-window limiter on /chat.
type RateLimitConfig struct {
	Window        Duration `yaml:"window"`
	MaxRequests   int      `yaml:"max_requests"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// LimitsConfig bounds the size of accepted chat requests.
type LimitsConfig struct {
	MaxBodyChars    int `yaml:"max_body_chars"`
	MaxMessageChars int `yaml:"max_message_chars"`
	MaxHistoryItems int `yaml:"max_history_items"`
}

// Duration is a time.Duration that decodes from strings such as "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", value.Line, err)
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(45 * time.Second),
			IdleTimeout:  Duration(120 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: logFormatConsole,
		},
		Upstream: UpstreamConfig{
			BaseURL:         "https://generativelanguage.googleapis.com",
			Model:           "gemini-1.5-flash",
			Timeout:         Duration(25 * time.Second),
			Temperature:     0.3,
			MaxOutputTokens: 512,
			APIKeyEnv:       "GEMINI_API_KEY",
			SecretsFile:     ".env.local",
		},
		RateLimit: RateLimitConfig{
			Window:        Duration(60 * time.Second),
			MaxRequests:   15,
			SweepInterval: Duration(5 * time.Minute),
		},
		Limits: LimitsConfig{
			MaxBodyChars:    50000,
			MaxMessageChars: 2000,
			MaxHistoryItems: 20,
		},
	}
}

// Load reads YAML configuration from disk on top of the defaults, applies
// environment overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	if err := applyEnvOverrides(&cfg, os.Environ()); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}

	switch c.Log.Format {
	case logFormatConsole, logFormatJSON:
	default:
		return fmt.Errorf("log.format %q must be one of %q or %q", c.Log.Format, logFormatConsole, logFormatJSON)
	}

	if err := validateUpstream(c.Upstream); err != nil {
		return err
	}

	// Every upstream failure must still be answered before the write deadline closes the connection.
	if write := c.Server.WriteTimeout.Std(); write > 0 && c.Upstream.ClientTimeout() >= write {
		return fmt.Errorf("upstream.timeout plus %s client slack (%s) must be below server.write_timeout (%s)",
			UpstreamClientSlack, c.Upstream.ClientTimeout(), write)
	}

	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive, got %s", c.RateLimit.Window.Std())
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rate_limit.max_requests must be positive, got %d", c.RateLimit.MaxRequests)
	}

	if c.Limits.MaxBodyChars <= 0 || c.Limits.MaxMessageChars <= 0 || c.Limits.MaxHistoryItems <= 0 {
		return fmt.Errorf("limits must all be positive, got body=%d message=%d history=%d",
			c.Limits.MaxBodyChars, c.Limits.MaxMessageChars, c.Limits.MaxHistoryItems)
	}

	return nil
}

// ClientTimeout is the overall HTTP client timeout for upstream calls.
func (u UpstreamConfig) ClientTimeout() time.Duration {
	return u.Timeout.Std() + UpstreamClientSlack
}

func validateUpstream(u UpstreamConfig) error {
	if strings.TrimSpace(u.BaseURL) == "" {
		return fmt.Errorf("upstream.base_url must be provided")
	}
	if strings.TrimSpace(u.Model) == "" {
		return fmt.Errorf("upstream.model must be provided")
	}
	if u.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive, got %s", u.Timeout.Std())
	}
	if u.Temperature < 0 || u.Temperature > 2 {
		return fmt.Errorf("upstream.temperature must be within [0, 2], got %v", u.Temperature)
	}
	if u.MaxOutputTokens <= 0 {
		return fmt.Errorf("upstream.max_output_tokens must be positive, got %d", u.MaxOutputTokens)
	}
	if strings.TrimSpace(u.APIKeyEnv) == "" {
		return fmt.Errorf("upstream.api_key_env must name an environment variable")
	}
	return nil
}
