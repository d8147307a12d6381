package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for piifinder.
type Config struct {
	AI       AIConfig       `yaml:"ai"`
	Selector SelectorConfig `yaml:"selector"`
	Context  ContextConfig  `yaml:"context"`
	Store    StoreConfig    `yaml:"store"`
	Browser  BrowserConfig  `yaml:"browser"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
	Includes []string       `yaml:"includes,omitempty"`
}

// AIConfig holds the text-generation endpoint settings.
type AIConfig struct {
	Enabled         bool                 `yaml:"enabled"`
	Provider        string               `yaml:"provider"`
	BaseURL         string               `yaml:"base_url"`
	APIKey          string               `yaml:"api_key"`
	Model           string               `yaml:"model"`
	Timeout         time.Duration        `yaml:"timeout"`
	Temperature     float64              `yaml:"temperature"`
	TopK            int                  `yaml:"top_k"`
	TopP            float64              `yaml:"top_p"`
	MaxOutputTokens int                  `yaml:"max_output_tokens"`
	ConnTimeout     time.Duration        `yaml:"conn_timeout"`
	RespTimeout     time.Duration        `yaml:"resp_timeout"`
	Pool            PoolConfig           `yaml:"pool"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit       RateLimitConfig      `yaml:"rate_limit"`
}

// CircuitBreakerConfig holds circuit breaker settings for the AI endpoint.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RateLimitConfig holds the client-side throttle for AI requests.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// PoolConfig holds HTTP connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// SelectorConfig holds selector builder settings.
type SelectorConfig struct {
	Strategy    string `yaml:"strategy"` // "smart", "semantic" or "structural"
	MaxDepth    int    `yaml:"max_depth"`
	FamilyBound int    `yaml:"family_bound"`
}

// ContextConfig holds context extraction and token counting settings.
type ContextConfig struct {
	MaxDepth     int    `yaml:"max_depth"`
	TokenCounter string `yaml:"token_counter"` // "chars" or "tiktoken"
	Encoding     string `yaml:"encoding"`
}

// StoreConfig holds saved-selector storage settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// BrowserConfig holds live page capture settings.
type BrowserConfig struct {
	RemoteURL string        `yaml:"remote_url"`
	Headless  bool          `yaml:"headless"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// defaultDataDir returns the persistent data directory under $HOME/.piifinder.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".piifinder")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		AI: AIConfig{
			Enabled:         true,
			Provider:        "gemini",
			BaseURL:         "https://generativelanguage.googleapis.com",
			Model:           "gemini-1.5-flash",
			Timeout:         30 * time.Second,
			Temperature:     0.2,
			TopK:            1,
			TopP:            0.8,
			MaxOutputTokens: 2000,
			ConnTimeout:     10 * time.Second,
			RespTimeout:     60 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 15,
				Burst:             3,
			},
		},
		Selector: SelectorConfig{
			Strategy:    "smart",
			MaxDepth:    5,
			FamilyBound: 3,
		},
		Context: ContextConfig{
			MaxDepth:     10,
			TokenCounter: "chars",
			Encoding:     "cl100k_base",
		},
		Store: StoreConfig{
			Path: filepath.Join(defaultDataDir(), "selectors.db"),
		},
		Browser: BrowserConfig{
			Headless: true,
			Timeout:  45 * time.Second,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, loads .env next to it, applies env var
// overrides and validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			loadDotEnv(filepath.Dir(path))
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	// First pass: unmarshal to get the includes list.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}

		// Second pass: the main file takes precedence over includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	loadDotEnv(filepath.Dir(absPath))
	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadDotEnv loads dir/.env into the process environment without
// overwriting variables that are already set. A missing file is ignored.
func loadDotEnv(dir string) {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// ApplyEnvOverrides maps PIIFINDER_* env vars to config fields.
// GEMINI_API_KEY is honoured when PIIFINDER_AI_API_KEY is unset.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("PIIFINDER_AI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("PIIFINDER_AI_ENABLED"); v != "" {
		cfg.AI.Enabled = v == "true"
	}
	if v := os.Getenv("PIIFINDER_AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("PIIFINDER_AI_BASE_URL"); v != "" {
		cfg.AI.BaseURL = v
	}
	if v := os.Getenv("PIIFINDER_AI_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AI.Timeout = d
		}
	}
	if v := os.Getenv("PIIFINDER_SELECTOR_STRATEGY"); v != "" {
		cfg.Selector.Strategy = v
	}
	if v := os.Getenv("PIIFINDER_SELECTOR_FAMILY_BOUND"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Selector.FamilyBound = n
		}
	}
	if v := os.Getenv("PIIFINDER_CONTEXT_TOKEN_COUNTER"); v != "" {
		cfg.Context.TokenCounter = v
	}
	if v := os.Getenv("PIIFINDER_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("PIIFINDER_BROWSER_REMOTE_URL"); v != "" {
		cfg.Browser.RemoteURL = v
	}
	if v := os.Getenv("PIIFINDER_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("PIIFINDER_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("PIIFINDER_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("PIIFINDER_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
