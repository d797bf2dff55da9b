package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Engines     EnginesConfig   `toml:"engines"`
	Queries     QueriesConfig   `toml:"queries"`
	Scoring     ScoringConfig   `toml:"scoring"`
	Sweep       SweepConfig     `toml:"sweep"`
	Logging     LoggingConfig   `toml:"logging"`
	Anthropic   AnthropicConfig `toml:"anthropic"`
	Gemini      GeminiConfig    `toml:"gemini"`
	OpenAI      OpenAIConfig    `toml:"openai"`
	Perplexity  OpenAIConfig    `toml:"perplexity"`
	Overview    OverviewConfig  `toml:"overview"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// SchedulerConfig controls the cron tick loop and run claiming
type SchedulerConfig struct {
	Enabled      bool   `toml:"enabled"`
	TickInterval string `toml:"tick_interval"` // e.g. "30s" - how often due jobs are evaluated
	StaleRunAge  string `toml:"stale_run_age"` // runs older than this with no progress are failed
}

// EnginesConfig controls collector configuration loading and execution fan-out
type EnginesConfig struct {
	SeedDir            string `toml:"seed_dir"`            // Directory containing collector config TOML files
	DefaultConcurrency int    `toml:"default_concurrency"` // Per-engine concurrency ceiling when config omits it
	DefaultTimeout     string `toml:"default_timeout"`     // Per-provider call timeout when config omits it
}

// QueriesConfig controls query seed loading
type QueriesConfig struct {
	SeedDir string `toml:"seed_dir"` // Directory containing brand query YAML files
}

// ScoringConfig configures the external scoring collaborator
type ScoringConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	Timeout   string `toml:"timeout"`
	RateLimit string `toml:"rate_limit"` // minimum spacing between scoring calls
}

// SweepConfig controls the async-provider result sweep
type SweepConfig struct {
	Enabled      bool   `toml:"enabled"`
	PollInterval string `toml:"poll_interval"` // how often running results are reconciled
	MaxHandleAge string `toml:"max_handle_age"` // running results older than this are failed
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// AnthropicConfig contains Anthropic API configuration for the claude engine provider
type AnthropicConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
	RateLimit   string  `toml:"rate_limit"`
}

// GeminiConfig contains Google Gemini API configuration for the gemini engine provider
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
	RateLimit   string  `toml:"rate_limit"`
}

// OpenAIConfig contains configuration for OpenAI-compatible chat completion providers
// (used for both the chatgpt and perplexity engines, which share the wire format)
type OpenAIConfig struct {
	BaseURL     string  `toml:"base_url"`
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
	RateLimit   string  `toml:"rate_limit"`
}

// OverviewConfig contains configuration for AI-overview scrape providers
type OverviewConfig struct {
	BaseURL        string `toml:"base_url"`         // Search endpoint serving AI overview HTML
	AsyncBaseURL   string `toml:"async_base_url"`   // Handle-based overview capture API
	AsyncAPIKey    string `toml:"async_api_key"`
	UserAgent      string `toml:"user_agent"`
	RequestTimeout string `toml:"request_timeout"`
	BrowserWait    string `toml:"browser_wait"` // JS render settle time for the browser provider
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in sonar.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			TickInterval: "30s",
			StaleRunAge:  "2h",
		},
		Engines: EnginesConfig{
			SeedDir:            "./collectors",
			DefaultConcurrency: 4,
			DefaultTimeout:     "60s",
		},
		Queries: QueriesConfig{
			SeedDir: "./queries",
		},
		Scoring: ScoringConfig{
			BaseURL:   "",
			Timeout:   "5m",
			RateLimit: "1s",
		},
		Sweep: SweepConfig{
			Enabled:      true,
			PollInterval: "1m",
			MaxHandleAge: "30m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Anthropic: AnthropicConfig{
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   4096,
			Temperature: 0.7,
			RateLimit:   "1s",
		},
		Gemini: GeminiConfig{
			Model:       "gemini-3-flash-preview",
			Temperature: 0.7,
			RateLimit:   "4s",
		},
		OpenAI: OpenAIConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			RateLimit:   "1s",
		},
		Perplexity: OpenAIConfig{
			BaseURL:     "https://api.perplexity.ai",
			Model:       "sonar",
			Temperature: 0.7,
			RateLimit:   "2s",
		},
		Overview: OverviewConfig{
			UserAgent:      "Mozilla/5.0 (compatible; sonar/1.0)",
			RequestTimeout: "30s",
			BrowserWait:    "3s",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SONAR_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("SONAR_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SONAR_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("SONAR_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Scheduler configuration
	if enabled := os.Getenv("SONAR_SCHEDULER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = e
		}
	}
	if tick := os.Getenv("SONAR_SCHEDULER_TICK_INTERVAL"); tick != "" {
		config.Scheduler.TickInterval = tick
	}

	// Engine configuration
	if seedDir := os.Getenv("SONAR_ENGINES_SEED_DIR"); seedDir != "" {
		config.Engines.SeedDir = seedDir
	}
	if concurrency := os.Getenv("SONAR_ENGINES_DEFAULT_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Engines.DefaultConcurrency = c
		}
	}

	// Scoring configuration
	if baseURL := os.Getenv("SONAR_SCORING_BASE_URL"); baseURL != "" {
		config.Scoring.BaseURL = baseURL
	}
	if apiKey := os.Getenv("SONAR_SCORING_API_KEY"); apiKey != "" {
		config.Scoring.APIKey = apiKey
	}

	// Provider API keys
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" && config.Anthropic.APIKey == "" {
		config.Anthropic.APIKey = apiKey
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" && config.Gemini.APIKey == "" {
		config.Gemini.APIKey = apiKey
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" && config.OpenAI.APIKey == "" {
		config.OpenAI.APIKey = apiKey
	}
	if apiKey := os.Getenv("PERPLEXITY_API_KEY"); apiKey != "" && config.Perplexity.APIKey == "" {
		config.Perplexity.APIKey = apiKey
	}

	// Logging configuration
	if level := os.Getenv("SONAR_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("SONAR_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ParseDuration parses a duration string from config, returning the fallback
// when the value is empty or malformed.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
