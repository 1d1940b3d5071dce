package evaluator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultProvider        = "gemini"
	DefaultModel           = "gemini-2.0-flash"
	DefaultTemperature     = 0.2
	DefaultMaxTokens       = 30000
	DefaultMaxPromptTokens = 900000
	DefaultRetryAttempts   = 3
	DefaultRetryDelay      = 5 * time.Second
	DefaultRPM             = 60
	DefaultMetricsWorkers  = 5
	DefaultOutDir          = "reports"
	DefaultPromptPath      = "prompts/default.txt"
	DefaultCacheTTL        = time.Hour

	maxMetricsWorkers = 10
)

type App struct {
	PromptPath string `yaml:"prompt_path"`
	OutDir     string `yaml:"out_dir"`
	JSON       bool   `yaml:"json"`
	InMemory   bool   `yaml:"in_memory"`
}

type Auth struct {
	GithubToken string `yaml:"github_token"`
}

type LLM struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key"`
	Endpoint          string        `yaml:"endpoint"`
	MaxTokens         int           `yaml:"max_tokens"`
	MaxPromptTokens   int           `yaml:"max_prompt_tokens"`
	Temperature       float64       `yaml:"temperature"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
}

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type Metrics struct {
	Enabled  bool          `yaml:"enabled"`
	Workers  int           `yaml:"workers"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type Config struct {
	App     App     `yaml:"app"`
	Auth    Auth    `yaml:"auth"`
	LLM     LLM     `yaml:"llm"`
	Log     Log     `yaml:"log"`
	Metrics Metrics `yaml:"metrics"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		App: App{
			PromptPath: DefaultPromptPath,
			OutDir:     DefaultOutDir,
		},
		LLM: LLM{
			Provider:          DefaultProvider,
			Model:             DefaultModel,
			MaxTokens:         DefaultMaxTokens,
			MaxPromptTokens:   DefaultMaxPromptTokens,
			Temperature:       DefaultTemperature,
			RequestsPerMinute: DefaultRPM,
			RetryAttempts:     DefaultRetryAttempts,
			RetryDelay:        DefaultRetryDelay,
		},
		Log: Log{Level: "info"},
		Metrics: Metrics{
			Enabled:  true,
			Workers:  DefaultMetricsWorkers,
			CacheTTL: DefaultCacheTTL,
		},
	}
}

// LoadConfig layers the YAML file at path over the environment, and the
// environment over the defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	c.applyEnv(os.Getenv)

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, c); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	c.Normalize()
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("GITHUB_TOKEN"); v != "" {
		c.Auth.GithubToken = v
	}
	if v := getenv("DEFAULT_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := getenv("TEMPERATURE"); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			c.LLM.Temperature = t
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Normalize fills zero values with defaults and clamps ranges. Flags set
// after loading should call it again.
func (c *Config) Normalize() {
	if c.App.OutDir == "" {
		c.App.OutDir = DefaultOutDir
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = DefaultProvider
	}
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultModel
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = DefaultMaxTokens
	}
	if c.LLM.MaxPromptTokens <= 0 {
		c.LLM.MaxPromptTokens = DefaultMaxPromptTokens
	}
	c.LLM.Temperature = clampFloat(c.LLM.Temperature, 0, 1)
	if c.LLM.RequestsPerMinute <= 0 {
		c.LLM.RequestsPerMinute = DefaultRPM
	}
	if c.LLM.RetryAttempts <= 0 {
		c.LLM.RetryAttempts = DefaultRetryAttempts
	}
	if c.LLM.RetryDelay < 0 {
		c.LLM.RetryDelay = 0
	}
	if c.Metrics.Workers == 0 {
		c.Metrics.Workers = DefaultMetricsWorkers
	}
	c.Metrics.Workers = clampInt(c.Metrics.Workers, 1, maxMetricsWorkers)
	if c.Metrics.CacheTTL < 0 {
		c.Metrics.CacheTTL = 0
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
