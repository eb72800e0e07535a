// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig gates the API behind a single shared password.
type AuthConfig struct {
	Password     string        `yaml:"password"`
	JWTSecret    string        `yaml:"jwt_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"` // empty: in-memory store (dev only)
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty: no run lock, no progress cache
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	Provider        string            `yaml:"provider"` // gemini | openai | noop
	GeminiKey       string            `yaml:"gemini_key"`
	GeminiURL       string            `yaml:"gemini_url"`
	OpenAIKey       string            `yaml:"openai_key"`
	OpenAIBaseURL   string            `yaml:"openai_base_url"`
	TextModel       string            `yaml:"text_model"`
	ImageModel      string            `yaml:"image_model"`
	ModelProviders  map[string]string `yaml:"model_providers"` // model -> provider overrides
	MaxOutputTokens int               `yaml:"max_output_tokens"`
	ConcurrentLimit int               `yaml:"concurrent_limit"` // max concurrent AI calls
	RequestTimeout  time.Duration     `yaml:"request_timeout"`
}

type PipelineConfig struct {
	BatchSize      int           `yaml:"batch_size"`
	HookWordBudget int           `yaml:"hook_word_budget"`
	LockTTL        time.Duration `yaml:"lock_ttl"`
}

type QueueConfig struct {
	AutoStart bool `yaml:"auto_start"`
	Workers   int  `yaml:"workers"` // background pool for notifications
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Queue    QueueConfig    `yaml:"queue"`
	Telegram TelegramConfig `yaml:"telegram"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(configPath string, dev bool) (*Config, error) {
	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = 12 * time.Hour
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.AI.Provider == "" {
		switch {
		case cfg.AI.GeminiKey != "":
			cfg.AI.Provider = "gemini"
		case cfg.AI.OpenAIKey != "":
			cfg.AI.Provider = "openai"
		case cfg.Runtime.Dev:
			cfg.AI.Provider = "noop"
		}
	}
	if cfg.AI.TextModel == "" {
		if cfg.AI.Provider == "openai" {
			cfg.AI.TextModel = "gpt-4o-mini"
		} else {
			cfg.AI.TextModel = "gemini-2.5-flash"
		}
	}
	if cfg.AI.ImageModel == "" {
		if cfg.AI.Provider == "openai" {
			cfg.AI.ImageModel = "dall-e-3"
		} else {
			cfg.AI.ImageModel = "gemini-2.5-flash-image-preview"
		}
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 8192
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 4
	}
	if cfg.AI.RequestTimeout <= 0 {
		cfg.AI.RequestTimeout = 3 * time.Minute
	}

	if cfg.Pipeline.BatchSize <= 0 {
		cfg.Pipeline.BatchSize = 3
	}
	if cfg.Pipeline.HookWordBudget <= 0 {
		cfg.Pipeline.HookWordBudget = 150
	}
	if cfg.Pipeline.LockTTL <= 0 {
		cfg.Pipeline.LockTTL = 10 * time.Minute
	}
	if cfg.Queue.Workers <= 0 {
		cfg.Queue.Workers = 2
	}
}

// Minimal validation
func (cfg *Config) validate() error {
	switch cfg.AI.Provider {
	case "gemini":
		if cfg.AI.GeminiKey == "" {
			return errors.New("ai.gemini_key is required for provider gemini")
		}
	case "openai":
		if cfg.AI.OpenAIKey == "" {
			return errors.New("ai.openai_key is required for provider openai")
		}
	case "noop":
		if !cfg.Runtime.Dev {
			return errors.New("ai.provider noop is only allowed in dev mode")
		}
	case "":
		return errors.New("no AI provider configured: set ai.gemini_key or ai.openai_key")
	default:
		return fmt.Errorf("unknown ai.provider %q", cfg.AI.Provider)
	}
	if cfg.Database.URL == "" && !cfg.Runtime.Dev {
		return errors.New("database.url is required")
	}
	if cfg.Auth.Password != "" && len(cfg.Auth.JWTSecret) < 16 {
		return errors.New("auth.jwt_secret must be at least 16 bytes when auth.password is set")
	}
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID == 0 {
		return errors.New("telegram.chat_id is required when telegram.token is set")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
