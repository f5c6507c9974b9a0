// Package config loads listforge settings from defaults, an optional YAML
// file and LISTFORGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/listforge/internal/llm"
	"github.com/valpere/listforge/internal/orchestrator"
	"github.com/valpere/listforge/internal/transport/rest/middleware"
)

// EnvPrefix namespaces environment overrides, e.g. LISTFORGE_POLICY_MIN_SCORE.
const EnvPrefix = "LISTFORGE"

// ConfigurationError reports a setting that prevents startup.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

type ServerConfig struct {
	Addr            string                `mapstructure:"addr"`
	ReadTimeout     time.Duration         `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration         `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration         `mapstructure:"shutdown_timeout"`
	CORS            middleware.CORSConfig `mapstructure:"cors"`
}

type GenerationConfig struct {
	// TemplatesDir overrides the built-in prompt templates when set.
	TemplatesDir  string `mapstructure:"templates_dir"`
	SanitizeHTML  bool   `mapstructure:"sanitize_html"`
	LanguageCheck bool   `mapstructure:"language_check"`
}

type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Server     ServerConfig        `mapstructure:"server"`
	Generator  llm.Config          `mapstructure:"generator"`
	Evaluator  llm.Config          `mapstructure:"evaluator"`
	Retry      llm.RetryConfig     `mapstructure:"retry"`
	Policy     orchestrator.Policy `mapstructure:"policy"`
	Generation GenerationConfig    `mapstructure:"generation"`
	Store      StoreConfig         `mapstructure:"store"`
	Cache      CacheConfig         `mapstructure:"cache"`
	Log        LogConfig           `mapstructure:"log"`
}

// SetDefaults registers every key so environment overrides apply to all of
// them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 7*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("server.cors.allowed_headers", []string{"Content-Type", "Authorization"})

	for _, role := range []string{"generator", "evaluator"} {
		v.SetDefault(role+".provider", string(llm.ProviderOpenAI))
		v.SetDefault(role+".model", llm.DefaultOpenAIModel)
		v.SetDefault(role+".base_url", "")
		v.SetDefault(role+".api_key", "")
		v.SetDefault(role+".max_tokens", 0)
		v.SetDefault(role+".timeout", 0)
		v.SetDefault(role+".responses", []string{})
	}
	v.SetDefault("generator.temperature", 0.7)
	v.SetDefault("evaluator.temperature", 0.0)

	v.SetDefault("retry.attempts", 1)
	v.SetDefault("retry.base_delay", 500*time.Millisecond)
	v.SetDefault("retry.max_delay", 10*time.Second)

	v.SetDefault("policy.max_retries", orchestrator.DefaultMaxRetries)
	v.SetDefault("policy.min_score", orchestrator.DefaultMinScore)
	v.SetDefault("policy.call_timeout", orchestrator.DefaultCallTimeout)

	v.SetDefault("generation.templates_dir", "")
	v.SetDefault("generation.sanitize_html", true)
	v.SetDefault("generation.language_check", true)

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", "./data/listforge.db")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads path, or ./listforge.yaml when path is empty and the file
// exists, decodes the result and validates it.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &ConfigurationError{Field: "config", Reason: "cannot read " + path, Err: err}
		}
	} else {
		v.SetConfigName("listforge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, &ConfigurationError{Field: "config", Reason: "cannot read listforge.yaml", Err: err}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigurationError{Field: "config", Reason: "cannot decode", Err: err}
	}
	cfg.applyKeyFallbacks(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// providerKeyEnv lists the conventional key variables read when no
// LISTFORGE_* key is set.
var providerKeyEnv = map[llm.Provider]string{
	llm.ProviderOpenAI:     "OPENAI_API_KEY",
	llm.ProviderOpenRouter: "OPENROUTER_API_KEY",
	llm.ProviderGemini:     "GEMINI_API_KEY",
}

func (c *Config) applyKeyFallbacks(getenv func(string) string) {
	for _, lc := range []*llm.Config{&c.Generator, &c.Evaluator} {
		if lc.APIKey != "" {
			continue
		}
		if name, ok := providerKeyEnv[lc.Provider]; ok {
			lc.APIKey = getenv(name)
		}
	}
}

// Validate checks everything that would otherwise fail on the first
// request.
func (c *Config) Validate() error {
	roles := []struct {
		name string
		cfg  llm.Config
	}{{"generator", c.Generator}, {"evaluator", c.Evaluator}}

	for _, r := range roles {
		role, lc := r.name, r.cfg
		switch lc.Provider {
		case llm.ProviderOllama, llm.ProviderStub:
		case llm.ProviderOpenAI, llm.ProviderOpenRouter, llm.ProviderGemini:
			if lc.APIKey == "" {
				return &ConfigurationError{
					Field:  role + ".api_key",
					Reason: fmt.Sprintf("%s needs an API key (set LISTFORGE_%s_API_KEY or %s)", lc.Provider, strings.ToUpper(role), providerKeyEnv[lc.Provider]),
				}
			}
		default:
			return &ConfigurationError{Field: role + ".provider", Reason: fmt.Sprintf("unknown provider %q", lc.Provider)}
		}
		if lc.Temperature < 0 || lc.Temperature > 2 {
			return &ConfigurationError{Field: role + ".temperature", Reason: "must be between 0 and 2"}
		}
	}

	if c.Policy.MaxRetries < 1 {
		return &ConfigurationError{Field: "policy.max_retries", Reason: "must be at least 1"}
	}
	if c.Policy.MinScore < 0 || c.Policy.MinScore > 10 {
		return &ConfigurationError{Field: "policy.min_score", Reason: "must be between 0 and 10"}
	}
	if c.Policy.CallTimeout <= 0 {
		return &ConfigurationError{Field: "policy.call_timeout", Reason: "must be positive"}
	}
	if c.Retry.Attempts < 1 {
		return &ConfigurationError{Field: "retry.attempts", Reason: "must be at least 1"}
	}
	if c.Store.Enabled && c.Store.Path == "" {
		return &ConfigurationError{Field: "store.path", Reason: "required when the store is enabled"}
	}
	if c.Cache.Enabled && c.Cache.RedisAddr == "" {
		return &ConfigurationError{Field: "cache.redis_addr", Reason: "required when the cache is enabled"}
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return &ConfigurationError{Field: "log.format", Reason: fmt.Sprintf("must be json or console, got %q", c.Log.Format)}
	}
	return nil
}
