// Package config loads hotelqa settings from defaults, hotelqa.yaml, HOTELQA_
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	// EnvPrefix prefixes every environment override. A double underscore nests:
	// HOTELQA_GENERATOR__MODEL sets generator.model.
	EnvPrefix = "HOTELQA_"

	DefaultFile     = "hotelqa.yaml"
	DefaultDatabase = "hotel_operations.db"
	DefaultLogFile  = "hotelqa.log"
)

// Generator backends.
const (
	BackendHuggingFace = "huggingface"
	BackendAnthropic   = "anthropic"
	BackendOpenAI      = "openai"
)

// Load modes.
const (
	ModeRaw        = "raw"
	ModeNormalized = "normalized"
)

// DefaultModels is the model each backend uses unless one is configured.
var DefaultModels = map[string]string{
	BackendHuggingFace: "defog/sqlcoder-7b-2",
	BackendAnthropic:   "claude-haiku-4-5-20251001",
	BackendOpenAI:      "gpt-4o-mini",
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds every setting.
type Config struct {
	Database    string          `koanf:"database"`
	DataDir     string          `koanf:"data_dir"`
	LogFile     string          `koanf:"log_file"`
	LogLevel    string          `koanf:"log_level"`
	AllowWrites bool            `koanf:"allow_writes"`
	Load        LoadConfig      `koanf:"load"`
	Generator   GeneratorConfig `koanf:"generator"`
	Agent       AgentConfig     `koanf:"agent"`
	Server      ServerConfig    `koanf:"server"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

// LoadConfig controls CSV loading.
type LoadConfig struct {
	Mode     string        `koanf:"mode"`
	Mapping  string        `koanf:"mapping"`
	Debounce time.Duration `koanf:"debounce"`
}

// GeneratorConfig selects and tunes the text-to-SQL model.
type GeneratorConfig struct {
	Backend     string        `koanf:"backend"`
	Model       string        `koanf:"model"`
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	MaxTokens   int           `koanf:"max_tokens"`
	Temperature float64       `koanf:"temperature"`
	TopP        float64       `koanf:"top_p"`
	Timeout     time.Duration `koanf:"timeout"`
}

// AgentConfig configures the tool-calling agent used by ask --agent.
type AgentConfig struct {
	Model    string `koanf:"model"`
	APIKey   string `koanf:"api_key"`
	MaxSteps int    `koanf:"max_steps"`
}

// ServerConfig configures serve.
type ServerConfig struct {
	Port           int           `koanf:"port"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

func defaults() map[string]any {
	return map[string]any{
		"database":               DefaultDatabase,
		"data_dir":               ".",
		"log_level":              "info",
		"allow_writes":           false,
		"load.mode":              ModeNormalized,
		"load.debounce":          "500ms",
		"generator.backend":      BackendHuggingFace,
		"generator.model":        DefaultModels[BackendHuggingFace],
		"generator.max_tokens":   256,
		"generator.temperature":  0.7,
		"generator.top_p":        0.9,
		"generator.timeout":      "120s",
		"agent.model":            DefaultModels[BackendAnthropic],
		"agent.max_steps":        8,
		"server.port":            8080,
		"server.allowed_origins": []string{"*"},
		"server.request_timeout": "120s",
	}
}

// flagKeys maps flags whose config key is not the snake_case flag name.
var flagKeys = map[string]string{
	"db":      "database",
	"backend": "generator.backend",
	"model":   "generator.model",
	"port":    "server.port",
	"mode":    "load.mode",
	"mapping": "load.mapping",
}

// Load reads configuration. cfgFile may be empty, in which case hotelqa.yaml
// in the working directory is used when present. A .env file next to it is
// loaded into the process environment first without overriding set variables.
// Only flags the user changed override other sources.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	loadDotEnv(cfgFile)

	used := cfgFile
	if used == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			used = DefaultFile
		}
	}
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = used
	cfg.fillDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns HOTELQA_GENERATOR__MODEL into generator.model.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func loadDotEnv(cfgFile string) {
	path := ".env"
	if cfgFile != "" {
		path = filepath.Join(filepath.Dir(cfgFile), ".env")
	}
	if _, err := os.Stat(path); err == nil {
		// Missing or malformed .env files are not fatal; the variables are optional.
		_ = godotenv.Load(path)
	}
}

// providerKeyVars are the conventional credential variables per backend.
var providerKeyVars = map[string][]string{
	BackendHuggingFace: {"HF_API_TOKEN", "HUGGINGFACEHUB_API_TOKEN"},
	BackendAnthropic:   {"ANTHROPIC_API_KEY"},
	BackendOpenAI:      {"OPENAI_API_KEY"},
}

func (c *Config) fillDerived() {
	if c.LogFile == "" {
		c.LogFile = filepath.Join(filepath.Dir(c.Database), DefaultLogFile)
	}
	// The default model belongs to the default backend.
	if c.Generator.Backend != BackendHuggingFace && c.Generator.Model == DefaultModels[BackendHuggingFace] {
		c.Generator.Model = DefaultModels[c.Generator.Backend]
	}
	if c.Generator.APIKey == "" {
		c.Generator.APIKey = firstEnv(providerKeyVars[c.Generator.Backend]...)
	}
	if c.Agent.APIKey == "" {
		c.Agent.APIKey = firstEnv(providerKeyVars[BackendAnthropic]...)
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// Level returns the slog level named by log_level; unknown names mean info.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Validate reports settings no command can run with.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("%w: database path is empty", ErrInvalid)
	}
	if !slices.Contains([]string{BackendHuggingFace, BackendAnthropic, BackendOpenAI}, c.Generator.Backend) {
		return fmt.Errorf("%w: unknown generator backend %q", ErrInvalid, c.Generator.Backend)
	}
	if c.Load.Mode != ModeRaw && c.Load.Mode != ModeNormalized {
		return fmt.Errorf("%w: unknown load mode %q", ErrInvalid, c.Load.Mode)
	}
	if c.Generator.MaxTokens <= 0 {
		return fmt.Errorf("%w: generator.max_tokens must be positive", ErrInvalid)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalid, c.Server.Port)
	}
	return nil
}
