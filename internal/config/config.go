package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"korabot/internal/domain"
)

// Config is the root configuration for korabot.
type Config struct {
	General   GeneralConfig   `json:"general" yaml:"general"`
	AI        AIConfig        `json:"ai" yaml:"ai"`
	ImageHost ImageHostConfig `json:"imageHost" yaml:"imageHost"`
	Channels  ChannelsConfig  `json:"channels" yaml:"channels"`
	History   HistoryConfig   `json:"history" yaml:"history"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	RateLimit RateLimitConfig `json:"rateLimit" yaml:"rateLimit"`
}

type GeneralConfig struct {
	LogLevel              string `json:"logLevel" yaml:"logLevel" env:"LOG_LEVEL"`
	LogFile               string `json:"logFile,omitempty" yaml:"logFile,omitempty" env:"LOG_FILE"`
	CommandPrefix         string `json:"commandPrefix" yaml:"commandPrefix" env:"KORABOT_PREFIX"`
	MaxConcurrentMessages int    `json:"maxConcurrentMessages" yaml:"maxConcurrentMessages" env:"KORABOT_MAX_CONCURRENT"`
}

// AIConfig holds the two model roles. Text and image may use different
// providers, keys and models.
type AIConfig struct {
	Text              ModelConfig `json:"text" yaml:"text" envPrefix:"AI_TEXT_"`
	Image             ModelConfig `json:"image" yaml:"image" envPrefix:"AI_IMAGE_"`
	SystemInstruction string      `json:"systemInstruction" yaml:"systemInstruction" env:"AI_SYSTEM_INSTRUCTION"`
	AnalysisPrompt    string      `json:"analysisPrompt" yaml:"analysisPrompt" env:"AI_ANALYSIS_PROMPT"`
	TimeoutSeconds    int         `json:"timeoutSeconds" yaml:"timeoutSeconds" env:"AI_TIMEOUT_SECONDS"`
}

type ModelConfig struct {
	Provider    string  `json:"provider" yaml:"provider" env:"PROVIDER"` // gemini | openai | claude | ollama
	APIKey      string  `json:"apiKey,omitempty" yaml:"apiKey,omitempty" env:"API_KEY"`
	APIBase     string  `json:"apiBase,omitempty" yaml:"apiBase,omitempty" env:"API_BASE"`
	Model       string  `json:"model" yaml:"model" env:"MODEL"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" env:"TEMPERATURE"`
	TopP        float64 `json:"topP,omitempty" yaml:"topP,omitempty" env:"TOP_P"`
	MaxTokens   int     `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty" env:"MAX_TOKENS"`
}

type ImageHostConfig struct {
	URL            string `json:"url" yaml:"url" env:"IMAGE_HOST_URL"`
	APIKey         string `json:"apiKey,omitempty" yaml:"apiKey,omitempty" env:"IMAGE_HOST_API_KEY"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds" env:"IMAGE_HOST_TIMEOUT_SECONDS"`
	EchoMedia      bool   `json:"echoMedia" yaml:"echoMedia" env:"IMAGE_HOST_ECHO_MEDIA"`
}

type ChannelsConfig struct {
	Telegram  TelegramConfig  `json:"telegram" yaml:"telegram"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp" yaml:"whatsapp"`
	WhatsMeow WhatsMeowConfig `json:"whatsmeow" yaml:"whatsmeow"`
}

type TelegramConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled" env:"TELEGRAM_ENABLED"`
	Token          string `json:"token" yaml:"token" env:"KORABOT_TELEGRAM_TOKEN"`
	BotUsername    string `json:"botUsername,omitempty" yaml:"botUsername,omitempty" env:"KORABOT_BOT_USERNAME"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds" env:"TELEGRAM_TIMEOUT_SECONDS"`
}

// WhatsAppConfig configures the WhatsApp Business Cloud API webhook channel.
type WhatsAppConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled" env:"WHATSAPP_ENABLED"`
	AppSecret      string `json:"appSecret,omitempty" yaml:"appSecret,omitempty" env:"WHATSAPP_APP_SECRET"`
	AccessToken    string `json:"accessToken,omitempty" yaml:"accessToken,omitempty" env:"WHATSAPP_ACCESS_TOKEN"`
	VerifyToken    string `json:"verifyToken,omitempty" yaml:"verifyToken,omitempty" env:"WHATSAPP_VERIFY_TOKEN"`
	PhoneNumberID  string `json:"phoneNumberId,omitempty" yaml:"phoneNumberId,omitempty" env:"WHATSAPP_PHONE_NUMBER_ID"`
	WebhookPath    string `json:"webhookPath" yaml:"webhookPath" env:"WHATSAPP_WEBHOOK_PATH"`
	APIBase        string `json:"apiBase" yaml:"apiBase" env:"WHATSAPP_API_BASE"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds" env:"WHATSAPP_TIMEOUT_SECONDS"`
}

// WhatsMeowConfig configures the linked-device WhatsApp channel.
type WhatsMeowConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled" env:"WHATSMEOW_ENABLED"`
	DeviceDBPath   string `json:"deviceDbPath" yaml:"deviceDbPath" env:"WHATSMEOW_DEVICE_DB"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds" env:"WHATSMEOW_TIMEOUT_SECONDS"`
}

type HistoryConfig struct {
	Driver     string `json:"driver" yaml:"driver" env:"HISTORY_DRIVER"` // sqlite | postgres
	DBPath     string `json:"dbPath" yaml:"dbPath" env:"HISTORY_DB_PATH"`
	DSN        string `json:"dsn,omitempty" yaml:"dsn,omitempty" env:"HISTORY_DSN"`
	SweepEvery string `json:"sweepEvery" yaml:"sweepEvery" env:"HISTORY_SWEEP_EVERY"` // Go duration
}

type ServerConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"SERVER_ENABLED"`
	Addr    string `json:"addr" yaml:"addr" env:"SERVER_ADDR"`
	Metrics bool   `json:"metrics" yaml:"metrics" env:"SERVER_METRICS"`
}

// RateLimitConfig bounds how often one sender may be answered.
type RateLimitConfig struct {
	PerMinute float64 `json:"perMinute" yaml:"perMinute" env:"RATE_LIMIT_PER_MINUTE"` // 0 disables
	Burst     int     `json:"burst" yaml:"burst" env:"RATE_LIMIT_BURST"`
}

// DefaultConfigDir returns the default config directory (~/.korabot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".korabot"
	}
	return filepath.Join(home, ".korabot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads the effective config and validates it.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Read builds the effective config without validating it: defaults, then the
// YAML file when it exists, then environment overrides. A missing file is
// not an error.
func Read(path string) (*Config, error) {
	cfg, err := readFile(path, true)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.History.DBPath = ExpandPath(cfg.History.DBPath)
	cfg.Channels.WhatsMeow.DeviceDBPath = ExpandPath(cfg.Channels.WhatsMeow.DeviceDBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	return cfg, nil
}

// ReadFile returns defaults plus the YAML file exactly as written: ${VAR}
// references stay unexpanded and the environment is ignored. Edit the
// result and Save it without leaking secrets from the environment.
func ReadFile(path string) (*Config, error) {
	return readFile(path, false)
}

func readFile(path string, expand bool) (*Config, error) {
	cfg := Defaults()

	path = ExpandPath(path)
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if expand {
			data = []byte(ExpandEnvVars(string(data)))
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv layers the variable names used by earlier deployments of the
// bot, then the struct-tag environment variables, which win.
func applyEnv(cfg *Config) error {
	legacy := []struct {
		name string
		dst  *string
	}{
		{"TELEGRAM_TOKEN", &cfg.Channels.Telegram.Token},
		{"BOT_USERNAME", &cfg.Channels.Telegram.BotUsername},
		{"PREFIX", &cfg.General.CommandPrefix},
		{"GEMINI_TEXT_API_KEY", &cfg.AI.Text.APIKey},
		{"GEMINI_IMAGE_API_KEY", &cfg.AI.Image.APIKey},
		{"IMGE_API_KEY", &cfg.ImageHost.APIKey},
		{"DATABASE_URL", &cfg.History.DSN},
	}
	for _, l := range legacy {
		if v, ok := os.LookupEnv(l.name); ok && v != "" {
			*l.dst = v
		}
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// SweepInterval parses SweepEvery. An empty value means every event.
func (h HistoryConfig) SweepInterval() (time.Duration, error) {
	if h.SweepEvery == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(h.SweepEvery)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if len(groups) >= 3 && groups[2] != "" {
				return groups[2]
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has usable values. The returned error
// joins one *domain.ConfigError per problem.
func Validate(cfg *Config) error {
	var errs []error
	bad := func(field, reason string) {
		errs = append(errs, &domain.ConfigError{Field: field, Reason: reason})
	}

	if strings.TrimSpace(cfg.General.CommandPrefix) == "" {
		bad("general.commandPrefix", "must not be empty")
	}
	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		bad("general.maxConcurrentMessages", "must be between 1 and 100")
	}
	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		bad("general.logLevel", "must be one of: debug, info, warn, error")
	}

	validateModel(bad, "ai.text", cfg.AI.Text)
	validateModel(bad, "ai.image", cfg.AI.Image)
	if cfg.AI.TimeoutSeconds < 1 {
		bad("ai.timeoutSeconds", "must be >= 1")
	}
	if cfg.ImageHost.TimeoutSeconds < 1 {
		bad("imageHost.timeoutSeconds", "must be >= 1")
	}

	tg := cfg.Channels.Telegram
	if tg.Enabled && tg.Token == "" {
		bad("channels.telegram.token", "required when telegram is enabled")
	}
	wa := cfg.Channels.WhatsApp
	if wa.Enabled {
		if wa.VerifyToken == "" {
			bad("channels.whatsapp.verifyToken", "required when whatsapp is enabled")
		}
		if wa.AccessToken == "" {
			bad("channels.whatsapp.accessToken", "required when whatsapp is enabled")
		}
		if wa.PhoneNumberID == "" {
			bad("channels.whatsapp.phoneNumberId", "required when whatsapp is enabled")
		}
		if !strings.HasPrefix(wa.WebhookPath, "/") {
			bad("channels.whatsapp.webhookPath", "must start with /")
		}
		if !cfg.Server.Enabled {
			bad("server.enabled", "the whatsapp webhook needs the HTTP server")
		}
	}
	if cfg.Channels.WhatsMeow.Enabled && cfg.Channels.WhatsMeow.DeviceDBPath == "" {
		bad("channels.whatsmeow.deviceDbPath", "required when whatsmeow is enabled")
	}

	switch cfg.History.Driver {
	case "sqlite":
		if cfg.History.DBPath == "" {
			bad("history.dbPath", "required for the sqlite driver")
		}
	case "postgres":
		if cfg.History.DSN == "" {
			bad("history.dsn", "required for the postgres driver")
		}
	default:
		bad("history.driver", "must be one of: sqlite, postgres")
	}
	if _, err := cfg.History.SweepInterval(); err != nil {
		bad("history.sweepEvery", err.Error())
	}

	if cfg.RateLimit.PerMinute < 0 {
		bad("rateLimit.perMinute", "must be >= 0")
	}
	if cfg.RateLimit.PerMinute > 0 && cfg.RateLimit.Burst < 1 {
		bad("rateLimit.burst", "must be >= 1 when rate limiting is on")
	}

	return errors.Join(errs...)
}

func validateModel(bad func(field, reason string), prefix string, mc ModelConfig) {
	switch mc.Provider {
	case "gemini", "openai", "claude":
		if mc.APIKey == "" {
			bad(prefix+".apiKey", "required for provider "+mc.Provider)
		}
	case "ollama":
	default:
		bad(prefix+".provider", "must be one of: gemini, openai, claude, ollama")
	}
	if mc.Model == "" {
		bad(prefix+".model", "must not be empty")
	}
}

// RequireTransport reports a ConfigError when no channel is enabled.
func RequireTransport(cfg *Config) error {
	ch := cfg.Channels
	if !ch.Telegram.Enabled && !ch.WhatsApp.Enabled && !ch.WhatsMeow.Enabled {
		return &domain.ConfigError{Field: "channels", Reason: "enable at least one of telegram, whatsapp, whatsmeow"}
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
