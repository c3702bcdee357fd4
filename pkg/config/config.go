// Package config loads the service configuration from a YAML file with
// environment-variable expansion. Every knob has a default so an empty file
// (or no file at all) yields a runnable simulated setup.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`

	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Telephony TelephonyConfig `mapstructure:"telephony"`
	Slots     SlotsConfig     `mapstructure:"slots"`
	Dialog    DialogConfig    `mapstructure:"dialog"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Privacy   PrivacyConfig   `mapstructure:"privacy"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// PublicURL is the externally reachable base used to build the webhook
	// callback URL handed to the telephony provider.
	PublicURL         string `mapstructure:"public_url"`
	WebhookSecret     string `mapstructure:"webhook_secret"`
	ShutdownTimeoutMS int    `mapstructure:"shutdown_timeout_ms"`
}

type StorageConfig struct {
	// Driver selects "memory" or "postgres".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type OracleConfig struct {
	GroqAPIKey   string `mapstructure:"groq_api_key"`
	GroqModel    string `mapstructure:"groq_model"`
	OpenAIAPIKey string `mapstructure:"openai_api_key"`

	RetryMaxAttempts int `mapstructure:"retry_max_attempts"`
	RetryBaseDelayMS int `mapstructure:"retry_base_delay_ms"`
	RetryMaxDelayMS  int `mapstructure:"retry_max_delay_ms"`
}

// TelephonyConfig selects a provider by name with free-form settings, the
// same shape agent profiles use for prompt overrides.
type TelephonyConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type SlotsConfig struct {
	HeuristicsEnabled    bool `mapstructure:"heuristics_enabled"`
	TextTemplatesEnabled bool `mapstructure:"text_templates_enabled"`
}

type DialogConfig struct {
	ConfirmBeforeClose bool `mapstructure:"confirm_before_close"`
}

type MetricsConfig struct {
	// JSONLPath enables the append-only metrics sink when set.
	JSONLPath string `mapstructure:"jsonl_path"`
}

type PrivacyConfig struct {
	// RedactPII scrubs phone numbers and emails from log lines. Stored
	// transcripts are never scrubbed.
	RedactPII bool `mapstructure:"redact_pii"`
}

// Load reads the config file at path. An empty path skips the file and uses
// defaults plus environment overrides only.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.webhook_secret", "")
	v.SetDefault("server.shutdown_timeout_ms", 10000)
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("oracle.groq_api_key", "")
	v.SetDefault("oracle.groq_model", "llama-3.1-8b-instant")
	v.SetDefault("oracle.openai_api_key", "")
	v.SetDefault("oracle.retry_max_attempts", 3)
	v.SetDefault("oracle.retry_base_delay_ms", 100)
	v.SetDefault("oracle.retry_max_delay_ms", 2000)
	v.SetDefault("telephony.provider", "simulated")
	v.SetDefault("slots.heuristics_enabled", true)
	v.SetDefault("slots.text_templates_enabled", true)
	v.SetDefault("dialog.confirm_before_close", false)
	v.SetDefault("metrics.jsonl_path", "")
	v.SetDefault("privacy.redact_pii", true)

	// The two extraction flags are operational toggles; they can be flipped
	// per deployment without editing the file.
	_ = v.BindEnv("slots.heuristics_enabled", "SLOT_HEURISTICS_ENABLED")
	_ = v.BindEnv("slots.text_templates_enabled", "SLOT_TEXT_TEMPLATES_ENABLED")
	_ = v.BindEnv("oracle.groq_api_key", "GROQ_API_KEY")
	_ = v.BindEnv("oracle.openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("storage.dsn", "DATABASE_URL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)
	cfg.Telephony.Settings = expandSettings(cfg.Telephony.Settings)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	switch strings.ToLower(strings.TrimSpace(c.Telephony.Provider)) {
	case "simulated", "rest", "twilio":
	default:
		return fmt.Errorf("telephony.provider %q is not supported", c.Telephony.Provider)
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	}
}
