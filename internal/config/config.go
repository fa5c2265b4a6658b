// Package config loads service configuration from file, environment,
// and defaults via viper. Precedence: env > config file > defaults.
// Environment variables use the INSIGHT_ prefix (INSIGHT_LISTEN_ADDR,
// INSIGHT_LLM_PROVIDER, ...).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	// LLM provider selection.
	LLMProvider string `mapstructure:"llm_provider"` // mock, gemini, ollama
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
	LLMEndpoint string `mapstructure:"llm_endpoint"`

	// Persistence. Kind "" disables persistence entirely.
	StorageKind string `mapstructure:"storage_kind"` // memory, sqlite, postgres, mssql
	StorageDSN  string `mapstructure:"storage_dsn"`

	// Metrics.
	DatadogEnabled bool   `mapstructure:"datadog_enabled"`
	DatadogTags    string `mapstructure:"datadog_tags"` // CSV, e.g. "env:prod,team:data"

	// Sessions.
	SessionTTLMinutes int `mapstructure:"session_ttl_minutes"`

	// Server shaping.
	PreviewRows int `mapstructure:"preview_rows"`
	PageLimit   int `mapstructure:"page_limit"`
}

// Load reads configuration. cfgFile may be empty; then only env and
// defaults apply.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8000")
	v.SetDefault("llm_provider", "mock")
	v.SetDefault("model", "")
	v.SetDefault("llm_endpoint", "")
	v.SetDefault("storage_kind", "memory")
	v.SetDefault("storage_dsn", "")
	v.SetDefault("datadog_enabled", false)
	v.SetDefault("datadog_tags", "")
	v.SetDefault("session_ttl_minutes", 30)
	v.SetDefault("preview_rows", 100)
	v.SetDefault("page_limit", 100)

	// AutomaticEnv alone does not surface env-only keys through
	// Unmarshal; bind each key explicitly.
	for _, key := range []string{
		"listen_addr", "llm_provider", "api_key", "model", "llm_endpoint",
		"storage_kind", "storage_dsn", "datadog_enabled", "datadog_tags",
		"session_ttl_minutes", "preview_rows", "page_limit",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
