// Package config loads the gateway's YAML configuration, following the
// search-path-then-env-override convention used across this codebase's
// teacher lineage (check an explicit env var first, then a cwd-relative
// file, then a dotfile under the user's home directory).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root of config.yaml (spec §6.1).
type Config struct {
	DefaultDatabase string                    `yaml:"default_database"`
	Postgres        *DatabaseSection          `yaml:"postgres,omitempty"`
	Mongo           *DatabaseSection          `yaml:"mongodb,omitempty"`
	Qdrant          *DatabaseSection          `yaml:"qdrant,omitempty"`
	Slack           *SlackSection             `yaml:"slack,omitempty"`
	Shopify         *ShopifySection           `yaml:"shopify,omitempty"`
	GA4             *GA4Section               `yaml:"ga4,omitempty"`
	VectorDB        *DatabaseSection          `yaml:"vector_db,omitempty"`
	SSO             map[string]any            `yaml:"sso,omitempty"`
	RoleMappings    map[string]string         `yaml:"role_mappings,omitempty"`
	TrivialLLM      map[string]any            `yaml:"trivial_llm,omitempty"`
}

// DatabaseSection covers Postgres/Mongo/Qdrant style connection config.
type DatabaseSection struct {
	URI        string `yaml:"uri,omitempty"`
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	Database   string `yaml:"database,omitempty"`
	User       string `yaml:"user,omitempty"`
	Password   string `yaml:"password,omitempty"`
	SSLMode    string `yaml:"ssl_mode,omitempty"`
	AuthSource string `yaml:"auth_source,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	PreferGRPC bool   `yaml:"prefer_grpc,omitempty"`
	GRPCPort   int    `yaml:"grpc_port,omitempty"`
}

type SlackSection struct {
	MCPURL          string `yaml:"mcp_url,omitempty"`
	HistoryDays     int    `yaml:"history_days,omitempty"`
	UpdateFrequency int    `yaml:"update_frequency,omitempty"`
}

type ShopifySection struct {
	AppURL        string `yaml:"app_url,omitempty"`
	APIVersion    string `yaml:"api_version,omitempty"`
	ClientID      string `yaml:"client_id,omitempty"`
	ClientSecret  string `yaml:"client_secret,omitempty"`
	WebhookSecret string `yaml:"webhook_secret,omitempty"`
}

type GA4Section struct {
	PropertyID string   `yaml:"property_id,omitempty"`
	KeyFile    string   `yaml:"key_file,omitempty"`
	Scopes     []string `yaml:"scopes,omitempty"`
}

// Locate implements the config-file search order: explicit env var,
// ./config.yaml, ~/.data-connector/config.yaml.
func Locate(envVar, defaultRelName string) (string, bool) {
	if p := os.Getenv(envVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	if _, err := os.Stat(defaultRelName); err == nil {
		return defaultRelName, true
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".data-connector", defaultRelName)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// Load reads and parses config.yaml using the search order above, then
// applies DATA_CONNECTOR_CONFIG-prefixed environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load() // best-effort .env load, mirrors teacher's startup

	path, found := Locate("DATA_CONNECTOR_CONFIG", "config.yaml")
	cfg := &Config{}
	if found {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadAuth reads auth-config.yaml using the analogous search chain
// (AUTH_CONFIG env var, ./auth-config.yaml, ~/.data-connector/auth-config.yaml).
func LoadAuth() (map[string]any, error) {
	path, found := Locate("AUTH_CONFIG", "auth-config.yaml")
	if !found {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return out, nil
}

// applyEnvOverrides fills in zero-valued section fields from
// SECTION_FIELD environment variables. Config file values always take
// precedence (spec §6.1): a field is only overridden when still empty.
func applyEnvOverrides(cfg *Config) {
	envStr := func(key string) (string, bool) {
		v, ok := os.LookupEnv(key)
		return v, ok && v != ""
	}

	if cfg.Qdrant == nil {
		cfg.Qdrant = &DatabaseSection{}
	}
	if cfg.Qdrant.Host == "" {
		if v, ok := envStr("QDRANT_HOST"); ok {
			cfg.Qdrant.Host = v
		}
	}
	if cfg.Qdrant.APIKey == "" {
		if v, ok := envStr("QDRANT_API_KEY"); ok {
			cfg.Qdrant.APIKey = v
		}
	}

	if cfg.Postgres == nil {
		cfg.Postgres = &DatabaseSection{}
	}
	if cfg.Postgres.Host == "" {
		if v, ok := envStr("POSTGRES_HOST"); ok {
			cfg.Postgres.Host = v
		}
	}
	if cfg.Postgres.Password == "" {
		if v, ok := envStr("POSTGRES_PASSWORD"); ok {
			cfg.Postgres.Password = v
		}
	}

	if cfg.Shopify == nil {
		cfg.Shopify = &ShopifySection{}
	}
	if cfg.Shopify.ClientSecret == "" {
		if v, ok := envStr("SHOPIFY_CLIENT_SECRET"); ok {
			cfg.Shopify.ClientSecret = v
		}
	}
	if cfg.Shopify.WebhookSecret == "" {
		if v, ok := envStr("SHOPIFY_WEBHOOK_SECRET"); ok {
			cfg.Shopify.WebhookSecret = v
		}
	}
}
