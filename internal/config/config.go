package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath    = "config.toml"
	DefaultHTTPAddr      = ":8080"
	DefaultJWTExpiresIn  = "24h"
	DefaultPGHost        = "127.0.0.1"
	DefaultPGPort        = 5432
	DefaultPGUser        = "postgres"
	DefaultPGDatabase    = "botlink"
	DefaultPGSSLMode     = "disable"
	DefaultGraphBaseURL  = "https://graph.facebook.com"
	DefaultGraphVersion  = "v18.0"
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultHealthSpec    = "@every 15m"
)

type Config struct {
	Log         LogConfig         `toml:"log"`
	Server      ServerConfig      `toml:"server"`
	Admin       AdminConfig       `toml:"admin"`
	Auth        AuthConfig        `toml:"auth"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Vault       VaultConfig       `toml:"vault"`
	AI          AIConfig          `toml:"ai"`
	Graph       GraphConfig       `toml:"graph"`
	Healthcheck HealthcheckConfig `toml:"healthcheck"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// PublicBaseURL is the externally reachable base URL used when
	// registering platform webhooks (e.g. https://bot.example.com).
	PublicBaseURL string `toml:"public_base_url"`
}

type AdminConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
	Email    string `toml:"email"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders the pgx connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

type VaultConfig struct {
	// EncryptionKey is a base64-encoded 32-byte key. When empty the vault
	// falls back to a reversible encoding and reports itself unavailable.
	EncryptionKey string `toml:"encryption_key"`
}

type AIConfig struct {
	GeminiAPIKey   string `toml:"gemini_api_key"`
	GeminiBaseURL  string `toml:"gemini_base_url"`
	OpenAIBaseURL  string `toml:"openai_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type GraphConfig struct {
	BaseURL string `toml:"base_url"`
	Version string `toml:"version"`
}

// Endpoint joins the Graph API base URL, version, and path segment.
func (c GraphConfig) Endpoint(segment string) string {
	return fmt.Sprintf("%s/%s/%s", c.BaseURL, c.Version, segment)
}

type HealthcheckConfig struct {
	Enabled bool   `toml:"enabled"`
	Spec    string `toml:"spec"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Admin: AdminConfig{
			Username: "admin",
			Password: "change-your-password-here",
			Email:    "you@example.com",
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		AI: AIConfig{
			GeminiBaseURL:  DefaultGeminiBaseURL,
			OpenAIBaseURL:  DefaultOpenAIBaseURL,
			TimeoutSeconds: 30,
		},
		Graph: GraphConfig{
			BaseURL: DefaultGraphBaseURL,
			Version: DefaultGraphVersion,
		},
		Healthcheck: HealthcheckConfig{
			Enabled: true,
			Spec:    DefaultHealthSpec,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
