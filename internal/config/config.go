// Package config handles loading and validating the application
// configuration from a JSON file.
//
// The file is read once at startup; changes require a restart.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"
)

// DBConfig holds PostgreSQL connection details.
type DBConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Name     string `json:"name"`
	User     string `json:"user"`
	Password string `json:"password"`
	// Schema is the Postgres schema objects live in (default "public").
	Schema string `json:"schema"`
}

// DefaultUser describes the built-in admin (user_id = 1) ensured at
// startup.
type DefaultUser struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	// TokenLifetimeSeconds is the sliding session lifetime.
	TokenLifetimeSeconds int         `json:"token_lifetime_seconds"`
	DefaultUser          DefaultUser `json:"default_user"`
	// TrustForwarded enables the Forwarded "for=" header as the client
	// IP source. Set only when the server sits behind a trusted proxy.
	TrustForwarded bool `json:"trust_forwarded"`
}

// AuxConfig holds auxillary feature toggles.
type AuxConfig struct {
	// EnableSearchablesUpdates gates both the async indexer worker and
	// the reconciliation job.
	EnableSearchablesUpdates bool `json:"enable_searchables_updates"`
}

// Config is the root configuration object.
type Config struct {
	DB        DBConfig  `json:"db"`
	App       AppConfig `json:"app"`
	Auxillary AuxConfig `json:"auxillary"`

	// ListenAddr is the HTTP listen address (default ":8080").
	ListenAddr string `json:"listen_addr"`
	// MaxBodyBytes limits request body size (default 8 MiB).
	MaxBodyBytes int64 `json:"max_body_bytes"`
}

// Load reads and parses configuration from the given file path.
// It returns an error if the file cannot be read, parsed, or is missing
// required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 8 << 20
	}
	if c.DB.Port == 0 {
		c.DB.Port = 5432
	}
	if c.DB.Schema == "" {
		c.DB.Schema = "public"
	}
	if c.App.TokenLifetimeSeconds == 0 {
		c.App.TokenLifetimeSeconds = 7 * 24 * 3600
	}
}

// validate checks that all required fields are present.
func (c *Config) validate() error {
	switch {
	case c.DB.Host == "":
		return fmt.Errorf("config: db.host is required")
	case c.DB.Name == "":
		return fmt.Errorf("config: db.name is required")
	case c.DB.User == "":
		return fmt.Errorf("config: db.user is required")
	case c.DB.Password == "":
		return fmt.Errorf("config: db.password is required")
	case c.App.DefaultUser.Login == "":
		return fmt.Errorf("config: app.default_user.login is required")
	case c.App.DefaultUser.Password == "":
		return fmt.Errorf("config: app.default_user.password is required")
	case c.App.TokenLifetimeSeconds < 0:
		return fmt.Errorf("config: app.token_lifetime_seconds must be positive")
	}
	return nil
}

// TokenLifetime returns the session lifetime as a duration.
func (c *Config) TokenLifetime() time.Duration {
	return time.Duration(c.App.TokenLifetimeSeconds) * time.Second
}

// ConnString builds a PostgreSQL connection URI from the config fields.
// The password is URL-encoded to handle special characters safely.
func (c *Config) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s",
		url.QueryEscape(c.DB.User),
		url.QueryEscape(c.DB.Password),
		c.DB.Host,
		c.DB.Port,
		url.QueryEscape(c.DB.Name),
		url.QueryEscape(c.DB.Schema),
	)
}
