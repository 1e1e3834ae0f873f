// Package config loads the JSON configuration file named by the one
// positional CLI argument. Everything tunable lives here; the only
// environment-driven behavior is the logger level.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/inkwatch/inkwatch/internal/agent"
)

// Config is the root of the configuration file.
type Config struct {
	// Port is the HTTP(S) listen port.
	Port int `json:"port"`
	// TLS enables HTTPS when both paths are set.
	TLS TLSConfig `json:"tls"`

	Database DatabaseConfig `json:"database"`
	Upstream UpstreamConfig `json:"upstream"`
	Auth     AuthConfig     `json:"auth"`
	Agents   AgentsConfig   `json:"agents"`
	Image    ImageConfig    `json:"image"`
	CORS     CORSConfig     `json:"cors"`
}

// TLSConfig points at the certificate pair.
type TLSConfig struct {
	CertPEM string `json:"cert_pem"`
	CertKey string `json:"cert_key"`
}

// Enabled reports whether TLS is configured.
func (t TLSConfig) Enabled() bool { return t.CertPEM != "" && t.CertKey != "" }

// DatabaseConfig locates the store.
type DatabaseConfig struct {
	Path         string `json:"path"`
	MaxOpenConns int    `json:"max_open_conns"`
}

// UpstreamConfig tunes the poll loops' nominal fetch intervals.
type UpstreamConfig struct {
	SchedulesIntervalMins int `json:"schedules_interval_mins"`
	GearsIntervalMins     int `json:"gears_interval_mins"`
}

// AuthConfig groups the auth agents and token issuance settings.
type AuthConfig struct {
	Agents AuthAgentsConfig `json:"agents"`
	Token  TokenConfig      `json:"token"`
}

// AuthAgentsConfig enables the configured identity providers.
type AuthAgentsConfig struct {
	Google *GoogleConfig `json:"google"`
}

// GoogleConfig is the Google OAuth2 client.
type GoogleConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// TokenConfig controls JWT issuance.
type TokenConfig struct {
	Secret     string `json:"secret"`
	Algorithm  string `json:"algorithm"`
	ExpireDays int    `json:"expire_days"`
}

// AgentsConfig enables the configured delivery agents. A present key
// (even with an empty object) enables the agent.
type AgentsConfig struct {
	InfoLog *struct{}            `json:"infolog"`
	WebPush *agent.WebPushConfig `json:"webpush"`
}

// ImageConfig controls the renderer.
type ImageConfig struct {
	OutDir string `json:"out_dir"`
	// PublicBaseURL prefixes the image and icon URLs embedded in
	// notifications, e.g. "https://example.com".
	PublicBaseURL string `json:"public_base_url"`
}

// Enabled reports whether image rendering is configured.
func (i ImageConfig) Enabled() bool { return i.OutDir != "" }

// CORSConfig lists the origins the HTTP surface accepts.
type CORSConfig struct {
	Origins []string `json:"origins"`
}

// Load reads, decodes and validates the file at path, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("config: database.path is required")
	}
	if c.Auth.Token.Secret == "" {
		return fmt.Errorf("config: auth.token.secret is required")
	}
	switch c.Auth.Token.Algorithm {
	case "", "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("config: unsupported auth.token.algorithm %q", c.Auth.Token.Algorithm)
	}
	if (c.TLS.CertPEM == "") != (c.TLS.CertKey == "") {
		return fmt.Errorf("config: tls.cert_pem and tls.cert_key must be set together")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Upstream.SchedulesIntervalMins == 0 {
		c.Upstream.SchedulesIntervalMins = 30
	}
	if c.Upstream.GearsIntervalMins == 0 {
		c.Upstream.GearsIntervalMins = 120
	}
	if c.Auth.Token.Algorithm == "" {
		c.Auth.Token.Algorithm = "HS256"
	}
	if c.Auth.Token.ExpireDays == 0 {
		c.Auth.Token.ExpireDays = 7
	}
}
