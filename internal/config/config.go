// Package config handles server configuration loading and validation.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// GenerateRandomToken returns a cryptographically random 64-character hex
// string suitable for use as an access token or JWT secret.
func GenerateRandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Config is the top-level server configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Auth     AuthConfig     `json:"auth"`
	Browser  BrowserConfig  `json:"browser"`
	Pool     PoolConfig     `json:"pool,omitempty"`
	Session  SessionConfig  `json:"session"`
	HAR      HARConfig      `json:"har,omitempty"`
	Artifact ArtifactConfig `json:"artifact"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
}

// ServerConfig defines the WebSocket listener settings.
type ServerConfig struct {
	Addr            string   `json:"addr"`                       // e.g. ":3000"
	TLSCert         string   `json:"tls_cert,omitempty"`
	TLSKey          string   `json:"tls_key,omitempty"`
	AllowedOrigins  []string `json:"allowed_origins,omitempty"`  // WebSocket origin check; default ["*"]
	MaxMessageBytes int64    `json:"max_message_bytes,omitempty"` // max inbound WebSocket message; default 10MB
}

// AuthConfig defines the connection handshake authentication settings.
//
// Mode selects how client tokens are validated: "token" compares against the
// shared secret (or its bcrypt hash), "jwt" verifies an HS256 JWT signed with
// JWTSecret, "jwks" verifies a JWT against a remote JWKS endpoint.
type AuthConfig struct {
	Required         *bool    `json:"required,omitempty"` // default true
	Mode             string   `json:"mode,omitempty"`     // "token" (default), "jwt" or "jwks"
	Token            string   `json:"token,omitempty"`
	TokenHash        string   `json:"token_hash,omitempty"` // bcrypt hash; preferred over Token at rest
	JWTSecret        string   `json:"jwt_secret,omitempty"`
	JWKSURL          string   `json:"jwks_url,omitempty"`
	HandshakeTimeout Duration `json:"handshake_timeout,omitempty"` // default 10s
}

// BrowserConfig selects and tunes the browser engine.
type BrowserConfig struct {
	Kind       string `json:"kind,omitempty"`     // "chromium" (default), "firefox" or "webkit"
	Headless   *bool  `json:"headless,omitempty"` // default true
	Channel    string `json:"channel,omitempty"`  // chromium release channel, e.g. "chrome"
	Executable string `json:"executable,omitempty"`
	VideoDir   string `json:"video_dir,omitempty"` // enables per-workspace video recording; disables pooling
}

// PoolConfig defines browser-context pooling.
type PoolConfig struct {
	Enabled bool `json:"enabled,omitempty"`
	Size    int  `json:"size,omitempty"` // default 4
}

// SessionConfig defines session limits and lifecycle behavior.
type SessionConfig struct {
	MaxSessions     int      `json:"max_sessions,omitempty"`     // default 10
	IdleTimeout     Duration `json:"idle_timeout,omitempty"`     // default 1h
	CleanupInterval Duration `json:"cleanup_interval,omitempty"` // default 60s
	EventStream     *bool    `json:"event_stream,omitempty"`     // default true
	ConsoleStream   bool     `json:"console_stream,omitempty"`
}

// HARConfig defines the process-wide default for HAR network recording.
type HARConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Content string `json:"content,omitempty"` // "omit" (default), "embed" or "attach"
}

// ArtifactConfig defines where session files live on disk.
type ArtifactConfig struct {
	Root          string             `json:"root,omitempty"`           // default "/screenshots"
	WorkspaceRoot string             `json:"workspace_root,omitempty"` // default "/workspaces"
	MaxBytes      int64              `json:"max_bytes,omitempty"`      // inline get_artifact cap; default 5MB
	HTTP          ArtifactHTTPConfig `json:"http,omitempty"`
}

// ArtifactHTTPConfig defines the companion read-only artifact file server.
type ArtifactHTTPConfig struct {
	Enabled      bool   `json:"enabled,omitempty"`
	Addr         string `json:"addr,omitempty"`          // default ":8090"
	AuthRequired *bool  `json:"auth_required,omitempty"` // defaults to auth.required
}

// StorageConfig defines the audit-event database.
type StorageConfig struct {
	Driver         string   `json:"driver,omitempty"`          // "sqlite" (default) or "postgres"
	DSN            string   `json:"dsn,omitempty"`             // e.g. "glasswing.db" or ":memory:"
	AuditRetention Duration `json:"audit_retention,omitempty"` // default 30 days
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"` // "json" or "text"
}

// Duration is a JSON-friendly time.Duration. It accepts either a Go duration
// string ("90s") or a number of seconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		dur, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		d.Duration = dur
	case float64:
		d.Duration = time.Duration(val) * time.Second
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// AuthRequired reports whether the WebSocket handshake must authenticate.
func (c *Config) AuthRequired() bool {
	return c.Auth.Required == nil || *c.Auth.Required
}

// ArtifactAuthRequired reports whether the artifact HTTP server requires a
// bearer token. It follows the handshake setting unless overridden.
func (c *Config) ArtifactAuthRequired() bool {
	if c.Artifact.HTTP.AuthRequired != nil {
		return *c.Artifact.HTTP.AuthRequired
	}
	return c.AuthRequired()
}

// EventStreamEnabled reports whether command lifecycle events are emitted.
func (c *Config) EventStreamEnabled() bool {
	return c.Session.EventStream == nil || *c.Session.EventStream
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyEnv fills secrets from the environment when the config file leaves
// them blank, so tokens need not live on disk in plaintext.
func (c *Config) applyEnv() {
	if c.Auth.Token == "" {
		c.Auth.Token = os.Getenv("GLASSWING_AUTH_TOKEN")
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = os.Getenv("GLASSWING_JWT_SECRET")
	}
	if c.Storage.DSN == "" {
		c.Storage.DSN = os.Getenv("GLASSWING_STORAGE_DSN")
	}
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	switch c.Auth.Mode {
	case "", "token":
		if c.AuthRequired() && c.Auth.Token == "" && c.Auth.TokenHash == "" {
			return fmt.Errorf("auth.required is set but no auth.token or auth.token_hash is configured")
		}
	case "jwt":
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
		}
	case "jwks":
		if c.Auth.JWKSURL == "" {
			return fmt.Errorf("auth.jwks_url is required when auth.mode is jwks")
		}
	default:
		return fmt.Errorf("unknown auth.mode: %q", c.Auth.Mode)
	}
	switch c.Browser.Kind {
	case "", "chromium", "firefox", "webkit":
	default:
		return fmt.Errorf("unsupported browser.kind: %q", c.Browser.Kind)
	}
	switch c.HAR.Content {
	case "", "omit", "embed", "attach":
	default:
		return fmt.Errorf("invalid har.content: %q", c.HAR.Content)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.MaxMessageBytes == 0 {
		c.Server.MaxMessageBytes = 10 * 1024 * 1024 // 10MB
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = "token"
	}
	if c.Auth.HandshakeTimeout.Duration == 0 {
		c.Auth.HandshakeTimeout.Duration = 10 * time.Second
	}
	if c.Browser.Kind == "" {
		c.Browser.Kind = "chromium"
	}
	if c.Pool.Size == 0 {
		c.Pool.Size = 4
	}
	if c.Session.MaxSessions == 0 {
		c.Session.MaxSessions = 10
	}
	if c.Session.IdleTimeout.Duration == 0 {
		c.Session.IdleTimeout.Duration = 1 * time.Hour
	}
	if c.Session.CleanupInterval.Duration == 0 {
		c.Session.CleanupInterval.Duration = 60 * time.Second
	}
	if c.HAR.Content == "" {
		c.HAR.Content = "omit"
	}
	if c.Artifact.Root == "" {
		c.Artifact.Root = "/screenshots"
	}
	if c.Artifact.WorkspaceRoot == "" {
		c.Artifact.WorkspaceRoot = "/workspaces"
	}
	if c.Artifact.MaxBytes == 0 {
		c.Artifact.MaxBytes = 5 * 1024 * 1024 // 5MB
	}
	if c.Artifact.HTTP.Addr == "" {
		c.Artifact.HTTP.Addr = ":8090"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.DSN == "" {
		c.Storage.DSN = "glasswing.db"
	}
	if c.Storage.AuditRetention.Duration == 0 {
		c.Storage.AuditRetention.Duration = 30 * 24 * time.Hour
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}
