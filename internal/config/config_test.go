package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	configJSON := `{
		"server": {
			"addr": ":3000",
			"allowed_origins": ["http://localhost:5173"],
			"max_message_bytes": 65536
		},
		"auth": {
			"token": "secret-token",
			"handshake_timeout": "5s"
		},
		"browser": {
			"kind": "firefox",
			"headless": false
		},
		"pool": {
			"enabled": true,
			"size": 2
		},
		"session": {
			"max_sessions": 3,
			"idle_timeout": "10m",
			"cleanup_interval": 30,
			"console_stream": true
		},
		"har": {
			"enabled": true,
			"content": "embed"
		},
		"artifact": {
			"root": "/tmp/shots",
			"workspace_root": "/tmp/ws",
			"max_bytes": 1024,
			"http": {
				"enabled": true,
				"addr": ":9000"
			}
		},
		"storage": {
			"driver": "sqlite",
			"dsn": ":memory:",
			"audit_retention": "72h"
		},
		"logging": {
			"level": "debug",
			"format": "text"
		}
	}`

	path := writeTempConfig(t, configJSON)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != ":3000" {
		t.Errorf("Server.Addr: got %q, want %q", cfg.Server.Addr, ":3000")
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:5173" {
		t.Errorf("Server.AllowedOrigins: got %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Server.MaxMessageBytes != 65536 {
		t.Errorf("Server.MaxMessageBytes: got %d, want 65536", cfg.Server.MaxMessageBytes)
	}

	if !cfg.AuthRequired() {
		t.Error("AuthRequired: got false, want true by default")
	}
	if cfg.Auth.Token != "secret-token" {
		t.Errorf("Auth.Token: got %q", cfg.Auth.Token)
	}
	if cfg.Auth.HandshakeTimeout.Duration != 5*time.Second {
		t.Errorf("Auth.HandshakeTimeout: got %v, want 5s", cfg.Auth.HandshakeTimeout.Duration)
	}

	if cfg.Browser.Kind != "firefox" {
		t.Errorf("Browser.Kind: got %q, want firefox", cfg.Browser.Kind)
	}
	if cfg.Browser.Headless == nil || *cfg.Browser.Headless {
		t.Error("Browser.Headless: got true, want false")
	}

	if !cfg.Pool.Enabled || cfg.Pool.Size != 2 {
		t.Errorf("Pool: got enabled=%v size=%d", cfg.Pool.Enabled, cfg.Pool.Size)
	}

	if cfg.Session.MaxSessions != 3 {
		t.Errorf("Session.MaxSessions: got %d, want 3", cfg.Session.MaxSessions)
	}
	if cfg.Session.IdleTimeout.Duration != 10*time.Minute {
		t.Errorf("Session.IdleTimeout: got %v, want 10m", cfg.Session.IdleTimeout.Duration)
	}
	// Numeric durations read as seconds.
	if cfg.Session.CleanupInterval.Duration != 30*time.Second {
		t.Errorf("Session.CleanupInterval: got %v, want 30s", cfg.Session.CleanupInterval.Duration)
	}
	if !cfg.Session.ConsoleStream {
		t.Error("Session.ConsoleStream: got false, want true")
	}

	if !cfg.HAR.Enabled || cfg.HAR.Content != "embed" {
		t.Errorf("HAR: got enabled=%v content=%q", cfg.HAR.Enabled, cfg.HAR.Content)
	}

	if cfg.Artifact.Root != "/tmp/shots" {
		t.Errorf("Artifact.Root: got %q", cfg.Artifact.Root)
	}
	if cfg.Artifact.MaxBytes != 1024 {
		t.Errorf("Artifact.MaxBytes: got %d, want 1024", cfg.Artifact.MaxBytes)
	}
	if !cfg.Artifact.HTTP.Enabled || cfg.Artifact.HTTP.Addr != ":9000" {
		t.Errorf("Artifact.HTTP: got enabled=%v addr=%q", cfg.Artifact.HTTP.Enabled, cfg.Artifact.HTTP.Addr)
	}

	if cfg.Storage.AuditRetention.Duration != 72*time.Hour {
		t.Errorf("Storage.AuditRetention: got %v, want 72h", cfg.Storage.AuditRetention.Duration)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging: got level=%q format=%q", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, `{
		"server": {"addr": ":3000"},
		"auth": {"token": "tok"}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.MaxMessageBytes != 10*1024*1024 {
		t.Errorf("MaxMessageBytes default: got %d", cfg.Server.MaxMessageBytes)
	}
	if cfg.Auth.Mode != "token" {
		t.Errorf("Auth.Mode default: got %q", cfg.Auth.Mode)
	}
	if cfg.Auth.HandshakeTimeout.Duration != 10*time.Second {
		t.Errorf("HandshakeTimeout default: got %v", cfg.Auth.HandshakeTimeout.Duration)
	}
	if cfg.Browser.Kind != "chromium" {
		t.Errorf("Browser.Kind default: got %q", cfg.Browser.Kind)
	}
	if cfg.Pool.Size != 4 {
		t.Errorf("Pool.Size default: got %d", cfg.Pool.Size)
	}
	if cfg.Session.MaxSessions != 10 {
		t.Errorf("MaxSessions default: got %d", cfg.Session.MaxSessions)
	}
	if cfg.Session.IdleTimeout.Duration != time.Hour {
		t.Errorf("IdleTimeout default: got %v", cfg.Session.IdleTimeout.Duration)
	}
	if cfg.Session.CleanupInterval.Duration != 60*time.Second {
		t.Errorf("CleanupInterval default: got %v", cfg.Session.CleanupInterval.Duration)
	}
	if cfg.HAR.Content != "omit" {
		t.Errorf("HAR.Content default: got %q", cfg.HAR.Content)
	}
	if cfg.Artifact.Root != "/screenshots" {
		t.Errorf("Artifact.Root default: got %q", cfg.Artifact.Root)
	}
	if cfg.Artifact.WorkspaceRoot != "/workspaces" {
		t.Errorf("Artifact.WorkspaceRoot default: got %q", cfg.Artifact.WorkspaceRoot)
	}
	if cfg.Artifact.MaxBytes != 5*1024*1024 {
		t.Errorf("Artifact.MaxBytes default: got %d", cfg.Artifact.MaxBytes)
	}
	if cfg.Artifact.HTTP.Addr != ":8090" {
		t.Errorf("Artifact.HTTP.Addr default: got %q", cfg.Artifact.HTTP.Addr)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DSN != "glasswing.db" {
		t.Errorf("Storage defaults: got driver=%q dsn=%q", cfg.Storage.Driver, cfg.Storage.DSN)
	}
	if cfg.Storage.AuditRetention.Duration != 30*24*time.Hour {
		t.Errorf("AuditRetention default: got %v", cfg.Storage.AuditRetention.Duration)
	}
	if !cfg.EventStreamEnabled() {
		t.Error("EventStreamEnabled default: got false, want true")
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"missing addr", `{"auth": {"token": "t"}}`},
		{"auth required without token", `{"server": {"addr": ":3000"}}`},
		{"short jwt secret", `{"server": {"addr": ":3000"}, "auth": {"mode": "jwt", "jwt_secret": "short"}}`},
		{"jwks without url", `{"server": {"addr": ":3000"}, "auth": {"mode": "jwks"}}`},
		{"unknown auth mode", `{"server": {"addr": ":3000"}, "auth": {"mode": "oauth"}}`},
		{"bad browser kind", `{"server": {"addr": ":3000"}, "auth": {"token": "t"}, "browser": {"kind": "opera"}}`},
		{"bad har content", `{"server": {"addr": ":3000"}, "auth": {"token": "t"}, "har": {"content": "full"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempConfig(t, tt.json)
			if _, err := Load(path); err == nil {
				t.Errorf("Load: expected validation error, got nil")
			}
		})
	}
}

func TestLoadConfigAuthDisabled(t *testing.T) {
	path := writeTempConfig(t, `{
		"server": {"addr": ":3000"},
		"auth": {"required": false}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AuthRequired() {
		t.Error("AuthRequired: got true, want false")
	}
	if cfg.ArtifactAuthRequired() {
		t.Error("ArtifactAuthRequired should follow AuthRequired when not overridden")
	}
}

func TestArtifactAuthOverride(t *testing.T) {
	path := writeTempConfig(t, `{
		"server": {"addr": ":3000"},
		"auth": {"token": "tok"},
		"artifact": {"http": {"enabled": true, "auth_required": false}}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.AuthRequired() {
		t.Error("AuthRequired: got false, want true")
	}
	if cfg.ArtifactAuthRequired() {
		t.Error("ArtifactAuthRequired: got true, want false (overridden)")
	}
}

func TestLoadConfigEnvToken(t *testing.T) {
	t.Setenv("GLASSWING_AUTH_TOKEN", "env-token")
	path := writeTempConfig(t, `{"server": {"addr": ":3000"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.Token != "env-token" {
		t.Errorf("Auth.Token from env: got %q", cfg.Auth.Token)
	}
}

func TestDurationRoundTrip(t *testing.T) {
	d := Duration{90 * time.Second}
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back Duration
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Duration != 90*time.Second {
		t.Errorf("round trip: got %v, want 90s", back.Duration)
	}

	var bad Duration
	if err := json.Unmarshal([]byte(`true`), &bad); err == nil {
		t.Error("Unmarshal(true): expected error")
	}
}

func TestGenerateRandomToken(t *testing.T) {
	a, err := GenerateRandomToken()
	if err != nil {
		t.Fatalf("GenerateRandomToken: %v", err)
	}
	b, err := GenerateRandomToken()
	if err != nil {
		t.Fatalf("GenerateRandomToken: %v", err)
	}
	if a == b {
		t.Error("two generated tokens are identical")
	}
	if len(a) < 32 {
		t.Errorf("token too short: %d chars", len(a))
	}
}
