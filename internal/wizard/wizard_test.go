package wizard

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glasswing-io/glasswing/internal/config"
	"github.com/glasswing-io/glasswing/pkg/cli"
)

func runWizard(t *testing.T, input string) (*config.Config, string) {
	t.Helper()
	out := &bytes.Buffer{}
	p := &cli.Prompter{In: strings.NewReader(input), Out: out}

	outputPath := filepath.Join(t.TempDir(), "glasswing.json")
	w := New(p)
	if err := w.Run(outputPath); err != nil {
		t.Fatalf("wizard.Run() error: %v", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var cfg config.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	return &cfg, out.String()
}

func TestWizard_Postgres(t *testing.T) {
	input := strings.Join([]string{
		":9100", // listen address
		"n",     // keep the plaintext token, no hash
		"1",     // browser: chromium
		"y",     // headless
		"5",     // max sessions
		"n",     // no context pooling
		"/tmp/shots",
		"/tmp/ws",
		"n", // no artifact HTTP
		"2", // storage: postgres
		"postgres://gw:pw@localhost:5432/glasswing",
	}, "\n") + "\n"

	cfg, output := runWizard(t, input)

	if cfg.Server.Addr != ":9100" {
		t.Errorf("server.addr = %q, want %q", cfg.Server.Addr, ":9100")
	}
	if cfg.Auth.Token == "" || len(cfg.Auth.Token) < 32 {
		t.Errorf("auth.token = %q, want a generated secret", cfg.Auth.Token)
	}
	if cfg.Auth.TokenHash != "" {
		t.Errorf("auth.token_hash set despite declining: %q", cfg.Auth.TokenHash)
	}
	if !strings.Contains(output, cfg.Auth.Token) {
		t.Error("generated token was not shown to the user")
	}
	if cfg.Browser.Kind != "chromium" {
		t.Errorf("browser.kind = %q", cfg.Browser.Kind)
	}
	if cfg.Browser.Headless == nil || !*cfg.Browser.Headless {
		t.Error("browser.headless should be true")
	}
	if cfg.Session.MaxSessions != 5 {
		t.Errorf("session.max_sessions = %d, want 5", cfg.Session.MaxSessions)
	}
	if cfg.Pool.Enabled {
		t.Error("pool.enabled should be false")
	}
	if cfg.Artifact.Root != "/tmp/shots" || cfg.Artifact.WorkspaceRoot != "/tmp/ws" {
		t.Errorf("artifact roots: %q / %q", cfg.Artifact.Root, cfg.Artifact.WorkspaceRoot)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Errorf("storage.driver = %q, want postgres", cfg.Storage.Driver)
	}
	if cfg.Storage.DSN != "postgres://gw:pw@localhost:5432/glasswing" {
		t.Errorf("storage.dsn = %q", cfg.Storage.DSN)
	}
}

func TestWizard_HashedToken(t *testing.T) {
	input := strings.Join([]string{
		"",  // addr default
		"y", // store hash only
		"1", // chromium
		"y", // headless
		"",  // sessions default
		"y", // pooling
		"2", // pool size
		"", "", // artifact roots
		"n", // no artifact HTTP
		"1", // sqlite
		"",  // sqlite path default
	}, "\n") + "\n"

	cfg, _ := runWizard(t, input)

	if cfg.Auth.Token != "" {
		t.Errorf("auth.token should be empty when hashed: %q", cfg.Auth.Token)
	}
	if !strings.HasPrefix(cfg.Auth.TokenHash, "$2") {
		t.Errorf("auth.token_hash = %q, want a bcrypt hash", cfg.Auth.TokenHash)
	}
	if !cfg.Pool.Enabled || cfg.Pool.Size != 2 {
		t.Errorf("pool: enabled=%v size=%d", cfg.Pool.Enabled, cfg.Pool.Size)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DSN != "glasswing.db" {
		t.Errorf("storage: %q %q", cfg.Storage.Driver, cfg.Storage.DSN)
	}
}

func TestWizard_RunDefaults(t *testing.T) {
	t.Setenv("GLASSWING_ADDR", ":4400")
	t.Setenv("GLASSWING_AUTH_TOKEN", "env-token")
	t.Setenv("GLASSWING_BROWSER", "firefox")

	out := &bytes.Buffer{}
	p := &cli.Prompter{In: strings.NewReader(""), Out: out}
	outputPath := filepath.Join(t.TempDir(), "glasswing.json")

	if err := New(p).RunDefaults(outputPath); err != nil {
		t.Fatalf("RunDefaults: %v", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var cfg config.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}

	if cfg.Server.Addr != ":4400" {
		t.Errorf("server.addr = %q", cfg.Server.Addr)
	}
	if cfg.Auth.Token != "env-token" {
		t.Errorf("auth.token = %q", cfg.Auth.Token)
	}
	if cfg.Browser.Kind != "firefox" {
		t.Errorf("browser.kind = %q", cfg.Browser.Kind)
	}

	// The resulting file loads cleanly.
	if _, err := config.Load(outputPath); err != nil {
		t.Errorf("generated config fails to load: %v", err)
	}
}
