package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	env, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Defaults()
	if env.ReadyTimeout != want.ReadyTimeout || env.SendStrategy != want.SendStrategy {
		t.Fatalf("expected defaults, got %+v", env)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "teamctl.toml")
	content := "send_strategy = \"interrupt\"\nready_timeout_ms = 9000\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	env, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if env.SendStrategy != "interrupt" {
		t.Fatalf("expected file to override send_strategy, got %q", env.SendStrategy)
	}
	if env.ReadyTimeout != 9*time.Second {
		t.Fatalf("expected file to override ready_timeout, got %v", env.ReadyTimeout)
	}
}

func TestEnvVarsOverrideFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "teamctl.toml")
	if err := os.WriteFile(path, []byte("send_strategy = \"interrupt\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OMX_TEAM_SEND_STRATEGY", "queue")
	t.Setenv("OMX_TEAM_AUTO_TRUST", "Tab,Enter,Enter")
	t.Setenv("OMX_SESSION_ID", "sess-env")

	env, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if env.SendStrategy != "queue" {
		t.Fatalf("expected env var to win over file, got %q", env.SendStrategy)
	}
	if len(env.AutoTrustKeys) != 3 || env.AutoTrustKeys[0] != "Tab" {
		t.Fatalf("expected env-provided trust keys, got %v", env.AutoTrustKeys)
	}
	if env.SessionID != "sess-env" {
		t.Fatalf("expected OMX_SESSION_ID honored, got %q", env.SessionID)
	}
}

func TestCodexSessionIDFallback(t *testing.T) {
	t.Setenv("CODEX_SESSION_ID", "codex-1")
	env, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if env.SessionID != "codex-1" {
		t.Fatalf("expected CODEX_SESSION_ID fallback, got %q", env.SessionID)
	}
}
