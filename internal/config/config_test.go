package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnsureExistsCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	if err := EnsureExists(path); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listener.Port != 8877 {
		t.Fatalf("port=%d, want default 8877", cfg.Listener.Port)
	}
	if cfg.Retry.MaxAttempts != 10 {
		t.Fatalf("max_attempts=%d, want 10", cfg.Retry.MaxAttempts)
	}
}

func TestEnsureExistsNeverOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listener:\n  port: 9000\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := EnsureExists(path); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listener.Port != 9000 {
		t.Fatalf("port=%d, existing file was overwritten", cfg.Listener.Port)
	}
}

func TestLoadDoesNotRejectInvalidPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listener:\n  port: 70000\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("invalid port must load, got: %v", err)
	}
	if cfg.Listener.Port != 70000 {
		t.Fatalf("port=%d", cfg.Listener.Port)
	}
}

func TestValidateRequiresCertPathWithTLS(t *testing.T) {
	cfg := Default()
	cfg.Listener.UseTLS = true
	cfg.Listener.CertificatePath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for use_tls without certificate_path")
	}
}

func TestProviderReloadsOnFileChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := EnsureExists(path); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}

	p, err := NewProvider(path)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if got := p.Current().Listener.Port; got != 8877 {
		t.Fatalf("port=%d", got)
	}

	if err := os.WriteFile(path, []byte("listener:\n  port: 9100\n"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	// Some filesystems have coarse mtimes; force a distinct one.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if got := p.Current().Listener.Port; got != 9100 {
		t.Fatalf("port=%d after file change, want 9100", got)
	}
}

func TestProviderSetListenerPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := EnsureExists(path); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}
	p, err := NewProvider(path)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	s := p.Current().Listener
	s.Port = 8765
	s.Secret = "hunter2"
	if err := p.SetListener(s); err != nil {
		t.Fatalf("SetListener: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Listener.Port != 8765 || reloaded.Listener.Secret != "hunter2" {
		t.Fatalf("persisted listener=%+v", reloaded.Listener)
	}
	if got := p.Current().Listener.Port; got != 8765 {
		t.Fatalf("in-memory port=%d", got)
	}
}
