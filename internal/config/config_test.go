package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultWithGeneratedKeysWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settld.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerSignerKeyPEM == "" || cfg.TimeAuthoritySignerKeyPEM == "" {
		t.Fatalf("expected generated signer keys, got %+v", cfg)
	}
	if cfg.NegativeBalanceMode != "hold" {
		t.Fatalf("expected default negativeBalanceMode hold, got %q", cfg.NegativeBalanceMode)
	}
}

func TestLoadPersistsGeneratedKeysAcrossReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settld.toml")

	first, err := Load(path)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	second, err := Load(path)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if first.ServerSignerKeyPEM != second.ServerSignerKeyPEM {
		t.Fatalf("expected stable signer key across reloads")
	}
}

func TestLoadBackfillsMissingFieldsOnExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settld.toml")
	if err := os.WriteFile(path, []byte("ListenAddress = \":9000\"\n"), 0o600); err != nil {
		t.Fatalf("write partial config: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.NegativeBalanceMode == "" {
		t.Fatalf("expected backfilled negativeBalanceMode, got empty")
	}
}
