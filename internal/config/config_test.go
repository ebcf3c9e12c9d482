package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cosign.yaml")
	content := []byte(`
flow:
  secondary_signers:
    - "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
  script_url: "http://127.0.0.1:8090/script.bin"
wallet:
  keystore_path: keys.yaml
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("server address default: %s", cfg.Server.Address)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Fatalf("logging defaults: %+v", cfg.Logging)
	}
	if cfg.Flow.TransferAmount != 100 || cfg.Flow.ReturnAmount != 50 || cfg.Flow.DepositAmount != 1000 {
		t.Fatalf("amount defaults: %+v", cfg.Flow)
	}
	if cfg.Flow.ExpirySeconds != 300 {
		t.Fatalf("expiry default: %d", cfg.Flow.ExpirySeconds)
	}
	if cfg.Relay.Store.Driver != "memory" || cfg.Relay.Notifier.Driver != "memory" {
		t.Fatalf("relay defaults: %+v", cfg.Relay)
	}
	if cfg.Storage.FlowStore.Driver != "memory" {
		t.Fatalf("flow store default: %s", cfg.Storage.FlowStore.Driver)
	}
	if cfg.Wallet.Registry.Driver != "memory" {
		t.Fatalf("wallet registry default: %s", cfg.Wallet.Registry.Driver)
	}
	if cfg.Wallet.KeystorePath != filepath.Join(dir, "keys.yaml") {
		t.Fatalf("keystore path not resolved: %s", cfg.Wallet.KeystorePath)
	}
	if len(cfg.Flow.SecondarySigners) != 1 {
		t.Fatalf("secondary signers: %+v", cfg.Flow.SecondarySigners)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("empty path must fail")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file must fail")
	}
}
