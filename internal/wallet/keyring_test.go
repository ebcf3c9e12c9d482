package wallet

import (
	"os"
	"path/filepath"
	"testing"

	"CoSign-Relay/internal/config"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestKeyringAdd(t *testing.T) {
	ring := NewKeyring()

	if err := ring.Add("alice", testKeyHex); err != nil {
		t.Fatalf("add without prefix: %v", err)
	}
	if err := ring.Add("bob", "0x"+testKeyHex); err != nil {
		t.Fatalf("add with prefix: %v", err)
	}

	alice, ok := ring.Signer("alice")
	if !ok {
		t.Fatal("alice missing from keyring")
	}
	bob, _ := ring.Signer("bob")
	if alice.Address != bob.Address {
		t.Fatal("same key must yield the same address regardless of prefix")
	}

	if err := ring.Add("alice", testKeyHex); err == nil {
		t.Fatal("duplicate name must be rejected")
	}
	if err := ring.Add("", testKeyHex); err == nil {
		t.Fatal("empty name must be rejected")
	}
	if err := ring.Add("carol", "zz"); err == nil {
		t.Fatal("invalid key must be rejected")
	}

	names := ring.Names()
	if len(names) != 2 || names[0] != "alice" || names[1] != "bob" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestLoadKeyringFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.yaml")
	content := []byte(`
signers:
  - name: filed
    private_key: "0x` + testKeyHex + `"
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write keystore: %v", err)
	}

	ring, err := LoadKeyring(config.WalletConfig{
		KeystorePath: path,
		Signers: []config.SignerConfig{
			{Name: "inline", PrivateKey: "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"},
		},
	})
	if err != nil {
		t.Fatalf("load keyring: %v", err)
	}

	if _, ok := ring.Signer("inline"); !ok {
		t.Fatal("inline signer missing")
	}
	if _, ok := ring.Signer("filed"); !ok {
		t.Fatal("keystore signer missing")
	}
}
