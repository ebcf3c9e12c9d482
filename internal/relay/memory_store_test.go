package relay

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreTransactionSlot(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Transaction(ctx, "run-1"); !errors.Is(err, ErrEmptySlot) {
		t.Fatalf("empty slot must return ErrEmptySlot, got %v", err)
	}

	if err := store.PutTransaction(ctx, "run-1", "0xaabb"); err != nil {
		t.Fatalf("put transaction: %v", err)
	}
	artifact, err := store.Transaction(ctx, "run-1")
	if err != nil {
		t.Fatalf("read transaction: %v", err)
	}
	if artifact != "0xaabb" {
		t.Fatalf("unexpected artifact: %s", artifact)
	}

	// 覆盖写入生效
	if err := store.PutTransaction(ctx, "run-1", "0xccdd"); err != nil {
		t.Fatalf("overwrite transaction: %v", err)
	}
	artifact, _ = store.Transaction(ctx, "run-1")
	if artifact != "0xccdd" {
		t.Fatalf("overwrite not applied: %s", artifact)
	}

	if err := store.PutTransaction(ctx, "", "0x00"); err == nil {
		t.Fatal("empty run id must be rejected")
	}
	if err := store.PutTransaction(ctx, "run-1", ""); err == nil {
		t.Fatal("empty artifact must be rejected")
	}
}

func TestMemoryStoreAuthenticatorOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, signer := range []string{"alice", "bob", "carol"} {
		if err := store.PutAuthenticator(ctx, "run-1", signer, "0x"+signer); err != nil {
			t.Fatalf("put authenticator %s: %v", signer, err)
		}
	}
	// 同一签名人重复写入保持原顺序位置
	if err := store.PutAuthenticator(ctx, "run-1", "alice", "0xalice2"); err != nil {
		t.Fatalf("overwrite alice: %v", err)
	}

	entries, err := store.Authenticators(ctx, "run-1")
	if err != nil {
		t.Fatalf("authenticators: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entry count: got %d want 3", len(entries))
	}
	order := []string{"alice", "bob", "carol"}
	for i, entry := range entries {
		if entry.Signer != order[i] {
			t.Fatalf("order broken at %d: got %s want %s", i, entry.Signer, order[i])
		}
	}
	if entries[0].Artifact != "0xalice2" {
		t.Fatalf("overwrite not applied: %s", entries[0].Artifact)
	}
}

func TestMemoryStoreClearAuthenticators(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.PutTransaction(ctx, "run-1", "0xaabb"); err != nil {
		t.Fatalf("put transaction: %v", err)
	}
	if err := store.PutAuthenticator(ctx, "run-1", "alice", "0x01"); err != nil {
		t.Fatalf("put authenticator: %v", err)
	}

	if err := store.ClearAuthenticators(ctx, "run-1"); err != nil {
		t.Fatalf("clear authenticators: %v", err)
	}
	artifact, err := store.Transaction(ctx, "run-1")
	if err != nil {
		t.Fatalf("transaction slot must survive: %v", err)
	}
	if artifact != "0xaabb" {
		t.Fatalf("unexpected artifact: %s", artifact)
	}
	entries, err := store.Authenticators(ctx, "run-1")
	if err != nil {
		t.Fatalf("authenticators: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("authenticator slots must be empty, got %d", len(entries))
	}
}

func TestMemoryStoreClear(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.PutTransaction(ctx, "run-1", "0xaabb"); err != nil {
		t.Fatalf("put transaction: %v", err)
	}
	if err := store.PutAuthenticator(ctx, "run-1", "alice", "0x01"); err != nil {
		t.Fatalf("put authenticator: %v", err)
	}

	if err := store.Clear(ctx, "run-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := store.Transaction(ctx, "run-1"); !errors.Is(err, ErrEmptySlot) {
		t.Fatalf("transaction slot must be empty after clear, got %v", err)
	}
	entries, err := store.Authenticators(ctx, "run-1")
	if err != nil {
		t.Fatalf("authenticators: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("authenticator slots must be empty after clear, got %d", len(entries))
	}
}
