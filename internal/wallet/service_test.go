package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"CoSign-Relay/internal/chain"
)

func testTransaction(sender, secondary common.Address) *chain.RawTransaction {
	return &chain.RawTransaction{
		Sender:           sender,
		SecondarySigners: []common.Address{secondary},
		Bytecode:         []byte{0x01},
		Arguments:        []chain.Argument{chain.U64Argument(1)},
		ExpirationUnix:   1_900_000_000,
		ChainID:          4,
	}
}

func TestServiceSessionLifecycle(t *testing.T) {
	keyring := NewKeyring()
	addr, err := keyring.Generate("alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	svc := NewService(keyring, nil)

	if _, ok := svc.Active(); ok {
		t.Fatal("fresh service must have no session")
	}

	session, err := svc.Connect(context.Background(), "alice")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if session.Address != addr {
		t.Fatalf("session address: got %s want %s", session.Address.Hex(), addr.Hex())
	}

	if _, err := svc.Connect(context.Background(), "nobody"); !errors.Is(err, ErrUnknownWallet) {
		t.Fatalf("expected ErrUnknownWallet, got %v", err)
	}

	svc.Disconnect()
	if _, ok := svc.Active(); ok {
		t.Fatal("session must be gone after disconnect")
	}
	// 重复断开是空操作
	svc.Disconnect()
}

func TestSignTransactionRequiresSession(t *testing.T) {
	keyring := NewKeyring()
	primary, _ := keyring.Generate("primary")
	secondary, _ := keyring.Generate("secondary")
	svc := NewService(keyring, nil)

	tx := testTransaction(primary, secondary)
	if _, err := svc.SignTransaction(context.Background(), tx); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	if _, err := svc.Connect(context.Background(), "secondary"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	auth, err := svc.SignTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	message, err := tx.SigningMessage()
	if err != nil {
		t.Fatalf("signing message: %v", err)
	}
	if err := auth.Verify(message, secondary); err != nil {
		t.Fatalf("signature must verify against the session address: %v", err)
	}
	if err := auth.Verify(message, primary); err == nil {
		t.Fatal("signature must not verify against a different signer")
	}
}
