package simulated

import (
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"CoSign-Relay/internal/chain"
)

func signedTransaction(t *testing.T) (*chain.SignedTransaction, *ecdsa.PrivateKey, *ecdsa.PrivateKey) {
	t.Helper()
	senderKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate sender key: %v", err)
	}
	secondaryKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate secondary key: %v", err)
	}

	tx := &chain.RawTransaction{
		Sender:           crypto.PubkeyToAddress(senderKey.PublicKey),
		SecondarySigners: []common.Address{crypto.PubkeyToAddress(secondaryKey.PublicKey)},
		Bytecode:         []byte{0x01, 0x02},
		Arguments:        []chain.Argument{chain.U64Argument(100)},
		ExpirationUnix:   uint64(time.Now().Add(time.Hour).Unix()),
		ChainID:          4,
	}
	message, err := tx.SigningMessage()
	if err != nil {
		t.Fatalf("signing message: %v", err)
	}

	sign := func(key *ecdsa.PrivateKey) *chain.Authenticator {
		sig, err := crypto.Sign(message, key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return &chain.Authenticator{PublicKey: crypto.FromECDSAPub(&key.PublicKey), Signature: sig}
	}

	return &chain.SignedTransaction{
		Raw:                     tx,
		SenderAuthenticator:     sign(senderKey),
		SecondaryAuthenticators: []*chain.Authenticator{sign(secondaryKey)},
	}, senderKey, secondaryKey
}

func TestSubmitAndConfirm(t *testing.T) {
	sim := NewChain(WithConfirmAfter(1))
	signed, _, _ := signedTransaction(t)

	hash, err := sim.SubmitTransaction(context.Background(), signed)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	status, err := sim.TransactionStatus(context.Background(), hash)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Pending {
		t.Fatal("first poll must be pending")
	}

	confirmation, err := chain.WaitForTransaction(context.Background(), sim, hash, 10*time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !confirmation.Success {
		t.Fatalf("unexpected confirmation: %+v", confirmation)
	}
	if sim.SubmittedCount() != 1 {
		t.Fatalf("submitted count: %d", sim.SubmittedCount())
	}
}

func TestSubmitRejectsBadSignature(t *testing.T) {
	sim := NewChain()
	signed, senderKey, _ := signedTransaction(t)

	// 用主签名人的授权冒充副签名人
	message, _ := signed.Raw.SigningMessage()
	sig, _ := crypto.Sign(message, senderKey)
	signed.SecondaryAuthenticators[0] = &chain.Authenticator{
		PublicKey: crypto.FromECDSAPub(&senderKey.PublicKey),
		Signature: sig,
	}

	if _, err := sim.SubmitTransaction(context.Background(), signed); err == nil {
		t.Fatal("mismatched secondary authenticator must be rejected")
	}
}

func TestSubmitRejectsExpired(t *testing.T) {
	sim := NewChain(WithClock(func() time.Time {
		return time.Unix(2_000_000_000, 0)
	}))
	signed, _, _ := signedTransaction(t)
	signed.Raw.ExpirationUnix = 1_900_000_000

	if _, err := sim.SubmitTransaction(context.Background(), signed); err == nil {
		t.Fatal("expired transaction must be rejected")
	}
}

func TestSubmitRejectsDuplicate(t *testing.T) {
	sim := NewChain()
	signed, _, _ := signedTransaction(t)

	if _, err := sim.SubmitTransaction(context.Background(), signed); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := sim.SubmitTransaction(context.Background(), signed); err == nil {
		t.Fatal("duplicate submit must be rejected")
	}
}
