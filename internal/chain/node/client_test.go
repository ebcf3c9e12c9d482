package node

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"CoSign-Relay/internal/chain"
)

func testSigned(t *testing.T) *chain.SignedTransaction {
	t.Helper()
	senderKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	secondaryKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	tx := &chain.RawTransaction{
		Sender:           crypto.PubkeyToAddress(senderKey.PublicKey),
		SecondarySigners: []common.Address{crypto.PubkeyToAddress(secondaryKey.PublicKey)},
		Bytecode:         []byte{0x01},
		Arguments:        []chain.Argument{chain.U64Argument(1)},
		ExpirationUnix:   uint64(time.Now().Add(time.Hour).Unix()),
		ChainID:          4,
	}
	message, err := tx.SigningMessage()
	if err != nil {
		t.Fatalf("signing message: %v", err)
	}
	senderSig, _ := crypto.Sign(message, senderKey)
	secondarySig, _ := crypto.Sign(message, secondaryKey)

	return &chain.SignedTransaction{
		Raw: tx,
		SenderAuthenticator: &chain.Authenticator{
			PublicKey: crypto.FromECDSAPub(&senderKey.PublicKey),
			Signature: senderSig,
		},
		SecondaryAuthenticators: []*chain.Authenticator{{
			PublicKey: crypto.FromECDSAPub(&secondaryKey.PublicKey),
			Signature: secondarySig,
		}},
	}
}

func TestSubmitTransaction(t *testing.T) {
	wantHash := common.HexToHash("0xabcdef")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/transactions" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			Payload string `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !strings.HasPrefix(req.Payload, "0x") {
			t.Fatalf("payload must be a hex artifact: %s", req.Payload)
		}
		if _, err := chain.DecodeArtifact(req.Payload); err != nil {
			t.Fatalf("payload must decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"hash": wantHash.Hex()})
	}))
	defer server.Close()

	client, err := NewClient(Config{Name: "test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	hash, err := client.SubmitTransaction(context.Background(), testSigned(t))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if hash != wantHash {
		t.Fatalf("hash: got %s want %s", hash.Hex(), wantHash.Hex())
	}
}

func TestTransactionStatus(t *testing.T) {
	hash := common.HexToHash("0x1234")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, hash.Hex()):
			_ = json.NewEncoder(w).Encode(chain.Confirmation{
				Hash:        hash,
				Success:     true,
				VMStatus:    "Executed successfully",
				BlockNumber: 42,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	confirmation, err := client.TransactionStatus(context.Background(), hash)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !confirmation.Success || confirmation.BlockNumber != 42 {
		t.Fatalf("unexpected confirmation: %+v", confirmation)
	}

	if _, err := client.TransactionStatus(context.Background(), common.HexToHash("0xdead")); !errors.Is(err, chain.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("empty base url must be rejected")
	}
}
