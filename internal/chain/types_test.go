package chain

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func sampleTransaction() *RawTransaction {
	return &RawTransaction{
		Sender:           common.HexToAddress("0x1111111111111111111111111111111111111111"),
		SecondarySigners: []common.Address{common.HexToAddress("0x2222222222222222222222222222222222222222")},
		Bytecode:         []byte{0xde, 0xad, 0xbe, 0xef},
		Arguments: []Argument{
			U64Argument(100),
			U64Argument(50),
			AddressArgument(common.HexToAddress("0x1111111111111111111111111111111111111111")),
			AddressArgument(common.HexToAddress("0x2222222222222222222222222222222222222222")),
			U64Argument(1000),
		},
		ExpirationUnix: 1_900_000_000,
		ChainID:        4,
	}
}

func TestRawTransactionRoundTrip(t *testing.T) {
	tx := sampleTransaction()
	raw, err := tx.ToBinary()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := RawTransactionFromBinary(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	again, err := decoded.ToBinary()
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(raw, again) {
		t.Fatal("encoding is not canonical")
	}
	if decoded.Sender != tx.Sender || decoded.ChainID != tx.ChainID {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
	if len(decoded.Arguments) != len(tx.Arguments) {
		t.Fatalf("argument count mismatch: %d", len(decoded.Arguments))
	}
}

func TestSigningMessageChangesWithPayload(t *testing.T) {
	tx := sampleTransaction()
	msg1, err := tx.SigningMessage()
	if err != nil {
		t.Fatalf("signing message: %v", err)
	}
	if len(msg1) != 32 {
		t.Fatalf("signing message length: %d", len(msg1))
	}

	tx.ExpirationUnix++
	msg2, err := tx.SigningMessage()
	if err != nil {
		t.Fatalf("signing message: %v", err)
	}
	if bytes.Equal(msg1, msg2) {
		t.Fatal("different payloads must not share a signing message")
	}
}

func TestAuthenticatorVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := crypto.PubkeyToAddress(key.PublicKey)

	tx := sampleTransaction()
	message, err := tx.SigningMessage()
	if err != nil {
		t.Fatalf("signing message: %v", err)
	}
	signature, err := crypto.Sign(message, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	auth := &Authenticator{
		PublicKey: crypto.FromECDSAPub(&key.PublicKey),
		Signature: signature,
	}

	if err := auth.Verify(message, signer); err != nil {
		t.Fatalf("verify: %v", err)
	}
	other := common.HexToAddress("0x3333333333333333333333333333333333333333")
	if err := auth.Verify(message, other); err == nil {
		t.Fatal("verification against the wrong signer must fail")
	}

	raw, err := auth.ToBinary()
	if err != nil {
		t.Fatalf("encode authenticator: %v", err)
	}
	decoded, err := AuthenticatorFromBinary(raw)
	if err != nil {
		t.Fatalf("decode authenticator: %v", err)
	}
	if err := decoded.Verify(message, signer); err != nil {
		t.Fatalf("verify after round trip: %v", err)
	}
}

func TestValidateRejectsIncompleteTransactions(t *testing.T) {
	tx := sampleTransaction()
	tx.Bytecode = nil
	if err := tx.Validate(); err == nil {
		t.Fatal("missing bytecode must be rejected")
	}

	tx = sampleTransaction()
	tx.SecondarySigners = nil
	if err := tx.Validate(); err == nil {
		t.Fatal("missing secondary signers must be rejected")
	}
}
