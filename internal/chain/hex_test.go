package chain

import (
	"bytes"
	"strings"
	"testing"
)

func TestArtifactPrefixTolerance(t *testing.T) {
	payload := []byte{0x01, 0xab, 0xff}
	artifact := EncodeArtifact(payload)
	if !strings.HasPrefix(artifact, "0x") {
		t.Fatalf("encoded artifact must carry the 0x prefix: %s", artifact)
	}

	withPrefix, err := DecodeArtifact(artifact)
	if err != nil {
		t.Fatalf("decode with prefix: %v", err)
	}
	withoutPrefix, err := DecodeArtifact(strings.TrimPrefix(artifact, "0x"))
	if err != nil {
		t.Fatalf("decode without prefix: %v", err)
	}
	if !bytes.Equal(withPrefix, payload) || !bytes.Equal(withoutPrefix, payload) {
		t.Fatal("decoded payloads differ from the original")
	}
}

func TestDecodeArtifactRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "0x", "0xzz", "nothex"} {
		if _, err := DecodeArtifact(input); err == nil {
			t.Fatalf("input %q must be rejected", input)
		}
	}
}
