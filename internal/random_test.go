package internal

import (
	"encoding/hex"
	"testing"
)

func TestGenerateOpaqueTokenLengthAndUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 256)
	for i := 0; i < 256; i++ {
		tok, err := GenerateOpaqueToken(CSRFTokenSize)
		if err != nil {
			t.Fatalf("GenerateOpaqueToken failed: %v", err)
		}
		if len(tok) != CSRFTokenSize*2 {
			t.Fatalf("expected %d hex chars, got %d", CSRFTokenSize*2, len(tok))
		}
		if _, err := hex.DecodeString(tok); err != nil {
			t.Fatalf("token is not hex: %v", err)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token generated: %s", tok)
		}
		seen[tok] = struct{}{}
	}
}

func TestGenerateOpaqueTokenRejectsWeakLengths(t *testing.T) {
	for _, n := range []int{-1, 0, 8, 15, maxOpaqueTokenBytes + 1} {
		if _, err := GenerateOpaqueToken(n); err != ErrInvalidTokenLength {
			t.Fatalf("length %d: expected ErrInvalidTokenLength, got %v", n, err)
		}
	}
}

func TestHashTokenStable(t *testing.T) {
	a := HashToken("token-value")
	b := HashToken("token-value")
	if a != b {
		t.Fatal("expected hash to be deterministic")
	}
	if a == HashToken("token-valuf") {
		t.Fatal("expected different inputs to hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("expected sha256 hex length 64, got %d", len(a))
	}
}
