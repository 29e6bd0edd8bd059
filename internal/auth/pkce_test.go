package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func TestGenerateVerifier_Format(t *testing.T) {
	v, err := GenerateVerifier()
	if err != nil {
		t.Fatalf("GenerateVerifier() error: %v", err)
	}

	// 32 bytes base64url without padding is 43 characters.
	if len(v) != 43 {
		t.Errorf("verifier length = %d, want 43", len(v))
	}
	if strings.ContainsAny(v, "+/=") {
		t.Errorf("verifier contains non-base64url characters: %q", v)
	}
	raw, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		t.Fatalf("verifier is not valid base64url: %v", err)
	}
	if len(raw) != 32 {
		t.Errorf("decoded verifier length = %d bytes, want 32", len(raw))
	}
}

func TestGenerateVerifier_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		v, err := GenerateVerifier()
		if err != nil {
			t.Fatalf("GenerateVerifier() error: %v", err)
		}
		if seen[v] {
			t.Fatalf("duplicate verifier generated: %q", v)
		}
		seen[v] = true
	}
}

func TestChallengeS256_Deterministic(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

	c1 := ChallengeS256(verifier)
	c2 := ChallengeS256(verifier)
	if c1 != c2 {
		t.Errorf("same verifier hashed to different challenges: %q vs %q", c1, c2)
	}

	sum := sha256.Sum256([]byte(verifier))
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if c1 != want {
		t.Errorf("ChallengeS256() = %q, want %q", c1, want)
	}
	if strings.ContainsAny(c1, "+/=") {
		t.Errorf("challenge contains non-base64url characters: %q", c1)
	}
}

func TestChallengeS256_RFCExample(t *testing.T) {
	// Verifier/challenge pair from RFC 7636 appendix B.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got := ChallengeS256(verifier); got != want {
		t.Errorf("ChallengeS256() = %q, want RFC 7636 value %q", got, want)
	}
}
