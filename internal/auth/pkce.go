package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// verifierLen is the number of random bytes in a PKCE code verifier.
const verifierLen = 32

// GenerateVerifier returns a new PKCE code verifier: 32 cryptographically
// random bytes, base64url-encoded without padding.
func GenerateVerifier() (string, error) {
	buf := make([]byte, verifierLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ChallengeS256 returns the S256 code challenge for a verifier: the SHA-256
// digest of the verifier's bytes, base64url-encoded without padding.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
