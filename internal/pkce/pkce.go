// Package pkce mints CSRF state values and RFC 7636 verifier/challenge pairs.
package pkce

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/cmsrelay/internal/constants"
	"golang.org/x/oauth2"
)

// stateBytes is the entropy of a generated state value
const stateBytes = 32

// NewState returns a random hex-encoded CSRF state
func NewState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand read: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewVerifier returns a 32-byte random verifier, base64url without padding (43 characters)
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}

// Challenge derives the S256 challenge base64url(SHA-256(verifier))
func Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// Pair is a verifier together with the challenge sent to GitHub
type Pair struct {
	Verifier  string
	Challenge string
	Method    string
}

// NewPair generates a fresh verifier and its S256 challenge
func NewPair() Pair {
	verifier := NewVerifier()
	return Pair{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
		Method:    constants.ChallengeMethodS256,
	}
}

// Verify reports whether verifier hashes to challenge
func Verify(verifier, challenge string) bool {
	return subtle.ConstantTimeCompare([]byte(Challenge(verifier)), []byte(challenge)) == 1
}
