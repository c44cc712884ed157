package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuthRequest is the server-side half of one popup login attempt.
// Verifier is empty when the browser supplied its own PKCE challenge.
type AuthRequest struct {
	ID              string
	State           string
	Verifier        string
	Challenge       string
	ChallengeMethod string
	Origin          string // opener origin captured at authorize time, empty when unknown
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// NewAuthRequest stamps a request created now that lives for ttl
func NewAuthRequest(state, verifier, challenge, method, origin string, now time.Time, ttl time.Duration) *AuthRequest {
	return &AuthRequest{
		ID:              uuid.New().String(),
		State:           state,
		Verifier:        verifier,
		Challenge:       challenge,
		ChallengeMethod: method,
		Origin:          origin,
		CreatedAt:       now.UTC(),
		ExpiresAt:       now.UTC().Add(ttl),
	}
}

// Expired reports whether the request can no longer be consumed at now
func (r *AuthRequest) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// HasVerifier reports whether the server holds the PKCE verifier for this request
func (r *AuthRequest) HasVerifier() bool {
	return r.Verifier != ""
}

// TokenResponse is forwarded to the browser and never persisted
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}
