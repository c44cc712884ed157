package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cmsrelay/internal/domain"
	"github.com/golang-jwt/jwt"
)

const ticketIssuer = "cmsrelay"

// ticketClaims is the AuthRequest as carried in the cms_pkce_v cookie
type ticketClaims struct {
	State     string `json:"st"`
	Verifier  string `json:"pkce_v,omitempty"`
	Challenge string `json:"cc"`
	Method    string `json:"ccm"`
	Origin    string `json:"origin,omitempty"`
	jwt.StandardClaims
}

// CookieStore keeps nothing server-side but a replay cache: the AuthRequest travels as an
// HS256-signed ticket in an HttpOnly cookie. Replay protection is per process, so a
// ticket replayed against a different instance within its TTL is not caught.
type CookieStore struct {
	secret []byte
	now    clock

	mu       sync.Mutex
	consumed map[string]time.Time // ticket id -> expiry
}

// NewCookieStore creates a store signing tickets with secret
func NewCookieStore(secret []byte) (*CookieStore, error) {
	if len(secret) == 0 {
		return nil, errors.New("cookie state store requires a signing secret")
	}
	return &CookieStore{
		secret:   secret,
		now:      systemClock,
		consumed: make(map[string]time.Time),
	}, nil
}

// Save signs req into a ticket the caller sets as a cookie
func (s *CookieStore) Save(_ context.Context, req *domain.AuthRequest) (string, error) {
	claims := ticketClaims{
		State:     req.State,
		Verifier:  req.Verifier,
		Challenge: req.Challenge,
		Method:    req.ChallengeMethod,
		Origin:    req.Origin,
		StandardClaims: jwt.StandardClaims{
			Id:        req.ID,
			Issuer:    ticketIssuer,
			IssuedAt:  req.CreatedAt.Unix(),
			ExpiresAt: req.ExpiresAt.Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign state ticket: %w", err)
	}
	return signed, nil
}

// Consume verifies ticket, checks it was issued for state and burns its id
func (s *CookieStore) Consume(_ context.Context, state, ticket string) (*domain.AuthRequest, error) {
	if ticket == "" {
		return nil, domain.ErrStateNotFound
	}

	// Expiry is checked against the store clock below
	parser := &jwt.Parser{
		ValidMethods:         []string{jwt.SigningMethodHS256.Alg()},
		SkipClaimsValidation: true,
	}

	var claims ticketClaims
	_, err := parser.ParseWithClaims(ticket, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStateInvalid, err)
	}

	if claims.Issuer != ticketIssuer || claims.Id == "" {
		return nil, domain.ErrStateInvalid
	}
	if claims.State != state {
		return nil, fmt.Errorf("%w: ticket issued for another state", domain.ErrStateInvalid)
	}

	now := s.now()
	expiresAt := time.Unix(claims.ExpiresAt, 0).UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, used := s.consumed[claims.Id]; used {
		return nil, domain.ErrStateConsumed
	}
	if !now.Before(expiresAt) {
		return nil, domain.ErrStateExpired
	}
	s.consumed[claims.Id] = expiresAt

	return &domain.AuthRequest{
		ID:              claims.Id,
		State:           claims.State,
		Verifier:        claims.Verifier,
		Challenge:       claims.Challenge,
		ChallengeMethod: claims.Method,
		Origin:          claims.Origin,
		CreatedAt:       time.Unix(claims.IssuedAt, 0).UTC(),
		ExpiresAt:       expiresAt,
	}, nil
}

// Purge forgets burnt ticket ids whose tickets have expired
func (s *CookieStore) Purge(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, expiresAt := range s.consumed {
		if !now.Before(expiresAt) {
			delete(s.consumed, id)
			removed++
		}
	}
	return removed, nil
}

func (s *CookieStore) Close() error {
	return nil
}
