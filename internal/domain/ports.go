package domain

import (
	"context"
	"errors"
	"time"
)

// ============================================================================
// Primary Ports (Relay Use Cases)
// ============================================================================

// RelayService defines the primary port for the popup login relay
type RelayService interface {
	ClientID(ctx context.Context) (string, error)
	Authorize(ctx context.Context, in AuthorizeInput) (*AuthorizeResult, error)
	Callback(ctx context.Context, in CallbackInput) *RelayMessage
	ExchangeToken(ctx context.Context, in TokenInput) (*TokenResponse, error)
}

// ============================================================================
// Secondary Ports (Infrastructure)
// ============================================================================

// StateStore persists AuthRequests between the authorize and callback steps.
// Save may return an opaque ticket the caller must hand back to Consume; stores
// that keep the record server-side return an empty ticket.
type StateStore interface {
	Save(ctx context.Context, req *AuthRequest) (ticket string, err error)
	Consume(ctx context.Context, state, ticket string) (*AuthRequest, error)
	Purge(ctx context.Context) (int, error)
	Close() error
}

// TokenExchanger redeems an authorization code at GitHub's token endpoint
type TokenExchanger interface {
	AuthorizeURL(p AuthorizeURLParams) string
	Exchange(ctx context.Context, p ExchangeParams) (*TokenResponse, error)
}

// State store failures. Consumed, expired and invalid fail closed.
var (
	ErrStateNotFound = errors.New("state not found")
	ErrStateConsumed = errors.New("state already consumed")
	ErrStateExpired  = errors.New("state expired")
	ErrStateInvalid  = errors.New("state ticket invalid")
)

// ============================================================================
// Request/Response Types
// ============================================================================

// AuthorizeInput is the merged query/body of an authorize call
type AuthorizeInput struct {
	State               string `form:"state" json:"state"`
	Scope               string `form:"scope" json:"scope"`
	CodeChallenge       string `form:"code_challenge" json:"code_challenge"`
	CodeChallengeMethod string `form:"code_challenge_method" json:"code_challenge_method"`
	Origin              string `form:"origin" json:"origin"`
	SiteID              string `form:"site_id" json:"site_id"` // Decap CMS sends the bare site host here
	RequestBase         string `form:"-" json:"-"`
}

// AuthorizeResult carries everything the HTTP layer needs to redirect
type AuthorizeResult struct {
	RedirectURL string
	State       string
	Ticket      string
	ExpiresAt   time.Time
}

// AuthorizeURLParams describes one GitHub authorize redirect
type AuthorizeURLParams struct {
	State           string
	Scope           string
	Challenge       string
	ChallengeMethod string
	RedirectURI     string
}

// ExchangeParams describes one code-for-token exchange.
// An empty Verifier means the confidential client secret is used instead.
type ExchangeParams struct {
	Code        string
	RedirectURI string
	Verifier    string
}

// CallbackInput is GitHub's redirect back to the callback path
type CallbackInput struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	StateCookie      string
	Ticket           string
	RequestBase      string
}

// TokenInput is the body of a browser-initiated token exchange
type TokenInput struct {
	Code         string `form:"code" json:"code"`
	CodeVerifier string `form:"code_verifier" json:"code_verifier"`
	RedirectURI  string `form:"redirect_uri" json:"redirect_uri"`
	State        string `form:"state" json:"state"`
	StateCookie  string `form:"-" json:"-"`
	Ticket       string `form:"-" json:"-"`
	RequestBase  string `form:"-" json:"-"`
}

// MessageKind selects which postMessage payload a relay page carries
type MessageKind int

const (
	MessageSuccess MessageKind = iota
	MessageError
	MessageHandBack
)

// RelayMessage is the outcome of a callback, rendered as a page that notifies the opener
type RelayMessage struct {
	Kind             MessageKind
	Legacy           bool
	Token            *TokenResponse
	Code             string
	State            string
	Error            string
	ErrorDescription string
	TargetOrigin     string
}
