package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cmsrelay/internal/config"
	"github.com/cmsrelay/internal/constants"
	"github.com/cmsrelay/internal/domain"
	"github.com/cmsrelay/internal/logger"
	"github.com/cmsrelay/internal/pkce"
	"github.com/cmsrelay/internal/validation"
)

// relayService implements the RelayService interface
type relayService struct {
	config    *config.Config
	store     domain.StateStore
	exchanger domain.TokenExchanger
	logger    *slog.Logger
	now       func() time.Time
}

// NewRelayService creates a new relay service
func NewRelayService(
	cfg *config.Config,
	store domain.StateStore,
	exchanger domain.TokenExchanger,
	logger *slog.Logger,
) domain.RelayService {
	return &relayService{
		config:    cfg,
		store:     store,
		exchanger: exchanger,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ClientID returns the public GitHub OAuth client id
func (s *relayService) ClientID(ctx context.Context) (string, error) {
	if s.config.GitHub.ClientID == "" {
		s.logger.ErrorContext(ctx, "GITHUB_CLIENT_ID is not configured")
		return "", domain.ErrMissingClientID
	}
	return s.config.GitHub.ClientID, nil
}

// Authorize mints (or accepts) state and PKCE material, persists the AuthRequest and
// returns the GitHub URL to redirect the popup to.
func (s *relayService) Authorize(ctx context.Context, in domain.AuthorizeInput) (*domain.AuthorizeResult, error) {
	if _, err := s.ClientID(ctx); err != nil {
		return nil, err
	}

	state := strings.TrimSpace(in.State)
	if state == "" {
		generated, err := pkce.NewState()
		if err != nil {
			return nil, domain.WrapServerError(err)
		}
		state = generated
	} else if err := validation.ValidateState(state); err != nil {
		s.logger.WarnContext(ctx, "rejected authorize state", "error", err)
		return nil, domain.WrapInvalidRequest(err.Error())
	}

	var verifier, challenge string
	method := constants.ChallengeMethodS256
	if in.CodeChallenge != "" || in.CodeChallengeMethod != "" {
		// The browser keeps the verifier and finishes through /access_token
		if err := validation.ValidateCodeChallenge(in.CodeChallenge, in.CodeChallengeMethod); err != nil {
			s.logger.WarnContext(ctx, "rejected authorize challenge", "method", in.CodeChallengeMethod, "error", err)
			return nil, domain.WrapInvalidRequest(err.Error())
		}
		challenge = in.CodeChallenge
	} else {
		pair := pkce.NewPair()
		verifier, challenge, method = pair.Verifier, pair.Challenge, pair.Method
	}

	origin, err := s.resolveOrigin(in)
	if err != nil {
		s.logger.WarnContext(ctx, "rejected authorize origin", "origin", in.Origin, "site_id", in.SiteID, "error", err)
		return nil, err
	}

	scope := strings.TrimSpace(in.Scope)
	if scope == "" {
		scope = s.config.OAuth.Scope
	}

	req := domain.NewAuthRequest(state, verifier, challenge, method, origin, s.now(), s.config.State.TTL)
	ticket, err := s.store.Save(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrStateConsumed) {
			return nil, domain.WrapInvalidGrant("state has already been used", err)
		}
		s.logger.ErrorContext(ctx, "failed to save auth request", "error", err)
		return nil, domain.WrapServerError(err)
	}

	redirectURI := s.config.CallbackURL(in.RequestBase)
	authURL := s.exchanger.AuthorizeURL(domain.AuthorizeURLParams{
		State:           state,
		Scope:           scope,
		Challenge:       challenge,
		ChallengeMethod: method,
		RedirectURI:     redirectURI,
	})

	s.logger.InfoContext(ctx, "authorize redirect issued",
		"client_id", logger.RedactClientID(s.config.GitHub.ClientID),
		"origin", origin,
		"client_pkce", verifier == "",
		"redirect_uri", redirectURI,
	)

	return &domain.AuthorizeResult{
		RedirectURL: authURL,
		State:       state,
		Ticket:      ticket,
		ExpiresAt:   req.ExpiresAt,
	}, nil
}

// Callback turns GitHub's redirect into the message the popup posts to its opener.
// Every outcome, failures included, is a message.
func (s *relayService) Callback(ctx context.Context, in domain.CallbackInput) *domain.RelayMessage {
	target := s.defaultOrigin()

	if in.Error != "" {
		// Burn the state so the failed attempt cannot be resumed
		if in.State != "" {
			if rec, err := s.store.Consume(ctx, in.State, in.Ticket); err == nil && rec.Origin != "" {
				target = rec.Origin
			}
		}
		s.logger.InfoContext(ctx, "GitHub returned an authorization error", "error", in.Error)
		return s.errorMessage(ctx, domain.WrapUpstream(in.Error, in.ErrorDescription), target)
	}

	if _, err := s.ClientID(ctx); err != nil {
		return s.errorMessage(ctx, err, target)
	}
	if in.Code == "" {
		return s.errorMessage(ctx, domain.WrapInvalidRequest("missing code"), target)
	}
	if in.State == "" {
		return s.errorMessage(ctx, domain.WrapInvalidRequest("missing state"), target)
	}
	if in.StateCookie != "" && in.StateCookie != in.State {
		s.logger.WarnContext(ctx, "callback state does not match state cookie")
		return s.errorMessage(ctx, domain.WrapInvalidGrant("state does not match this browser", nil), target)
	}

	rec, err := s.consume(ctx, in.State, in.Ticket)
	if err != nil {
		return s.errorMessage(ctx, err, target)
	}
	if rec != nil && rec.Origin != "" {
		target = rec.Origin
	}

	var verifier string
	switch {
	case rec != nil && rec.HasVerifier():
		verifier = rec.Verifier
	case rec != nil:
		// Client-held PKCE: only the browser can finish
		return s.handBack(ctx, in, target)
	case s.config.OAuth.BrowserExchangeFallback:
		// Unknown here, the browser may still hold a verifier for it
		return s.handBack(ctx, in, target)
	default:
		return s.errorMessage(ctx, domain.WrapInvalidGrant("unknown or expired state", domain.ErrStateNotFound), target)
	}

	tok, err := s.exchanger.Exchange(ctx, domain.ExchangeParams{
		Code:        in.Code,
		RedirectURI: s.config.CallbackURL(in.RequestBase),
		Verifier:    verifier,
	})
	if err != nil {
		return s.errorMessage(ctx, err, target)
	}

	if target == "" {
		s.logger.WarnContext(ctx, "opener origin unknown, posting token to any origin")
	}
	s.logger.InfoContext(ctx, "callback token exchange succeeded", "origin", target, "mode", exchangeMode(verifier))

	return &domain.RelayMessage{
		Kind:         domain.MessageSuccess,
		Legacy:       s.config.OAuth.MessageFormat == constants.MessageFormatLegacy,
		Token:        tok,
		TargetOrigin: target,
	}
}

// ExchangeToken redeems a code on behalf of the browser
func (s *relayService) ExchangeToken(ctx context.Context, in domain.TokenInput) (*domain.TokenResponse, error) {
	if _, err := s.ClientID(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Code) == "" {
		return nil, domain.WrapInvalidRequest("missing code")
	}

	redirectURI := s.config.CallbackURL(in.RequestBase)
	if in.RedirectURI != "" && in.RedirectURI != redirectURI {
		s.logger.WarnContext(ctx, "rejected token request redirect_uri", "redirect_uri", in.RedirectURI)
		return nil, domain.WrapInvalidRequest("redirect_uri does not match the registered callback")
	}
	if in.CodeVerifier != "" {
		if err := validation.ValidateCodeVerifier(in.CodeVerifier); err != nil {
			return nil, domain.WrapInvalidRequest(err.Error())
		}
	}

	state := in.State
	if state == "" {
		state = in.StateCookie
	} else if in.StateCookie != "" && in.StateCookie != state {
		return nil, domain.WrapInvalidGrant("state does not match this browser", nil)
	}

	verifier, err := s.resolveVerifier(ctx, state, in.Ticket, in.CodeVerifier)
	if err != nil {
		return nil, err
	}

	tok, err := s.exchanger.Exchange(ctx, domain.ExchangeParams{
		Code:        in.Code,
		RedirectURI: redirectURI,
		Verifier:    verifier,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "token exchange succeeded", "mode", exchangeMode(verifier))
	return tok, nil
}

// resolveVerifier picks the PKCE verifier for an exchange. A stored record is
// authoritative; then the client's verifier; then the confidential secret, signalled
// by an empty verifier.
func (s *relayService) resolveVerifier(ctx context.Context, state, ticket, clientVerifier string) (string, error) {
	if state != "" {
		rec, err := s.consume(ctx, state, ticket)
		if err != nil {
			return "", err
		}
		if rec != nil && rec.HasVerifier() {
			return rec.Verifier, nil
		}
		if rec != nil && clientVerifier != "" && !pkce.Verify(clientVerifier, rec.Challenge) {
			return "", domain.WrapInvalidGrant("code_verifier does not match the authorize challenge", nil)
		}
	}

	if clientVerifier != "" {
		return clientVerifier, nil
	}
	if s.config.GitHub.ClientSecret != "" {
		return "", nil
	}
	return "", domain.WrapInvalidGrant("no code_verifier and no client secret available", nil)
}

// consume looks state up. A nil record with a nil error means the state is unknown here.
func (s *relayService) consume(ctx context.Context, state, ticket string) (*domain.AuthRequest, error) {
	rec, err := s.store.Consume(ctx, state, ticket)
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, domain.ErrStateNotFound):
		return nil, nil
	case errors.Is(err, domain.ErrStateConsumed):
		s.logger.WarnContext(ctx, "replayed state rejected")
		return nil, domain.WrapInvalidGrant("state has already been used", err)
	case errors.Is(err, domain.ErrStateExpired):
		return nil, domain.WrapInvalidGrant("state has expired", err)
	case errors.Is(err, domain.ErrStateInvalid):
		s.logger.WarnContext(ctx, "invalid state ticket", "error", err)
		return nil, domain.WrapInvalidGrant("state ticket is invalid", err)
	default:
		s.logger.ErrorContext(ctx, "failed to consume auth request", "error", err)
		return nil, domain.WrapServerError(err)
	}
}

// resolveOrigin validates the opener origin hint against the allow-list
func (s *relayService) resolveOrigin(in domain.AuthorizeInput) (string, error) {
	hint := strings.TrimSpace(in.Origin)
	if hint == "" {
		hint = strings.TrimSpace(in.SiteID)
	}
	if hint == "" {
		return s.defaultOrigin(), nil
	}

	origin, err := validation.NormalizeOrigin(hint)
	if err != nil {
		return "", domain.WrapInvalidRequest(err.Error())
	}
	if !s.config.OriginAllowed(origin) {
		return "", domain.WrapInvalidRequest("origin is not allowed")
	}
	return origin, nil
}

// defaultOrigin is the only configured origin, or empty when that is ambiguous
func (s *relayService) defaultOrigin() string {
	if len(s.config.CORS.AllowedOrigins) == 1 {
		return s.config.CORS.AllowedOrigins[0]
	}
	return ""
}

func (s *relayService) handBack(ctx context.Context, in domain.CallbackInput, target string) *domain.RelayMessage {
	s.logger.InfoContext(ctx, "handing code back to the browser", "origin", target)
	return &domain.RelayMessage{
		Kind:         domain.MessageHandBack,
		Code:         in.Code,
		State:        in.State,
		TargetOrigin: target,
	}
}

func (s *relayService) errorMessage(ctx context.Context, err error, target string) *domain.RelayMessage {
	if domain.IsClientError(err) {
		s.logger.WarnContext(ctx, "callback failed", "error", domain.CodeOf(err))
	} else {
		s.logger.ErrorContext(ctx, "callback failed", "error", err)
	}
	return &domain.RelayMessage{
		Kind:             domain.MessageError,
		Error:            domain.CodeOf(err),
		ErrorDescription: domain.PublicMessage(err),
		TargetOrigin:     target,
	}
}

func exchangeMode(verifier string) string {
	if verifier != "" {
		return "pkce"
	}
	return "secret"
}
