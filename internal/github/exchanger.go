// Package github talks to GitHub's OAuth endpoints: it builds authorize redirects and
// redeems authorization codes for access tokens.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cmsrelay/internal/config"
	"github.com/cmsrelay/internal/domain"
	"golang.org/x/oauth2"
)

// Exchanger implements domain.TokenExchanger against a GitHub (or GitHub Enterprise) host
type Exchanger struct {
	clientID     string
	clientSecret string
	endpoint     oauth2.Endpoint
	allowSignup  bool
	timeout      time.Duration
	client       *http.Client
	logger       *slog.Logger
}

// NewExchanger creates an exchanger from the GitHub section of cfg
func NewExchanger(cfg config.GitHubOAuthConfig, logger *slog.Logger) *Exchanger {
	return &Exchanger{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthorizeURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		allowSignup: cfg.AllowSignup,
		timeout:     cfg.ExchangeTimeout,
		client: &http.Client{
			Timeout:   cfg.ExchangeTimeout,
			Transport: &acceptJSONTransport{base: http.DefaultTransport},
		},
		logger: logger,
	}
}

// AuthorizeURL returns the GitHub authorize URL for one popup login
func (e *Exchanger) AuthorizeURL(p domain.AuthorizeURLParams) string {
	cfg := e.oauthConfig(p.RedirectURI, "")

	opts := []oauth2.AuthCodeOption{
		// GitHub accepts comma separated scopes, keep them as given
		oauth2.SetAuthURLParam("scope", p.Scope),
		oauth2.SetAuthURLParam("code_challenge", p.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", p.ChallengeMethod),
	}
	if !e.allowSignup {
		opts = append(opts, oauth2.SetAuthURLParam("allow_signup", "false"))
	}

	return cfg.AuthCodeURL(p.State, opts...)
}

// Exchange redeems p.Code. With a verifier the request is a public PKCE exchange and
// carries no client secret; without one the configured secret is sent instead.
func (e *Exchanger) Exchange(ctx context.Context, p domain.ExchangeParams) (*domain.TokenResponse, error) {
	secret := ""
	var opts []oauth2.AuthCodeOption
	if p.Verifier != "" {
		opts = append(opts, oauth2.VerifierOption(p.Verifier))
	} else {
		if e.clientSecret == "" {
			return nil, domain.WrapInvalidGrant("no code verifier available for this exchange", nil)
		}
		secret = e.clientSecret
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)

	start := time.Now()
	tok, err := e.oauthConfig(p.RedirectURI, secret).Exchange(ctx, p.Code, opts...)
	if err != nil {
		return nil, e.mapError(err, time.Since(start))
	}

	scope, _ := tok.Extra("scope").(string)
	e.logger.Debug("GitHub token exchange succeeded",
		"mode", exchangeMode(p.Verifier),
		"duration", time.Since(start),
	)

	return &domain.TokenResponse{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Scope:       scope,
	}, nil
}

func (e *Exchanger) oauthConfig(redirectURI, secret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     e.clientID,
		ClientSecret: secret,
		Endpoint:     e.endpoint,
		RedirectURL:  redirectURI,
	}
}

// mapError passes GitHub's OAuth error through and hides everything else behind server_error
func (e *Exchanger) mapError(err error, elapsed time.Duration) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}

		if retrieveErr.ErrorCode != "" {
			e.logger.Warn("GitHub rejected token exchange",
				"status", status,
				"error", retrieveErr.ErrorCode,
				"error_description", retrieveErr.ErrorDescription,
			)
			return domain.WrapUpstream(retrieveErr.ErrorCode, retrieveErr.ErrorDescription)
		}

		e.logger.Error("GitHub token endpoint returned an unexpected response",
			"status", status,
			"body", truncate(string(retrieveErr.Body), 512),
		)
		if status >= 400 && status < 500 {
			return domain.WrapUpstream("", "")
		}
		return domain.WrapServerError(fmt.Errorf("token endpoint status %d", status))
	}

	e.logger.Error("GitHub token exchange failed", "error", err, "duration", elapsed)
	return domain.WrapServerError(err)
}

func exchangeMode(verifier string) string {
	if verifier != "" {
		return "pkce"
	}
	return "secret"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// acceptJSONTransport asks GitHub for JSON instead of its default form-encoded token body
type acceptJSONTransport struct {
	base http.RoundTripper
}

func (t *acceptJSONTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Accept", "application/json")
	return t.base.RoundTrip(req)
}
