package service

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/cmsrelay/internal/config"
	"github.com/cmsrelay/internal/domain"
	"github.com/cmsrelay/internal/logger"
	"github.com/cmsrelay/internal/pkce"
	"github.com/cmsrelay/internal/store"
)

const (
	testClientID    = "Iv1.testclient"
	testRequestBase = "https://relay.example.com"
	testCallbackURL = "https://relay.example.com/oauth/callback"
	testOrigin      = "https://site.example.com"
	testVerifier    = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testChallenge   = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

// fakeExchanger records exchanges and answers with a canned token or error
type fakeExchanger struct {
	calls []domain.ExchangeParams
	token *domain.TokenResponse
	err   error
}

func (f *fakeExchanger) AuthorizeURL(p domain.AuthorizeURLParams) string {
	q := url.Values{}
	q.Set("client_id", testClientID)
	q.Set("redirect_uri", p.RedirectURI)
	q.Set("scope", p.Scope)
	q.Set("state", p.State)
	q.Set("code_challenge", p.Challenge)
	q.Set("code_challenge_method", p.ChallengeMethod)
	return "https://github.com/login/oauth/authorize?" + q.Encode()
}

func (f *fakeExchanger) Exchange(_ context.Context, p domain.ExchangeParams) (*domain.TokenResponse, error) {
	f.calls = append(f.calls, p)
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

func testConfig() *config.Config {
	return &config.Config{
		GitHub: config.GitHubOAuthConfig{ClientID: testClientID},
		OAuth: config.OAuthConfig{
			BasePath:                "/oauth",
			Scope:                   "repo,read:user,user:email",
			MessageFormat:           "canonical",
			BrowserExchangeFallback: true,
		},
		State: config.StateConfig{Store: "memory", TTL: 10 * time.Minute},
		CORS:  config.CORSConfig{AllowedOrigins: []string{testOrigin}},
	}
}

type testRig struct {
	svc       *relayService
	store     *store.MemoryStore
	exchanger *fakeExchanger
	cfg       *config.Config
}

func setupTestRelayService(t *testing.T, mutate func(cfg *config.Config)) *testRig {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	st := store.NewMemoryStore()
	ex := &fakeExchanger{token: &domain.TokenResponse{AccessToken: "tok_123", TokenType: "bearer", Scope: "repo"}}
	svc := NewRelayService(cfg, st, ex, logger.Discard()).(*relayService)
	return &testRig{svc: svc, store: st, exchanger: ex, cfg: cfg}
}

func assertCode(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error but got nil", want)
	}
	if got := domain.CodeOf(err); got != want {
		t.Errorf("CodeOf() = %q, want %q (err = %v)", got, want, err)
	}
}

func TestRelayService_ClientID(t *testing.T) {
	rig := setupTestRelayService(t, nil)
	id, err := rig.svc.ClientID(context.Background())
	if err != nil || id != testClientID {
		t.Errorf("ClientID() = %q, %v", id, err)
	}

	rig = setupTestRelayService(t, func(cfg *config.Config) { cfg.GitHub.ClientID = "" })
	_, err = rig.svc.ClientID(context.Background())
	assertCode(t, err, domain.CodeMissingClientID)
	if domain.StatusOf(err) != 500 {
		t.Errorf("StatusOf() = %d, want 500", domain.StatusOf(err))
	}
}

func TestRelayService_Authorize_GeneratedPKCE(t *testing.T) {
	rig := setupTestRelayService(t, nil)
	ctx := context.Background()

	res, err := rig.svc.Authorize(ctx, domain.AuthorizeInput{State: "abc", RequestBase: testRequestBase})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if res.State != "abc" {
		t.Errorf("State = %q, want abc", res.State)
	}

	u, err := url.Parse(res.RedirectURL)
	if err != nil {
		t.Fatalf("url.Parse() error = %v", err)
	}
	q := u.Query()
	if q.Get("redirect_uri") != testCallbackURL {
		t.Errorf("redirect_uri = %q, want %q", q.Get("redirect_uri"), testCallbackURL)
	}
	if q.Get("code_challenge_method") != "S256" {
		t.Errorf("code_challenge_method = %q, want S256", q.Get("code_challenge_method"))
	}
	if q.Get("scope") != "repo,read:user,user:email" {
		t.Errorf("scope = %q", q.Get("scope"))
	}

	rec, err := rig.store.Consume(ctx, "abc", "")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if !pkce.Verify(rec.Verifier, q.Get("code_challenge")) {
		t.Error("stored verifier does not hash to the challenge sent to GitHub")
	}
	if rec.Origin != testOrigin {
		t.Errorf("Origin = %q, want the single allowed origin", rec.Origin)
	}
	if !rec.ExpiresAt.Equal(res.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", rec.ExpiresAt, res.ExpiresAt)
	}
}

func TestRelayService_Authorize_GeneratesState(t *testing.T) {
	rig := setupTestRelayService(t, nil)

	a, err := rig.svc.Authorize(context.Background(), domain.AuthorizeInput{RequestBase: testRequestBase})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	b, err := rig.svc.Authorize(context.Background(), domain.AuthorizeInput{RequestBase: testRequestBase})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if a.State == "" || a.State == b.State {
		t.Errorf("generated states %q and %q should be distinct and non-empty", a.State, b.State)
	}
}

func TestRelayService_Authorize_PublicCallbackBase(t *testing.T) {
	rig := setupTestRelayService(t, func(cfg *config.Config) {
		cfg.OAuth.PublicCallbackBase = "https://cms.example.com"
	})

	res, err := rig.svc.Authorize(context.Background(), domain.AuthorizeInput{State: "abc", RequestBase: "http://10.0.0.7:8080"})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	u, _ := url.Parse(res.RedirectURL)
	if got := u.Query().Get("redirect_uri"); got != "https://cms.example.com/oauth/callback" {
		t.Errorf("redirect_uri = %q", got)
	}
}

func TestRelayService_Authorize_ClientChallenge(t *testing.T) {
	rig := setupTestRelayService(t, nil)
	ctx := context.Background()

	res, err := rig.svc.Authorize(ctx, domain.AuthorizeInput{
		State:               "abc",
		CodeChallenge:       testChallenge,
		CodeChallengeMethod: "S256",
		RequestBase:         testRequestBase,
	})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	u, _ := url.Parse(res.RedirectURL)
	if u.Query().Get("code_challenge") != testChallenge {
		t.Errorf("code_challenge = %q, want the client's", u.Query().Get("code_challenge"))
	}

	rec, err := rig.store.Consume(ctx, "abc", "")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if rec.HasVerifier() {
		t.Error("client-held PKCE must not store a verifier")
	}
}

func TestRelayService_Authorize_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
		in     domain.AuthorizeInput
		want   string
	}{
		{
			name:   "missing client id",
			mutate: func(cfg *config.Config) { cfg.GitHub.ClientID = "" },
			want:   domain.CodeMissingClientID,
		},
		{
			name: "plain challenge method",
			in:   domain.AuthorizeInput{CodeChallenge: testVerifier, CodeChallengeMethod: "plain"},
			want: domain.CodeInvalidRequest,
		},
		{
			name: "challenge without method",
			in:   domain.AuthorizeInput{CodeChallenge: testChallenge},
			want: domain.CodeInvalidRequest,
		},
		{
			name: "malformed challenge",
			in:   domain.AuthorizeInput{CodeChallenge: "short", CodeChallengeMethod: "S256"},
			want: domain.CodeInvalidRequest,
		},
		{
			name: "state with unsupported characters",
			in:   domain.AuthorizeInput{State: "<script>"},
			want: domain.CodeInvalidRequest,
		},
		{
			name: "origin not allowed",
			in:   domain.AuthorizeInput{Origin: "https://evil.example.com"},
			want: domain.CodeInvalidRequest,
		},
		{
			name: "origin with path",
			in:   domain.AuthorizeInput{Origin: "https://site.example.com/admin"},
			want: domain.CodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := setupTestRelayService(t, tt.mutate)
			tt.in.RequestBase = testRequestBase

			_, err := rig.svc.Authorize(context.Background(), tt.in)
			assertCode(t, err, tt.want)
			if rig.store.Len() != 0 {
				t.Error("rejected authorize must not persist anything")
			}
		})
	}
}

func TestRelayService_Authorize_SiteID(t *testing.T) {
	rig := setupTestRelayService(t, func(cfg *config.Config) {
		cfg.CORS.AllowedOrigins = []string{testOrigin, "https://other.example.com"}
	})
	ctx := context.Background()

	if _, err := rig.svc.Authorize(ctx, domain.AuthorizeInput{State: "abc", SiteID: "site.example.com", RequestBase: testRequestBase}); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	rec, err := rig.store.Consume(ctx, "abc", "")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if rec.Origin != testOrigin {
		t.Errorf("Origin = %q, want %q", rec.Origin, testOrigin)
	}

	// Two allowed origins and no hint: the origin stays unknown
	if _, err := rig.svc.Authorize(ctx, domain.AuthorizeInput{State: "def", RequestBase: testRequestBase}); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	rec, _ = rig.store.Consume(ctx, "def", "")
	if rec.Origin != "" {
		t.Errorf("Origin = %q, want empty", rec.Origin)
	}
}

func TestRelayService_Callback_Success(t *testing.T) {
	rig := setupTestRelayService(t, nil)
	ctx := context.Background()

	if _, err := rig.svc.Authorize(ctx, domain.AuthorizeInput{State: "abc", RequestBase: testRequestBase}); err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	msg := rig.svc.Callback(ctx, domain.CallbackInput{Code: "xyz", State: "abc", StateCookie: "abc", RequestBase: testRequestBase})
	if msg.Kind != domain.MessageSuccess {
		t.Fatalf("Kind = %v, want success (error %q: %q)", msg.Kind, msg.Error, msg.ErrorDescription)
	}
	if msg.Legacy {
		t.Error("Legacy = true, want canonical")
	}
	if msg.Token.AccessToken != "tok_123" || msg.Token.TokenType != "bearer" || msg.Token.Scope != "repo" {
		t.Errorf("Token = %+v", msg.Token)
	}
	if msg.TargetOrigin != testOrigin {
		t.Errorf("TargetOrigin = %q, want %q", msg.TargetOrigin, testOrigin)
	}

	if len(rig.exchanger.calls) != 1 {
		t.Fatalf("exchanges = %d, want 1", len(rig.exchanger.calls))
	}
	call := rig.exchanger.calls[0]
	if call.Code != "xyz" {
		t.Errorf("Code = %q, want xyz", call.Code)
	}
	if call.RedirectURI != testCallbackURL {
		t.Errorf("RedirectURI = %q, want %q", call.RedirectURI, testCallbackURL)
	}
	if call.Verifier == "" {
		t.Error("server-held PKCE exchange must send the stored verifier")
	}

	// Replaying the same callback fails closed without another upstream call
	replay := rig.svc.Callback(ctx, domain.CallbackInput{Code: "xyz", State: "abc", RequestBase: testRequestBase})
	if replay.Kind != domain.MessageError || replay.Error != domain.CodeInvalidGrant {
		t.Errorf("replay = %+v, want invalid_grant", replay)
	}
	if len(rig.exchanger.calls) != 1 {
		t.Errorf("exchanges after replay = %d, want 1", len(rig.exchanger.calls))
	}
}

func TestRelayService_Callback_Legacy(t *testing.T) {
	rig := setupTestRelayService(t, func(cfg *config.Config) { cfg.OAuth.MessageFormat = "legacy" })
	ctx := context.Background()

	rig.svc.Authorize(ctx, domain.AuthorizeInput{State: "abc", RequestBase: testRequestBase})
	msg := rig.svc.Callback(ctx, domain.CallbackInput{Code: "xyz", State: "abc", RequestBase: testRequestBase})
	if msg.Kind != domain.MessageSuccess || !msg.Legacy {
		t.Errorf("msg = %+v, want legacy success", msg)
	}
}

func TestRelayService_Callback_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
		in     domain.CallbackInput
		want   string
	}{
		{
			name: "access denied",
			in:   domain.CallbackInput{Error: "access_denied", ErrorDescription: "The user has denied your application access.", State: "abc"},
			want: "access_denied",
		},
		{
			name:   "missing client id",
			mutate: func(cfg *config.Config) { cfg.GitHub.ClientID = "" },
			in:     domain.CallbackInput{Code: "xyz", State: "abc"},
			want:   domain.CodeMissingClientID,
		},
		{
			name: "missing code",
			in:   domain.CallbackInput{State: "abc"},
			want: domain.CodeInvalidRequest,
		},
		{
			name: "missing state",
			in:   domain.CallbackInput{Code: "xyz"},
			want: domain.CodeInvalidRequest,
		},
		{
			name: "state cookie mismatch",
			in:   domain.CallbackInput{Code: "xyz", State: "abc", StateCookie: "other"},
			want: domain.CodeInvalidGrant,
		},
		{
			name:   "unknown state without fallback",
			mutate: func(cfg *config.Config) { cfg.OAuth.BrowserExchangeFallback = false },
			in:     domain.CallbackInput{Code: "xyz", State: "never-issued"},
			want:   domain.CodeInvalidGrant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := setupTestRelayService(t, tt.mutate)
			tt.in.RequestBase = testRequestBase

			msg := rig.svc.Callback(context.Background(), tt.in)
			if msg.Kind != domain.MessageError {
				t.Fatalf("Kind = %v, want error", msg.Kind)
			}
			if msg.Error != tt.want {
				t.Errorf("Error = %q, want %q", msg.Error, tt.want)
			}
			if msg.ErrorDescription == "" {
				t.Error("ErrorDescription is empty")
			}
			if len(rig.exchanger.calls) != 0 {
				t.Errorf("exchanges = %d, want none", len(rig.exchanger.calls))
			}
		})
	}
}

func TestRelayService_Callback_AccessDeniedBurnsState(t *testing.T) {
	rig := setupTestRelayService(t, nil)
	ctx := context.Background()

	rig.svc.Authorize(ctx, domain.AuthorizeInput{State: "abc", RequestBase: testRequestBase})
	msg := rig.svc.Callback(ctx, domain.CallbackInput{Error: "access_denied", State: "abc", RequestBase: testRequestBase})
	if msg.Error != "access_denied" {
		t.Fatalf("Error = %q, want access_denied", msg.Error)
	}

	if _, err := rig.store.Consume(ctx, "abc", ""); !errors.Is(err, domain.ErrStateConsumed) {
		t.Errorf("Consume() after denial error = %v, want ErrStateConsumed", err)
	}
}

func TestRelayService_Callback_ExpiredState(t *testing.T) {
	rig := setupTestRelayService(t, func(cfg *config.Config) { cfg.State.TTL = time.Minute })
	ctx := context.Background()

	rig.svc.now = func() time.Time { return time.Now().UTC().Add(-2 * time.Minute) }
	rig.svc.Authorize(ctx, domain.AuthorizeInput{State: "abc", RequestBase: testRequestBase})

	msg := rig.svc.Callback(ctx, domain.CallbackInput{Code: "xyz", State: "abc", RequestBase: testRequestBase})
	if msg.Error != domain.CodeInvalidGrant {
		t.Errorf("Error = %q, want invalid_grant", msg.Error)
	}
	if len(rig.exchanger.calls) != 0 {
		t.Error("expired state must not reach GitHub")
	}
}

func TestRelayService_Callback_UpstreamError(t *testing.T) {
	rig := setupTestRelayService(t, nil)
	rig.exchanger.err = domain.WrapUpstream("bad_verification_code", "The code passed is incorrect or expired.")
	ctx := context.Background()

	rig.svc.Authorize(ctx, domain.AuthorizeInput{State: "abc", RequestBase: testRequestBase})
	msg := rig.svc.Callback(ctx, domain.CallbackInput{Code: "xyz", State: "abc", RequestBase: testRequestBase})

	if msg.Error != "bad_verification_code" {
		t.Errorf("Error = %q, want bad_verification_code", msg.Error)
	}
	if msg.ErrorDescription != "The code passed is incorrect or expired." {
		t.Errorf("ErrorDescription = %q", msg.ErrorDescription)
	}
	if msg.TargetOrigin != testOrigin {
		t.Errorf("TargetOrigin = %q, want %q", msg.TargetOrigin, testOrigin)
	}
}

func TestRelayService_Callback_HandBack(t *testing.T) {
	t.Run("client held pkce", func(t *testing.T) {
		rig := setupTestRelayService(t, func(cfg *config.Config) { cfg.GitHub.ClientSecret = "shh" })
		ctx := context.Background()

		rig.svc.Authorize(ctx, domain.AuthorizeInput{
			State: "abc", CodeChallenge: testChallenge, CodeChallengeMethod: "S256", RequestBase: testRequestBase,
		})
		msg := rig.svc.Callback(ctx, domain.CallbackInput{Code: "xyz", State: "abc", RequestBase: testRequestBase})
		if msg.Kind != domain.MessageHandBack {
			t.Fatalf("Kind = %v, want hand-back", msg.Kind)
		}
		if msg.Code != "xyz" || msg.State != "abc" {
			t.Errorf("msg = %+v", msg)
		}
		if len(rig.exchanger.calls) != 0 {
			t.Error("hand-back must not exchange server-side")
		}
	})

	t.Run("unknown state with fallback", func(t *testing.T) {
		rig := setupTestRelayService(t, nil)
		msg := rig.svc.Callback(context.Background(), domain.CallbackInput{Code: "xyz", State: "elsewhere", RequestBase: testRequestBase})
		if msg.Kind != domain.MessageHandBack {
			t.Fatalf("Kind = %v, want hand-back", msg.Kind)
		}
	})

	t.Run("unknown state with secret", func(t *testing.T) {
		rig := setupTestRelayService(t, func(cfg *config.Config) { cfg.GitHub.ClientSecret = "shh" })
		msg := rig.svc.Callback(context.Background(), domain.CallbackInput{Code: "xyz", State: "elsewhere", RequestBase: testRequestBase})
		if msg.Kind != domain.MessageHandBack {
			t.Fatalf("Kind = %v, want hand-back", msg.Kind)
		}
		if len(rig.exchanger.calls) != 0 {
			t.Errorf("calls = %+v, want no exchange for an unverifiable state", rig.exchanger.calls)
		}
	})
}

func TestRelayService_Callback_UnknownStateNeverExchanges(t *testing.T) {
	rig := setupTestRelayService(t, func(cfg *config.Config) {
		cfg.GitHub.ClientSecret = "shh"
		cfg.OAuth.BrowserExchangeFallback = false
	})

	msg := rig.svc.Callback(context.Background(), domain.CallbackInput{Code: "attacker_code", State: "never-issued", RequestBase: testRequestBase})
	if msg.Kind != domain.MessageError || msg.Error != domain.CodeInvalidGrant {
		t.Errorf("msg = %+v, want invalid_grant error", msg)
	}
	if msg.Token != nil {
		t.Error("unknown state produced a token")
	}
	if len(rig.exchanger.calls) != 0 {
		t.Errorf("calls = %+v, want none", rig.exchanger.calls)
	}
}

func TestRelayService_Callback_PurgedExpiredState(t *testing.T) {
	rig := setupTestRelayService(t, func(cfg *config.Config) {
		cfg.State.TTL = time.Minute
		cfg.GitHub.ClientSecret = "shh"
		cfg.OAuth.BrowserExchangeFallback = false
	})
	ctx := context.Background()

	rig.svc.now = func() time.Time { return time.Now().UTC().Add(-2 * time.Minute) }
	rig.svc.Authorize(ctx, domain.AuthorizeInput{State: "abc", RequestBase: testRequestBase})

	removed, err := rig.store.Purge(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("Purge() = %d, %v; want 1, nil", removed, err)
	}

	msg := rig.svc.Callback(ctx, domain.CallbackInput{Code: "xyz", State: "abc", RequestBase: testRequestBase})
	if msg.Error != domain.CodeInvalidGrant {
		t.Errorf("Error = %q, want invalid_grant", msg.Error)
	}
	if len(rig.exchanger.calls) != 0 {
		t.Error("purged state must not reach GitHub")
	}
}

func TestRelayService_ExchangeToken(t *testing.T) {
	rig := setupTestRelayService(t, nil)

	tok, err := rig.svc.ExchangeToken(context.Background(), domain.TokenInput{
		Code: "xyz", CodeVerifier: testVerifier, RequestBase: testRequestBase,
	})
	if err != nil {
		t.Fatalf("ExchangeToken() error = %v", err)
	}
	if tok.AccessToken != "tok_123" {
		t.Errorf("AccessToken = %q", tok.AccessToken)
	}
	call := rig.exchanger.calls[0]
	if call.Verifier != testVerifier {
		t.Errorf("Verifier = %q, want client verifier", call.Verifier)
	}
	if call.RedirectURI != testCallbackURL {
		t.Errorf("RedirectURI = %q", call.RedirectURI)
	}
}

func TestRelayService_ExchangeToken_StoredVerifierWins(t *testing.T) {
	rig := setupTestRelayService(t, nil)
	ctx := context.Background()

	rig.svc.Authorize(ctx, domain.AuthorizeInput{State: "abc", RequestBase: testRequestBase})
	if _, err := rig.svc.ExchangeToken(ctx, domain.TokenInput{
		Code: "xyz", State: "abc", CodeVerifier: testVerifier, RequestBase: testRequestBase,
	}); err != nil {
		t.Fatalf("ExchangeToken() error = %v", err)
	}
	if rig.exchanger.calls[0].Verifier == testVerifier {
		t.Error("stored verifier must take precedence over the client's")
	}

	_, err := rig.svc.ExchangeToken(ctx, domain.TokenInput{Code: "xyz", State: "abc", CodeVerifier: testVerifier, RequestBase: testRequestBase})
	assertCode(t, err, domain.CodeInvalidGrant)
}

func TestRelayService_ExchangeToken_ClientChallengeMismatch(t *testing.T) {
	rig := setupTestRelayService(t, nil)
	ctx := context.Background()

	rig.svc.Authorize(ctx, domain.AuthorizeInput{
		State: "abc", CodeChallenge: testChallenge, CodeChallengeMethod: "S256", RequestBase: testRequestBase,
	})
	wrongVerifier := pkce.NewVerifier()

	_, err := rig.svc.ExchangeToken(ctx, domain.TokenInput{Code: "xyz", State: "abc", CodeVerifier: wrongVerifier, RequestBase: testRequestBase})
	assertCode(t, err, domain.CodeInvalidGrant)
	if len(rig.exchanger.calls) != 0 {
		t.Error("mismatched verifier must not reach GitHub")
	}
}

func TestRelayService_ExchangeToken_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
		in     domain.TokenInput
		want   string
	}{
		{
			name:   "missing client id",
			mutate: func(cfg *config.Config) { cfg.GitHub.ClientID = "" },
			in:     domain.TokenInput{Code: "xyz", CodeVerifier: testVerifier},
			want:   domain.CodeMissingClientID,
		},
		{
			name: "missing code",
			in:   domain.TokenInput{CodeVerifier: testVerifier},
			want: domain.CodeInvalidRequest,
		},
		{
			name: "foreign redirect uri",
			in:   domain.TokenInput{Code: "xyz", CodeVerifier: testVerifier, RedirectURI: "https://evil.example.com/cb"},
			want: domain.CodeInvalidRequest,
		},
		{
			name: "malformed verifier",
			in:   domain.TokenInput{Code: "xyz", CodeVerifier: "too-short"},
			want: domain.CodeInvalidRequest,
		},
		{
			name: "state differs from cookie",
			in:   domain.TokenInput{Code: "xyz", CodeVerifier: testVerifier, State: "abc", StateCookie: "def"},
			want: domain.CodeInvalidGrant,
		},
		{
			name: "no verifier and no secret",
			in:   domain.TokenInput{Code: "xyz"},
			want: domain.CodeInvalidGrant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := setupTestRelayService(t, tt.mutate)
			tt.in.RequestBase = testRequestBase

			_, err := rig.svc.ExchangeToken(context.Background(), tt.in)
			assertCode(t, err, tt.want)
			if len(rig.exchanger.calls) != 0 {
				t.Errorf("exchanges = %d, want none", len(rig.exchanger.calls))
			}
		})
	}
}

func TestRelayService_ExchangeToken_Secret(t *testing.T) {
	rig := setupTestRelayService(t, func(cfg *config.Config) { cfg.GitHub.ClientSecret = "shh" })

	if _, err := rig.svc.ExchangeToken(context.Background(), domain.TokenInput{Code: "xyz", RequestBase: testRequestBase}); err != nil {
		t.Fatalf("ExchangeToken() error = %v", err)
	}
	if rig.exchanger.calls[0].Verifier != "" {
		t.Error("secret exchange must not carry a verifier")
	}
}

func TestRelayService_ExchangeToken_UpstreamError(t *testing.T) {
	rig := setupTestRelayService(t, nil)
	rig.exchanger.err = domain.WrapServerError(errors.New("connection reset"))

	_, err := rig.svc.ExchangeToken(context.Background(), domain.TokenInput{Code: "xyz", CodeVerifier: testVerifier, RequestBase: testRequestBase})
	assertCode(t, err, domain.CodeServerError)
	if domain.PublicMessage(err) == "connection reset" {
		t.Error("transport detail leaked into the public message")
	}
}
