package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cmsrelay/internal/constants"
)

// Config holds the application configuration
type Config struct {
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:":8080"`
	Environment   string `env:"APP_ENV" envDefault:"production"`
	LogJSON       string `env:"LOG_JSON"`
	GitHub        GitHubOAuthConfig
	OAuth         OAuthConfig
	State         StateConfig
	Auth          AuthConfig
	CORS          CORSConfig
}

// GitHubOAuthConfig holds GitHub OAuth configuration
type GitHubOAuthConfig struct {
	ClientID        string        `env:"GITHUB_CLIENT_ID"`
	ClientSecret    string        `env:"GITHUB_CLIENT_SECRET"`
	AuthorizeURL    string        `env:"GITHUB_AUTHORIZE_URL" envDefault:"https://github.com/login/oauth/authorize"`
	TokenURL        string        `env:"GITHUB_TOKEN_URL" envDefault:"https://github.com/login/oauth/access_token"`
	AllowSignup     bool          `env:"GITHUB_ALLOW_SIGNUP" envDefault:"true"`
	ExchangeTimeout time.Duration `env:"TOKEN_EXCHANGE_TIMEOUT" envDefault:"5s"`
}

// OAuthConfig holds the relay surface configuration
type OAuthConfig struct {
	BasePath                string `env:"OAUTH_BASE_PATH" envDefault:"/oauth"`
	PublicCallbackBase      string `env:"PUBLIC_CALLBACK_BASE"`                   // Externally visible base URL (e.g. https://cms.example.com). Set it in production
	TrustProxyHeaders       bool   `env:"TRUST_PROXY_HEADERS" envDefault:"false"` // Derive the callback base from X-Forwarded-* when PUBLIC_CALLBACK_BASE is unset
	Scope                   string `env:"OAUTH_SCOPE" envDefault:"repo,read:user,user:email"`
	MessageFormat           string `env:"MESSAGE_FORMAT" envDefault:"canonical"`
	BrowserExchangeFallback bool   `env:"BROWSER_EXCHANGE_FALLBACK" envDefault:"true"`
}

// StateConfig holds AuthRequest persistence configuration
type StateConfig struct {
	Store         string        `env:"STATE_STORE" envDefault:"memory"`
	DatabasePath  string        `env:"STATE_DATABASE_PATH" envDefault:"./data/oauth_state.db"`
	SigningSecret string        `env:"STATE_SIGNING_SECRET"`
	TTL           time.Duration `env:"STATE_TTL" envDefault:"10m"`
	PurgeInterval time.Duration `env:"STATE_PURGE_INTERVAL" envDefault:"1m"`
}

// AuthConfig holds cookie configuration for the state binding cookies
type AuthConfig struct {
	SecureCookie   bool   `env:"AUTH_SECURE_COOKIE" envDefault:"true"`
	CookieSameSite string `env:"AUTH_COOKIE_SAMESITE" envDefault:"lax"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.GitHub.ClientID = strings.TrimSpace(cfg.GitHub.ClientID)
	cfg.GitHub.ClientSecret = strings.TrimSpace(cfg.GitHub.ClientSecret)
	cfg.OAuth.BasePath = normalizeBasePath(cfg.OAuth.BasePath)
	cfg.OAuth.PublicCallbackBase = strings.TrimRight(strings.TrimSpace(cfg.OAuth.PublicCallbackBase), "/")
	cfg.State.Store = strings.ToLower(strings.TrimSpace(cfg.State.Store))
	cfg.OAuth.MessageFormat = strings.ToLower(strings.TrimSpace(cfg.OAuth.MessageFormat))
	cfg.Auth.CookieSameSite = strings.ToLower(strings.TrimSpace(cfg.Auth.CookieSameSite))
	cfg.CORS.AllowedOrigins = parseOrigins(cfg.CORS.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects combinations the relay cannot run safely with.
// A missing client id is reported per request instead.
func (c *Config) Validate() error {
	switch c.State.Store {
	case constants.StoreMemory, constants.StoreSQLite:
	case constants.StoreCookie:
		if c.State.SigningSecret == "" {
			return errors.New("STATE_SIGNING_SECRET is required when STATE_STORE=cookie")
		}
	default:
		return fmt.Errorf("unknown STATE_STORE %q", c.State.Store)
	}

	switch c.OAuth.MessageFormat {
	case constants.MessageFormatCanonical, constants.MessageFormatLegacy:
	default:
		return fmt.Errorf("unknown MESSAGE_FORMAT %q", c.OAuth.MessageFormat)
	}

	switch c.Auth.CookieSameSite {
	case "lax":
	case "none":
		if !c.Auth.SecureCookie {
			return errors.New("AUTH_COOKIE_SAMESITE=none requires AUTH_SECURE_COOKIE=true")
		}
	default:
		return fmt.Errorf("unknown AUTH_COOKIE_SAMESITE %q", c.Auth.CookieSameSite)
	}

	if c.State.TTL <= 0 || c.State.TTL > constants.MaxStateTTL {
		return fmt.Errorf("STATE_TTL must be between 0 and %s", constants.MaxStateTTL)
	}
	if c.State.PurgeInterval <= 0 {
		return errors.New("STATE_PURGE_INTERVAL must be positive")
	}
	if c.GitHub.ExchangeTimeout <= 0 {
		return errors.New("TOKEN_EXCHANGE_TIMEOUT must be positive")
	}

	if c.OAuth.PublicCallbackBase != "" {
		u, err := url.Parse(c.OAuth.PublicCallbackBase)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("PUBLIC_CALLBACK_BASE must be an absolute URL, got %q", c.OAuth.PublicCallbackBase)
		}
	}

	return nil
}

// IsDevelopment reports whether the service runs with development defaults
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// JSONLogs reports whether logs should be JSON encoded.
// Defaults to JSON everywhere except development.
func (c *Config) JSONLogs() bool {
	if c.LogJSON != "" {
		return c.LogJSON == "true"
	}
	return !c.IsDevelopment()
}

// CallbackPath returns the path GitHub redirects back to
func (c *Config) CallbackPath() string {
	return c.OAuth.BasePath + "/callback"
}

// CallbackURL returns the absolute callback URL. The configured public base wins over
// the base derived from the incoming request.
func (c *Config) CallbackURL(requestBase string) string {
	base := c.OAuth.PublicCallbackBase
	if base == "" {
		base = strings.TrimRight(requestBase, "/")
	}
	return base + c.CallbackPath()
}

// OriginAllowed reports whether origin is one of the configured front-end origins
func (c *Config) OriginAllowed(origin string) bool {
	for _, allowed := range c.CORS.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// parseOrigins trims and lowercases entries and drops empty ones and trailing slashes
func parseOrigins(values []string) []string {
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimRight(strings.TrimSpace(v), "/"))
		if v != "" {
			result = append(result, v)
		}
	}
	return result
}
