package constants

import "time"

// Cookie names shared by the authorize and callback handlers
const (
	StateCookieName  = "cms_oauth_state"
	TicketCookieName = "cms_pkce_v"
)

// State store kinds
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreCookie = "cookie"
)

// Relay message formats
const (
	MessageFormatCanonical = "canonical"
	MessageFormatLegacy    = "legacy"
)

// postMessage contract consumed by the CMS front-end
const (
	Provider           = "github"
	MessageSource      = "decap-cms"
	MessageTypeSuccess = "authorization:github:success"
	MessageTypeError   = "authorization:github:error"
	WildcardOrigin     = "*"
)

// GitHub OAuth defaults
const (
	GitHubAuthorizeURL  = "https://github.com/login/oauth/authorize"
	GitHubTokenURL      = "https://github.com/login/oauth/access_token"
	DefaultScope        = "repo,read:user,user:email"
	ChallengeMethodS256 = "S256"
)

// MaxStateTTL bounds how long an authorize request may wait for its callback
const MaxStateTTL = 10 * time.Minute
