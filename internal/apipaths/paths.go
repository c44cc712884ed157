package apipaths

// Relay surface paths. Suffixes are mounted under the configured OAuth base path.

const (
	ClientID    = "/client_id"
	Authorize   = "/authorize"
	Auth        = "/auth"
	Callback    = "/callback"
	AccessToken = "/access_token"
	Health      = "/health"
)

func ClientIDUnder(base string) string    { return base + ClientID }
func AuthorizeUnder(base string) string   { return base + Authorize }
func AuthUnder(base string) string        { return base + Auth }
func CallbackUnder(base string) string    { return base + Callback }
func AccessTokenUnder(base string) string { return base + AccessToken }
