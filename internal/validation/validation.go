package validation

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/cmsrelay/internal/constants"
)

var (
	// stateRegex accepts the URL-safe characters browsers and CMS clients put in state values
	stateRegex = regexp.MustCompile(`^[A-Za-z0-9._~+/=:-]+$`)

	// verifierRegex is the RFC 7636 unreserved character set
	verifierRegex = regexp.MustCompile(`^[A-Za-z0-9._~-]+$`)

	// challengeRegex is an unpadded base64url SHA-256 digest
	challengeRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`)
)

const (
	maxStateLength    = 512
	minVerifierLength = 43
	maxVerifierLength = 128
)

// ValidateState validates a caller-supplied CSRF state value
func ValidateState(state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if len(state) > maxStateLength {
		return fmt.Errorf("state must be %d characters or less", maxStateLength)
	}
	if !stateRegex.MatchString(state) {
		return errors.New("state contains unsupported characters")
	}
	return nil
}

// ValidateCodeVerifier validates a PKCE code verifier per RFC 7636 section 4.1
func ValidateCodeVerifier(verifier string) error {
	if len(verifier) < minVerifierLength || len(verifier) > maxVerifierLength {
		return fmt.Errorf("code_verifier must be between %d and %d characters", minVerifierLength, maxVerifierLength)
	}
	if !verifierRegex.MatchString(verifier) {
		return errors.New("code_verifier contains unsupported characters")
	}
	return nil
}

// ValidateCodeChallenge validates a caller-supplied S256 challenge and its method.
// The plain method is refused, and so is an omitted one since RFC 7636 defaults it to plain.
func ValidateCodeChallenge(challenge, method string) error {
	if method != constants.ChallengeMethodS256 {
		return fmt.Errorf("code_challenge_method must be %s", constants.ChallengeMethodS256)
	}
	if !challengeRegex.MatchString(challenge) {
		return errors.New("code_challenge must be a 43 character base64url SHA-256 digest")
	}
	return nil
}

// NormalizeOrigin turns an origin hint into scheme://host[:port].
// A bare host (the form Decap CMS sends as site_id) gets https, or http for loopback hosts.
func NormalizeOrigin(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("origin cannot be empty")
	}

	if !strings.Contains(raw, "://") {
		scheme := "https"
		if isLoopback(raw) {
			scheme = "http"
		}
		raw = scheme + "://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid origin: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("origin must use http or https")
	}
	if u.Host == "" || u.User != nil {
		return "", errors.New("origin must be scheme://host[:port]")
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return "", errors.New("origin cannot carry a path, query or fragment")
	}

	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}

func isLoopback(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
