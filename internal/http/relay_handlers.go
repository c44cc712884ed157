package http

import (
	"net/http"
	"time"

	"github.com/cmsrelay/internal/constants"
	"github.com/cmsrelay/internal/domain"
	"github.com/cmsrelay/internal/httputil"
	"github.com/cmsrelay/internal/relay"
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the OAuth error body of the JSON endpoints
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ClientIDResponse is the body of the client id endpoint
type ClientIDResponse struct {
	ClientID string `json:"client_id"`
}

// getClientID returns the public OAuth client id
func (s *Server) getClientID(c *gin.Context) {
	id, err := s.relayService.ClientID(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ClientIDResponse{ClientID: id})
}

// authorize starts a popup login and redirects to GitHub
func (s *Server) authorize(c *gin.Context) {
	var in domain.AuthorizeInput
	if err := httputil.BindParams(c, &in); err != nil {
		s.logger.WarnContext(c.Request.Context(), "invalid authorize request", "error", err)
		s.writeError(c, domain.WrapInvalidRequest("malformed authorize parameters"))
		return
	}
	in.RequestBase = httputil.RequestBase(c, s.config.OAuth.TrustProxyHeaders)

	res, err := s.relayService.Authorize(c.Request.Context(), in)
	if err != nil {
		s.writeError(c, err)
		return
	}

	maxAge := int(time.Until(res.ExpiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = int(s.config.State.TTL.Seconds())
	}
	s.setCookie(c, constants.StateCookieName, res.State, maxAge)
	if res.Ticket != "" {
		s.setCookie(c, constants.TicketCookieName, res.Ticket, maxAge)
	}

	c.Redirect(http.StatusFound, res.RedirectURL)
}

// callback receives GitHub's redirect and answers with the relay page
func (s *Server) callback(c *gin.Context) {
	in := domain.CallbackInput{
		Code:             c.Query("code"),
		State:            c.Query("state"),
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
		StateCookie:      s.cookie(c, constants.StateCookieName),
		Ticket:           s.cookie(c, constants.TicketCookieName),
		RequestBase:      httputil.RequestBase(c, s.config.OAuth.TrustProxyHeaders),
	}

	msg := s.relayService.Callback(c.Request.Context(), in)

	// The binding cookies are single use whatever the outcome
	s.clearCookie(c, constants.StateCookieName)
	s.clearCookie(c, constants.TicketCookieName)

	page, err := relay.NewPage(msg)
	if err != nil {
		s.logger.ErrorContext(c.Request.Context(), "failed to build relay page", "error", err)
		c.String(http.StatusInternalServerError, "Authentication failed. Close this window and try again.")
		return
	}

	c.Header("Content-Security-Policy", page.ContentSecurityPolicy())
	c.HTML(http.StatusOK, relay.TemplateName, page)
}

// accessToken exchanges a code for the browser
func (s *Server) accessToken(c *gin.Context) {
	var in domain.TokenInput
	if err := httputil.BindParams(c, &in); err != nil {
		s.logger.WarnContext(c.Request.Context(), "invalid token request", "error", err)
		s.writeError(c, domain.WrapInvalidRequest("malformed token request body"))
		return
	}
	in.StateCookie = s.cookie(c, constants.StateCookieName)
	in.Ticket = s.cookie(c, constants.TicketCookieName)
	in.RequestBase = httputil.RequestBase(c, s.config.OAuth.TrustProxyHeaders)

	tok, err := s.relayService.ExchangeToken(c.Request.Context(), in)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, tok)
}

// writeError maps a domain error onto the OAuth JSON error body
func (s *Server) writeError(c *gin.Context, err error) {
	status := domain.StatusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(c.Request.Context(), "request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, ErrorResponse{
		Error:            domain.CodeOf(err),
		ErrorDescription: domain.PublicMessage(err),
	})
}
