package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) cookiePath() string {
	if s.config.OAuth.BasePath == "" {
		return "/"
	}
	return s.config.OAuth.BasePath
}

func (s *Server) sameSite() http.SameSite {
	if s.config.Auth.CookieSameSite == "none" {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// setCookie writes an HttpOnly state binding cookie scoped to the OAuth base path
func (s *Server) setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(s.sameSite())
	c.SetCookie(name, value, maxAge, s.cookiePath(), "", s.config.Auth.SecureCookie, true)
}

func (s *Server) clearCookie(c *gin.Context, name string) {
	c.SetSameSite(s.sameSite())
	c.SetCookie(name, "", -1, s.cookiePath(), "", s.config.Auth.SecureCookie, true)
}

// cookie returns the named cookie value, empty when absent
func (s *Server) cookie(c *gin.Context, name string) string {
	v, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return v
}
