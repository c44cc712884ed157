package http

import (
	"net/http"

	"github.com/cmsrelay/internal/apipaths"
	"github.com/cmsrelay/internal/domain"
	"github.com/gin-gonic/gin"
)

// setupRoutes configures all relay routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.engine.GET(apipaths.Health, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "cmsrelay",
		})
	})

	base := s.config.OAuth.BasePath
	oauth := s.engine.Group(base)
	{
		oauth.GET(apipaths.ClientID, s.getClientID)

		// Decap CMS calls /auth, other clients /authorize
		for _, p := range []string{apipaths.Authorize, apipaths.Auth} {
			oauth.GET(p, s.authorize)
			oauth.POST(p, s.authorize)
		}

		oauth.GET(apipaths.Callback, s.callback)
		oauth.POST(apipaths.AccessToken, s.accessToken)
	}

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": domain.CodeNotFound,
			"path":  c.Request.URL.Path,
		})
	})
}
