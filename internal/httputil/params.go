package httputil

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// BindParams fills dst from the query string, then overlays a JSON or form-encoded
// body so body values win over query values.
func BindParams(c *gin.Context, dst any) error {
	if err := c.ShouldBindQuery(dst); err != nil {
		return fmt.Errorf("invalid query parameters: %w", err)
	}

	if c.Request.Method == http.MethodGet || c.Request.ContentLength == 0 {
		return nil
	}

	switch c.ContentType() {
	case binding.MIMEJSON:
		if err := c.ShouldBindJSON(dst); err != nil {
			return fmt.Errorf("invalid JSON body: %w", err)
		}
	case binding.MIMEPOSTForm:
		// binding.FormPost would re-read the query too; only the body belongs here
		if err := c.Request.ParseForm(); err != nil {
			return fmt.Errorf("invalid form body: %w", err)
		}
		if err := binding.MapFormWithTag(dst, c.Request.PostForm, "form"); err != nil {
			return fmt.Errorf("invalid form body: %w", err)
		}
	}
	return nil
}

// RequestBase returns scheme://host as the client saw it. X-Forwarded-Proto and
// X-Forwarded-Host are only honoured when trustProxy is set.
func RequestBase(c *gin.Context, trustProxy bool) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	host := c.Request.Host

	if trustProxy {
		if proto := firstHeaderValue(c.GetHeader("X-Forwarded-Proto")); proto != "" {
			scheme = strings.ToLower(proto)
		}
		if fwdHost := firstHeaderValue(c.GetHeader("X-Forwarded-Host")); fwdHost != "" {
			host = fwdHost
		}
	}

	return scheme + "://" + host
}

// firstHeaderValue takes the client-most entry of a comma separated proxy header
func firstHeaderValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
