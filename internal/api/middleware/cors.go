package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig controls cross-origin access to the intake API.
type CORSConfig struct {
	AllowedOrigins  []string
	AllowAllOrigins bool
}

// CORS grants browser clients cross-origin access to the upload and polling
// endpoints. The API surface is GET and POST only.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		h := c.Writer.Header()
		switch {
		case cfg.AllowAllOrigins:
			// Wildcard origins cannot carry credentials.
			h.Set("Access-Control-Allow-Origin", "*")
			h.Set("Access-Control-Allow-Credentials", "false")
		case IsOriginAllowed(origin, cfg):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
		default:
			// Disallowed origin: send no CORS headers and let the
			// browser enforce the block.
			c.Next()
			return
		}

		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Origin, Cache-Control, X-Requested-With")
		h.Set("Access-Control-Expose-Headers", "Content-Length, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// IsOriginAllowed reports whether origin may access the API under cfg.
func IsOriginAllowed(origin string, cfg CORSConfig) bool {
	if cfg.AllowAllOrigins {
		return true
	}
	if origin == "" {
		return false
	}
	for _, allowed := range cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}
