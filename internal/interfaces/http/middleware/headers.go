package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CORSConfig lists who may call the admin API from a browser. An empty
// Origins list disables cross-origin access; "*" allows any origin.
type CORSConfig struct {
	Origins []string
	Methods []string
	Headers []string
	MaxAge  time.Duration
}

var (
	defaultCORSMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	defaultCORSHeaders = []string{"Content-Type", "Accept", RequestIDHeader, TenantHeaderKey}
)

// CORS answers preflights with 204 and echoes allowed origins. Credentials
// are never combined with the wildcard.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	if len(cfg.Methods) == 0 {
		cfg.Methods = defaultCORSMethods
	}
	if len(cfg.Headers) == 0 {
		cfg.Headers = defaultCORSHeaders
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 12 * time.Hour
	}
	wildcard := slices.Contains(cfg.Origins, "*")
	methods := strings.Join(cfg.Methods, ", ")
	headers := strings.Join(cfg.Headers, ", ")
	maxAge := strconv.Itoa(int(cfg.MaxAge.Seconds()))

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		h := c.Writer.Header()
		switch {
		case origin == "":
		case wildcard:
			h.Set("Access-Control-Allow-Origin", "*")
		case slices.Contains(cfg.Origins, origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		default:
			origin = ""
		}
		if origin != "" {
			h.Set("Access-Control-Expose-Headers", RequestIDHeader)
		}

		if c.Request.Method == http.MethodOptions {
			if origin != "" {
				h.Set("Access-Control-Allow-Methods", methods)
				h.Set("Access-Control-Allow-Headers", headers)
				h.Set("Access-Control-Max-Age", maxAge)
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestID propagates X-Request-ID, minting a UUID when the caller sent
// none or one longer than MaxRequestIDLength.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > MaxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// APIHeaders sets the response headers for a JSON-only API that is never
// framed or rendered by a browser.
func APIHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		c.Next()
	}
}
