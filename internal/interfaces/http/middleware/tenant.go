package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/synchub/backend/internal/infrastructure/logger"
	"github.com/synchub/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Tenant context keys
const (
	TenantIDKey     = "tenant_id"
	TenantHeaderKey = "X-Tenant-ID"
)

// TenantMiddlewareConfig holds configuration for tenant middleware
type TenantMiddlewareConfig struct {
	// SkipPaths are paths that don't require tenant context (e.g., health check)
	SkipPaths []string
	// Required determines if tenant context is mandatory
	Required bool
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultTenantConfig returns default tenant middleware configuration
func DefaultTenantConfig() TenantMiddlewareConfig {
	return TenantMiddlewareConfig{
		SkipPaths: []string{"/health", "/healthz", "/ready", "/api/v1/health"},
		Required:  true,
	}
}

// TenantMiddleware reads the tenant from the X-Tenant-ID header
func TenantMiddleware() gin.HandlerFunc {
	return TenantMiddlewareWithConfig(DefaultTenantConfig())
}

// TenantMiddlewareWithConfig returns tenant middleware with custom configuration
func TenantMiddlewareWithConfig(cfg TenantMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath || strings.HasPrefix(path, skipPath+"/") {
				c.Next()
				return
			}
		}

		raw := strings.TrimSpace(c.GetHeader(TenantHeaderKey))
		if raw == "" {
			if cfg.Required {
				respondUnauthorized(c, "Tenant identification required")
				return
			}
			c.Next()
			return
		}

		tenantID, err := uuid.Parse(raw)
		if err != nil {
			if cfg.Logger != nil {
				cfg.Logger.Debug("Rejected tenant header", zap.String("value", truncateHeader(raw)))
			}
			respondUnauthorized(c, "Invalid tenant ID format")
			return
		}

		c.Set(TenantIDKey, tenantID)
		ctx := logger.WithTenantID(c.Request.Context(), tenantID.String())
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// respondUnauthorized sends an unauthorized response
func respondUnauthorized(c *gin.Context, message string) {
	resp := dto.NewErrorResponseWithRequestID(dto.ErrCodeUnauthorized, message, c.GetString(RequestIDKey))
	c.AbortWithStatusJSON(http.StatusUnauthorized, resp)
}

// GetTenantID retrieves the tenant ID from gin.Context, or uuid.Nil
func GetTenantID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(TenantIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// MustGetTenantID retrieves the tenant ID or panics if not found
// Use this only in handlers where tenant is guaranteed to exist
func MustGetTenantID(c *gin.Context) uuid.UUID {
	id := GetTenantID(c)
	if id == uuid.Nil {
		panic("tenant_id not found in context")
	}
	return id
}

func truncateHeader(s string) string {
	if len(s) > MaxTenantIDLength {
		return s[:MaxTenantIDLength]
	}
	return s
}
