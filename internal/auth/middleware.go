package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"rulegov/internal/logger"
	"rulegov/pkg/errors"
	"rulegov/pkg/logging"
)

const capabilitiesKey = "auth_capabilities"

// Middleware verifies the bearer token, stores the principal on the request
// context and resolves the effective capability set (token claims plus any
// cached grants).
func Middleware(verifier *Verifier, cache *CapabilityCache, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, errors.ErrUnauthorized.WithDetail("message", "missing authorization header"))
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			abort(c, errors.ErrUnauthorized.WithDetail("message", "authorization header must use the Bearer scheme"))
			return
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			log.DebugwCtx(c.Request.Context(), "Token rejected", "error", err)
			abort(c, err)
			return
		}

		capabilities := make(map[string]bool, len(claims.Capabilities))
		for _, cap := range claims.Capabilities {
			capabilities[cap] = true
		}
		for _, cap := range cache.Get(c.Request.Context(), claims.Subject) {
			capabilities[cap] = true
		}

		ctx := logging.WithPrincipal(c.Request.Context(), claims.Subject)
		c.Request = c.Request.WithContext(ctx)
		c.Set(capabilitiesKey, capabilities)
		c.Next()
	}
}

// RequireCapability guards a route group with one capability token.
func RequireCapability(capability string) gin.HandlerFunc {
	return func(c *gin.Context) {
		capabilities, ok := c.Get(capabilitiesKey)
		if !ok {
			abort(c, errors.ErrUnauthorized.WithDetail("message", "request is not authenticated"))
			return
		}
		if !capabilities.(map[string]bool)[capability] {
			abort(c, errors.ErrForbidden.WithDetail("required_capability", capability))
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}
