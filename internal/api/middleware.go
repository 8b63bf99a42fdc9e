package api

import (
	"net/http"

	"storefront/internal/auth"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// sessionMiddleware resolves the session cookie into an identity. A missing
// or invalid cookie leaves the request anonymous.
func (h *Handler) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(h.cookies.SessionName)
		if err == nil && token != "" {
			if identity, err := h.accounts.Authenticate(token); err == nil {
				c.Set(identityKey, identity)
			}
		}
		c.Next()
	}
}

// identityFrom returns the resolved caller, or nil for anonymous requests
func identityFrom(c *gin.Context) *auth.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, _ := v.(*auth.Identity)
	return identity
}

func requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if identityFrom(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := identityFrom(c)
		if identity == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		if !identity.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden: Admin access required."})
			return
		}
		c.Next()
	}
}
