package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oasis-water/oasis-backend/internal/common"
	"github.com/oasis-water/oasis-backend/internal/server/models"
	"github.com/oasis-water/oasis-backend/internal/server/services"
)

const identityKey = "identity"

// authRequired verifies the Bearer access token and stores the resolved
// identity in the request context.
func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		identity, err := s.sessions.VerifyAccess(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// requireRole gates a route group on the authenticated user's role.
func (s *Server) requireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if identity(c).Role != role {
			abortWithError(c, common.ErrForbidden)
			return
		}
		c.Next()
	}
}

// identity returns the identity stored by authRequired. Routes behind the
// middleware can rely on it being present.
func identity(c *gin.Context) *services.Identity {
	return c.MustGet(identityKey).(*services.Identity)
}
