package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/dapoteju/beamer-mono-sub001/internal/models"
	appErrors "github.com/dapoteju/beamer-mono-sub001/pkg/errors"
	"github.com/dapoteju/beamer-mono-sub001/pkg/response"
)

// RequireRoles admits callers whose role is listed. Publisher tokens without an
// org are refused even when the publisher role is listed.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return authorize(func(claims *models.JWTClaims) bool {
		_, ok := allowed[claims.Role]
		return ok && claims.HasValidScope()
	})
}

// RequireGroupManager admits callers allowed to mutate screen groups.
func RequireGroupManager() gin.HandlerFunc {
	return authorize(func(claims *models.JWTClaims) bool {
		return claims.CanManageGroups()
	})
}

func authorize(allow func(*models.JWTClaims) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !allow(claims) {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
