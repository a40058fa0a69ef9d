package models

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the JWT payload for access tokens issued by the identity service.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	OrgID    string   `json:"org_id,omitempty"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// IsPlatformAdmin reports whether the caller may act across organisations.
func (c *JWTClaims) IsPlatformAdmin() bool {
	return c != nil && (c.Role == RoleSuperAdmin || c.Role == RoleAdmin)
}

// HasValidScope is false for a publisher whose token names no org. Such a caller
// must be refused: an empty scope would otherwise read as platform-wide.
func (c *JWTClaims) HasValidScope() bool {
	if c == nil {
		return false
	}
	return c.Role != RolePublisher || strings.TrimSpace(c.OrgID) != ""
}

// ScopedOrgID returns the org a publisher is confined to, or "" for unscoped roles.
// Callers check HasValidScope first.
func (c *JWTClaims) ScopedOrgID() string {
	if c == nil || c.Role != RolePublisher {
		return ""
	}
	return c.OrgID
}

// CanManageGroups reports whether the caller may mutate screen groups.
func (c *JWTClaims) CanManageGroups() bool {
	if c == nil {
		return false
	}
	switch c.Role {
	case RoleSuperAdmin, RoleAdmin:
		return true
	case RolePublisher:
		return c.HasValidScope()
	}
	return false
}
