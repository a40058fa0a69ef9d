package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/dapoteju/beamer-mono-sub001/internal/models"
	appErrors "github.com/dapoteju/beamer-mono-sub001/pkg/errors"
)

type stubValidator map[string]*models.JWTClaims

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := s[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

func newProtectedRouter(roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	tokens := stubValidator{
		"admin-token":  {UserID: "u-1", Role: models.RoleAdmin},
		"viewer-token": {UserID: "u-2", Role: models.RoleViewer},
	}
	router := gin.New()
	router.Use(JWT(tokens))
	router.GET("/groups", RequireRoles(roles...), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	router := newProtectedRouter(models.RoleAdmin)

	for _, header := range []string{"", "Token admin-token", "Bearer nope"} {
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/groups", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		router.ServeHTTP(recorder, req)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: unexpected status %d", header, recorder.Code)
		}
	}
}

func TestJWTAndRolesAllowAdmin(t *testing.T) {
	router := newProtectedRouter(models.RoleAdmin, models.RolePublisher)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/groups", nil)
	req.Header.Set("Authorization", "bearer admin-token")
	router.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestRequireRolesForbidsViewer(t *testing.T) {
	router := newProtectedRouter(models.RoleAdmin, models.RolePublisher)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/groups", nil)
	req.Header.Set("Authorization", "Bearer viewer-token")
	router.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}
