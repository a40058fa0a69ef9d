package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dapoteju/beamer-mono-sub001/internal/middleware"
	"github.com/dapoteju/beamer-mono-sub001/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, _ := middleware.ClaimsFromContext(c)
	return claims
}

func parseQueryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}
