package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dapoteju/beamer-mono-sub001/internal/middleware"
	"github.com/dapoteju/beamer-mono-sub001/internal/models"
	"github.com/dapoteju/beamer-mono-sub001/internal/service"
	appErrors "github.com/dapoteju/beamer-mono-sub001/pkg/errors"
	"github.com/dapoteju/beamer-mono-sub001/pkg/response"
)

type targetingService interface {
	Preview(ctx context.Context, req service.TargetingPreviewRequest, actor *models.JWTClaims) (*models.EligibilityPreview, error)
}

type groupHealthService interface {
	GetHealth(ctx context.Context, groupID string, actor *models.JWTClaims) (*models.GroupHealth, bool, error)
}

type groupFlightService interface {
	ListForGroup(ctx context.Context, groupID string, actor *models.JWTClaims) ([]models.Flight, error)
}

// TargetingHandler serves read-side views used by campaign targeting.
type TargetingHandler struct {
	targeting targetingService
	health    groupHealthService
	flights   groupFlightService
}

// NewTargetingHandler constructs a targeting handler.
func NewTargetingHandler(targeting targetingService, health groupHealthService, flights groupFlightService) *TargetingHandler {
	return &TargetingHandler{targeting: targeting, health: health, flights: flights}
}

// Preview godoc
// @Summary Preview eligible screens for selected groups
// @Tags Targeting
// @Accept json
// @Produce json
// @Param payload body service.TargetingPreviewRequest true "Selected groups"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /screen-groups/targeting-preview [post]
func (h *TargetingHandler) Preview(c *gin.Context) {
	var req service.TargetingPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid targeting preview payload"))
		return
	}
	preview, err := h.targeting.Preview(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

// Health godoc
// @Summary Screen group health rollup
// @Tags Targeting
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /screen-groups/{id}/health [get]
func (h *TargetingHandler) Health(c *gin.Context) {
	health, hit, err := h.health.GetHealth(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, health, nil, middleware.ExtractMeta(c))
}

// Flights godoc
// @Summary Flights targeting a screen group
// @Tags Targeting
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /screen-groups/{id}/flights [get]
func (h *TargetingHandler) Flights(c *gin.Context) {
	flights, err := h.flights.ListForGroup(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, flights, nil)
}
