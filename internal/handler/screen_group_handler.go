package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dapoteju/beamer-mono-sub001/internal/models"
	"github.com/dapoteju/beamer-mono-sub001/internal/service"
	appErrors "github.com/dapoteju/beamer-mono-sub001/pkg/errors"
	"github.com/dapoteju/beamer-mono-sub001/pkg/response"
)

type screenGroupService interface {
	List(ctx context.Context, req service.ListScreenGroupsRequest, actor *models.JWTClaims) ([]models.ScreenGroup, int, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ScreenGroupDetail, error)
	Create(ctx context.Context, req service.CreateScreenGroupRequest, actor *models.JWTClaims) (*models.ScreenGroup, error)
	Update(ctx context.Context, id string, req service.UpdateScreenGroupRequest, actor *models.JWTClaims) (*models.ScreenGroup, error)
	Archive(ctx context.Context, id string, actor *models.JWTClaims) (*models.ScreenGroup, error)
	Unarchive(ctx context.Context, id string, actor *models.JWTClaims) (*models.ScreenGroup, error)
	Delete(ctx context.Context, id string, force bool, actor *models.JWTClaims) error
	ListForScreen(ctx context.Context, screenID string, actor *models.JWTClaims) ([]models.ScreenGroup, error)
	ListAvailableForScreen(ctx context.Context, screenID string, actor *models.JWTClaims) ([]models.ScreenGroup, error)
}

// ScreenGroupHandler exposes screen group CRUD endpoints.
type ScreenGroupHandler struct {
	service screenGroupService
}

// NewScreenGroupHandler builds a new handler.
func NewScreenGroupHandler(service screenGroupService) *ScreenGroupHandler {
	return &ScreenGroupHandler{service: service}
}

// List godoc
// @Summary List screen groups
// @Tags ScreenGroups
// @Produce json
// @Param org_id query string false "Publisher org"
// @Param q query string false "Search name or description"
// @Param archived query bool false "Return archived groups instead of active ones"
// @Success 200 {object} response.Envelope
// @Router /screen-groups [get]
func (h *ScreenGroupHandler) List(c *gin.Context) {
	req := service.ListScreenGroupsRequest{
		OrgID: c.Query("org_id"),
		Query: c.Query("q"),
	}
	if raw := c.Query("archived"); raw != "" {
		archived, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "archived must be a boolean"))
			return
		}
		req.Archived = &archived
	}
	groups, count, err := h.service.List(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil, map[string]interface{}{"count": count})
}

// Get godoc
// @Summary Get screen group
// @Tags ScreenGroups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /screen-groups/{id} [get]
func (h *ScreenGroupHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Create screen group
// @Tags ScreenGroups
// @Accept json
// @Produce json
// @Param payload body service.CreateScreenGroupRequest true "Group payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /screen-groups [post]
func (h *ScreenGroupHandler) Create(c *gin.Context) {
	var req service.CreateScreenGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid screen group payload"))
		return
	}
	group, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// Update godoc
// @Summary Update screen group
// @Tags ScreenGroups
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body service.UpdateScreenGroupRequest true "Partial update"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /screen-groups/{id} [patch]
func (h *ScreenGroupHandler) Update(c *gin.Context) {
	var req service.UpdateScreenGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid screen group payload"))
		return
	}
	group, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Archive godoc
// @Summary Archive screen group
// @Tags ScreenGroups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /screen-groups/{id}/archive [post]
func (h *ScreenGroupHandler) Archive(c *gin.Context) {
	group, err := h.service.Archive(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Unarchive godoc
// @Summary Restore an archived screen group
// @Tags ScreenGroups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /screen-groups/{id}/unarchive [post]
func (h *ScreenGroupHandler) Unarchive(c *gin.Context) {
	group, err := h.service.Unarchive(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Delete godoc
// @Summary Delete screen group
// @Tags ScreenGroups
// @Param id path string true "Group ID"
// @Param force query bool false "Delete even when the group has members"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /screen-groups/{id} [delete]
func (h *ScreenGroupHandler) Delete(c *gin.Context) {
	force := false
	if raw := c.Query("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "force must be a boolean"))
			return
		}
		force = parsed
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), force, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListForScreen godoc
// @Summary Groups a screen belongs to
// @Tags Screens
// @Produce json
// @Param id path string true "Screen ID"
// @Success 200 {object} response.Envelope
// @Router /screens/{id}/screen-groups [get]
func (h *ScreenGroupHandler) ListForScreen(c *gin.Context) {
	groups, err := h.service.ListForScreen(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// ListAvailableForScreen godoc
// @Summary Groups a screen can still join
// @Tags Screens
// @Produce json
// @Param id path string true "Screen ID"
// @Success 200 {object} response.Envelope
// @Router /screens/{id}/available-screen-groups [get]
func (h *ScreenGroupHandler) ListAvailableForScreen(c *gin.Context) {
	groups, err := h.service.ListAvailableForScreen(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}
