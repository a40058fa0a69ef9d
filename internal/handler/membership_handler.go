package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dapoteju/beamer-mono-sub001/internal/models"
	"github.com/dapoteju/beamer-mono-sub001/internal/service"
	appErrors "github.com/dapoteju/beamer-mono-sub001/pkg/errors"
	"github.com/dapoteju/beamer-mono-sub001/pkg/response"
)

const defaultCSVMaxBytes int64 = 1 << 20

type membershipService interface {
	AddMembers(ctx context.Context, groupID string, req service.MemberIDsRequest, actor *models.JWTClaims) (*models.AddMembersResult, error)
	RemoveMembers(ctx context.Context, groupID string, req service.MemberIDsRequest, actor *models.JWTClaims) (*models.RemoveMembersResult, error)
	ReconcileCSV(ctx context.Context, groupID, text string, actor *models.JWTClaims) (*models.CSVReconcileResult, error)
	ListMembers(ctx context.Context, groupID string, req service.ListMembersRequest, actor *models.JWTClaims) ([]models.ScreenView, *models.Pagination, error)
	ExportMembers(ctx context.Context, groupID, format string, actor *models.JWTClaims) (*service.ExportedFile, error)
}

// MembershipHandler exposes group membership endpoints.
type MembershipHandler struct {
	service  membershipService
	maxBytes int64
}

// NewMembershipHandler builds a new handler. maxBytes caps CSV uploads.
func NewMembershipHandler(service membershipService, maxBytes int64) *MembershipHandler {
	if maxBytes <= 0 {
		maxBytes = defaultCSVMaxBytes
	}
	return &MembershipHandler{service: service, maxBytes: maxBytes}
}

type csvPayload struct {
	CSV string `json:"csv"`
}

// List godoc
// @Summary List group members
// @Tags ScreenGroupMembers
// @Produce json
// @Param id path string true "Group ID"
// @Param status query string false "online or offline"
// @Param city query string false "City"
// @Param region query string false "Region code"
// @Param q query string false "Search code or name"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /screen-groups/{id}/members [get]
func (h *MembershipHandler) List(c *gin.Context) {
	req := service.ListMembersRequest{
		Status:   c.Query("status"),
		City:     c.Query("city"),
		Region:   c.Query("region"),
		Query:    c.Query("q"),
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 25),
	}
	members, pagination, err := h.service.ListMembers(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, members, pagination)
}

// Add godoc
// @Summary Add screens to a group
// @Tags ScreenGroupMembers
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body service.MemberIDsRequest true "Screen ids"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /screen-groups/{id}/members [post]
func (h *MembershipHandler) Add(c *gin.Context) {
	var req service.MemberIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid members payload"))
		return
	}
	result, err := h.service.AddMembers(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Remove godoc
// @Summary Remove screens from a group
// @Tags ScreenGroupMembers
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body service.MemberIDsRequest true "Screen ids"
// @Success 200 {object} response.Envelope
// @Router /screen-groups/{id}/members [delete]
func (h *MembershipHandler) Remove(c *gin.Context) {
	var req service.MemberIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid members payload"))
		return
	}
	result, err := h.service.RemoveMembers(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// UploadCSV godoc
// @Summary Add members from a CSV upload
// @Description Accepts a text/csv body, a multipart "file" field or a JSON {"csv": "..."} payload.
// @Tags ScreenGroupMembers
// @Accept text/csv,multipart/form-data,json
// @Produce json
// @Param id path string true "Group ID"
// @Param file formData file false "CSV file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /screen-groups/{id}/members/csv [post]
func (h *MembershipHandler) UploadCSV(c *gin.Context) {
	text, err := h.readCSV(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.ReconcileCSV(c.Request.Context(), c.Param("id"), text, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export group members
// @Tags ScreenGroupMembers
// @Produce text/csv,application/pdf
// @Param id path string true "Group ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /screen-groups/{id}/members/export [get]
func (h *MembershipHandler) Export(c *gin.Context) {
	file, err := h.service.ExportMembers(c.Request.Context(), c.Param("id"), c.DefaultQuery("format", "csv"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

func (h *MembershipHandler) readCSV(c *gin.Context) (string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)

	switch contentType := c.ContentType(); {
	case strings.HasPrefix(contentType, "multipart/form-data"):
		fileHeader, err := c.FormFile("file")
		if err != nil {
			if isTooLarge(err) {
				return "", h.tooLarge()
			}
			return "", appErrors.Clone(appErrors.ErrValidation, "file is required")
		}
		if fileHeader.Size > h.maxBytes {
			return "", h.tooLarge()
		}
		src, err := fileHeader.Open()
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
		}
		defer src.Close()
		data, err := io.ReadAll(src)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read file")
		}
		return string(data), nil
	case contentType == gin.MIMEJSON:
		var payload csvPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			if isTooLarge(err) {
				return "", h.tooLarge()
			}
			return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid csv payload")
		}
		return payload.CSV, nil
	default:
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			if isTooLarge(err) {
				return "", h.tooLarge()
			}
			return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read csv body")
		}
		return string(data), nil
	}
}

func (h *MembershipHandler) tooLarge() error {
	return appErrors.WithDetails(appErrors.ErrTooLarge, "csv upload exceeds size limit", map[string]interface{}{"max_bytes": h.maxBytes})
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}
