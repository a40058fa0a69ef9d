package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapoteju/beamer-mono-sub001/internal/models"
	"github.com/dapoteju/beamer-mono-sub001/internal/service"
	appErrors "github.com/dapoteju/beamer-mono-sub001/pkg/errors"
)

type membershipServiceMock struct {
	csvText string
	listReq service.ListMembersRequest
	addReq  service.MemberIDsRequest
	addErr  error
}

func (m *membershipServiceMock) AddMembers(ctx context.Context, groupID string, req service.MemberIDsRequest, actor *models.JWTClaims) (*models.AddMembersResult, error) {
	m.addReq = req
	if m.addErr != nil {
		return nil, m.addErr
	}
	return &models.AddMembersResult{Added: len(req.ScreenIDs)}, nil
}

func (m *membershipServiceMock) RemoveMembers(ctx context.Context, groupID string, req service.MemberIDsRequest, actor *models.JWTClaims) (*models.RemoveMembersResult, error) {
	return &models.RemoveMembersResult{Removed: len(req.ScreenIDs)}, nil
}

func (m *membershipServiceMock) ReconcileCSV(ctx context.Context, groupID, text string, actor *models.JWTClaims) (*models.CSVReconcileResult, error) {
	m.csvText = text
	return &models.CSVReconcileResult{Added: 1, NotFoundItems: []string{}}, nil
}

func (m *membershipServiceMock) ListMembers(ctx context.Context, groupID string, req service.ListMembersRequest, actor *models.JWTClaims) ([]models.ScreenView, *models.Pagination, error) {
	m.listReq = req
	return []models.ScreenView{}, models.NewPagination(req.Page, req.PageSize, 0), nil
}

func (m *membershipServiceMock) ExportMembers(ctx context.Context, groupID, format string, actor *models.JWTClaims) (*service.ExportedFile, error) {
	if format != "csv" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	return &service.ExportedFile{Filename: "screen-group-" + groupID + "-members.csv", ContentType: "text/csv", Data: []byte("screen_id\ns1\n")}, nil
}

func TestMembershipHandlerUploadCSVRawBody(t *testing.T) {
	mock := &membershipServiceMock{}
	handler := NewMembershipHandler(mock, 1024)
	c, w := newTestContext(http.MethodPost, "/screen-groups/g-1/members/csv", []byte("code\nLAG-01\n"))
	c.Request.Header.Set("Content-Type", "text/csv")

	handler.UploadCSV(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "code\nLAG-01\n", mock.csvText)
}

func TestMembershipHandlerUploadCSVJSON(t *testing.T) {
	mock := &membershipServiceMock{}
	handler := NewMembershipHandler(mock, 1024)
	c, w := newTestContext(http.MethodPost, "/screen-groups/g-1/members/csv", []byte(`{"csv":"screen_id\ns1\n"}`))

	handler.UploadCSV(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "screen_id\ns1\n", mock.csvText)
}

func TestMembershipHandlerUploadCSVMultipart(t *testing.T) {
	mock := &membershipServiceMock{}
	handler := NewMembershipHandler(mock, 4096)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "members.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("name\nIkeja Mall\n"))
	require.NoError(t, writer.Close())

	c, w := newTestContext(http.MethodPost, "/screen-groups/g-1/members/csv", buf.Bytes())
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())

	handler.UploadCSV(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "name\nIkeja Mall\n", mock.csvText)
}

func TestMembershipHandlerUploadCSVTooLarge(t *testing.T) {
	mock := &membershipServiceMock{}
	handler := NewMembershipHandler(mock, 16)
	c, w := newTestContext(http.MethodPost, "/screen-groups/g-1/members/csv", []byte("code\n"+strings.Repeat("LAG-01\n", 10)))
	c.Request.Header.Set("Content-Type", "text/csv")

	handler.UploadCSV(c)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, mock.csvText)
}

func TestMembershipHandlerAddPropagatesNotFound(t *testing.T) {
	mock := &membershipServiceMock{addErr: appErrors.WithDetails(appErrors.ErrNotFound, "screen ghost not found", map[string]interface{}{"screen_id": "ghost"})}
	handler := NewMembershipHandler(mock, 0)
	c, w := newTestContext(http.MethodPost, "/screen-groups/g-1/members", []byte(`{"screen_ids":["ghost"]}`))

	handler.Add(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, []string{"ghost"}, mock.addReq.ScreenIDs)
}

func TestMembershipHandlerListDefaults(t *testing.T) {
	mock := &membershipServiceMock{}
	handler := NewMembershipHandler(mock, 0)
	c, w := newTestContext(http.MethodGet, "/screen-groups/g-1/members?status=online&page_size=10", nil)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "online", mock.listReq.Status)
	assert.Equal(t, 1, mock.listReq.Page)
	assert.Equal(t, 10, mock.listReq.PageSize)
	assert.Contains(t, decodeEnvelope(t, w), "pagination")
}

func TestMembershipHandlerExport(t *testing.T) {
	handler := NewMembershipHandler(&membershipServiceMock{}, 0)
	c, w := newTestContext(http.MethodGet, "/screen-groups/g-1/members/export", nil)
	c.Params = gin.Params{{Key: "id", Value: "g-1"}}

	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="screen-group-g-1-members.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "screen_id\ns1\n", w.Body.String())

	c, w = newTestContext(http.MethodGet, "/screen-groups/g-1/members/export?format=xlsx", nil)
	handler.Export(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
