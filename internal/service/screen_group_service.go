package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dapoteju/beamer-mono-sub001/internal/models"
	"github.com/dapoteju/beamer-mono-sub001/internal/repository"
	appErrors "github.com/dapoteju/beamer-mono-sub001/pkg/errors"
)

type screenGroupRepository interface {
	List(ctx context.Context, filter models.ScreenGroupFilter) ([]models.ScreenGroup, int, error)
	FindByID(ctx context.Context, id string) (*models.ScreenGroup, error)
	ExistsActiveByName(ctx context.Context, orgID, name, excludeID string) (bool, error)
	Create(ctx context.Context, group *models.ScreenGroup) error
	Update(ctx context.Context, group *models.ScreenGroup) error
	Delete(ctx context.Context, id string, force bool) (int, error)
	StatusCounts(ctx context.Context, groupID string, onlineSince time.Time) (int, int, error)
	ListForScreen(ctx context.Context, screenID string) ([]models.ScreenGroup, error)
	ListAvailableForScreen(ctx context.Context, orgID, screenID string) ([]models.ScreenGroup, error)
}

type groupFinder interface {
	FindByID(ctx context.Context, id string) (*models.ScreenGroup, error)
}

type screenFinder interface {
	FindByID(ctx context.Context, id string) (*models.Screen, error)
}

type healthInvalidator interface {
	Invalidate(ctx context.Context, groupIDs ...string)
}

// CreateScreenGroupRequest is the payload for creating a group.
type CreateScreenGroupRequest struct {
	OrgID       string  `json:"org_id" validate:"required"`
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// UpdateScreenGroupRequest is a partial update; omitted fields keep their value.
type UpdateScreenGroupRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	IsArchived  *bool   `json:"is_archived"`
}

// ListScreenGroupsRequest filters group listings.
type ListScreenGroupsRequest struct {
	OrgID    string
	Query    string
	Archived *bool
}

// ScreenGroupServiceConfig tunes the group store.
type ScreenGroupServiceConfig struct {
	OfflineThreshold time.Duration
}

// ScreenGroupService manages the lifecycle of screen groups.
type ScreenGroupService struct {
	repo      screenGroupRepository
	screens   screenFinder
	health    healthInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ScreenGroupServiceConfig
	now       func() time.Time
}

// NewScreenGroupService constructs a ScreenGroupService.
func NewScreenGroupService(repo screenGroupRepository, screens screenFinder, health healthInvalidator, validate *validator.Validate, logger *zap.Logger, cfg ScreenGroupServiceConfig) *ScreenGroupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OfflineThreshold <= 0 {
		cfg.OfflineThreshold = 2 * time.Minute
	}
	return &ScreenGroupService{
		repo:      repo,
		screens:   screens,
		health:    health,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// List returns groups ordered by name. Archived groups are hidden unless requested.
func (s *ScreenGroupService) List(ctx context.Context, req ListScreenGroupsRequest, actor *models.JWTClaims) ([]models.ScreenGroup, int, error) {
	scope, err := orgScope(actor)
	if err != nil {
		return nil, 0, err
	}
	filter := models.ScreenGroupFilter{OrgID: strings.TrimSpace(req.OrgID), Query: req.Query, Archived: req.Archived}
	if scope != "" {
		filter.OrgID = scope
	}
	if filter.Archived == nil {
		active := false
		filter.Archived = &active
	}
	groups, count, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list screen groups")
	}
	return groups, count, nil
}

// Get returns a group with live online/offline counts.
func (s *ScreenGroupService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ScreenGroupDetail, error) {
	group, err := loadGroup(ctx, s.repo, id, actor)
	if err != nil {
		return nil, err
	}
	online, offline, err := s.repo.StatusCounts(ctx, group.ID, s.now().Add(-s.cfg.OfflineThreshold))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count screen status")
	}
	return &models.ScreenGroupDetail{ScreenGroup: *group, OnlineCount: online, OfflineCount: offline}, nil
}

// Create registers a new, empty group.
func (s *ScreenGroupService) Create(ctx context.Context, req CreateScreenGroupRequest, actor *models.JWTClaims) (*models.ScreenGroup, error) {
	if err := ensureCanManage(actor); err != nil {
		return nil, err
	}
	scope, err := orgScope(actor)
	if err != nil {
		return nil, err
	}
	if scope != "" {
		req.OrgID = scope
	}
	req.OrgID = strings.TrimSpace(req.OrgID)
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid screen group payload")
	}
	if err := s.ensureNameAvailable(ctx, req.OrgID, req.Name, ""); err != nil {
		return nil, err
	}

	group := &models.ScreenGroup{
		OrgID:       req.OrgID,
		Name:        req.Name,
		Description: trimmedOptional(req.Description),
	}
	if err := s.repo.Create(ctx, group); err != nil {
		if errors.Is(err, repository.ErrDuplicateGroupName) {
			return nil, duplicateNameError(req.Name)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create screen group")
	}
	s.logger.Info("screen group created", zap.String("group_id", group.ID), zap.String("org_id", group.OrgID), zap.String("user_id", actor.UserID))
	return group, nil
}

// Update applies a partial update. Membership is never touched here.
func (s *ScreenGroupService) Update(ctx context.Context, id string, req UpdateScreenGroupRequest, actor *models.JWTClaims) (*models.ScreenGroup, error) {
	if err := ensureCanManage(actor); err != nil {
		return nil, err
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "name must not be empty")
		}
		req.Name = &name
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid screen group payload")
	}

	group, err := loadGroup(ctx, s.repo, id, actor)
	if err != nil {
		return nil, err
	}

	nameChanged := req.Name != nil && !strings.EqualFold(*req.Name, group.Name)
	unarchiving := req.IsArchived != nil && !*req.IsArchived && group.IsArchived
	if req.Name != nil {
		group.Name = *req.Name
	}
	if req.Description != nil {
		group.Description = trimmedOptional(req.Description)
	}
	if req.IsArchived != nil {
		group.IsArchived = *req.IsArchived
	}

	if !group.IsArchived && (nameChanged || unarchiving) {
		if err := s.ensureNameAvailable(ctx, group.OrgID, group.Name, group.ID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, group); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateGroupName):
			return nil, duplicateNameError(group.Name)
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "screen group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update screen group")
	}
	s.logger.Info("screen group updated", zap.String("group_id", group.ID), zap.Bool("archived", group.IsArchived))
	return group, nil
}

// Archive hides a group from default listings while keeping its members.
func (s *ScreenGroupService) Archive(ctx context.Context, id string, actor *models.JWTClaims) (*models.ScreenGroup, error) {
	archived := true
	return s.Update(ctx, id, UpdateScreenGroupRequest{IsArchived: &archived}, actor)
}

// Unarchive restores a group, failing when its name now collides with an active group.
func (s *ScreenGroupService) Unarchive(ctx context.Context, id string, actor *models.JWTClaims) (*models.ScreenGroup, error) {
	archived := false
	return s.Update(ctx, id, UpdateScreenGroupRequest{IsArchived: &archived}, actor)
}

// Delete removes a group. Groups with members require force.
func (s *ScreenGroupService) Delete(ctx context.Context, id string, force bool, actor *models.JWTClaims) error {
	if err := ensureCanManage(actor); err != nil {
		return err
	}
	group, err := loadGroup(ctx, s.repo, id, actor)
	if err != nil {
		return err
	}
	id = group.ID

	members, err := s.repo.Delete(ctx, id, force)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrGroupNotEmpty):
			return appErrors.WithDetails(appErrors.ErrConflict, "screen group has members; use force to delete", map[string]interface{}{"member_count": members})
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "screen group not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete screen group")
	}
	if s.health != nil {
		s.health.Invalidate(ctx, id)
	}
	s.logger.Info("screen group deleted", zap.String("group_id", id), zap.Int("members_removed", members), zap.Bool("force", force))
	return nil
}

// ListForScreen returns the groups a screen belongs to.
func (s *ScreenGroupService) ListForScreen(ctx context.Context, screenID string, actor *models.JWTClaims) ([]models.ScreenGroup, error) {
	if _, err := s.loadScreen(ctx, screenID, actor); err != nil {
		return nil, err
	}
	groups, err := s.repo.ListForScreen(ctx, screenID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups for screen")
	}
	return groups, nil
}

// ListAvailableForScreen returns active groups of the screen's publisher it has not joined.
func (s *ScreenGroupService) ListAvailableForScreen(ctx context.Context, screenID string, actor *models.JWTClaims) ([]models.ScreenGroup, error) {
	screen, err := s.loadScreen(ctx, screenID, actor)
	if err != nil {
		return nil, err
	}
	groups, err := s.repo.ListAvailableForScreen(ctx, screen.PublisherID, screenID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list available groups")
	}
	return groups, nil
}

func (s *ScreenGroupService) loadScreen(ctx context.Context, screenID string, actor *models.JWTClaims) (*models.Screen, error) {
	scope, err := orgScope(actor)
	if err != nil {
		return nil, err
	}
	screen, err := s.screens.FindByID(ctx, screenID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "screen not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load screen")
	}
	if scope != "" && scope != screen.PublisherID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "screen not found")
	}
	return screen, nil
}

func (s *ScreenGroupService) ensureNameAvailable(ctx context.Context, orgID, name, excludeID string) error {
	exists, err := s.repo.ExistsActiveByName(ctx, orgID, name, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check screen group name")
	}
	if exists {
		return duplicateNameError(name)
	}
	return nil
}

// loadGroup fetches a group and hides groups outside a publisher's org.
func loadGroup(ctx context.Context, repo groupFinder, id string, actor *models.JWTClaims) (*models.ScreenGroup, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	canonical, ok := canonicalGroupID(id)
	if !ok {
		return nil, appErrors.WithDetails(appErrors.ErrNotFound, "screen group not found", map[string]interface{}{"group_id": id})
	}
	group, err := repo.FindByID(ctx, canonical)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.ErrNotFound, "screen group not found", map[string]interface{}{"group_id": id})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load screen group")
	}
	scope, err := orgScope(actor)
	if err != nil {
		return nil, err
	}
	if scope != "" && scope != group.OrgID {
		return nil, appErrors.WithDetails(appErrors.ErrNotFound, "screen group not found", map[string]interface{}{"group_id": id})
	}
	return group, nil
}

// canonicalGroupID parses id as a UUID and returns its lowercase hyphenated form.
func canonicalGroupID(id string) (string, bool) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

// orgScope returns the org the caller is confined to, or "" for platform roles.
// A publisher token without an org is refused rather than treated as unscoped.
func orgScope(actor *models.JWTClaims) (string, error) {
	if actor == nil {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if !actor.HasValidScope() {
		return "", appErrors.Clone(appErrors.ErrForbidden, "publisher token carries no organisation")
	}
	return actor.ScopedOrgID(), nil
}

func ensureCanManage(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if !actor.HasValidScope() {
		return appErrors.Clone(appErrors.ErrForbidden, "publisher token carries no organisation")
	}
	if !actor.CanManageGroups() {
		return appErrors.Clone(appErrors.ErrForbidden, "role cannot manage screen groups")
	}
	return nil
}

func duplicateNameError(name string) error {
	return appErrors.WithDetails(appErrors.ErrConflict, "a screen group with this name already exists", map[string]interface{}{"name": name})
}

func trimmedOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
