package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dapoteju/beamer-mono-sub001/internal/models"
	appErrors "github.com/dapoteju/beamer-mono-sub001/pkg/errors"
	"github.com/dapoteju/beamer-mono-sub001/pkg/export"
)

type membershipRepository interface {
	FindByID(ctx context.Context, id string) (*models.ScreenGroup, error)
	AddMembers(ctx context.Context, groupID string, screenIDs []string, addedBy *string) ([]string, error)
	RemoveMembers(ctx context.Context, groupID string, screenIDs []string) (int, error)
	ListMembers(ctx context.Context, filter models.MemberFilter) ([]models.MemberScreen, int, error)
	MemberScreens(ctx context.Context, groupID string) ([]models.MemberScreen, error)
}

type screenLookup interface {
	FindByIDs(ctx context.Context, orgID string, ids []string) ([]models.Screen, error)
	FindByCodes(ctx context.Context, orgID string, codes []string) ([]models.Screen, error)
	FindByNames(ctx context.Context, orgID string, names []string) ([]models.Screen, error)
}

// MemberIDsRequest carries the screen ids of an add or remove call.
type MemberIDsRequest struct {
	ScreenIDs []string `json:"screen_ids" validate:"required,min=1,max=5000,dive,required,max=64"`
}

// maxMemberPage bounds page numbers so the row offset cannot overflow.
const maxMemberPage = 100000

// ListMembersRequest filters and paginates member listings.
type ListMembersRequest struct {
	Status   string
	City     string
	Region   string
	Query    string
	Page     int `validate:"gte=0"`
	PageSize int `validate:"gte=0,lte=100"`
}

// ExportedFile is a rendered member export.
type ExportedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// MembershipServiceConfig tunes membership behaviour.
type MembershipServiceConfig struct {
	AllowArchivedAdd bool
	OfflineThreshold time.Duration
}

// MembershipService reconciles group membership from id lists and CSV uploads.
type MembershipService struct {
	repo      membershipRepository
	screens   screenLookup
	health    healthInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       MembershipServiceConfig
	now       func() time.Time
}

// NewMembershipService constructs a MembershipService. health and metrics may be nil.
func NewMembershipService(repo membershipRepository, screens screenLookup, health healthInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg MembershipServiceConfig) *MembershipService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OfflineThreshold <= 0 {
		cfg.OfflineThreshold = 2 * time.Minute
	}
	return &MembershipService{
		repo:      repo,
		screens:   screens,
		health:    health,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// AddMembers adds screens to a group. Existing members are counted as skipped;
// an unknown screen id fails the whole call before anything is written.
func (s *MembershipService) AddMembers(ctx context.Context, groupID string, req MemberIDsRequest, actor *models.JWTClaims) (*models.AddMembersResult, error) {
	ids, err := s.validateIDs(req, actor)
	if err != nil {
		return nil, err
	}
	group, err := s.writableGroup(ctx, groupID, actor)
	if err != nil {
		return nil, err
	}

	found, err := s.screens.FindByIDs(ctx, group.OrgID, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up screens")
	}
	known := make(map[string]struct{}, len(found))
	for _, screen := range found {
		known[screen.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return nil, appErrors.WithDetails(appErrors.ErrNotFound, fmt.Sprintf("screen %s not found", id), map[string]interface{}{"screen_id": id})
		}
	}

	added, err := s.insert(ctx, group.ID, ids, actor)
	if err != nil {
		return nil, err
	}
	result := &models.AddMembersResult{Added: len(added), Skipped: len(ids) - len(added)}

	s.metrics.RecordMembershipChange("api", MembershipAdded, result.Added)
	s.metrics.RecordMembershipChange("api", MembershipSkipped, result.Skipped)
	s.logger.Info("screen group members added",
		zap.String("group_id", group.ID),
		zap.String("user_id", actor.UserID),
		zap.Int("added", result.Added),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// RemoveMembers deletes memberships; ids that are not members are ignored.
func (s *MembershipService) RemoveMembers(ctx context.Context, groupID string, req MemberIDsRequest, actor *models.JWTClaims) (*models.RemoveMembersResult, error) {
	ids, err := s.validateIDs(req, actor)
	if err != nil {
		return nil, err
	}
	group, err := loadGroup(ctx, s.repo, groupID, actor)
	if err != nil {
		return nil, err
	}

	removed, err := s.repo.RemoveMembers(ctx, group.ID, ids)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "screen group not found")
		}
		s.logger.Error("remove screen group members failed", zap.String("group_id", group.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove screen group members")
	}
	if removed > 0 && s.health != nil {
		s.health.Invalidate(ctx, group.ID)
	}

	s.metrics.RecordMembershipChange("api", MembershipRemoved, removed)
	s.logger.Info("screen group members removed",
		zap.String("group_id", group.ID),
		zap.String("user_id", actor.UserID),
		zap.Int("requested", len(ids)),
		zap.Int("removed", removed),
	)
	return &models.RemoveMembersResult{Removed: removed}, nil
}

// ListMembers returns a page of member screens with derived online status.
func (s *MembershipService) ListMembers(ctx context.Context, groupID string, req ListMembersRequest, actor *models.JWTClaims) ([]models.ScreenView, *models.Pagination, error) {
	status := models.ScreenStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if status != "" && !status.Valid() {
		return nil, nil, appErrors.WithDetails(appErrors.ErrValidation, "status must be online or offline", map[string]interface{}{"status": req.Status})
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid member filter")
	}
	group, err := loadGroup(ctx, s.repo, groupID, actor)
	if err != nil {
		return nil, nil, err
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	if page > maxMemberPage {
		page = maxMemberPage
	}
	size := req.PageSize
	if size <= 0 {
		size = 20
	}
	now := s.now().UTC()
	filter := models.MemberFilter{
		GroupID:     group.ID,
		City:        strings.TrimSpace(req.City),
		Region:      strings.TrimSpace(req.Region),
		Search:      strings.TrimSpace(req.Query),
		Page:        page,
		PageSize:    size,
		OnlineSince: now.Add(-s.cfg.OfflineThreshold),
	}
	if status != "" {
		filter.Status = &status
	}

	members, total, err := s.repo.ListMembers(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list screen group members")
	}
	views := make([]models.ScreenView, 0, len(members))
	for _, member := range members {
		view := models.NewScreenView(member.Screen, now, s.cfg.OfflineThreshold)
		added := member.AddedAt
		view.AddedAt = &added
		views = append(views, view)
	}
	return views, models.NewPagination(page, size, total), nil
}

// ExportMembers renders every member of the group as CSV or PDF.
func (s *MembershipService) ExportMembers(ctx context.Context, groupID, format string, actor *models.JWTClaims) (*ExportedFile, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	group, err := loadGroup(ctx, s.repo, groupID, actor)
	if err != nil {
		return nil, err
	}
	members, err := s.repo.MemberScreens(ctx, group.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load screen group members")
	}

	now := s.now().UTC()
	data := export.Dataset{
		Title:   fmt.Sprintf("%s members (%s)", group.Name, now.Format("2006-01-02 15:04 MST")),
		Headers: []string{"screen_id", "code", "name", "city", "region", "resolution", "status", "last_seen_at", "added_at"},
		Rows:    make([]map[string]string, 0, len(members)),
	}
	for _, member := range members {
		lastSeen := ""
		if member.LastSeenAt != nil {
			lastSeen = member.LastSeenAt.UTC().Format(time.RFC3339)
		}
		data.Rows = append(data.Rows, map[string]string{
			"screen_id":    member.ID,
			"code":         member.Code,
			"name":         stringValue(member.Name),
			"city":         stringValue(member.City),
			"region":       stringValue(member.RegionCode),
			"resolution":   member.Resolution(),
			"status":       string(member.Status(now, s.cfg.OfflineThreshold)),
			"last_seen_at": lastSeen,
			"added_at":     member.AddedAt.UTC().Format(time.RFC3339),
		})
	}

	payload, err := export.Render(f, data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportedFile{
		Filename:    fmt.Sprintf("screen-group-%s-members.%s", group.ID, f),
		ContentType: f.ContentType(),
		Data:        payload,
	}, nil
}

func (s *MembershipService) validateIDs(req MemberIDsRequest, actor *models.JWTClaims) ([]string, error) {
	if err := ensureCanManage(actor); err != nil {
		return nil, err
	}
	ids := uniqueIDs(req.ScreenIDs)
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "screen_ids must contain at least one id")
	}
	req.ScreenIDs = ids
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid screen ids")
	}
	return ids, nil
}

// writableGroup loads a group that may receive new members.
func (s *MembershipService) writableGroup(ctx context.Context, groupID string, actor *models.JWTClaims) (*models.ScreenGroup, error) {
	group, err := loadGroup(ctx, s.repo, groupID, actor)
	if err != nil {
		return nil, err
	}
	if group.IsArchived && !s.cfg.AllowArchivedAdd {
		return nil, appErrors.WithDetails(appErrors.ErrConflict, "screen group is archived", map[string]interface{}{"group_id": group.ID})
	}
	return group, nil
}

func (s *MembershipService) insert(ctx context.Context, groupID string, ids []string, actor *models.JWTClaims) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var addedBy *string
	if actor != nil && actor.UserID != "" {
		user := actor.UserID
		addedBy = &user
	}
	added, err := s.repo.AddMembers(ctx, groupID, ids, addedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "screen group not found")
		}
		s.logger.Error("add screen group members failed", zap.String("group_id", groupID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add screen group members")
	}
	if len(added) > 0 && s.health != nil {
		s.health.Invalidate(ctx, groupID)
	}
	return added, nil
}

// uniqueIDs trims ids, drops blanks and duplicates, and keeps first-seen order.
func uniqueIDs(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		id := strings.TrimSpace(v)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
