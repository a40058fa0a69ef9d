package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dapoteju/beamer-mono-sub001/internal/models"
	appErrors "github.com/dapoteju/beamer-mono-sub001/pkg/errors"
)

type targetingRepository interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.ScreenGroup, error)
	ScreensForGroups(ctx context.Context, groupIDs []string) ([]models.GroupScreen, error)
}

// TargetingPreviewRequest lists the screen groups selected in a targeting criteria.
type TargetingPreviewRequest struct {
	GroupIDs []string `json:"group_ids" validate:"max=200,dive,max=64"`
}

// TargetingServiceConfig holds preview thresholds.
type TargetingServiceConfig struct {
	OfflineThreshold time.Duration
	LowScreenFloor   int
	OfflineRatio     float64
}

// TargetingService previews which screens a set of groups reaches.
type TargetingService struct {
	repo      targetingRepository
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       TargetingServiceConfig
	now       func() time.Time
}

// NewTargetingService constructs a TargetingService.
func NewTargetingService(repo targetingRepository, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg TargetingServiceConfig) *TargetingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OfflineThreshold <= 0 {
		cfg.OfflineThreshold = 2 * time.Minute
	}
	if cfg.LowScreenFloor <= 0 {
		cfg.LowScreenFloor = 5
	}
	if cfg.OfflineRatio <= 0 || cfg.OfflineRatio > 1 {
		cfg.OfflineRatio = 0.5
	}
	return &TargetingService{repo: repo, metrics: metrics, validator: validate, logger: logger, cfg: cfg, now: time.Now}
}

// Preview computes the union of the groups' members, their online split and
// any warnings. An empty selection yields a zero preview without warnings.
func (s *TargetingService) Preview(ctx context.Context, req TargetingPreviewRequest, actor *models.JWTClaims) (*models.EligibilityPreview, error) {
	scope, err := orgScope(actor)
	if err != nil {
		return nil, err
	}
	req.GroupIDs = uniqueIDs(req.GroupIDs)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid targeting preview payload")
	}
	if len(req.GroupIDs) == 0 {
		return &models.EligibilityPreview{Warnings: []models.Warning{}}, nil
	}
	ids, err := canonicalGroupIDs(req.GroupIDs)
	if err != nil {
		return nil, err
	}

	groups, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load screen groups")
	}
	byID := make(map[string]models.ScreenGroup, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
	}
	for _, id := range ids {
		g, ok := byID[id]
		if !ok || (scope != "" && g.OrgID != scope) {
			return nil, appErrors.WithDetails(appErrors.ErrNotFound, "screen group not found", map[string]interface{}{"group_id": id})
		}
	}

	rows, err := s.repo.ScreensForGroups(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group members")
	}

	set := buildEligibleSet(ids, rows, s.now().UTC(), s.cfg.OfflineThreshold)
	preview := &models.EligibilityPreview{
		EligibleScreenCount: len(set.screens),
		OnlineCount:         set.online,
		OfflineCount:        set.offline,
		Warnings:            evaluateWarnings(set, s.cfg),
	}
	s.metrics.RecordPreviewWarnings(preview.Warnings)
	s.logger.Debug("targeting preview computed",
		zap.Strings("group_ids", ids),
		zap.Int("eligible", preview.EligibleScreenCount),
		zap.Int("warnings", len(preview.Warnings)),
	)
	return preview, nil
}

// canonicalGroupIDs normalises ids and collapses spellings of the same group.
// An id that is not a UUID cannot name a group and is reported as not found.
func canonicalGroupIDs(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		canonical, ok := canonicalGroupID(id)
		if !ok {
			return nil, appErrors.WithDetails(appErrors.ErrNotFound, "screen group not found", map[string]interface{}{"group_id": id})
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		ids = append(ids, canonical)
	}
	return ids, nil
}

func buildEligibleSet(groupIDs []string, rows []models.GroupScreen, now time.Time, threshold time.Duration) *eligibleSet {
	set := &eligibleSet{
		groupOrder:   groupIDs,
		groupMembers: make(map[string]map[string]struct{}, len(groupIDs)),
		screens:      map[string]models.Screen{},
	}
	for _, id := range groupIDs {
		set.groupMembers[id] = map[string]struct{}{}
	}
	for _, row := range rows {
		members, ok := set.groupMembers[row.GroupID]
		if !ok {
			continue
		}
		members[row.ID] = struct{}{}
		if _, seen := set.screens[row.ID]; seen {
			continue
		}
		set.screens[row.ID] = row.Screen
		if row.IsOnline(now, threshold) {
			set.online++
		} else {
			set.offline++
		}
	}
	return set
}
