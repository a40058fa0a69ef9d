package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dapoteju/beamer-mono-sub001/internal/models"
	appErrors "github.com/dapoteju/beamer-mono-sub001/pkg/errors"
)

const healthCacheKeyPrefix = "screen-groups:health:"

type memberScreenLister interface {
	MemberScreens(ctx context.Context, groupID string) ([]models.MemberScreen, error)
}

// HealthServiceConfig tunes health aggregation and caching.
type HealthServiceConfig struct {
	OfflineThreshold time.Duration
	CacheTTL         time.Duration
}

// HealthService summarises the live state of a group's screens.
type HealthService struct {
	groups  groupFinder
	members memberScreenLister
	cache   *CacheService
	logger  *zap.Logger
	cfg     HealthServiceConfig
	now     func() time.Time
}

// NewHealthService constructs a HealthService. cache may be nil.
func NewHealthService(groups groupFinder, members memberScreenLister, cache *CacheService, logger *zap.Logger, cfg HealthServiceConfig) *HealthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OfflineThreshold <= 0 {
		cfg.OfflineThreshold = 2 * time.Minute
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	return &HealthService{groups: groups, members: members, cache: cache, logger: logger, cfg: cfg, now: time.Now}
}

// GetHealth returns the group's health rollup and whether it was served from cache.
func (s *HealthService) GetHealth(ctx context.Context, groupID string, actor *models.JWTClaims) (*models.GroupHealth, bool, error) {
	group, err := loadGroup(ctx, s.groups, groupID, actor)
	if err != nil {
		return nil, false, err
	}
	groupID = group.ID

	key := healthCacheKey(groupID)
	var cached models.GroupHealth
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, true, nil
	}

	members, err := s.members.MemberScreens(ctx, groupID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group members")
	}
	screens := make([]models.Screen, len(members))
	for i, m := range members {
		screens[i] = m.Screen
	}

	health := AggregateHealth(groupID, screens, s.now().UTC(), s.cfg.OfflineThreshold)
	if err := s.cache.Set(ctx, key, health, s.cfg.CacheTTL); err != nil {
		s.logger.Debug("health cache write skipped", zap.String("group_id", groupID), zap.Error(err))
	}
	return &health, false, nil
}

// Invalidate drops cached health for the given groups.
func (s *HealthService) Invalidate(ctx context.Context, groupIDs ...string) {
	if s == nil || len(groupIDs) == 0 {
		return
	}
	keys := make([]string, len(groupIDs))
	for i, id := range groupIDs {
		keys[i] = healthCacheKey(id)
	}
	_ = s.cache.Evict(ctx, keys...)
}

// AggregateHealth computes counts and breakdowns for a set of screens.
// Screens without a region or resolution are bucketed under "unknown".
func AggregateHealth(groupID string, screens []models.Screen, now time.Time, threshold time.Duration) models.GroupHealth {
	health := models.GroupHealth{
		GroupID:             groupID,
		Total:               len(screens),
		RegionBreakdown:     map[string]int{},
		ResolutionBreakdown: map[string]int{},
		GeneratedAt:         now,
	}
	for _, screen := range screens {
		if screen.IsOnline(now, threshold) {
			health.OnlineCount++
		} else {
			health.OfflineCount++
		}

		health.RegionBreakdown[bucket(screen.Region())]++
		health.ResolutionBreakdown[bucket(screen.Resolution())]++

		if seen := screen.LastSeenAt; seen != nil {
			if health.LastSeen.Oldest == nil || seen.Before(*health.LastSeen.Oldest) {
				t := *seen
				health.LastSeen.Oldest = &t
			}
			if health.LastSeen.Newest == nil || seen.After(*health.LastSeen.Newest) {
				t := *seen
				health.LastSeen.Newest = &t
			}
		}
	}
	return health
}

func healthCacheKey(groupID string) string {
	return fmt.Sprintf("%s%s", healthCacheKeyPrefix, groupID)
}

func bucket(value string) string {
	if value == "" {
		return models.UnknownBucket
	}
	return value
}
