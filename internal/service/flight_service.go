package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dapoteju/beamer-mono-sub001/internal/models"
	appErrors "github.com/dapoteju/beamer-mono-sub001/pkg/errors"
)

type flightRepository interface {
	ListByGroup(ctx context.Context, groupID string, asOf time.Time) ([]models.Flight, error)
}

// FlightService lists flights that target a screen group.
type FlightService struct {
	groups  groupFinder
	flights flightRepository
	logger  *zap.Logger
	now     func() time.Time
}

// NewFlightService constructs a FlightService.
func NewFlightService(groups groupFinder, flights flightRepository, logger *zap.Logger) *FlightService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlightService{groups: groups, flights: flights, logger: logger, now: time.Now}
}

// ListForGroup returns current and upcoming flights whose targeting includes the group.
func (s *FlightService) ListForGroup(ctx context.Context, groupID string, actor *models.JWTClaims) ([]models.Flight, error) {
	group, err := loadGroup(ctx, s.groups, groupID, actor)
	if err != nil {
		return nil, err
	}
	flights, err := s.flights.ListByGroup(ctx, group.ID, s.now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list flights for screen group")
	}
	return flights, nil
}
