package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dapoteju/beamer-mono-sub001/internal/models"
)

// FlightRepository reads flights owned by campaign management.
type FlightRepository struct {
	db *sqlx.DB
}

// NewFlightRepository constructs a FlightRepository.
func NewFlightRepository(db *sqlx.DB) *FlightRepository {
	return &FlightRepository{db: db}
}

// ListByGroup returns flights whose targeting references the group and that
// have not ended before asOf. Cancelled flights are excluded.
func (r *FlightRepository) ListByGroup(ctx context.Context, groupID string, asOf time.Time) ([]models.Flight, error) {
	const query = `SELECT f.id, f.campaign_id, c.name AS campaign_name, f.name, f.status, f.start_date, f.end_date, f.targeting
FROM flights f
LEFT JOIN campaigns c ON c.id = f.campaign_id
WHERE f.targeting -> 'screen_groups' @> jsonb_build_array($1::text)
  AND (f.end_date IS NULL OR f.end_date >= $2)
  AND f.status <> 'cancelled'
ORDER BY f.start_date ASC, f.id ASC`
	flights := []models.Flight{}
	if err := r.db.SelectContext(ctx, &flights, query, groupID, asOf); err != nil {
		return nil, fmt.Errorf("list flights for group: %w", err)
	}
	return flights, nil
}
