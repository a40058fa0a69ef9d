package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dapoteju/beamer-mono-sub001/internal/models"
)

const screenColumns = `s.id, s.code, s.name, s.city, s.region_code, s.resolution_width, s.resolution_height, s.publisher_org_id, s.last_seen_at`

// ScreenRepository reads the screen directory.
type ScreenRepository struct {
	db *sqlx.DB
}

// NewScreenRepository constructs a ScreenRepository.
func NewScreenRepository(db *sqlx.DB) *ScreenRepository {
	return &ScreenRepository{db: db}
}

// FindByID fetches a single screen.
func (r *ScreenRepository) FindByID(ctx context.Context, id string) (*models.Screen, error) {
	query := fmt.Sprintf("SELECT %s FROM screens s WHERE s.id = $1", screenColumns)
	var screen models.Screen
	if err := r.db.GetContext(ctx, &screen, query, id); err != nil {
		return nil, err
	}
	return &screen, nil
}

// FindByIDs returns the screens among ids, optionally restricted to a publisher org.
func (r *ScreenRepository) FindByIDs(ctx context.Context, orgID string, ids []string) ([]models.Screen, error) {
	return r.findBy(ctx, orgID, "s.id", ids)
}

// FindByCodes matches screen codes case-insensitively.
func (r *ScreenRepository) FindByCodes(ctx context.Context, orgID string, codes []string) ([]models.Screen, error) {
	return r.findBy(ctx, orgID, "LOWER(s.code)", lowerAll(codes))
}

// FindByNames matches display names case-insensitively. Every screen sharing a
// name is returned so callers can detect ambiguity.
func (r *ScreenRepository) FindByNames(ctx context.Context, orgID string, names []string) ([]models.Screen, error) {
	return r.findBy(ctx, orgID, "LOWER(s.name)", lowerAll(names))
}

func (r *ScreenRepository) findBy(ctx context.Context, orgID, column string, values []string) ([]models.Screen, error) {
	if len(values) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT %s FROM screens s WHERE %s = ANY($1)", screenColumns, column)
	args := []interface{}{pq.Array(values)}
	if orgID != "" {
		query += " AND s.publisher_org_id = $2"
		args = append(args, orgID)
	}
	query += " ORDER BY s.id"

	var screens []models.Screen
	if err := r.db.SelectContext(ctx, &screens, query, args...); err != nil {
		return nil, fmt.Errorf("find screens by %s: %w", column, err)
	}
	return screens, nil
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}
