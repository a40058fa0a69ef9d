package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dapoteju/beamer-mono-sub001/internal/models"
)

const groupColumns = `g.id, g.org_id, g.name, g.description, g.is_archived, g.screen_count, g.created_at, g.updated_at`

// ScreenGroupRepository persists screen groups and their memberships.
type ScreenGroupRepository struct {
	db *sqlx.DB
}

// NewScreenGroupRepository constructs a ScreenGroupRepository.
func NewScreenGroupRepository(db *sqlx.DB) *ScreenGroupRepository {
	return &ScreenGroupRepository{db: db}
}

// List returns groups matching the filter ordered by name, plus the total count.
func (r *ScreenGroupRepository) List(ctx context.Context, filter models.ScreenGroupFilter) ([]models.ScreenGroup, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.OrgID != "" {
		where = append(where, fmt.Sprintf("g.org_id = $%d", len(args)+1))
		args = append(args, filter.OrgID)
	}
	if filter.Archived != nil {
		where = append(where, fmt.Sprintf("g.is_archived = $%d", len(args)+1))
		args = append(args, *filter.Archived)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		where = append(where, fmt.Sprintf("(LOWER(g.name) LIKE $%d OR LOWER(COALESCE(g.description, '')) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(q)+"%")
	}
	whereClause := strings.Join(where, " AND ")

	query := fmt.Sprintf("SELECT %s FROM screen_groups g WHERE %s ORDER BY LOWER(g.name) ASC, g.id ASC", groupColumns, whereClause)
	groups := []models.ScreenGroup{}
	if err := r.db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list screen groups: %w", err)
	}
	return groups, len(groups), nil
}

// FindByID fetches a group by id.
func (r *ScreenGroupRepository) FindByID(ctx context.Context, id string) (*models.ScreenGroup, error) {
	query := fmt.Sprintf("SELECT %s FROM screen_groups g WHERE g.id = $1", groupColumns)
	var group models.ScreenGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// FindByIDs returns every group whose id is in ids.
func (r *ScreenGroupRepository) FindByIDs(ctx context.Context, ids []string) ([]models.ScreenGroup, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT %s FROM screen_groups g WHERE g.id = ANY($1::uuid[])", groupColumns)
	var groups []models.ScreenGroup
	if err := r.db.SelectContext(ctx, &groups, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find screen groups: %w", err)
	}
	return groups, nil
}

// ExistsActiveByName checks whether a non-archived group in the org uses name.
func (r *ScreenGroupRepository) ExistsActiveByName(ctx context.Context, orgID, name, excludeID string) (bool, error) {
	query := "SELECT 1 FROM screen_groups WHERE org_id = $1 AND LOWER(name) = LOWER($2) AND NOT is_archived"
	args := []interface{}{orgID, name}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check screen group name: %w", err)
	}
	return true, nil
}

// Create inserts a new group.
func (r *ScreenGroupRepository) Create(ctx context.Context, group *models.ScreenGroup) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	group.UpdatedAt = now

	const query = `INSERT INTO screen_groups (id, org_id, name, description, is_archived, screen_count, created_at, updated_at)
		VALUES (:id, :org_id, :name, :description, :is_archived, :screen_count, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateGroupName
		}
		return fmt.Errorf("create screen group: %w", err)
	}
	return nil
}

// Update persists name, description and archive state. Membership is untouched.
func (r *ScreenGroupRepository) Update(ctx context.Context, group *models.ScreenGroup) error {
	group.UpdatedAt = time.Now().UTC()
	const query = `UPDATE screen_groups SET name = :name, description = :description, is_archived = :is_archived, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, group)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateGroupName
		}
		return fmt.Errorf("update screen group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a group. Without force it refuses when members exist; with
// force the memberships and the group are deleted in one transaction.
func (r *ScreenGroupRepository) Delete(ctx context.Context, id string, force bool) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete screen group: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			_ = tx.Rollback()
		}
	}()

	if err := lockGroup(ctx, tx, id); err != nil {
		return 0, err
	}

	var members int
	if err := tx.GetContext(ctx, &members, `SELECT COUNT(*) FROM screen_group_members WHERE group_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count screen group members: %w", err)
	}
	if members > 0 && !force {
		return members, ErrGroupNotEmpty
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM screen_group_members WHERE group_id = $1`, id); err != nil {
		return 0, fmt.Errorf("delete screen group members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM screen_groups WHERE id = $1`, id); err != nil {
		return 0, fmt.Errorf("delete screen group: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete screen group: %w", err)
	}
	commit = true
	return members, nil
}

// AddMembers inserts memberships for screenIDs and returns the ids actually added.
// Existing pairs are left alone, so concurrent duplicates surface as skipped.
func (r *ScreenGroupRepository) AddMembers(ctx context.Context, groupID string, screenIDs []string, addedBy *string) ([]string, error) {
	if len(screenIDs) == 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin add screen group members: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			_ = tx.Rollback()
		}
	}()

	if err := lockGroup(ctx, tx, groupID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	const query = `INSERT INTO screen_group_members (group_id, screen_id, added_at, added_by_user_id)
SELECT $1, ids.screen_id, $3, $4 FROM unnest($2::text[]) AS ids(screen_id)
ON CONFLICT (group_id, screen_id) DO NOTHING
RETURNING screen_id`
	added := []string{}
	if err := tx.SelectContext(ctx, &added, query, groupID, pq.Array(screenIDs), now, addedBy); err != nil {
		return nil, fmt.Errorf("add screen group members: %w", err)
	}
	if len(added) > 0 {
		if err := refreshScreenCount(ctx, tx, groupID, now); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit add screen group members: %w", err)
	}
	commit = true
	return added, nil
}

// RemoveMembers deletes memberships for screenIDs and returns how many existed.
func (r *ScreenGroupRepository) RemoveMembers(ctx context.Context, groupID string, screenIDs []string) (int, error) {
	if len(screenIDs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin remove screen group members: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			_ = tx.Rollback()
		}
	}()

	if err := lockGroup(ctx, tx, groupID); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM screen_group_members WHERE group_id = $1 AND screen_id = ANY($2)`, groupID, pq.Array(screenIDs))
	if err != nil {
		return 0, fmt.Errorf("remove screen group members: %w", err)
	}
	removed, _ := res.RowsAffected()
	if removed > 0 {
		if err := refreshScreenCount(ctx, tx, groupID, time.Now().UTC()); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit remove screen group members: %w", err)
	}
	commit = true
	return int(removed), nil
}

// MemberScreens returns every member screen of the group.
func (r *ScreenGroupRepository) MemberScreens(ctx context.Context, groupID string) ([]models.MemberScreen, error) {
	query := fmt.Sprintf(`SELECT %s, m.added_at
FROM screen_group_members m
JOIN screens s ON s.id = m.screen_id
WHERE m.group_id = $1
ORDER BY LOWER(COALESCE(s.name, s.code)) ASC, s.id ASC`, screenColumns)
	screens := []models.MemberScreen{}
	if err := r.db.SelectContext(ctx, &screens, query, groupID); err != nil {
		return nil, fmt.Errorf("list screen group members: %w", err)
	}
	return screens, nil
}

// ScreensForGroups returns one row per (group, member screen) for the given groups.
func (r *ScreenGroupRepository) ScreensForGroups(ctx context.Context, groupIDs []string) ([]models.GroupScreen, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT m.group_id, %s
FROM screen_group_members m
JOIN screens s ON s.id = m.screen_id
WHERE m.group_id = ANY($1::uuid[])`, screenColumns)
	rows := []models.GroupScreen{}
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(groupIDs)); err != nil {
		return nil, fmt.Errorf("list screens for groups: %w", err)
	}
	return rows, nil
}

// ListMembers returns a filtered page of member screens and the filtered total.
func (r *ScreenGroupRepository) ListMembers(ctx context.Context, filter models.MemberFilter) ([]models.MemberScreen, int, error) {
	base := `FROM screen_group_members m
JOIN screens s ON s.id = m.screen_id`
	where := []string{"m.group_id = $1"}
	args := []interface{}{filter.GroupID}
	if filter.Status != nil {
		switch *filter.Status {
		case models.ScreenStatusOnline:
			where = append(where, fmt.Sprintf("s.last_seen_at >= $%d", len(args)+1))
			args = append(args, filter.OnlineSince)
		case models.ScreenStatusOffline:
			where = append(where, fmt.Sprintf("(s.last_seen_at IS NULL OR s.last_seen_at < $%d)", len(args)+1))
			args = append(args, filter.OnlineSince)
		}
	}
	if filter.City != "" {
		where = append(where, fmt.Sprintf("LOWER(s.city) = LOWER($%d)", len(args)+1))
		args = append(args, filter.City)
	}
	if filter.Region != "" {
		where = append(where, fmt.Sprintf("s.region_code = $%d", len(args)+1))
		args = append(args, filter.Region)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(LOWER(s.code) LIKE $%d OR LOWER(COALESCE(s.name, '')) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s, m.added_at %s WHERE %s
ORDER BY LOWER(COALESCE(s.name, s.code)) ASC, s.id ASC
LIMIT %d OFFSET %d`, screenColumns, base, whereClause, size, offset)
	screens := []models.MemberScreen{}
	if err := r.db.SelectContext(ctx, &screens, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list screen group members: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count screen group members: %w", err)
	}
	return screens, total, nil
}

// StatusCounts returns online and offline member counts given the online cut-off.
func (r *ScreenGroupRepository) StatusCounts(ctx context.Context, groupID string, onlineSince time.Time) (int, int, error) {
	const query = `SELECT
	COUNT(*) FILTER (WHERE s.last_seen_at >= $2) AS online,
	COUNT(*) FILTER (WHERE s.last_seen_at IS NULL OR s.last_seen_at < $2) AS offline
FROM screen_group_members m
JOIN screens s ON s.id = m.screen_id
WHERE m.group_id = $1`
	var counts struct {
		Online  int `db:"online"`
		Offline int `db:"offline"`
	}
	if err := r.db.GetContext(ctx, &counts, query, groupID, onlineSince); err != nil {
		return 0, 0, fmt.Errorf("count screen group status: %w", err)
	}
	return counts.Online, counts.Offline, nil
}

// ListForScreen returns the groups a screen belongs to.
func (r *ScreenGroupRepository) ListForScreen(ctx context.Context, screenID string) ([]models.ScreenGroup, error) {
	query := fmt.Sprintf(`SELECT %s
FROM screen_group_members m
JOIN screen_groups g ON g.id = m.group_id
WHERE m.screen_id = $1
ORDER BY LOWER(g.name) ASC, g.id ASC`, groupColumns)
	groups := []models.ScreenGroup{}
	if err := r.db.SelectContext(ctx, &groups, query, screenID); err != nil {
		return nil, fmt.Errorf("list groups for screen: %w", err)
	}
	return groups, nil
}

// ListAvailableForScreen returns active groups of the org that do not yet contain the screen.
func (r *ScreenGroupRepository) ListAvailableForScreen(ctx context.Context, orgID, screenID string) ([]models.ScreenGroup, error) {
	query := fmt.Sprintf(`SELECT %s
FROM screen_groups g
WHERE g.org_id = $1
  AND NOT g.is_archived
  AND NOT EXISTS (SELECT 1 FROM screen_group_members m WHERE m.group_id = g.id AND m.screen_id = $2)
ORDER BY LOWER(g.name) ASC, g.id ASC`, groupColumns)
	groups := []models.ScreenGroup{}
	if err := r.db.SelectContext(ctx, &groups, query, orgID, screenID); err != nil {
		return nil, fmt.Errorf("list available groups for screen: %w", err)
	}
	return groups, nil
}

func lockGroup(ctx context.Context, tx *sqlx.Tx, groupID string) error {
	var id string
	if err := tx.GetContext(ctx, &id, `SELECT id FROM screen_groups WHERE id = $1 FOR UPDATE`, groupID); err != nil {
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		return fmt.Errorf("lock screen group: %w", err)
	}
	return nil
}

func refreshScreenCount(ctx context.Context, tx *sqlx.Tx, groupID string, now time.Time) error {
	const query = `UPDATE screen_groups
SET screen_count = (SELECT COUNT(*) FROM screen_group_members WHERE group_id = $1), updated_at = $2
WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, groupID, now); err != nil {
		return fmt.Errorf("refresh screen group count: %w", err)
	}
	return nil
}
