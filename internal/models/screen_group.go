package models

import "time"

// MaxGroupNameLength bounds screen group names.
const MaxGroupNameLength = 100

// ScreenGroup is a named, publisher-scoped collection of screens used for targeting.
type ScreenGroup struct {
	ID          string    `db:"id" json:"id"`
	OrgID       string    `db:"org_id" json:"org_id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	IsArchived  bool      `db:"is_archived" json:"is_archived"`
	ScreenCount int       `db:"screen_count" json:"screen_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ScreenGroupDetail adds live status counts to a group.
type ScreenGroupDetail struct {
	ScreenGroup
	OnlineCount  int `json:"online_count"`
	OfflineCount int `json:"offline_count"`
}

// ScreenGroupFilter captures filtering options for listing groups.
type ScreenGroupFilter struct {
	OrgID    string
	Query    string
	Archived *bool
}

// ScreenGroupUpdate carries a partial update; nil fields are left untouched.
type ScreenGroupUpdate struct {
	Name        *string
	Description *string
	IsArchived  *bool
}

// Membership relates a screen to a group.
type Membership struct {
	GroupID       string    `db:"group_id" json:"group_id"`
	ScreenID      string    `db:"screen_id" json:"screen_id"`
	AddedAt       time.Time `db:"added_at" json:"added_at"`
	AddedByUserID *string   `db:"added_by_user_id" json:"added_by_user_id,omitempty"`
}

// MemberScreen is a screen row joined with its membership metadata.
type MemberScreen struct {
	Screen
	AddedAt time.Time `db:"added_at"`
}

// MemberFilter captures filters for paginated member listings.
type MemberFilter struct {
	GroupID  string
	Status   *ScreenStatus
	City     string
	Region   string
	Search   string
	Page     int
	PageSize int
	// OnlineSince is the cut-off derived from the offline threshold; set by the service.
	OnlineSince time.Time
}

// AddMembersResult reports the outcome of a bulk add.
type AddMembersResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// RemoveMembersResult reports the outcome of a bulk removal.
type RemoveMembersResult struct {
	Removed int `json:"removed"`
}

// CSVReconcileResult reports the outcome of a CSV upload.
type CSVReconcileResult struct {
	Added         int      `json:"added"`
	Skipped       int      `json:"skipped"`
	NotFound      int      `json:"not_found"`
	NotFoundItems []string `json:"not_found_items"`
}

// GroupScreen pairs a member screen with the group it was reached through.
type GroupScreen struct {
	GroupID string `db:"group_id"`
	Screen
}
