package models

import "time"

// Flight is a scheduled delivery window of a campaign, owned by campaign management.
type Flight struct {
	ID           string            `db:"id" json:"id"`
	CampaignID   string            `db:"campaign_id" json:"campaign_id"`
	CampaignName *string           `db:"campaign_name" json:"campaign_name,omitempty"`
	Name         string            `db:"name" json:"name"`
	Status       string            `db:"status" json:"status"`
	StartDate    time.Time         `db:"start_date" json:"start_date"`
	EndDate      *time.Time        `db:"end_date" json:"end_date,omitempty"`
	Targeting    TargetingCriteria `db:"targeting" json:"targeting"`
}
