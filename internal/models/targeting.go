package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// WarningType enumerates targeting preview warnings.
type WarningType string

const (
	WarningOverlap         WarningType = "overlap"
	WarningOffline         WarningType = "offline"
	WarningMixedResolution WarningType = "mixed_resolution"
	WarningLowScreenCount  WarningType = "low_screen_count"
)

// Warning is an advisory raised by a targeting preview.
type Warning struct {
	Type    WarningType            `json:"type"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// EligibilityPreview summarises the screens a set of groups would reach.
type EligibilityPreview struct {
	EligibleScreenCount int       `json:"eligible_screen_count"`
	OnlineCount         int       `json:"online_count"`
	OfflineCount        int       `json:"offline_count"`
	Warnings            []Warning `json:"warnings"`
}

// TargetingCriteria is produced by campaign authoring. A nil dimension means no restriction.
type TargetingCriteria struct {
	Cities       []string    `json:"cities,omitempty"`
	RegionCodes  []string    `json:"regions,omitempty"`
	ScreenGroups []string    `json:"screen_groups,omitempty"`
	TimeWindow   *TimeWindow `json:"time_window,omitempty"`
}

// Scan decodes the JSONB targeting column. NULL leaves every dimension unrestricted.
func (t *TargetingCriteria) Scan(src interface{}) error {
	*t = TargetingCriteria{}
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("targeting criteria: unsupported source %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, t)
}

// TimeWindow is a daily local-time window such as "08:00"-"20:00".
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// LastSeenRange holds the oldest and newest heartbeats among screens.
type LastSeenRange struct {
	Oldest *time.Time `json:"oldest"`
	Newest *time.Time `json:"newest"`
}

// GroupHealth is a descriptive rollup of a group's member screens.
type GroupHealth struct {
	GroupID             string         `json:"group_id"`
	Total               int            `json:"total"`
	OnlineCount         int            `json:"online_count"`
	OfflineCount        int            `json:"offline_count"`
	RegionBreakdown     map[string]int `json:"region_breakdown"`
	ResolutionBreakdown map[string]int `json:"resolution_breakdown"`
	LastSeen            LastSeenRange  `json:"last_seen"`
	GeneratedAt         time.Time      `json:"generated_at"`
}
