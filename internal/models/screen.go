package models

import (
	"fmt"
	"time"
)

// UnknownBucket labels screens missing a region or resolution in breakdowns.
const UnknownBucket = "unknown"

// ScreenStatus is the derived liveness state of a screen.
type ScreenStatus string

const (
	ScreenStatusOnline  ScreenStatus = "online"
	ScreenStatusOffline ScreenStatus = "offline"
)

// Valid reports whether the status is a recognised value.
func (s ScreenStatus) Valid() bool {
	return s == ScreenStatusOnline || s == ScreenStatusOffline
}

// Screen is a physical display unit owned by a publisher organisation.
type Screen struct {
	ID          string     `db:"id" json:"id"`
	Code        string     `db:"code" json:"code"`
	Name        *string    `db:"name" json:"name,omitempty"`
	City        *string    `db:"city" json:"city,omitempty"`
	RegionCode  *string    `db:"region_code" json:"region_code,omitempty"`
	Width       *int       `db:"resolution_width" json:"resolution_width,omitempty"`
	Height      *int       `db:"resolution_height" json:"resolution_height,omitempty"`
	PublisherID string     `db:"publisher_org_id" json:"publisher_org_id"`
	LastSeenAt  *time.Time `db:"last_seen_at" json:"last_seen_at,omitempty"`
}

// IsOnline reports whether the last heartbeat falls inside the staleness window.
func (s Screen) IsOnline(now time.Time, threshold time.Duration) bool {
	if s.LastSeenAt == nil {
		return false
	}
	return now.Sub(*s.LastSeenAt) <= threshold
}

// Status returns the derived online/offline status.
func (s Screen) Status(now time.Time, threshold time.Duration) ScreenStatus {
	if s.IsOnline(now, threshold) {
		return ScreenStatusOnline
	}
	return ScreenStatusOffline
}

// Resolution renders "{width}x{height}", or empty when either side is unknown.
func (s Screen) Resolution() string {
	if s.Width == nil || s.Height == nil || *s.Width <= 0 || *s.Height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", *s.Width, *s.Height)
}

// Region returns the region code or the unknown bucket.
func (s Screen) Region() string {
	if s.RegionCode == nil || *s.RegionCode == "" {
		return UnknownBucket
	}
	return *s.RegionCode
}

// ScreenView decorates a screen with its derived status for API responses.
type ScreenView struct {
	Screen
	Resolution string       `json:"resolution,omitempty"`
	IsOnline   bool         `json:"is_online"`
	Status     ScreenStatus `json:"status"`
	AddedAt    *time.Time   `json:"added_at,omitempty"`
}

// NewScreenView derives status fields for s.
func NewScreenView(s Screen, now time.Time, threshold time.Duration) ScreenView {
	online := s.IsOnline(now, threshold)
	status := ScreenStatusOffline
	if online {
		status = ScreenStatusOnline
	}
	return ScreenView{Screen: s, Resolution: s.Resolution(), IsOnline: online, Status: status}
}
