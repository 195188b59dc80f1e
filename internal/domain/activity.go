// Package domain defines the core entities and business rules for the tracker service.
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrGeofenceNotFound is returned when a geofence cannot be located.
	ErrGeofenceNotFound = errors.New("geofence not found")
	// ErrNotificationNotFound is returned when a scheduled notification cannot be located.
	ErrNotificationNotFound = errors.New("notification not found")
	// ErrSessionActive indicates a manual tracking session is already open.
	ErrSessionActive = errors.New("a tracking session is already active")
	// ErrNoActiveSession indicates stop was called with no open session.
	ErrNoActiveSession = errors.New("no tracking session is active")
	// ErrPermissionDenied indicates a required platform permission has not been granted.
	ErrPermissionDenied = errors.New("permission denied")
)

// Coordinate is a single position sample.
type Coordinate struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude,omitempty"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Activity is a completed or in-progress tracking session. An activity with a
// nil EndTime is the currently open one for its origin (manual, or the
// geofence identified by GeofenceID).
type Activity struct {
	ID            string       `json:"id"`
	Type          ActivityType `json:"type"`
	UserID        string       `json:"user_id"`
	StartTime     time.Time    `json:"start_time"`
	EndTime       *time.Time   `json:"end_time,omitempty"`
	Steps         *int         `json:"steps,omitempty"`
	StartLocation *Coordinate  `json:"start_location,omitempty"`
	EndLocation   *Coordinate  `json:"end_location,omitempty"`
	Path          []Coordinate `json:"path,omitempty"`
	GeofenceID    string       `json:"geofence_id,omitempty"`
}

// Open reports whether the activity is still being tracked.
func (a Activity) Open() bool {
	return a.EndTime == nil
}

// ActivityUpdate carries the fields populated when a session stops. Steps and
// Path are written exactly once, from the accumulated background state.
type ActivityUpdate struct {
	EndTime       *time.Time
	StartLocation *Coordinate
	EndLocation   *Coordinate
	Steps         *int
	Path          []Coordinate
}

// Cursor models the pagination token for activity listings.
type Cursor struct {
	StartTime time.Time
	ID        string
}

// ActivityRepository captures persistence operations over activity records.
type ActivityRepository interface {
	Add(ctx context.Context, activity Activity) error
	// Update fails with ErrActivityNotFound when no record matches the id.
	Update(ctx context.Context, id string, update ActivityUpdate) error
	FindByID(ctx context.Context, id string) (*Activity, error)
	FindByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
	Delete(ctx context.Context, id string) error
}

// Geofence is a monitored circular region. Crossing into it auto-starts an
// activity of the configured type; crossing out closes that activity.
type Geofence struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	UserID       string       `json:"user_id"`
	Latitude     float64      `json:"latitude"`
	Longitude    float64      `json:"longitude"`
	Radius       float64      `json:"radius"`
	ActivityType ActivityType `json:"activity_type"`
	EntryTime    *time.Time   `json:"entry_time,omitempty"`
	ExitTime     *time.Time   `json:"exit_time,omitempty"`
}

// GeofenceRepository captures persistence operations over geofences.
type GeofenceRepository interface {
	Add(ctx context.Context, geofence Geofence) error
	// Update fails with ErrGeofenceNotFound when no record matches the id.
	Update(ctx context.Context, id string, geofence Geofence) error
	FindByID(ctx context.Context, id string) (*Geofence, error)
	FindByUser(ctx context.Context, userID string) ([]Geofence, error)
	Delete(ctx context.Context, id string) error
}

// Permissions is the per-user record of granted platform permissions.
type Permissions struct {
	UserID                    string `json:"user_id"`
	ForegroundLocationGranted bool   `json:"foreground_location_granted"`
	BackgroundLocationGranted bool   `json:"background_location_granted"`
	NotificationGranted       bool   `json:"notification_granted"`
}
