package api

import (
	"time"

	"example.com/tracker/internal/domain"
)

// StartSessionRequest is the payload for POST /v1/session/start.
type StartSessionRequest struct {
	Type string `json:"type"`
}

// ActivityView exposes full details about an activity.
type ActivityView struct {
	ID            string             `json:"id"`
	Type          string             `json:"type"`
	UserID        string             `json:"user_id"`
	StartTime     time.Time          `json:"start_time"`
	EndTime       *time.Time         `json:"end_time,omitempty"`
	Steps         *int               `json:"steps,omitempty"`
	StartLocation *domain.Coordinate `json:"start_location,omitempty"`
	EndLocation   *domain.Coordinate `json:"end_location,omitempty"`
	Path          []domain.Coordinate `json:"path,omitempty"`
	GeofenceID    string             `json:"geofence_id,omitempty"`
	Open          bool               `json:"open"`
	Icon          string             `json:"icon"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ActivityTypeView describes one activity category.
type ActivityTypeView struct {
	Name            string  `json:"name"`
	Icon            string  `json:"icon"`
	StepBearing     bool    `json:"step_bearing"`
	MET             float64 `json:"met"`
	CaloriesPerStep float64 `json:"calories_per_step"`
	Custom          bool    `json:"custom"`
}

// ListActivityTypesResponse packages the type catalog.
type ListActivityTypesResponse struct {
	Items []ActivityTypeView `json:"items"`
}

// CreateActivityTypeRequest is the payload for POST /v1/activities/types.
type CreateActivityTypeRequest struct {
	Name string `json:"name"`
}

// GeofenceRequest is the payload for creating or updating a geofence.
type GeofenceRequest struct {
	Name         string  `json:"name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Radius       float64 `json:"radius"`
	ActivityType string  `json:"activity_type"`
}

func (r GeofenceRequest) toDomain(userID string) domain.Geofence {
	return domain.Geofence{
		Name:         r.Name,
		UserID:       userID,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
		Radius:       r.Radius,
		ActivityType: domain.ActivityType(r.ActivityType),
	}
}

// GeofenceView exposes a geofence definition.
type GeofenceView struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	Radius       float64    `json:"radius"`
	ActivityType string     `json:"activity_type"`
	EntryTime    *time.Time `json:"entry_time,omitempty"`
	ExitTime     *time.Time `json:"exit_time,omitempty"`
}

// ListGeofencesResponse packages geofence list results.
type ListGeofencesResponse struct {
	Items []GeofenceView `json:"items"`
}

// MonitoringStatusResponse reports the monitor state after a toggle.
type MonitoringStatusResponse struct {
	Running bool `json:"running"`
}

// ScheduledNotificationView exposes one pending notification.
type ScheduledNotificationView struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	FireAt time.Time `json:"fire_at"`
	Daily  bool      `json:"daily"`
}

// ListScheduledResponse packages pending notification results.
type ListScheduledResponse struct {
	Items []ScheduledNotificationView `json:"items"`
}

// DailySummaryResponse is the body for GET /v1/stats/summary.
type DailySummaryResponse struct {
	Date           string  `json:"date"`
	Activities     int     `json:"activities"`
	Steps          int     `json:"steps"`
	DurationSec    int64   `json:"duration_seconds"`
	Calories       float64 `json:"calories"`
	StepGoal       int     `json:"step_goal"`
	CalorieGoal    int     `json:"calorie_goal"`
	StepGoalMet    bool    `json:"step_goal_met"`
	CalorieGoalMet bool    `json:"calorie_goal_met"`
}

// BMIResponse is the body for GET /v1/stats/bmi.
type BMIResponse struct {
	BMI      float64 `json:"bmi"`
	Category string  `json:"category"`
	Advice   string  `json:"advice"`
}

func toActivityView(activity domain.Activity) ActivityView {
	return ActivityView{
		ID:            activity.ID,
		Type:          string(activity.Type),
		UserID:        activity.UserID,
		StartTime:     activity.StartTime,
		EndTime:       activity.EndTime,
		Steps:         activity.Steps,
		StartLocation: activity.StartLocation,
		EndLocation:   activity.EndLocation,
		Path:          activity.Path,
		GeofenceID:    activity.GeofenceID,
		Open:          activity.Open(),
		Icon:          activity.Type.Icon(),
	}
}

func toGeofenceView(fence domain.Geofence) GeofenceView {
	return GeofenceView{
		ID:           fence.ID,
		Name:         fence.Name,
		Latitude:     fence.Latitude,
		Longitude:    fence.Longitude,
		Radius:       fence.Radius,
		ActivityType: string(fence.ActivityType),
		EntryTime:    fence.EntryTime,
		ExitTime:     fence.ExitTime,
	}
}

func toActivityTypeView(activityType domain.ActivityType, custom bool) ActivityTypeView {
	return ActivityTypeView{
		Name:            string(activityType),
		Icon:            activityType.Icon(),
		StepBearing:     activityType.StepBearing(),
		MET:             activityType.MET(),
		CaloriesPerStep: activityType.CaloriesPerStep(),
		Custom:          custom,
	}
}
