package storage

import "fmt"

// Well-known gateway keys. Per-session keys are derived from the activity id
// so a background execution context can find them with nothing but the
// persisted current-session pointer.
const (
	KeyGeofences                   = "geofences"
	KeyGeofenceStates              = "geofenceStates"
	KeyCurrentBackgroundActivityID = "currentBackgroundActivityId"
	KeyCustomActivityTypes         = "customActivityTypes"
	KeyScheduledNotifications      = "scheduledNotifications"
	KeyDeliveredNotifications      = "deliveredNotifications"
)

// LastActivityTimeKey returns the per-user key recording when the user last
// completed an activity.
func LastActivityTimeKey(userID string) string {
	return fmt.Sprintf("lastActivityTime_%s", userID)
}

// ForegroundStepsKey returns the persisted foreground step counter key.
func ForegroundStepsKey(activityID string) string {
	return fmt.Sprintf("foregroundSteps_%s", activityID)
}

// BackgroundStepsKey returns the persisted background step counter key.
func BackgroundStepsKey(activityID string) string {
	return fmt.Sprintf("backgroundSteps_%s", activityID)
}

// ForegroundPathKey returns the persisted foreground path key.
func ForegroundPathKey(activityID string) string {
	return fmt.Sprintf("foregroundPath_%s", activityID)
}

// BackgroundPathKey returns the persisted background path key.
func BackgroundPathKey(activityID string) string {
	return fmt.Sprintf("backgroundPath_%s", activityID)
}

// GeofenceActivityKey returns the key holding the open activity created by a
// geofence entry, keyed by geofence id.
func GeofenceActivityKey(geofenceID string) string {
	return fmt.Sprintf("currentActivity_%s", geofenceID)
}

// PermissionsKey returns the per-user permissions record key.
func PermissionsKey(userID string) string {
	return fmt.Sprintf("permissions_%s", userID)
}
