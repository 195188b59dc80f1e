package auth

// Known OAuth scopes used by the tracker API.
const (
	ScopeTrackingRead       = "tracking:read"
	ScopeTrackingWrite      = "tracking:write"
	ScopeGeofencesWrite     = "geofences:write"
	ScopeNotificationsRead  = "notifications:read"
	ScopeNotificationsWrite = "notifications:write"
)
