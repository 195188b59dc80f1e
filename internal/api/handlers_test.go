package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/tracker/internal/auth"
	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/geofence"
	"example.com/tracker/internal/location"
	"example.com/tracker/internal/notify"
	"example.com/tracker/internal/persistence/memory"
	"example.com/tracker/internal/sensors"
	"example.com/tracker/internal/session"
	"example.com/tracker/internal/stats"
	"example.com/tracker/internal/steps"
	"example.com/tracker/internal/storage"
)

type env struct {
	mux        *http.ServeMux
	gateway    *storage.MemoryGateway
	activities *memory.ActivityRepository
	scheduler  *notify.Scheduler
}

type dropSender struct{}

func (dropSender) Send(context.Context, string, notify.Notification) error { return nil }

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := log.New(testWriter{t}, "", 0)

	gateway := storage.NewMemoryGateway()
	activities := memory.NewActivityRepository()
	fences := memory.NewGeofenceRepository()
	accel := sensors.NewScriptedAccelerometer()
	stream := sensors.NewScriptedPositionStream()

	detector := steps.NewDetector(gateway, accel, steps.WithLogger(logger))
	tracker := location.NewTracker(gateway, stream, location.WithLogger(logger))
	engine := session.NewEngine(gateway, detector, tracker, activities, session.WithLogger(logger))

	scheduler, err := notify.NewScheduler(gateway, dropSender{}, notify.WithSchedulerLogger(logger))
	require.NoError(t, err)
	t.Cleanup(scheduler.Close)

	monitor := geofence.NewMonitor(gateway, fences, activities, detector, tracker, stream, dropSender{},
		geofence.WithMonitorLogger(logger))
	fenceService := geofence.NewService(fences, gateway, monitor, geofence.WithServiceLogger(logger))

	handler := NewHandler(engine, activities, fenceService, monitor, scheduler, stats.NewService(activities), gateway)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	return &env{mux: mux, gateway: gateway, activities: activities, scheduler: scheduler}
}

func (e *env) grantLocation(t *testing.T, userID string) {
	t.Helper()
	require.NoError(t, storage.SetJSON(context.Background(), e.gateway, storage.PermissionsKey(userID), domain.Permissions{
		UserID:                    userID,
		ForegroundLocationGranted: true,
	}))
}

// do runs a request with the given claims attached, the way the auth
// middleware would.
func (e *env) do(method, target, body string, claims *auth.Claims) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if claims != nil {
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func claimsWith(scopes ...string) *auth.Claims {
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	return &auth.Claims{Subject: "u1", Scopes: set}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t)
	e.grantLocation(t, "u1")
	writer := claimsWith(auth.ScopeTrackingWrite)

	rec := e.do(http.MethodPost, "/v1/session/start", `{"type":"walking"}`, writer)
	require.Equal(t, http.StatusCreated, rec.Code)
	started := decode[ActivityView](t, rec)
	require.True(t, started.Open)
	require.Equal(t, "walking", started.Type)

	// Second start conflicts.
	rec = e.do(http.MethodPost, "/v1/session/start", `{"type":"running"}`, writer)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(http.MethodGet, "/v1/session", "", writer)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodPost, "/v1/session/stop", "", writer)
	require.Equal(t, http.StatusOK, rec.Code)
	stopped := decode[ActivityView](t, rec)
	require.False(t, stopped.Open)
	require.NotNil(t, stopped.EndTime)

	rec = e.do(http.MethodGet, "/v1/session", "", writer)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(http.MethodPost, "/v1/session/stop", "", writer)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSessionRequiresScopeAndToken(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodPost, "/v1/session/start", `{"type":"walking"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(http.MethodPost, "/v1/session/start", `{"type":"walking"}`, claimsWith(auth.ScopeTrackingRead))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStartWithoutLocationPermission(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodPost, "/v1/session/start", `{"type":"walking"}`, claimsWith(auth.ScopeTrackingWrite))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListActivitiesPaginates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"a1", "a2", "a3"} {
		end := base.Add(time.Duration(i)*time.Hour + 30*time.Minute)
		require.NoError(t, e.activities.Add(ctx, domain.Activity{
			ID: id, Type: domain.TypeWalking, UserID: "u1",
			StartTime: base.Add(time.Duration(i) * time.Hour), EndTime: &end,
		}))
	}

	reader := claimsWith(auth.ScopeTrackingRead)
	rec := e.do(http.MethodGet, "/v1/activities?limit=2", "", reader)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[ListActivitiesResponse](t, rec)
	require.Len(t, page.Items, 2)
	require.Equal(t, "a3", page.Items[0].ID)
	require.NotEmpty(t, page.NextCursor)

	rec = e.do(http.MethodGet, "/v1/activities?limit=2&cursor="+page.NextCursor, "", reader)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[ListActivitiesResponse](t, rec)
	require.Len(t, page.Items, 1)
	require.Equal(t, "a1", page.Items[0].ID)
}

func TestActivityByIDAndDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.activities.Add(ctx, domain.Activity{
		ID: "a1", Type: domain.TypeWalking, UserID: "u1", StartTime: time.Now(),
	}))
	require.NoError(t, e.activities.Add(ctx, domain.Activity{
		ID: "other", Type: domain.TypeWalking, UserID: "u2", StartTime: time.Now(),
	}))

	writer := claimsWith(auth.ScopeTrackingWrite)
	rec := e.do(http.MethodGet, "/v1/activities/a1", "", writer)
	require.Equal(t, http.StatusOK, rec.Code)

	// Another user's activity is invisible.
	rec = e.do(http.MethodGet, "/v1/activities/other", "", writer)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(http.MethodDelete, "/v1/activities/a1", "", writer)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(http.MethodGet, "/v1/activities/a1", "", writer)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGeofenceCRUDOverHTTP(t *testing.T) {
	e := newEnv(t)
	writer := claimsWith(auth.ScopeGeofencesWrite)

	rec := e.do(http.MethodPost, "/v1/geofences",
		`{"name":"park","latitude":45.0,"longitude":9.0,"radius":50,"activity_type":"walking"}`, writer)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[GeofenceView](t, rec)
	require.NotEmpty(t, created.ID)

	// Invalid radius rejected.
	rec = e.do(http.MethodPost, "/v1/geofences", `{"name":"bad","radius":0}`, writer)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodGet, "/v1/geofences", "", writer)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[ListGeofencesResponse](t, rec)
	require.Len(t, listed.Items, 1)

	rec = e.do(http.MethodPut, "/v1/geofences/"+created.ID,
		`{"name":"bigger park","latitude":45.0,"longitude":9.0,"radius":80,"activity_type":"walking"}`, writer)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[GeofenceView](t, rec)
	require.Equal(t, 80.0, updated.Radius)

	rec = e.do(http.MethodDelete, "/v1/geofences/"+created.ID, "", writer)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(http.MethodGet, "/v1/geofences/"+created.ID, "", writer)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMonitoringToggleOverHTTP(t *testing.T) {
	e := newEnv(t)
	writer := claimsWith(auth.ScopeGeofencesWrite)

	// No location permission yet.
	rec := e.do(http.MethodPost, "/v1/geofences/monitoring/start", "", writer)
	require.Equal(t, http.StatusForbidden, rec.Code)

	e.grantLocation(t, "u1")
	rec = e.do(http.MethodPost, "/v1/geofences/monitoring/start", "", writer)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode[MonitoringStatusResponse](t, rec).Running)

	rec = e.do(http.MethodPost, "/v1/geofences/monitoring/stop", "", writer)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, decode[MonitoringStatusResponse](t, rec).Running)
}

func TestActivityTypeCatalog(t *testing.T) {
	e := newEnv(t)
	writer := claimsWith(auth.ScopeTrackingWrite)

	rec := e.do(http.MethodGet, "/v1/activities/types", "", writer)
	require.Equal(t, http.StatusOK, rec.Code)
	catalog := decode[ListActivityTypesResponse](t, rec)
	require.Len(t, catalog.Items, len(domain.PredefinedTypes))

	rec = e.do(http.MethodPost, "/v1/activities/types", `{"name":"climbing"}`, writer)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[ActivityTypeView](t, rec)
	require.True(t, created.Custom)
	require.Equal(t, domain.DefaultIcon, created.Icon)

	// Duplicates and predefined names conflict.
	rec = e.do(http.MethodPost, "/v1/activities/types", `{"name":"climbing"}`, writer)
	require.Equal(t, http.StatusConflict, rec.Code)
	rec = e.do(http.MethodPost, "/v1/activities/types", `{"name":"walking"}`, writer)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(http.MethodGet, "/v1/activities/types", "", writer)
	catalog = decode[ListActivityTypesResponse](t, rec)
	require.Len(t, catalog.Items, len(domain.PredefinedTypes)+1)
}

func TestStatsSummaryOverHTTP(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	stepCount := 11000
	end := day.Add(9 * time.Hour)
	require.NoError(t, e.activities.Add(ctx, domain.Activity{
		ID: "a1", Type: domain.TypeWalking, UserID: "u1",
		StartTime: day.Add(8 * time.Hour), EndTime: &end, Steps: &stepCount,
	}))

	rec := e.do(http.MethodGet, "/v1/stats/summary?date=2024-05-01", "", claimsWith(auth.ScopeTrackingRead))
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[DailySummaryResponse](t, rec)
	require.Equal(t, 11000, summary.Steps)
	require.True(t, summary.StepGoalMet)
	require.True(t, summary.CalorieGoalMet)

	rec = e.do(http.MethodGet, "/v1/stats/summary?date=bogus", "", claimsWith(auth.ScopeTrackingRead))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBMIOverHTTP(t *testing.T) {
	e := newEnv(t)
	reader := claimsWith(auth.ScopeTrackingRead)

	rec := e.do(http.MethodGet, "/v1/stats/bmi?weight_kg=70&height_m=1.80", "", reader)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[BMIResponse](t, rec)
	require.Equal(t, "normal", resp.Category)
	require.NotEmpty(t, resp.Advice)

	rec = e.do(http.MethodGet, "/v1/stats/bmi?weight_kg=70", "", reader)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduledNotificationsOverHTTP(t *testing.T) {
	e := newEnv(t)
	_, err := e.scheduler.ScheduleAfter(context.Background(), "u1", notify.Notification{Title: "hi"}, time.Hour)
	require.NoError(t, err)
	_, err = e.scheduler.ScheduleAfter(context.Background(), "u2", notify.Notification{Title: "other"}, time.Hour)
	require.NoError(t, err)

	rec := e.do(http.MethodGet, "/v1/notifications/scheduled", "", claimsWith(auth.ScopeNotificationsRead))
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[ListScheduledResponse](t, rec)
	require.Len(t, listed.Items, 1)
	require.Equal(t, "hi", listed.Items[0].Title)
}

func TestPermissionsRoundTrip(t *testing.T) {
	e := newEnv(t)
	writer := claimsWith(auth.ScopeTrackingWrite)

	rec := e.do(http.MethodGet, "/v1/permissions", "", writer)
	require.Equal(t, http.StatusOK, rec.Code)
	perms := decode[domain.Permissions](t, rec)
	require.False(t, perms.ForegroundLocationGranted)

	rec = e.do(http.MethodPut, "/v1/permissions",
		`{"foreground_location_granted":true,"notification_granted":true}`, writer)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(http.MethodGet, "/v1/permissions", "", writer)
	perms = decode[domain.Permissions](t, rec)
	require.True(t, perms.ForegroundLocationGranted)
	require.True(t, perms.NotificationGranted)
	require.Equal(t, "u1", perms.UserID)

	// Granting notifications arms the daily nudge, once.
	rec = e.do(http.MethodPut, "/v1/permissions",
		`{"foreground_location_granted":true,"notification_granted":true}`, writer)
	require.Equal(t, http.StatusOK, rec.Code)
	pending, err := e.scheduler.ListScheduled(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.True(t, pending[0].Daily)

	// Revoking disarms it.
	rec = e.do(http.MethodPut, "/v1/permissions", `{"foreground_location_granted":true}`, writer)
	require.Equal(t, http.StatusOK, rec.Code)
	pending, err = e.scheduler.ListScheduled(context.Background(), "u1")
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	rec := e.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
