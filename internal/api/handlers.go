// Package api exposes HTTP handlers for the tracker service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/tracker/internal/auth"
	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/geofence"
	"example.com/tracker/internal/notify"
	"example.com/tracker/internal/persistence"
	"example.com/tracker/internal/session"
	"example.com/tracker/internal/stats"
	"example.com/tracker/internal/storage"
)

// Handler coordinates HTTP requests with the tracking services.
type Handler struct {
	engine     *session.Engine
	activities domain.ActivityRepository
	geofences  *geofence.Service
	monitor    *geofence.Monitor
	scheduler  *notify.Scheduler
	stats      *stats.Service
	gateway    storage.Gateway
}

// NewHandler builds a Handler.
func NewHandler(
	engine *session.Engine,
	activities domain.ActivityRepository,
	geofences *geofence.Service,
	monitor *geofence.Monitor,
	scheduler *notify.Scheduler,
	statsService *stats.Service,
	gateway storage.Gateway,
) *Handler {
	return &Handler{
		engine:     engine,
		activities: activities,
		geofences:  geofences,
		monitor:    monitor,
		scheduler:  scheduler,
		stats:      statsService,
		gateway:    gateway,
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/session", h.currentSession)
	mux.HandleFunc("/v1/session/start", h.startSession)
	mux.HandleFunc("/v1/session/stop", h.stopSession)
	mux.HandleFunc("/v1/activities", h.listActivities)
	mux.HandleFunc("/v1/activities/types", h.activityTypes)
	mux.HandleFunc("/v1/activities/", h.activityByID)
	mux.HandleFunc("/v1/geofences", h.geofenceCollection)
	mux.HandleFunc("/v1/geofences/monitoring/start", h.startMonitoring)
	mux.HandleFunc("/v1/geofences/monitoring/stop", h.stopMonitoring)
	mux.HandleFunc("/v1/geofences/", h.geofenceByID)
	mux.HandleFunc("/v1/notifications/scheduled", h.scheduledNotifications)
	mux.HandleFunc("/v1/stats/summary", h.statsSummary)
	mux.HandleFunc("/v1/stats/bmi", h.statsBMI)
	mux.HandleFunc("/v1/permissions", h.permissions)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeTrackingWrite)
	if !ok {
		return
	}

	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.Type) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "type is required")
		return
	}

	activity, err := h.engine.Start(r.Context(), claims.Subject, domain.ActivityType(req.Type), session.Progress{})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSessionActive):
			writeError(w, http.StatusConflict, "session_active", "a tracking session is already active")
		case errors.Is(err, domain.ErrPermissionDenied):
			writeError(w, http.StatusForbidden, "permission_denied", "location permission not granted")
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, toActivityView(activity))
}

func (h *Handler) stopSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := requireScope(w, r, auth.ScopeTrackingWrite); !ok {
		return
	}

	activity, err := h.engine.Stop(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveSession) {
			writeError(w, http.StatusConflict, "no_active_session", "no tracking session is active")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(activity))
}

func (h *Handler) currentSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := requireScope(w, r, auth.ScopeTrackingRead, auth.ScopeTrackingWrite); !ok {
		return
	}

	current := h.engine.Current()
	if current == nil {
		writeError(w, http.StatusNotFound, "not_found", "no tracking session is active")
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*current))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeTrackingRead, auth.ScopeTrackingWrite)
	if !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	page, next, err := h.activities.FindByUser(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]ActivityView, 0, len(page))
	for _, activity := range page {
		items = append(items, toActivityView(activity))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) activityByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		claims, ok := requireScope(w, r, auth.ScopeTrackingRead, auth.ScopeTrackingWrite)
		if !ok {
			return
		}
		activity, err := h.activities.FindByID(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		if activity == nil || activity.UserID != claims.Subject {
			writeError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		}
		writeJSON(w, http.StatusOK, toActivityView(*activity))
	case http.MethodDelete:
		claims, ok := requireScope(w, r, auth.ScopeTrackingWrite)
		if !ok {
			return
		}
		activity, err := h.activities.FindByID(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		if activity == nil || activity.UserID != claims.Subject {
			writeError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		}
		if err := h.activities.Delete(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) activityTypes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := requireScope(w, r, auth.ScopeTrackingRead, auth.ScopeTrackingWrite); !ok {
			return
		}
		custom, _, err := storage.GetJSON[[]string](r.Context(), h.gateway, storage.KeyCustomActivityTypes)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}

		views := make([]ActivityTypeView, 0, len(domain.PredefinedTypes)+len(custom))
		for _, activityType := range domain.PredefinedTypes {
			views = append(views, toActivityTypeView(activityType, false))
		}
		for _, name := range custom {
			views = append(views, toActivityTypeView(domain.ActivityType(name), true))
		}
		writeJSON(w, http.StatusOK, ListActivityTypesResponse{Items: views})
	case http.MethodPost:
		if _, ok := requireScope(w, r, auth.ScopeTrackingWrite); !ok {
			return
		}
		var req CreateActivityTypeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "validation_failed", "name is required")
			return
		}
		for _, predefined := range domain.PredefinedTypes {
			if string(predefined) == name {
				writeError(w, http.StatusConflict, "already_exists", "type is predefined")
				return
			}
		}

		custom, _, err := storage.GetJSON[[]string](r.Context(), h.gateway, storage.KeyCustomActivityTypes)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		for _, existing := range custom {
			if existing == name {
				writeError(w, http.StatusConflict, "already_exists", "type already defined")
				return
			}
		}
		custom = append(custom, name)
		if err := storage.SetJSON(r.Context(), h.gateway, storage.KeyCustomActivityTypes, custom); err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, toActivityTypeView(domain.ActivityType(name), true))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) geofenceCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		claims, ok := requireScope(w, r, auth.ScopeTrackingRead, auth.ScopeGeofencesWrite)
		if !ok {
			return
		}
		fences, err := h.geofences.List(r.Context(), claims.Subject)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		items := make([]GeofenceView, 0, len(fences))
		for _, fence := range fences {
			items = append(items, toGeofenceView(fence))
		}
		writeJSON(w, http.StatusOK, ListGeofencesResponse{Items: items})
	case http.MethodPost:
		claims, ok := requireScope(w, r, auth.ScopeGeofencesWrite)
		if !ok {
			return
		}
		var req GeofenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		fence, err := h.geofences.Create(r.Context(), req.toDomain(claims.Subject))
		if err != nil {
			writeGeofenceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toGeofenceView(fence))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) geofenceByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/geofences/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing geofence id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		claims, ok := requireScope(w, r, auth.ScopeTrackingRead, auth.ScopeGeofencesWrite)
		if !ok {
			return
		}
		fence, err := h.geofences.Get(r.Context(), id)
		if err != nil {
			writeGeofenceError(w, err)
			return
		}
		if fence.UserID != claims.Subject {
			writeError(w, http.StatusNotFound, "not_found", "geofence not found")
			return
		}
		writeJSON(w, http.StatusOK, toGeofenceView(fence))
	case http.MethodPut:
		claims, ok := requireScope(w, r, auth.ScopeGeofencesWrite)
		if !ok {
			return
		}
		var req GeofenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		fence, err := h.geofences.Update(r.Context(), id, req.toDomain(claims.Subject))
		if err != nil {
			writeGeofenceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toGeofenceView(fence))
	case http.MethodDelete:
		if _, ok := requireScope(w, r, auth.ScopeGeofencesWrite); !ok {
			return
		}
		if err := h.geofences.Delete(r.Context(), id); err != nil {
			writeGeofenceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) startMonitoring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeGeofencesWrite)
	if !ok {
		return
	}
	if err := h.monitor.Start(r.Context(), claims.Subject); err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			writeError(w, http.StatusForbidden, "permission_denied", "location permission not granted")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, MonitoringStatusResponse{Running: true})
}

func (h *Handler) stopMonitoring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := requireScope(w, r, auth.ScopeGeofencesWrite); !ok {
		return
	}
	if err := h.monitor.Stop(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, MonitoringStatusResponse{Running: false})
}

func (h *Handler) scheduledNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeNotificationsRead, auth.ScopeNotificationsWrite)
	if !ok {
		return
	}
	pending, err := h.scheduler.ListScheduled(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	items := make([]ScheduledNotificationView, 0, len(pending))
	for _, entry := range pending {
		items = append(items, ScheduledNotificationView{
			ID:     entry.ID,
			Title:  entry.Notification.Title,
			Body:   entry.Notification.Body,
			FireAt: entry.FireAt,
			Daily:  entry.Daily,
		})
	}
	writeJSON(w, http.StatusOK, ListScheduledResponse{Items: items})
}

func (h *Handler) statsSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeTrackingRead, auth.ScopeTrackingWrite)
	if !ok {
		return
	}

	day := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	summary, err := h.stats.Summarize(r.Context(), claims.Subject, day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, DailySummaryResponse{
		Date:           summary.Date.Format("2006-01-02"),
		Activities:     summary.Activities,
		Steps:          summary.Steps,
		DurationSec:    int64(summary.Duration.Seconds()),
		Calories:       summary.Calories,
		StepGoal:       domain.StepGoal,
		CalorieGoal:    domain.CalorieGoal,
		StepGoalMet:    summary.StepGoalMet,
		CalorieGoalMet: summary.CalorieGoalMet,
	})
}

func (h *Handler) statsBMI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := requireScope(w, r, auth.ScopeTrackingRead, auth.ScopeTrackingWrite); !ok {
		return
	}

	weight, err := strconv.ParseFloat(r.URL.Query().Get("weight_kg"), 64)
	if err != nil || weight <= 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "weight_kg must be a positive number")
		return
	}
	height, err := strconv.ParseFloat(r.URL.Query().Get("height_m"), 64)
	if err != nil || height <= 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "height_m must be a positive number")
		return
	}

	bmi := stats.BMI(weight, height)
	category := stats.Categorize(bmi)
	writeJSON(w, http.StatusOK, BMIResponse{
		BMI:      bmi,
		Category: string(category),
		Advice:   stats.Advice(category),
	})
}

func (h *Handler) permissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		claims, ok := requireScope(w, r, auth.ScopeTrackingRead, auth.ScopeTrackingWrite)
		if !ok {
			return
		}
		perms, found, err := storage.GetJSON[domain.Permissions](r.Context(), h.gateway, storage.PermissionsKey(claims.Subject))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		if !found {
			perms = domain.Permissions{UserID: claims.Subject}
		}
		writeJSON(w, http.StatusOK, perms)
	case http.MethodPut:
		claims, ok := requireScope(w, r, auth.ScopeTrackingWrite)
		if !ok {
			return
		}
		var perms domain.Permissions
		if err := json.NewDecoder(r.Body).Decode(&perms); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		perms.UserID = claims.Subject
		if err := storage.SetJSON(r.Context(), h.gateway, storage.PermissionsKey(claims.Subject), perms); err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		if err := h.syncDailyReminder(r.Context(), claims.Subject, perms.NotificationGranted); err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, perms)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// syncDailyReminder keeps the recurring daily nudge in step with the
// notification permission: granting arms it, revoking disarms it.
func (h *Handler) syncDailyReminder(ctx context.Context, userID string, granted bool) error {
	pending, err := h.scheduler.ListScheduled(ctx, userID)
	if err != nil {
		return err
	}
	for _, entry := range pending {
		if !entry.Daily {
			continue
		}
		if granted {
			return nil // already armed
		}
		if err := h.scheduler.Cancel(ctx, entry.ID); err != nil {
			return err
		}
	}
	if !granted {
		return nil
	}
	_, err = h.scheduler.ScheduleDaily(ctx, userID, notify.DailyReminderNotification,
		notify.DailyReminderHour, notify.DailyReminderMinute)
	return err
}

func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+strings.Join(scopes, " or ")+" required")
	return nil, false
}

func writeGeofenceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrGeofenceNotFound):
		writeError(w, http.StatusNotFound, "not_found", "geofence not found")
	case errors.Is(err, geofence.ErrMissingName), errors.Is(err, geofence.ErrInvalidRadius):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
