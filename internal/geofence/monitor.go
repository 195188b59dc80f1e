// Package geofence watches position samples for region crossings and turns
// them into automatically tracked activities.
package geofence

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/geo"
	"example.com/tracker/internal/location"
	"example.com/tracker/internal/notify"
	"example.com/tracker/internal/observability"
	"example.com/tracker/internal/sensors"
	"example.com/tracker/internal/steps"
	"example.com/tracker/internal/storage"
)

// CompletionListener is told when a geofence exit closes an activity, so the
// inactivity reminder can re-arm.
type CompletionListener interface {
	ActivityCompleted(ctx context.Context, userID string) error
}

// MonitorOption configures optional behaviour for the Monitor.
type MonitorOption func(*Monitor)

// WithMonitorLogger overrides the logger.
func WithMonitorLogger(logger *log.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = logger }
}

// WithCompletionListener registers the completion listener.
func WithCompletionListener(listener CompletionListener) MonitorOption {
	return func(m *Monitor) { m.completion = listener }
}

// WithMonitorClock overrides the time source.
func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// Monitor evaluates every position sample against the monitored geofence
// list, in list order. Crossing into a region starts a background-tracked
// activity of the region's type; crossing out closes it with the accumulated
// background results. Membership state is persisted so a respawned process
// does not re-fire entry events for a region the user never left.
type Monitor struct {
	gateway    storage.Gateway
	geofences  domain.GeofenceRepository
	activities domain.ActivityRepository
	detector   *steps.Detector
	tracker    *location.Tracker
	stream     sensors.PositionStream
	sender     notify.Sender
	completion CompletionListener
	logger     *log.Logger
	now        func() time.Time

	mu      sync.Mutex
	userID  string
	fences  []domain.Geofence
	sub     sensors.Subscription
	running bool
}

// NewMonitor constructs a Monitor.
func NewMonitor(
	gateway storage.Gateway,
	geofences domain.GeofenceRepository,
	activities domain.ActivityRepository,
	detector *steps.Detector,
	tracker *location.Tracker,
	stream sensors.PositionStream,
	sender notify.Sender,
	opts ...MonitorOption,
) *Monitor {
	m := &Monitor{
		gateway:    gateway,
		geofences:  geofences,
		activities: activities,
		detector:   detector,
		tracker:    tracker,
		stream:     stream,
		sender:     sender,
		logger:     log.New(log.Writer(), "[geofence] ", log.LstdFlags),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins monitoring the user's geofences. A start while already
// running refreshes the monitored list instead of failing. Foreground
// location permission is required.
func (m *Monitor) Start(ctx context.Context, userID string) error {
	perms, ok, err := storage.GetJSON[domain.Permissions](ctx, m.gateway, storage.PermissionsKey(userID))
	if err != nil {
		return err
	}
	if !ok || !perms.ForegroundLocationGranted {
		return fmt.Errorf("starting geofence monitoring: %w", domain.ErrPermissionDenied)
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Printf("geofence monitoring already running, refreshing list")
		return m.Refresh(ctx)
	}
	m.userID = userID
	m.running = true
	m.mu.Unlock()

	if err := m.Refresh(ctx); err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return err
	}

	sub, err := m.stream.Subscribe(sensors.DefaultPositionOptions(), func(coord domain.Coordinate) {
		if err := m.HandlePosition(context.Background(), coord); err != nil {
			m.logger.Printf("evaluating position: %v", err)
		}
	})
	if err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.sub = sub
	m.mu.Unlock()
	m.logger.Printf("geofence monitoring started for user %s", userID)
	return nil
}

// Stop halts monitoring. Stopping while not running is a warned no-op.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		m.logger.Printf("geofence monitoring was not running")
		return nil
	}
	sub := m.sub
	m.sub = nil
	m.running = false
	m.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	m.logger.Printf("geofence monitoring stopped")
	return nil
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Refresh reloads the monitored geofence list from the repository. Called
// after any geofence mutation while monitoring is active.
func (m *Monitor) Refresh(ctx context.Context) error {
	m.mu.Lock()
	userID := m.userID
	m.mu.Unlock()

	fences, err := m.geofences.FindByUser(ctx, userID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.fences = fences
	m.mu.Unlock()
	m.logger.Printf("monitoring %d geofences for user %s", len(fences), userID)
	return nil
}

// HandlePosition evaluates one sample against every monitored geofence in
// list order. This is also the background-task entry point: batches recorded
// while the interactive process was suspended replay through here.
func (m *Monitor) HandlePosition(ctx context.Context, coord domain.Coordinate) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	fences := make([]domain.Geofence, len(m.fences))
	copy(fences, m.fences)
	userID := m.userID
	m.mu.Unlock()

	states, _, err := storage.GetJSON[map[string]bool](ctx, m.gateway, storage.KeyGeofenceStates)
	if err != nil {
		return err
	}
	if states == nil {
		states = make(map[string]bool)
	}

	changed := false
	for _, fence := range fences {
		distance := geo.DistanceMeters(coord.Latitude, coord.Longitude, fence.Latitude, fence.Longitude)
		inside := distance <= fence.Radius
		wasInside := states[fence.ID]

		switch {
		case inside && !wasInside:
			states[fence.ID] = true
			changed = true
			if err := m.handleEntry(ctx, userID, fence, coord); err != nil {
				m.logger.Printf("geofence %s entry: %v", fence.ID, err)
			}
		case !inside && wasInside:
			states[fence.ID] = false
			changed = true
			if err := m.handleExit(ctx, userID, fence, coord); err != nil {
				m.logger.Printf("geofence %s exit: %v", fence.ID, err)
			}
		}
	}

	if changed {
		return storage.SetJSON(ctx, m.gateway, storage.KeyGeofenceStates, states)
	}
	return nil
}

// HandleBatch replays a batch of samples in order.
func (m *Monitor) HandleBatch(ctx context.Context, batch []domain.Coordinate) error {
	for _, coord := range batch {
		if err := m.HandlePosition(ctx, coord); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) handleEntry(ctx context.Context, userID string, fence domain.Geofence, coord domain.Coordinate) error {
	observability.RecordGeofenceTransition("enter")
	now := m.now()

	if err := m.sender.Send(ctx, userID, notify.Notification{
		Title: "Activity started",
		Body:  fmt.Sprintf("You arrived at %s. Tracking %s.", fence.Name, fence.ActivityType),
	}); err != nil {
		m.logger.Printf("entry notification for geofence %s: %v", fence.ID, err)
	}

	activity := domain.Activity{
		ID:            domain.NewActivityID(),
		Type:          fence.ActivityType,
		UserID:        userID,
		StartTime:     now,
		StartLocation: &coord,
		GeofenceID:    fence.ID,
	}
	if err := m.activities.Add(ctx, activity); err != nil {
		return err
	}
	if err := storage.SetJSON(ctx, m.gateway, storage.GeofenceActivityKey(fence.ID), activity); err != nil {
		return err
	}

	fence.EntryTime = &now
	fence.ExitTime = nil
	if err := m.geofences.Update(ctx, fence.ID, fence); err != nil {
		m.logger.Printf("recording entry time for geofence %s: %v", fence.ID, err)
	}

	if activity.Type.StepBearing() {
		if err := m.detector.StartBackground(ctx, activity.ID); err != nil {
			return err
		}
	}
	if err := m.tracker.StartBackground(ctx, activity.ID); err != nil {
		return err
	}

	observability.RecordSession("geofence", "start")
	m.logger.Printf("entered geofence %s, started %s activity %s", fence.Name, activity.Type, activity.ID)
	return nil
}

func (m *Monitor) handleExit(ctx context.Context, userID string, fence domain.Geofence, coord domain.Coordinate) error {
	observability.RecordGeofenceTransition("exit")
	now := m.now()

	if err := m.sender.Send(ctx, userID, notify.Notification{
		Title: "Activity finished",
		Body:  fmt.Sprintf("You left %s.", fence.Name),
	}); err != nil {
		m.logger.Printf("exit notification for geofence %s: %v", fence.ID, err)
	}

	fence.ExitTime = &now
	if err := m.geofences.Update(ctx, fence.ID, fence); err != nil {
		m.logger.Printf("recording exit time for geofence %s: %v", fence.ID, err)
	}

	activityKey := storage.GeofenceActivityKey(fence.ID)
	activity, ok, err := storage.GetJSON[domain.Activity](ctx, m.gateway, activityKey)
	if err != nil {
		return err
	}
	if !ok {
		m.logger.Printf("no open activity for geofence %s on exit", fence.ID)
		return nil
	}

	// The exit sample closes the activity; the start location keeps the
	// entry sample stamped at creation.
	update := domain.ActivityUpdate{EndTime: &now, EndLocation: &coord}
	if activity.Type.StepBearing() {
		count, err := m.detector.StopBackground(ctx, activity.ID)
		if err != nil {
			return err
		}
		update.Steps = &count
	}
	path, err := m.tracker.StopBackground(ctx, activity.ID)
	if err != nil {
		return err
	}
	if len(path) > 0 {
		update.Path = path
	}

	if err := m.activities.Update(ctx, activity.ID, update); err != nil {
		return err
	}
	observability.RecordActivityPersisted(now)
	if err := m.gateway.Remove(ctx, activityKey); err != nil {
		return err
	}

	if m.completion != nil {
		if err := m.completion.ActivityCompleted(ctx, userID); err != nil {
			m.logger.Printf("completion listener for activity %s: %v", activity.ID, err)
		}
	}

	observability.RecordSession("geofence", "stop")
	m.logger.Printf("left geofence %s, closed activity %s", fence.Name, activity.ID)
	return nil
}
