// Package session runs manually started tracking sessions from start to
// persisted activity.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/location"
	"example.com/tracker/internal/observability"
	"example.com/tracker/internal/steps"
	"example.com/tracker/internal/storage"
)

// CompletionListener is told when a session completes, so the inactivity
// reminder can re-arm.
type CompletionListener interface {
	ActivityCompleted(ctx context.Context, userID string) error
}

// Progress receives live foreground updates while a session runs. Both
// callbacks may be nil. The values shown here are display-only: the final
// persisted numbers come from the background accumulators.
type Progress struct {
	OnStep func(count int)
	OnPath func(path []domain.Coordinate)
}

// Option configures optional behaviour for the Engine.
type Option func(*Engine)

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithCompletionListener registers the completion listener.
func WithCompletionListener(listener CompletionListener) Option {
	return func(e *Engine) { e.completion = listener }
}

// Engine owns the single manual tracking session. Starting runs both the
// foreground accumulators (for live display) and the background ones (the
// source of record); stopping folds only the background results into the
// persisted activity.
type Engine struct {
	gateway    storage.Gateway
	detector   *steps.Detector
	tracker    *location.Tracker
	activities domain.ActivityRepository
	completion CompletionListener
	logger     *log.Logger
	now        func() time.Time

	mu      sync.Mutex
	current *domain.Activity
}

// NewEngine constructs an Engine.
func NewEngine(
	gateway storage.Gateway,
	detector *steps.Detector,
	tracker *location.Tracker,
	activities domain.ActivityRepository,
	opts ...Option,
) *Engine {
	e := &Engine{
		gateway:    gateway,
		detector:   detector,
		tracker:    tracker,
		activities: activities,
		logger:     log.New(log.Writer(), "[session] ", log.LstdFlags),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start opens a new manual session of the given type. At most one manual
// session runs at a time; a second start fails with domain.ErrSessionActive.
// Foreground location permission is required.
func (e *Engine) Start(ctx context.Context, userID string, activityType domain.ActivityType, progress Progress) (domain.Activity, error) {
	perms, ok, err := storage.GetJSON[domain.Permissions](ctx, e.gateway, storage.PermissionsKey(userID))
	if err != nil {
		return domain.Activity{}, err
	}
	if !ok || !perms.ForegroundLocationGranted {
		return domain.Activity{}, fmt.Errorf("starting session: %w", domain.ErrPermissionDenied)
	}

	e.mu.Lock()
	if e.current != nil {
		e.mu.Unlock()
		return domain.Activity{}, domain.ErrSessionActive
	}
	activity := domain.Activity{
		ID:        domain.NewActivityID(),
		Type:      activityType,
		UserID:    userID,
		StartTime: e.now(),
	}
	e.current = &activity
	e.mu.Unlock()

	fail := func(err error) (domain.Activity, error) {
		e.mu.Lock()
		e.current = nil
		e.mu.Unlock()
		return domain.Activity{}, err
	}

	if err := e.tracker.StartForeground(ctx, activity.ID, progress.OnPath); err != nil {
		return fail(err)
	}
	if err := e.tracker.StartBackground(ctx, activity.ID); err != nil {
		return fail(err)
	}
	if activityType.StepBearing() {
		if err := e.detector.StartForeground(ctx, activity.ID, progress.OnStep); err != nil {
			return fail(err)
		}
		if err := e.detector.StartBackground(ctx, activity.ID); err != nil {
			return fail(err)
		}
	}

	observability.RecordSession("manual", "start")
	e.logger.Printf("started %s session %s for user %s", activityType, activity.ID, userID)
	return activity, nil
}

// Stop closes the open session, folds the background results into the
// activity, and persists it. With no open session it fails with
// domain.ErrNoActiveSession.
func (e *Engine) Stop(ctx context.Context) (domain.Activity, error) {
	e.mu.Lock()
	current := e.current
	e.mu.Unlock()

	if current == nil {
		return domain.Activity{}, domain.ErrNoActiveSession
	}
	activity := *current
	end := e.now()
	activity.EndTime = &end

	// The foreground accumulators only ever fed the live display; their
	// results are discarded in favour of the background ones.
	fgPath, err := e.tracker.StopForeground(ctx, activity.ID)
	if err != nil {
		return domain.Activity{}, err
	}
	bgPath, err := e.tracker.StopBackground(ctx, activity.ID)
	if err != nil {
		return domain.Activity{}, err
	}
	if len(fgPath) > len(bgPath) {
		e.logger.Printf("session %s: foreground path (%d points) longer than background path (%d points), background wins", activity.ID, len(fgPath), len(bgPath))
	}

	if activity.Type.StepBearing() {
		if _, err := e.detector.StopForeground(ctx, activity.ID); err != nil {
			return domain.Activity{}, err
		}
		count, err := e.detector.StopBackground(ctx, activity.ID)
		if err != nil {
			return domain.Activity{}, err
		}
		activity.Steps = &count
	}

	if len(bgPath) > 0 {
		activity.StartLocation = &bgPath[0]
		activity.EndLocation = &bgPath[len(bgPath)-1]
		activity.Path = bgPath
	}

	// The session stays open until the write lands, so a failed persist can
	// be retried with another Stop.
	if err := e.activities.Add(ctx, activity); err != nil {
		return domain.Activity{}, err
	}
	e.mu.Lock()
	if e.current != nil && e.current.ID == activity.ID {
		e.current = nil
	}
	e.mu.Unlock()

	observability.RecordActivityPersisted(end)
	observability.RecordSession("manual", "stop")

	if e.completion != nil {
		if err := e.completion.ActivityCompleted(ctx, activity.UserID); err != nil {
			e.logger.Printf("completion listener for session %s: %v", activity.ID, err)
		}
	}

	e.logger.Printf("stopped session %s: %d path points", activity.ID, len(activity.Path))
	return activity, nil
}

// Current returns a copy of the open session, or nil.
func (e *Engine) Current() *domain.Activity {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	copied := *e.current
	return &copied
}
