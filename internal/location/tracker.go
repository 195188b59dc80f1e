// Package location accumulates position paths for active tracking sessions.
package location

import (
	"context"
	"log"
	"sync"

	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/observability"
	"example.com/tracker/internal/sensors"
	"example.com/tracker/internal/storage"
)

// Option configures optional behaviour for the Tracker.
type Option func(*Tracker)

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithPositionOptions overrides the subscription options.
func WithPositionOptions(opts sensors.PositionOptions) Option {
	return func(t *Tracker) { t.posOpts = opts }
}

// Tracker maintains one persisted, append-only coordinate path per active
// tracking session. Foreground and background paths are independent
// accumulators: they may run at different fidelities, and the session engine
// treats only the background path as canonical at stop time.
type Tracker struct {
	gateway storage.Gateway
	stream  sensors.PositionStream
	logger  *log.Logger
	posOpts sensors.PositionOptions

	mu         sync.Mutex
	foreground map[string]sensors.Subscription
	background map[string]sensors.Subscription
}

// NewTracker constructs a Tracker.
func NewTracker(gateway storage.Gateway, stream sensors.PositionStream, opts ...Option) *Tracker {
	t := &Tracker{
		gateway:    gateway,
		stream:     stream,
		logger:     log.New(log.Writer(), "[location] ", log.LstdFlags),
		posOpts:    sensors.DefaultPositionOptions(),
		foreground: make(map[string]sensors.Subscription),
		background: make(map[string]sensors.Subscription),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartForeground clears any stale persisted path for the session and begins
// appending every sample, invoking onUpdate with the full path so far. A
// second start for an already active session is a warned no-op.
func (t *Tracker) StartForeground(ctx context.Context, activityID string, onUpdate func([]domain.Coordinate)) error {
	t.mu.Lock()
	if _, active := t.foreground[activityID]; active {
		t.mu.Unlock()
		t.logger.Printf("foreground location tracking for activity %s already active", activityID)
		return nil
	}
	t.mu.Unlock()

	key := storage.ForegroundPathKey(activityID)
	if err := t.gateway.Remove(ctx, key); err != nil {
		return err
	}
	if err := storage.SetJSON(ctx, t.gateway, key, []domain.Coordinate{}); err != nil {
		return err
	}

	sub, err := t.stream.Subscribe(t.posOpts, func(coord domain.Coordinate) {
		path, _, err := storage.GetJSON[[]domain.Coordinate](ctx, t.gateway, key)
		if err != nil {
			t.logger.Printf("reading foreground path for activity %s: %v", activityID, err)
			return
		}
		path = append(path, coord)
		if err := storage.SetJSON(ctx, t.gateway, key, path); err != nil {
			t.logger.Printf("saving foreground path for activity %s: %v", activityID, err)
			return
		}
		observability.RecordPositionSample("foreground")
		if onUpdate != nil {
			onUpdate(path)
		}
	})
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.foreground[activityID] = sub
	t.mu.Unlock()
	t.logger.Printf("foreground location tracking started for activity %s", activityID)
	return nil
}

// StopForeground cancels the subscription and returns the accumulated path,
// clearing the persisted key. Stopping an inactive session returns an empty
// path.
func (t *Tracker) StopForeground(ctx context.Context, activityID string) ([]domain.Coordinate, error) {
	t.mu.Lock()
	sub, active := t.foreground[activityID]
	if active {
		delete(t.foreground, activityID)
	}
	t.mu.Unlock()

	if !active {
		t.logger.Printf("foreground location tracking for activity %s was not active", activityID)
		return nil, nil
	}
	sub.Cancel()
	t.logger.Printf("foreground location tracking stopped for activity %s", activityID)
	return t.collect(ctx, storage.ForegroundPathKey(activityID))
}

// StartBackground begins accumulating without a callback and records the
// session as the current background session so a separate execution context
// (the background task runtime) can append to the right key.
func (t *Tracker) StartBackground(ctx context.Context, activityID string) error {
	t.mu.Lock()
	if _, active := t.background[activityID]; active {
		t.mu.Unlock()
		t.logger.Printf("background location tracking for activity %s already active", activityID)
		return nil
	}
	t.mu.Unlock()

	if err := storage.SetJSON(ctx, t.gateway, storage.KeyCurrentBackgroundActivityID, activityID); err != nil {
		return err
	}

	key := storage.BackgroundPathKey(activityID)
	if err := t.gateway.Remove(ctx, key); err != nil {
		return err
	}
	if err := storage.SetJSON(ctx, t.gateway, key, []domain.Coordinate{}); err != nil {
		return err
	}

	sub, err := t.stream.Subscribe(t.posOpts, func(coord domain.Coordinate) {
		path, _, err := storage.GetJSON[[]domain.Coordinate](ctx, t.gateway, key)
		if err != nil {
			t.logger.Printf("reading background path for activity %s: %v", activityID, err)
			return
		}
		path = append(path, coord)
		if err := storage.SetJSON(ctx, t.gateway, key, path); err != nil {
			t.logger.Printf("saving background path for activity %s: %v", activityID, err)
			return
		}
		observability.RecordPositionSample("background")
	})
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.background[activityID] = sub
	t.mu.Unlock()
	t.logger.Printf("background location tracking started for activity %s", activityID)
	return nil
}

// StopBackground cancels the background subscription and returns the
// accumulated path. The current-background-session pointer is cleared only
// when it still points at this session.
func (t *Tracker) StopBackground(ctx context.Context, activityID string) ([]domain.Coordinate, error) {
	t.mu.Lock()
	sub, active := t.background[activityID]
	if active {
		delete(t.background, activityID)
	}
	t.mu.Unlock()

	if !active {
		t.logger.Printf("background location tracking for activity %s was not active", activityID)
		return nil, nil
	}
	sub.Cancel()
	t.logger.Printf("background location tracking stopped for activity %s", activityID)

	current, ok, err := storage.GetJSON[string](ctx, t.gateway, storage.KeyCurrentBackgroundActivityID)
	if err != nil {
		return nil, err
	}
	if ok && current == activityID {
		if err := t.gateway.Remove(ctx, storage.KeyCurrentBackgroundActivityID); err != nil {
			return nil, err
		}
	}

	return t.collect(ctx, storage.BackgroundPathKey(activityID))
}

// AppendBackgroundBatch is the background-task entry point. It re-reads the
// current background session pointer on every invocation — never in-memory
// state — so a batch delivered after a process respawn still lands on the
// right path key.
func (t *Tracker) AppendBackgroundBatch(ctx context.Context, batch []domain.Coordinate) error {
	if len(batch) == 0 {
		return nil
	}

	activityID, ok, err := storage.GetJSON[string](ctx, t.gateway, storage.KeyCurrentBackgroundActivityID)
	if err != nil {
		return err
	}
	if !ok {
		t.logger.Printf("no current background activity, dropping %d samples", len(batch))
		return nil
	}

	key := storage.BackgroundPathKey(activityID)
	path, _, err := storage.GetJSON[[]domain.Coordinate](ctx, t.gateway, key)
	if err != nil {
		return err
	}
	path = append(path, batch...)
	if err := storage.SetJSON(ctx, t.gateway, key, path); err != nil {
		return err
	}
	for range batch {
		observability.RecordPositionSample("background")
	}
	t.logger.Printf("appended %d background samples for activity %s (%d total)", len(batch), activityID, len(path))
	return nil
}

// Cleanup stops every active subscription, foreground and background.
func (t *Tracker) Cleanup(ctx context.Context) {
	t.mu.Lock()
	foreground := make([]string, 0, len(t.foreground))
	for id := range t.foreground {
		foreground = append(foreground, id)
	}
	background := make([]string, 0, len(t.background))
	for id := range t.background {
		background = append(background, id)
	}
	t.mu.Unlock()

	for _, id := range foreground {
		if _, err := t.StopForeground(ctx, id); err != nil {
			t.logger.Printf("cleanup foreground %s: %v", id, err)
		}
	}
	for _, id := range background {
		if _, err := t.StopBackground(ctx, id); err != nil {
			t.logger.Printf("cleanup background %s: %v", id, err)
		}
	}
}

func (t *Tracker) collect(ctx context.Context, key string) ([]domain.Coordinate, error) {
	path, _, err := storage.GetJSON[[]domain.Coordinate](ctx, t.gateway, key)
	if err != nil {
		return nil, err
	}
	if err := t.gateway.Remove(ctx, key); err != nil {
		return nil, err
	}
	return path, nil
}
