// Package steps counts steps from raw accelerometer samples using a fixed
// magnitude threshold.
package steps

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"example.com/tracker/internal/observability"
	"example.com/tracker/internal/sensors"
	"example.com/tracker/internal/storage"
)

const (
	// DefaultThreshold is the magnitude above which a sample registers a
	// step. Edge-triggered: fast shaking double-counts. Known approximation.
	DefaultThreshold = 1.2
	// DefaultSamplingInterval is the accelerometer polling interval.
	DefaultSamplingInterval = 200 * time.Millisecond
)

// Option configures optional behaviour for the Detector.
type Option func(*Detector)

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(d *Detector) { d.logger = logger }
}

// WithThreshold overrides the detection threshold.
func WithThreshold(threshold float64) Option {
	return func(d *Detector) { d.threshold = threshold }
}

// WithSamplingInterval overrides the accelerometer sampling interval.
func WithSamplingInterval(interval time.Duration) Option {
	return func(d *Detector) { d.interval = interval }
}

// Detector maintains one running, persisted step counter per active tracking
// session. Foreground and background subscriptions are tracked separately;
// the persisted counters survive process restarts, the subscriptions do not.
type Detector struct {
	gateway   storage.Gateway
	accel     sensors.AccelerometerStream
	logger    *log.Logger
	threshold float64
	interval  time.Duration

	mu         sync.Mutex
	foreground map[string]sensors.Subscription
	background map[string]sensors.Subscription
}

// NewDetector constructs a Detector.
func NewDetector(gateway storage.Gateway, accel sensors.AccelerometerStream, opts ...Option) *Detector {
	d := &Detector{
		gateway:    gateway,
		accel:      accel,
		logger:     log.New(log.Writer(), "[steps] ", log.LstdFlags),
		threshold:  DefaultThreshold,
		interval:   DefaultSamplingInterval,
		foreground: make(map[string]sensors.Subscription),
		background: make(map[string]sensors.Subscription),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// StartForeground resets the persisted counter for the session and begins
// counting, invoking onStep with the new total after each detected step.
// A second start for an already active session is a warned no-op.
func (d *Detector) StartForeground(ctx context.Context, activityID string, onStep func(int)) error {
	d.mu.Lock()
	if _, active := d.foreground[activityID]; active {
		d.mu.Unlock()
		d.logger.Printf("foreground step counting for activity %s already active", activityID)
		return nil
	}
	d.mu.Unlock()

	key := storage.ForegroundStepsKey(activityID)
	if err := storage.SetJSON(ctx, d.gateway, key, 0); err != nil {
		return err
	}

	sub, err := d.accel.Subscribe(d.interval, func(sample sensors.AccelSample) {
		if !d.detectStep(sample) {
			return
		}
		count, _, err := storage.GetJSON[int](ctx, d.gateway, key)
		if err != nil {
			d.logger.Printf("reading foreground steps for activity %s: %v", activityID, err)
			return
		}
		count++
		if err := storage.SetJSON(ctx, d.gateway, key, count); err != nil {
			d.logger.Printf("saving foreground steps for activity %s: %v", activityID, err)
			return
		}
		observability.RecordStepDetected("foreground")
		if onStep != nil {
			onStep(count)
		}
	})
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.foreground[activityID] = sub
	d.mu.Unlock()
	d.logger.Printf("foreground step counting started for activity %s", activityID)
	return nil
}

// StopForeground cancels the subscription and returns the accumulated count,
// clearing the persisted counter. Stopping an inactive session returns 0.
func (d *Detector) StopForeground(ctx context.Context, activityID string) (int, error) {
	d.mu.Lock()
	sub, active := d.foreground[activityID]
	if active {
		delete(d.foreground, activityID)
	}
	d.mu.Unlock()

	if !active {
		d.logger.Printf("foreground step counting for activity %s was not active", activityID)
		return 0, nil
	}
	sub.Cancel()
	d.logger.Printf("foreground step counting stopped for activity %s", activityID)
	return d.collect(ctx, storage.ForegroundStepsKey(activityID))
}

// StartBackground begins counting without a callback. Unlike foreground
// start, an existing persisted counter is kept so a re-spawned process can
// resume counting for the same session.
func (d *Detector) StartBackground(ctx context.Context, activityID string) error {
	d.mu.Lock()
	if _, active := d.background[activityID]; active {
		d.mu.Unlock()
		d.logger.Printf("background step counting for activity %s already active", activityID)
		return nil
	}
	d.mu.Unlock()

	key := storage.BackgroundStepsKey(activityID)
	if _, ok, err := storage.GetJSON[int](ctx, d.gateway, key); err != nil {
		return err
	} else if !ok {
		if err := storage.SetJSON(ctx, d.gateway, key, 0); err != nil {
			return err
		}
	}

	sub, err := d.accel.Subscribe(d.interval, func(sample sensors.AccelSample) {
		if !d.detectStep(sample) {
			return
		}
		count, _, err := storage.GetJSON[int](ctx, d.gateway, key)
		if err != nil {
			d.logger.Printf("reading background steps for activity %s: %v", activityID, err)
			return
		}
		count++
		if err := storage.SetJSON(ctx, d.gateway, key, count); err != nil {
			d.logger.Printf("saving background steps for activity %s: %v", activityID, err)
			return
		}
		observability.RecordStepDetected("background")
	})
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.background[activityID] = sub
	d.mu.Unlock()
	d.logger.Printf("background step counting started for activity %s", activityID)
	return nil
}

// StopBackground cancels the background subscription and returns the
// accumulated count, clearing the persisted counter.
func (d *Detector) StopBackground(ctx context.Context, activityID string) (int, error) {
	d.mu.Lock()
	sub, active := d.background[activityID]
	if active {
		delete(d.background, activityID)
	}
	d.mu.Unlock()

	if !active {
		d.logger.Printf("background step counting for activity %s was not active", activityID)
		return 0, nil
	}
	sub.Cancel()
	d.logger.Printf("background step counting stopped for activity %s", activityID)
	return d.collect(ctx, storage.BackgroundStepsKey(activityID))
}

// Cleanup stops every active subscription, foreground and background.
func (d *Detector) Cleanup(ctx context.Context) {
	d.mu.Lock()
	foreground := make([]string, 0, len(d.foreground))
	for id := range d.foreground {
		foreground = append(foreground, id)
	}
	background := make([]string, 0, len(d.background))
	for id := range d.background {
		background = append(background, id)
	}
	d.mu.Unlock()

	for _, id := range foreground {
		if _, err := d.StopForeground(ctx, id); err != nil {
			d.logger.Printf("cleanup foreground %s: %v", id, err)
		}
	}
	for _, id := range background {
		if _, err := d.StopBackground(ctx, id); err != nil {
			d.logger.Printf("cleanup background %s: %v", id, err)
		}
	}
}

func (d *Detector) collect(ctx context.Context, key string) (int, error) {
	count, _, err := storage.GetJSON[int](ctx, d.gateway, key)
	if err != nil {
		return 0, err
	}
	if err := d.gateway.Remove(ctx, key); err != nil {
		return 0, err
	}
	return count, nil
}

func (d *Detector) detectStep(sample sensors.AccelSample) bool {
	magnitude := math.Sqrt(sample.X*sample.X + sample.Y*sample.Y + sample.Z*sample.Z)
	return magnitude > d.threshold
}
