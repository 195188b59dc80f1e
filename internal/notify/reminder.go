package notify

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/storage"
)

// Inactivity reminder defaults.
const (
	DefaultInactivityInterval = 2 * time.Hour
	DefaultReminderDebounce   = time.Second

	// DailyReminderHour is the local hour of the recurring daily nudge.
	DailyReminderHour   = 9
	DailyReminderMinute = 0
)

var inactivityNotification = Notification{
	Title: "Time to move!",
	Body:  "You haven't logged an activity in a while. A short walk counts.",
}

// DailyReminderNotification is the recurring daily nudge content.
var DailyReminderNotification = Notification{
	Title: "Daily check-in",
	Body:  "Log an activity today to keep your streak going.",
}

// ReminderOption configures optional behaviour for the InactivityReminder.
type ReminderOption func(*InactivityReminder)

// WithReminderLogger overrides the logger.
func WithReminderLogger(logger *log.Logger) ReminderOption {
	return func(r *InactivityReminder) { r.logger = logger }
}

// WithInactivityInterval overrides the inactivity interval.
func WithInactivityInterval(interval time.Duration) ReminderOption {
	return func(r *InactivityReminder) { r.interval = interval }
}

// WithReminderDebounce overrides the debounce quiet period.
func WithReminderDebounce(delay time.Duration) ReminderOption {
	return func(r *InactivityReminder) { r.debounce = NewDebouncer(delay) }
}

// WithReminderClock overrides the time source.
func WithReminderClock(now func() time.Time) ReminderOption {
	return func(r *InactivityReminder) { r.now = now }
}

// InactivityReminder nudges the user when no activity has completed within
// the inactivity interval. Activity completions arrive in bursts (a geofence
// exit and a manual stop can land together), so rescheduling is debounced:
// only the trailing call re-arms the reminder.
type InactivityReminder struct {
	gateway   storage.Gateway
	scheduler *Scheduler
	logger    *log.Logger
	interval  time.Duration
	debounce  *Debouncer
	now       func() time.Time

	mu        sync.Mutex
	scheduled map[string]string
}

// NewInactivityReminder constructs an InactivityReminder.
func NewInactivityReminder(gateway storage.Gateway, scheduler *Scheduler, opts ...ReminderOption) *InactivityReminder {
	r := &InactivityReminder{
		gateway:   gateway,
		scheduler: scheduler,
		logger:    log.New(log.Writer(), "[notify] ", log.LstdFlags),
		interval:  DefaultInactivityInterval,
		debounce:  NewDebouncer(DefaultReminderDebounce),
		now:       time.Now,
		scheduled: make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ActivityCompleted records the completion time and re-arms the user's
// inactivity reminder after the debounce quiet period.
func (r *InactivityReminder) ActivityCompleted(ctx context.Context, userID string) error {
	if err := storage.SetJSON(ctx, r.gateway, storage.LastActivityTimeKey(userID), r.now()); err != nil {
		return err
	}
	r.debounce.Do(func() {
		if err := r.reschedule(context.Background(), userID); err != nil {
			r.logger.Printf("rescheduling inactivity reminder for user %s: %v", userID, err)
		}
	})
	return nil
}

// Check evaluates the user's inactivity immediately: a user already past the
// interval is nudged right away, otherwise the reminder is armed for the
// remaining time. Used at startup and after a process respawn.
func (r *InactivityReminder) Check(ctx context.Context, userID string) error {
	return r.reschedule(ctx, userID)
}

// Stop cancels the pending debounced reschedule, if any.
func (r *InactivityReminder) Stop() {
	r.debounce.Stop()
}

func (r *InactivityReminder) reschedule(ctx context.Context, userID string) error {
	r.mu.Lock()
	previous := r.scheduled[userID]
	delete(r.scheduled, userID)
	r.mu.Unlock()

	if previous != "" {
		if err := r.scheduler.Cancel(ctx, previous); err != nil && !errors.Is(err, domain.ErrNotificationNotFound) {
			return err
		}
	}

	last, ok, err := storage.GetJSON[time.Time](ctx, r.gateway, storage.LastActivityTimeKey(userID))
	if err != nil {
		return err
	}
	if !ok {
		last = r.now()
		if err := storage.SetJSON(ctx, r.gateway, storage.LastActivityTimeKey(userID), last); err != nil {
			return err
		}
	}

	elapsed := r.now().Sub(last)
	if elapsed >= r.interval {
		r.logger.Printf("user %s inactive for %s, nudging now", userID, elapsed.Round(time.Minute))
		return r.scheduler.SendNow(ctx, userID, inactivityNotification)
	}

	id, err := r.scheduler.ScheduleAfter(ctx, userID, inactivityNotification, r.interval-elapsed)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.scheduled[userID] = id
	r.mu.Unlock()
	return nil
}
