package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/storage"
)

// SchedulerOption configures optional behaviour for the Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger overrides the logger.
func WithSchedulerLogger(logger *log.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler arms in-process timers for pending notifications and persists the
// pending set through the gateway so it can be listed and survives a restart
// (timers are re-armed from the persisted records at construction time).
type Scheduler struct {
	gateway storage.Gateway
	sender  Sender
	logger  *log.Logger
	now     func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewScheduler constructs a Scheduler and re-arms timers for any persisted
// pending notifications.
func NewScheduler(gateway storage.Gateway, sender Sender, opts ...SchedulerOption) (*Scheduler, error) {
	s := &Scheduler{
		gateway: gateway,
		sender:  sender,
		logger:  log.New(log.Writer(), "[notify] ", log.LstdFlags),
		now:     time.Now,
		timers:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}

	pending, err := s.load(context.Background())
	if err != nil {
		return nil, err
	}
	for _, entry := range pending {
		s.arm(entry)
	}
	if len(pending) > 0 {
		s.logger.Printf("re-armed %d pending notifications", len(pending))
	}
	return s, nil
}

// SendNow pushes the notification immediately.
func (s *Scheduler) SendNow(ctx context.Context, userID string, n Notification) error {
	if err := s.sender.Send(ctx, userID, n); err != nil {
		return err
	}
	s.recordDelivered(ctx, uuid.NewString(), userID, n)
	return nil
}

// ScheduleAfter arms a one-shot notification after the given delay and
// returns its id.
func (s *Scheduler) ScheduleAfter(ctx context.Context, userID string, n Notification, delay time.Duration) (string, error) {
	entry := Scheduled{
		ID:           uuid.NewString(),
		UserID:       userID,
		Notification: n,
		FireAt:       s.now().Add(delay),
	}
	if err := s.store(ctx, entry); err != nil {
		return "", err
	}
	s.arm(entry)
	s.logger.Printf("scheduled notification %s for user %s in %s", entry.ID, userID, delay)
	return entry.ID, nil
}

// ScheduleDaily arms a repeating notification at the given local time of day
// and returns its id.
func (s *Scheduler) ScheduleDaily(ctx context.Context, userID string, n Notification, hour, minute int) (string, error) {
	entry := Scheduled{
		ID:           uuid.NewString(),
		UserID:       userID,
		Notification: n,
		FireAt:       nextOccurrence(s.now(), hour, minute),
		Daily:        true,
		Hour:         hour,
		Minute:       minute,
	}
	if err := s.store(ctx, entry); err != nil {
		return "", err
	}
	s.arm(entry)
	s.logger.Printf("scheduled daily notification %s for user %s at %02d:%02d", entry.ID, userID, hour, minute)
	return entry.ID, nil
}

// Cancel disarms and removes a pending notification. Unknown ids fail with
// domain.ErrNotificationNotFound.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	pending, err := s.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := pending[id]; !ok {
		return domain.ErrNotificationNotFound
	}
	delete(pending, id)
	if err := s.save(ctx, pending); err != nil {
		return err
	}

	s.mu.Lock()
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	return nil
}

// ListScheduled returns the pending notifications for a user, every pending
// notification when userID is empty.
func (s *Scheduler) ListScheduled(ctx context.Context, userID string) ([]Scheduled, error) {
	pending, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Scheduled, 0, len(pending))
	for _, entry := range pending {
		if userID == "" || entry.UserID == userID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Close disarms every timer. Persisted records are kept so a successor can
// re-arm them.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) arm(entry Scheduled) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	delay := time.Until(entry.FireAt)
	if delay < 0 {
		delay = 0
	}
	s.timers[entry.ID] = time.AfterFunc(delay, func() { s.fire(entry) })
}

func (s *Scheduler) fire(entry Scheduled) {
	ctx := context.Background()
	if err := s.sender.Send(ctx, entry.UserID, entry.Notification); err != nil {
		s.logger.Printf("sending notification %s: %v", entry.ID, err)
	} else {
		s.recordDelivered(ctx, entry.ID, entry.UserID, entry.Notification)
	}

	pending, err := s.load(ctx)
	if err != nil {
		s.logger.Printf("loading pending notifications after fire: %v", err)
		return
	}

	if entry.Daily {
		entry.FireAt = nextOccurrence(s.now(), entry.Hour, entry.Minute)
		pending[entry.ID] = entry
		if err := s.save(ctx, pending); err != nil {
			s.logger.Printf("re-arming daily notification %s: %v", entry.ID, err)
			return
		}
		s.arm(entry)
		return
	}

	delete(pending, entry.ID)
	if err := s.save(ctx, pending); err != nil {
		s.logger.Printf("removing fired notification %s: %v", entry.ID, err)
	}
	s.mu.Lock()
	delete(s.timers, entry.ID)
	s.mu.Unlock()
}

// ListDelivered returns the delivery history for a user, newest last.
func (s *Scheduler) ListDelivered(ctx context.Context, userID string) ([]Delivered, error) {
	history, _, err := storage.GetJSON[[]Delivered](ctx, s.gateway, storage.KeyDeliveredNotifications)
	if err != nil {
		return nil, err
	}
	out := make([]Delivered, 0, len(history))
	for _, record := range history {
		if userID == "" || record.UserID == userID {
			out = append(out, record)
		}
	}
	return out, nil
}

// deliveredHistoryCap bounds the retained delivery history.
const deliveredHistoryCap = 200

func (s *Scheduler) recordDelivered(ctx context.Context, id, userID string, n Notification) {
	history, _, err := storage.GetJSON[[]Delivered](ctx, s.gateway, storage.KeyDeliveredNotifications)
	if err != nil {
		s.logger.Printf("loading delivery history: %v", err)
		return
	}
	history = append(history, Delivered{
		ID:     id,
		UserID: userID,
		Title:  n.Title,
		Body:   n.Body,
		SentAt: s.now(),
	})
	if len(history) > deliveredHistoryCap {
		history = history[len(history)-deliveredHistoryCap:]
	}
	if err := storage.SetJSON(ctx, s.gateway, storage.KeyDeliveredNotifications, history); err != nil {
		s.logger.Printf("saving delivery history: %v", err)
	}
}

func (s *Scheduler) store(ctx context.Context, entry Scheduled) error {
	pending, err := s.load(ctx)
	if err != nil {
		return err
	}
	pending[entry.ID] = entry
	return s.save(ctx, pending)
}

func (s *Scheduler) load(ctx context.Context) (map[string]Scheduled, error) {
	pending, ok, err := storage.GetJSON[map[string]Scheduled](ctx, s.gateway, storage.KeyScheduledNotifications)
	if err != nil {
		return nil, err
	}
	if !ok || pending == nil {
		pending = make(map[string]Scheduled)
	}
	return pending, nil
}

func (s *Scheduler) save(ctx context.Context, pending map[string]Scheduled) error {
	return storage.SetJSON(ctx, s.gateway, storage.KeyScheduledNotifications, pending)
}

// nextOccurrence returns the next time-of-day occurrence strictly after now.
func nextOccurrence(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
