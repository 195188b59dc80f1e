package notify

import (
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/storage"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *recordingSender) Send(_ context.Context, _ string, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func testLogger(t *testing.T) *log.Logger {
	return log.New(testWriter{t}, "", 0)
}

func newScheduler(t *testing.T) (*Scheduler, *recordingSender, *storage.MemoryGateway) {
	t.Helper()
	gateway := storage.NewMemoryGateway()
	sender := &recordingSender{}
	scheduler, err := NewScheduler(gateway, sender, WithSchedulerLogger(testLogger(t)))
	require.NoError(t, err)
	t.Cleanup(scheduler.Close)
	return scheduler, sender, gateway
}

func TestScheduleAfterFiresOnce(t *testing.T) {
	ctx := context.Background()
	scheduler, sender, _ := newScheduler(t)

	id, err := scheduler.ScheduleAfter(ctx, "u1", Notification{Title: "hi"}, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)

	// Fired one-shots leave the pending set.
	require.Eventually(t, func() bool {
		pending, err := scheduler.ListScheduled(ctx, "u1")
		require.NoError(t, err)
		return len(pending) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestCancelPreventsDelivery(t *testing.T) {
	ctx := context.Background()
	scheduler, sender, _ := newScheduler(t)

	id, err := scheduler.ScheduleAfter(ctx, "u1", Notification{Title: "hi"}, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, scheduler.Cancel(ctx, id))

	time.Sleep(100 * time.Millisecond)
	require.Zero(t, sender.count())

	require.ErrorIs(t, scheduler.Cancel(ctx, id), domain.ErrNotificationNotFound)
}

func TestListScheduledFiltersByUser(t *testing.T) {
	ctx := context.Background()
	scheduler, _, _ := newScheduler(t)

	_, err := scheduler.ScheduleAfter(ctx, "u1", Notification{Title: "a"}, time.Hour)
	require.NoError(t, err)
	_, err = scheduler.ScheduleAfter(ctx, "u2", Notification{Title: "b"}, time.Hour)
	require.NoError(t, err)

	pending, err := scheduler.ListScheduled(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "a", pending[0].Notification.Title)

	all, err := scheduler.ListScheduled(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestSchedulerReArmsPersistedEntries(t *testing.T) {
	ctx := context.Background()
	gateway := storage.NewMemoryGateway()
	sender := &recordingSender{}

	first, err := NewScheduler(gateway, sender, WithSchedulerLogger(testLogger(t)))
	require.NoError(t, err)
	_, err = first.ScheduleAfter(ctx, "u1", Notification{Title: "hi"}, 20*time.Millisecond)
	require.NoError(t, err)
	first.Close()

	// A successor picks up the persisted record and delivers it.
	second, err := NewScheduler(gateway, sender, WithSchedulerLogger(testLogger(t)))
	require.NoError(t, err)
	t.Cleanup(second.Close)

	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDeliveryHistoryRecordsSends(t *testing.T) {
	ctx := context.Background()
	scheduler, _, _ := newScheduler(t)

	require.NoError(t, scheduler.SendNow(ctx, "u1", Notification{Title: "hi", Body: "there"}))
	require.NoError(t, scheduler.SendNow(ctx, "u2", Notification{Title: "other"}))

	history, err := scheduler.ListDelivered(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "hi", history[0].Title)
	require.Equal(t, "there", history[0].Body)
	require.NotEmpty(t, history[0].ID)
	require.False(t, history[0].SentAt.IsZero())

	all, err := scheduler.ListDelivered(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestNextOccurrence(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

	next := nextOccurrence(now, 9, 0)
	require.Equal(t, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), next)

	// Already past today's slot: tomorrow.
	next = nextOccurrence(now, 8, 0)
	require.Equal(t, time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC), next)

	// Exactly on the slot: tomorrow, never immediate.
	next = nextOccurrence(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), 9, 0)
	require.Equal(t, time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC), next)
}

func TestDebouncerTrailingEdge(t *testing.T) {
	debouncer := NewDebouncer(20 * time.Millisecond)

	var mu sync.Mutex
	calls := 0
	for i := 0; i < 5; i++ {
		debouncer.Do(func() {
			mu.Lock()
			calls++
			mu.Unlock()
		})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	require.Equal(t, 1, calls)
	mu.Unlock()
}

func TestReminderNudgesImmediatelyWhenOverdue(t *testing.T) {
	ctx := context.Background()
	scheduler, sender, gateway := newScheduler(t)

	now := time.Now()
	require.NoError(t, storage.SetJSON(ctx, gateway, storage.LastActivityTimeKey("u1"), now.Add(-3*time.Hour)))

	reminder := NewInactivityReminder(gateway, scheduler, WithReminderLogger(testLogger(t)))
	require.NoError(t, reminder.Check(ctx, "u1"))
	require.Equal(t, 1, sender.count())
}

func TestReminderArmsForRemainingTime(t *testing.T) {
	ctx := context.Background()
	scheduler, sender, gateway := newScheduler(t)

	now := time.Now()
	require.NoError(t, storage.SetJSON(ctx, gateway, storage.LastActivityTimeKey("u1"), now.Add(-time.Hour)))

	reminder := NewInactivityReminder(gateway, scheduler, WithReminderLogger(testLogger(t)))
	require.NoError(t, reminder.Check(ctx, "u1"))
	require.Zero(t, sender.count())

	pending, err := scheduler.ListScheduled(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	remaining := time.Until(pending[0].FireAt)
	require.InDelta(t, time.Hour.Seconds(), remaining.Seconds(), 60)
}

func TestActivityCompletedDebouncesReschedule(t *testing.T) {
	ctx := context.Background()
	scheduler, _, gateway := newScheduler(t)

	reminder := NewInactivityReminder(gateway, scheduler,
		WithReminderLogger(testLogger(t)),
		WithReminderDebounce(10*time.Millisecond))
	t.Cleanup(reminder.Stop)

	for i := 0; i < 3; i++ {
		require.NoError(t, reminder.ActivityCompleted(ctx, "u1"))
	}

	require.Eventually(t, func() bool {
		pending, err := scheduler.ListScheduled(ctx, "u1")
		require.NoError(t, err)
		return len(pending) == 1
	}, time.Second, 5*time.Millisecond)
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
