package location

import (
	"context"
	"log"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/sensors"
	"example.com/tracker/internal/storage"
)

func newTracker(t *testing.T) (*Tracker, *sensors.ScriptedPositionStream, *storage.MemoryGateway) {
	t.Helper()
	gateway := storage.NewMemoryGateway()
	stream := sensors.NewScriptedPositionStream()
	tracker := NewTracker(gateway, stream, WithLogger(log.New(testWriter{t}, "", 0)))
	return tracker, stream, gateway
}

func coord(lat, lon float64) domain.Coordinate {
	return domain.Coordinate{Latitude: lat, Longitude: lon}
}

func TestForegroundAccumulatesPath(t *testing.T) {
	ctx := context.Background()
	tracker, stream, _ := newTracker(t)

	var lastUpdate []domain.Coordinate
	require.NoError(t, tracker.StartForeground(ctx, "a1", func(path []domain.Coordinate) {
		lastUpdate = path
	}))

	stream.Emit(coord(45.0, 9.0))
	stream.Emit(coord(45.0001, 9.0))
	require.Len(t, lastUpdate, 2)

	path, err := tracker.StopForeground(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, []domain.Coordinate{coord(45.0, 9.0), coord(45.0001, 9.0)}, path)
}

func TestStartClearsStalePath(t *testing.T) {
	ctx := context.Background()
	tracker, stream, gateway := newTracker(t)

	stale := []domain.Coordinate{coord(1, 1)}
	require.NoError(t, storage.SetJSON(ctx, gateway, storage.ForegroundPathKey("a1"), stale))

	require.NoError(t, tracker.StartForeground(ctx, "a1", nil))
	stream.Emit(coord(2, 2))

	path, err := tracker.StopForeground(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, []domain.Coordinate{coord(2, 2)}, path)
}

func TestSecondStartIsNoOp(t *testing.T) {
	ctx := context.Background()
	tracker, stream, _ := newTracker(t)

	require.NoError(t, tracker.StartForeground(ctx, "a1", nil))
	stream.Emit(coord(1, 1))

	require.NoError(t, tracker.StartForeground(ctx, "a1", nil))
	require.Equal(t, 1, stream.ActiveSubscribers())

	path, err := tracker.StopForeground(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, path, 1)
}

func TestStopWithoutStartReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	tracker, _, gateway := newTracker(t)

	path, err := tracker.StopForeground(ctx, "ghost")
	require.NoError(t, err)
	require.Empty(t, path)

	path, err = tracker.StopBackground(ctx, "ghost")
	require.NoError(t, err)
	require.Empty(t, path)

	_, ok, err := gateway.Get(ctx, storage.BackgroundPathKey("ghost"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBackgroundRecordsCurrentSessionPointer(t *testing.T) {
	ctx := context.Background()
	tracker, stream, gateway := newTracker(t)

	require.NoError(t, tracker.StartBackground(ctx, "a1"))

	current, ok, err := storage.GetJSON[string](ctx, gateway, storage.KeyCurrentBackgroundActivityID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a1", current)

	stream.Emit(coord(45, 9))
	path, err := tracker.StopBackground(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, path, 1)

	_, ok, err = storage.GetJSON[string](ctx, gateway, storage.KeyCurrentBackgroundActivityID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStopLeavesForeignPointerAlone(t *testing.T) {
	ctx := context.Background()
	tracker, _, gateway := newTracker(t)

	require.NoError(t, tracker.StartBackground(ctx, "a1"))
	// Another session took over the pointer in the meantime.
	require.NoError(t, tracker.StartBackground(ctx, "a2"))

	_, err := tracker.StopBackground(ctx, "a1")
	require.NoError(t, err)

	current, ok, err := storage.GetJSON[string](ctx, gateway, storage.KeyCurrentBackgroundActivityID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a2", current)
}

func TestCleanupStopsEverything(t *testing.T) {
	ctx := context.Background()
	tracker, stream, _ := newTracker(t)

	require.NoError(t, tracker.StartForeground(ctx, "a1", nil))
	require.NoError(t, tracker.StartBackground(ctx, "a1"))
	require.NoError(t, tracker.StartBackground(ctx, "a2"))
	require.Equal(t, 3, stream.ActiveSubscribers())

	tracker.Cleanup(ctx)
	require.Zero(t, stream.ActiveSubscribers())
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
