package background

import (
	"context"
	"log"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/tracker/internal/domain"
)

func TestDeliverReachesRunningTask(t *testing.T) {
	runtime := NewRuntime(log.New(testWriter{t}, "", 0))

	var got []domain.Coordinate
	runtime.Define("task", func(_ context.Context, batch []domain.Coordinate) error {
		got = append(got, batch...)
		return nil
	})
	runtime.Start("task")

	batch := []domain.Coordinate{{Latitude: 1, Longitude: 2}}
	require.NoError(t, runtime.Deliver(context.Background(), "task", batch))
	require.Equal(t, batch, got)
}

func TestDeliverDropsWhenStopped(t *testing.T) {
	runtime := NewRuntime(log.New(testWriter{t}, "", 0))

	calls := 0
	runtime.Define("task", func(context.Context, []domain.Coordinate) error {
		calls++
		return nil
	})

	// Never started.
	require.NoError(t, runtime.Deliver(context.Background(), "task", []domain.Coordinate{{}}))
	require.Zero(t, calls)

	runtime.Start("task")
	require.NoError(t, runtime.Deliver(context.Background(), "task", []domain.Coordinate{{}}))
	require.Equal(t, 1, calls)

	runtime.Stop("task")
	require.NoError(t, runtime.Deliver(context.Background(), "task", []domain.Coordinate{{}}))
	require.Equal(t, 1, calls)
}

func TestRunningQuery(t *testing.T) {
	runtime := NewRuntime(log.New(testWriter{t}, "", 0))
	require.False(t, runtime.Running("task"))
	runtime.Start("task")
	require.True(t, runtime.Running("task"))
	runtime.Stop("task")
	require.False(t, runtime.Running("task"))
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
