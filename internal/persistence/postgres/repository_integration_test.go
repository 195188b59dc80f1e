//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/storage"
)

func TestRepositoriesRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)

	activities := NewActivityRepository(pool)

	userID := uuid.NewString()
	start := time.Now().UTC().Truncate(time.Microsecond)
	steps := 42
	activity := domain.Activity{
		ID:        "1714550000123",
		Type:      domain.TypeWalking,
		UserID:    userID,
		StartTime: start,
		Steps:     &steps,
		Path: []domain.Coordinate{
			{Latitude: 45.0, Longitude: 9.0},
			{Latitude: 45.0001, Longitude: 9.0},
		},
	}
	activity.StartLocation = &activity.Path[0]

	require.NoError(t, activities.Add(ctx, activity))

	stored, err := activities.FindByID(ctx, activity.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.True(t, stored.Open())
	require.Equal(t, activity.Path, stored.Path)
	require.Equal(t, 42, *stored.Steps)

	end := start.Add(30 * time.Minute)
	folded := 57
	require.NoError(t, activities.Update(ctx, activity.ID, domain.ActivityUpdate{
		EndTime: &end,
		Steps:   &folded,
	}))

	stored, err = activities.FindByID(ctx, activity.ID)
	require.NoError(t, err)
	require.False(t, stored.Open())
	require.Equal(t, 57, *stored.Steps)
	// Fields absent from the update are untouched.
	require.Equal(t, activity.Path, stored.Path)

	require.ErrorIs(t, activities.Update(ctx, "missing", domain.ActivityUpdate{}), domain.ErrActivityNotFound)
}

func TestFindByUserPaginatesKeyset(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)

	activities := NewActivityRepository(pool)
	userID := uuid.NewString()
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i := 0; i < 5; i++ {
		require.NoError(t, activities.Add(ctx, domain.Activity{
			ID:        uuid.NewString(),
			Type:      domain.TypeWalking,
			UserID:    userID,
			StartTime: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	page, next, err := activities.FindByUser(ctx, userID, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotNil(t, next)
	require.True(t, page[0].StartTime.After(page[1].StartTime))

	seen := map[string]bool{page[0].ID: true, page[1].ID: true}
	for next != nil {
		page, next, err = activities.FindByUser(ctx, userID, next, 2)
		require.NoError(t, err)
		for _, activity := range page {
			require.False(t, seen[activity.ID], "activity %s returned twice", activity.ID)
			seen[activity.ID] = true
		}
	}
	require.Len(t, seen, 5)
}

func TestGeofenceRepository(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)

	fences := NewGeofenceRepository(pool)
	userID := uuid.NewString()

	fence := domain.Geofence{
		ID:           uuid.NewString(),
		Name:         "park",
		UserID:       userID,
		Latitude:     45.0,
		Longitude:    9.0,
		Radius:       50,
		ActivityType: domain.TypeWalking,
	}
	require.NoError(t, fences.Add(ctx, fence))

	entry := time.Now().UTC().Truncate(time.Microsecond)
	fence.EntryTime = &entry
	require.NoError(t, fences.Update(ctx, fence.ID, fence))

	stored, err := fences.FindByID(ctx, fence.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.EntryTime)
	require.Equal(t, domain.TypeWalking, stored.ActivityType)

	listed, err := fences.FindByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, fences.Delete(ctx, fence.ID))
	require.ErrorIs(t, fences.Delete(ctx, fence.ID), domain.ErrGeofenceNotFound)
}

func TestKVGatewayImplementsGateway(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)

	var gateway storage.Gateway = NewKVGateway(pool)

	_, ok, err := gateway.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, storage.SetJSON(ctx, gateway, storage.BackgroundStepsKey("a1"), 7))
	count, ok, err := storage.GetJSON[int](ctx, gateway, storage.BackgroundStepsKey("a1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 7, count)

	// Overwrite.
	require.NoError(t, storage.SetJSON(ctx, gateway, storage.BackgroundStepsKey("a1"), 8))
	count, _, err = storage.GetJSON[int](ctx, gateway, storage.BackgroundStepsKey("a1"))
	require.NoError(t, err)
	require.Equal(t, 8, count)

	require.NoError(t, gateway.Remove(ctx, storage.BackgroundStepsKey("a1")))
	_, ok, err = gateway.Get(ctx, storage.BackgroundStepsKey("a1"))
	require.NoError(t, err)
	require.False(t, ok)
}

func startDatabase(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("tracker"),
		postgrescontainer.WithUsername("tracker"),
		postgrescontainer.WithPassword("tracker"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	files := []string{
		"../../../db/migrations/0001_init.up.sql",
	}

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, rel := range files {
		path := resolvePath(t, rel)
		contents, readErr := os.ReadFile(path)
		require.NoError(t, readErr)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
