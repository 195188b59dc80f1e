package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/tracker/internal/domain"
)

// GeofenceRepository persists geofence definitions. Listing preserves
// creation order, which is also the monitor's evaluation order.
type GeofenceRepository struct {
	pool *pgxpool.Pool
}

// NewGeofenceRepository constructs a GeofenceRepository.
func NewGeofenceRepository(pool *pgxpool.Pool) *GeofenceRepository {
	return &GeofenceRepository{pool: pool}
}

// Add implements domain.GeofenceRepository.
func (r *GeofenceRepository) Add(ctx context.Context, fence domain.Geofence) error {
	const stmt = `INSERT INTO geofences (geofence_id, user_id, name, latitude, longitude, radius, activity_type, entry_time, exit_time)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err := r.pool.Exec(ctx, stmt,
		fence.ID,
		fence.UserID,
		fence.Name,
		fence.Latitude,
		fence.Longitude,
		fence.Radius,
		string(fence.ActivityType),
		fence.EntryTime,
		fence.ExitTime,
	)
	return err
}

// Update implements domain.GeofenceRepository.
func (r *GeofenceRepository) Update(ctx context.Context, id string, fence domain.Geofence) error {
	const stmt = `UPDATE geofences
        SET name=$2, latitude=$3, longitude=$4, radius=$5, activity_type=$6, entry_time=$7, exit_time=$8
        WHERE geofence_id=$1`

	tag, err := r.pool.Exec(ctx, stmt,
		id,
		fence.Name,
		fence.Latitude,
		fence.Longitude,
		fence.Radius,
		string(fence.ActivityType),
		fence.EntryTime,
		fence.ExitTime,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGeofenceNotFound
	}
	return nil
}

// FindByID implements domain.GeofenceRepository.
func (r *GeofenceRepository) FindByID(ctx context.Context, id string) (*domain.Geofence, error) {
	const query = `SELECT geofence_id, user_id, name, latitude, longitude, radius, activity_type, entry_time, exit_time
        FROM geofences WHERE geofence_id=$1`

	fence, err := scanGeofence(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return fence, nil
}

// FindByUser implements domain.GeofenceRepository.
func (r *GeofenceRepository) FindByUser(ctx context.Context, userID string) ([]domain.Geofence, error) {
	const query = `SELECT geofence_id, user_id, name, latitude, longitude, radius, activity_type, entry_time, exit_time
        FROM geofences WHERE user_id=$1 ORDER BY created_at, geofence_id`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fences := make([]domain.Geofence, 0)
	for rows.Next() {
		fence, scanErr := scanGeofence(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		fences = append(fences, *fence)
	}
	return fences, rows.Err()
}

// Delete implements domain.GeofenceRepository.
func (r *GeofenceRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM geofences WHERE geofence_id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGeofenceNotFound
	}
	return nil
}

func scanGeofence(row pgx.Row) (*domain.Geofence, error) {
	var (
		fence        domain.Geofence
		activityType string
	)
	if err := row.Scan(
		&fence.ID,
		&fence.UserID,
		&fence.Name,
		&fence.Latitude,
		&fence.Longitude,
		&fence.Radius,
		&activityType,
		&fence.EntryTime,
		&fence.ExitTime,
	); err != nil {
		return nil, err
	}
	fence.ActivityType = domain.ActivityType(activityType)
	return &fence, nil
}
