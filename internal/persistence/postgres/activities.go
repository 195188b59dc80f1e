// Package postgres provides Postgres-backed persistence for the tracker.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/tracker/internal/domain"
)

// ActivityRepository persists activities. Locations and paths are stored as
// jsonb documents; the (user_id, start_time, activity_id) index serves the
// keyset pagination used by the listing endpoint.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository constructs an ActivityRepository.
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// Add implements domain.ActivityRepository.
func (r *ActivityRepository) Add(ctx context.Context, activity domain.Activity) error {
	startLocation, endLocation, path, err := marshalGeometry(activity)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO activities (activity_id, user_id, activity_type, start_time, end_time, steps, start_location, end_location, path, geofence_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	_, err = r.pool.Exec(ctx, stmt,
		activity.ID,
		activity.UserID,
		string(activity.Type),
		activity.StartTime,
		activity.EndTime,
		activity.Steps,
		startLocation,
		endLocation,
		path,
		activity.GeofenceID,
	)
	return err
}

// Update implements domain.ActivityRepository. The row is read and rewritten
// inside one transaction so concurrent geofence exits cannot interleave
// partial updates.
func (r *ActivityRepository) Update(ctx context.Context, id string, update domain.ActivityUpdate) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const query = `SELECT activity_id, user_id, activity_type, start_time, end_time, steps, start_location, end_location, path, geofence_id
        FROM activities WHERE activity_id=$1 FOR UPDATE`

	activity, err := scanActivity(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrActivityNotFound
		}
		return err
	}

	if update.EndTime != nil {
		activity.EndTime = update.EndTime
	}
	if update.StartLocation != nil {
		activity.StartLocation = update.StartLocation
	}
	if update.EndLocation != nil {
		activity.EndLocation = update.EndLocation
	}
	if update.Steps != nil {
		activity.Steps = update.Steps
	}
	if update.Path != nil {
		activity.Path = update.Path
	}

	startLocation, endLocation, path, err := marshalGeometry(*activity)
	if err != nil {
		return err
	}

	const stmt = `UPDATE activities
        SET end_time=$2, steps=$3, start_location=$4, end_location=$5, path=$6, updated_at=now()
        WHERE activity_id=$1`

	if _, err = tx.Exec(ctx, stmt, id, activity.EndTime, activity.Steps, startLocation, endLocation, path); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FindByID implements domain.ActivityRepository.
func (r *ActivityRepository) FindByID(ctx context.Context, id string) (*domain.Activity, error) {
	const query = `SELECT activity_id, user_id, activity_type, start_time, end_time, steps, start_location, end_location, path, geofence_id
        FROM activities WHERE activity_id=$1`

	activity, err := scanActivity(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return activity, nil
}

// FindByUser implements domain.ActivityRepository with keyset pagination:
// newest first, ties broken by id.
func (r *ActivityRepository) FindByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	if limit <= 0 {
		limit = 20
	}

	const base = `SELECT activity_id, user_id, activity_type, start_time, end_time, steps, start_location, end_location, path, geofence_id
        FROM activities WHERE user_id=$1`

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = r.pool.Query(ctx, base+` AND (start_time, activity_id) < ($2, $3)
            ORDER BY start_time DESC, activity_id DESC LIMIT $4`,
			userID, cursor.StartTime, cursor.ID, limit+1)
	} else {
		rows, err = r.pool.Query(ctx, base+` ORDER BY start_time DESC, activity_id DESC LIMIT $2`,
			userID, limit+1)
	}
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	activities := make([]domain.Activity, 0, limit)
	for rows.Next() {
		activity, scanErr := scanActivity(rows)
		if scanErr != nil {
			return nil, nil, scanErr
		}
		activities = append(activities, *activity)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(activities) > limit {
		activities = activities[:limit]
		last := activities[limit-1]
		next = &domain.Cursor{StartTime: last.StartTime, ID: last.ID}
	}
	return activities, next, nil
}

// Delete implements domain.ActivityRepository.
func (r *ActivityRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM activities WHERE activity_id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrActivityNotFound
	}
	return nil
}

func scanActivity(row pgx.Row) (*domain.Activity, error) {
	var (
		activity      domain.Activity
		activityType  string
		endTime       *time.Time
		startLocation []byte
		endLocation   []byte
		path          []byte
	)
	if err := row.Scan(
		&activity.ID,
		&activity.UserID,
		&activityType,
		&activity.StartTime,
		&endTime,
		&activity.Steps,
		&startLocation,
		&endLocation,
		&path,
		&activity.GeofenceID,
	); err != nil {
		return nil, err
	}

	activity.Type = domain.ActivityType(activityType)
	activity.EndTime = endTime
	if err := unmarshalInto(startLocation, &activity.StartLocation); err != nil {
		return nil, err
	}
	if err := unmarshalInto(endLocation, &activity.EndLocation); err != nil {
		return nil, err
	}
	if err := unmarshalInto(path, &activity.Path); err != nil {
		return nil, err
	}
	return &activity, nil
}

func marshalGeometry(activity domain.Activity) (startLocation, endLocation, path []byte, err error) {
	if activity.StartLocation != nil {
		if startLocation, err = json.Marshal(activity.StartLocation); err != nil {
			return nil, nil, nil, err
		}
	}
	if activity.EndLocation != nil {
		if endLocation, err = json.Marshal(activity.EndLocation); err != nil {
			return nil, nil, nil, err
		}
	}
	if len(activity.Path) > 0 {
		if path, err = json.Marshal(activity.Path); err != nil {
			return nil, nil, nil, err
		}
	}
	return startLocation, endLocation, path, nil
}

func unmarshalInto(raw []byte, target interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, target)
}
