// Package memory provides in-memory repositories for tests and local
// development.
package memory

import (
	"context"
	"sort"
	"sync"

	"example.com/tracker/internal/domain"
)

// ActivityRepository stores activities in memory.
type ActivityRepository struct {
	mu         sync.RWMutex
	activities map[string]domain.Activity
	order      []string
}

// NewActivityRepository constructs an empty ActivityRepository.
func NewActivityRepository() *ActivityRepository {
	return &ActivityRepository{activities: make(map[string]domain.Activity)}
}

// Add implements domain.ActivityRepository.
func (r *ActivityRepository) Add(_ context.Context, activity domain.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.activities[activity.ID]; !exists {
		r.order = append(r.order, activity.ID)
	}
	r.activities[activity.ID] = activity
	return nil
}

// Update implements domain.ActivityRepository.
func (r *ActivityRepository) Update(_ context.Context, id string, update domain.ActivityUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	activity, ok := r.activities[id]
	if !ok {
		return domain.ErrActivityNotFound
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
		activity.Path = append([]domain.Coordinate(nil), update.Path...)
	}
	r.activities[id] = activity
	return nil
}

// FindByID implements domain.ActivityRepository.
func (r *ActivityRepository) FindByID(_ context.Context, id string) (*domain.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	activity, ok := r.activities[id]
	if !ok {
		return nil, nil
	}
	return &activity, nil
}

// FindByUser implements domain.ActivityRepository. Results are ordered by
// start time descending, id descending, like the Postgres repository.
func (r *ActivityRepository) FindByUser(_ context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.Activity, 0)
	for _, id := range r.order {
		activity := r.activities[id]
		if activity.UserID != userID {
			continue
		}
		matched = append(matched, activity)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].StartTime.Equal(matched[j].StartTime) {
			return matched[i].StartTime.After(matched[j].StartTime)
		}
		return matched[i].ID > matched[j].ID
	})

	if cursor != nil {
		filtered := matched[:0]
		for _, activity := range matched {
			if activity.StartTime.Before(cursor.StartTime) ||
				(activity.StartTime.Equal(cursor.StartTime) && activity.ID < cursor.ID) {
				filtered = append(filtered, activity)
			}
		}
		matched = filtered
	}

	if limit <= 0 || limit > len(matched) {
		limit = len(matched)
	}
	page := append([]domain.Activity(nil), matched[:limit]...)

	var next *domain.Cursor
	if len(page) == limit && limit > 0 && len(matched) > limit {
		last := page[len(page)-1]
		next = &domain.Cursor{StartTime: last.StartTime, ID: last.ID}
	}
	return page, next, nil
}

// Delete implements domain.ActivityRepository.
func (r *ActivityRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.activities[id]; !ok {
		return domain.ErrActivityNotFound
	}
	delete(r.activities, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// GeofenceRepository stores geofences in memory, preserving insertion order
// so monitoring evaluation is deterministic.
type GeofenceRepository struct {
	mu        sync.RWMutex
	geofences map[string]domain.Geofence
	order     []string
}

// NewGeofenceRepository constructs an empty GeofenceRepository.
func NewGeofenceRepository() *GeofenceRepository {
	return &GeofenceRepository{geofences: make(map[string]domain.Geofence)}
}

// Add implements domain.GeofenceRepository.
func (r *GeofenceRepository) Add(_ context.Context, geofence domain.Geofence) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.geofences[geofence.ID]; !exists {
		r.order = append(r.order, geofence.ID)
	}
	r.geofences[geofence.ID] = geofence
	return nil
}

// Update implements domain.GeofenceRepository.
func (r *GeofenceRepository) Update(_ context.Context, id string, geofence domain.Geofence) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.geofences[id]; !ok {
		return domain.ErrGeofenceNotFound
	}
	geofence.ID = id
	r.geofences[id] = geofence
	return nil
}

// FindByID implements domain.GeofenceRepository.
func (r *GeofenceRepository) FindByID(_ context.Context, id string) (*domain.Geofence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	geofence, ok := r.geofences[id]
	if !ok {
		return nil, nil
	}
	return &geofence, nil
}

// FindByUser implements domain.GeofenceRepository.
func (r *GeofenceRepository) FindByUser(_ context.Context, userID string) ([]domain.Geofence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Geofence, 0)
	for _, id := range r.order {
		geofence := r.geofences[id]
		if geofence.UserID == userID {
			out = append(out, geofence)
		}
	}
	return out, nil
}

// Delete implements domain.GeofenceRepository.
func (r *GeofenceRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.geofences[id]; !ok {
		return domain.ErrGeofenceNotFound
	}
	delete(r.geofences, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
