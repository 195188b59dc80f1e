package geofence

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/storage"
)

// Validation errors for geofence definitions.
var (
	ErrInvalidRadius = errors.New("geofence radius must be positive")
	ErrMissingName   = errors.New("geofence name is required")
)

// ServiceOption configures optional behaviour for the Service.
type ServiceOption func(*Service)

// WithServiceLogger overrides the logger.
func WithServiceLogger(logger *log.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// Service manages geofence definitions. Mutations while the monitor is
// running refresh its in-memory list so the next position sample is
// evaluated against the updated set.
type Service struct {
	repo    domain.GeofenceRepository
	gateway storage.Gateway
	monitor *Monitor
	logger  *log.Logger
}

// NewService constructs a Service.
func NewService(repo domain.GeofenceRepository, gateway storage.Gateway, monitor *Monitor, opts ...ServiceOption) *Service {
	s := &Service{
		repo:    repo,
		gateway: gateway,
		monitor: monitor,
		logger:  log.New(log.Writer(), "[geofence] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and stores a new geofence, assigning its id.
func (s *Service) Create(ctx context.Context, fence domain.Geofence) (domain.Geofence, error) {
	if err := validate(fence); err != nil {
		return domain.Geofence{}, err
	}
	fence.ID = uuid.NewString()
	fence.EntryTime = nil
	fence.ExitTime = nil
	if err := s.repo.Add(ctx, fence); err != nil {
		return domain.Geofence{}, err
	}
	s.logger.Printf("created geofence %s (%s) for user %s", fence.ID, fence.Name, fence.UserID)
	return fence, s.refreshMonitor(ctx)
}

// Update replaces a geofence definition.
func (s *Service) Update(ctx context.Context, id string, fence domain.Geofence) (domain.Geofence, error) {
	if err := validate(fence); err != nil {
		return domain.Geofence{}, err
	}
	if err := s.repo.Update(ctx, id, fence); err != nil {
		return domain.Geofence{}, err
	}
	fence.ID = id
	s.logger.Printf("updated geofence %s", id)
	return fence, s.refreshMonitor(ctx)
}

// Get returns a geofence, or domain.ErrGeofenceNotFound.
func (s *Service) Get(ctx context.Context, id string) (domain.Geofence, error) {
	fence, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Geofence{}, err
	}
	if fence == nil {
		return domain.Geofence{}, domain.ErrGeofenceNotFound
	}
	return *fence, nil
}

// List returns all geofences for a user.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Geofence, error) {
	return s.repo.FindByUser(ctx, userID)
}

// Delete removes a geofence and its persisted membership flag, so re-creating
// a region at the same spot starts from a clean outside state.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	states, ok, err := storage.GetJSON[map[string]bool](ctx, s.gateway, storage.KeyGeofenceStates)
	if err != nil {
		return err
	}
	if ok {
		if _, tracked := states[id]; tracked {
			delete(states, id)
			if err := storage.SetJSON(ctx, s.gateway, storage.KeyGeofenceStates, states); err != nil {
				return err
			}
		}
	}

	s.logger.Printf("deleted geofence %s", id)
	return s.refreshMonitor(ctx)
}

func (s *Service) refreshMonitor(ctx context.Context) error {
	if s.monitor == nil || !s.monitor.Running() {
		return nil
	}
	return s.monitor.Refresh(ctx)
}

func validate(fence domain.Geofence) error {
	if fence.Name == "" {
		return ErrMissingName
	}
	if fence.Radius <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRadius, fence.Radius)
	}
	return nil
}
