// Package background provides the named-task runtime that stands in for the
// platform's background delivery mechanism. Handlers registered here receive
// batches of position samples recorded while the interactive process was
// suspended, and must rebuild any session identity from the persistence
// gateway rather than in-memory state.
package background

import (
	"context"
	"log"
	"sync"

	"example.com/tracker/internal/domain"
)

// Task names used by the tracker.
const (
	TaskBackgroundTracking = "background_tracking"
	TaskGeofenceMonitoring = "geofence_monitoring"
)

// Handler processes one batch of location samples for a named task.
type Handler func(ctx context.Context, batch []domain.Coordinate) error

// Runtime is the in-process task registry. Registration defines the task;
// Start/Stop toggle whether deliveries reach its handler.
type Runtime struct {
	logger *log.Logger

	mu       sync.Mutex
	handlers map[string]Handler
	running  map[string]bool
}

// NewRuntime constructs an empty Runtime.
func NewRuntime(logger *log.Logger) *Runtime {
	if logger == nil {
		logger = log.New(log.Writer(), "[background] ", log.LstdFlags)
	}
	return &Runtime{
		logger:   logger,
		handlers: make(map[string]Handler),
		running:  make(map[string]bool),
	}
}

// Define registers the handler for a named task. Re-defining replaces the
// handler but keeps the running state.
func (r *Runtime) Define(name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Start marks the named task as running. Starting an already running task is
// a no-op, mirroring the platform's idempotent task start.
func (r *Runtime) Start(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[name] = true
}

// Stop marks the named task as stopped.
func (r *Runtime) Stop(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, name)
}

// Running reports whether the named task is currently started.
func (r *Runtime) Running(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[name]
}

// Deliver invokes the named task's handler with a batch of samples. Batches
// for stopped or undefined tasks are dropped with a log line, matching the
// platform behaviour of discarding deliveries for unregistered tasks.
func (r *Runtime) Deliver(ctx context.Context, name string, batch []domain.Coordinate) error {
	r.mu.Lock()
	handler, defined := r.handlers[name]
	running := r.running[name]
	r.mu.Unlock()

	if !defined || !running {
		r.logger.Printf("dropping batch of %d samples for task %q (defined=%t running=%t)", len(batch), name, defined, running)
		return nil
	}
	return handler(ctx, batch)
}
