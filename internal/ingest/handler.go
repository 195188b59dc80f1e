package ingest

import (
	"context"

	"example.com/tracker/internal/background"
)

// RuntimeHandler delivers decoded batches to the background task runtime.
// The task header names the receiving task, so one topic serves both the
// location tracker and the geofence monitor.
type RuntimeHandler struct {
	runtime *background.Runtime
}

// NewRuntimeHandler constructs a RuntimeHandler.
func NewRuntimeHandler(runtime *background.Runtime) *RuntimeHandler {
	return &RuntimeHandler{runtime: runtime}
}

// Handle implements Handler.
func (h *RuntimeHandler) Handle(ctx context.Context, batch Batch) error {
	return h.runtime.Deliver(ctx, batch.Task, batch.Samples)
}
