// Package sensors defines the position and accelerometer stream collaborators
// consumed by the tracking components, plus scripted implementations used by
// tests and the simulator.
package sensors

import (
	"time"

	"example.com/tracker/internal/domain"
)

// Accuracy selects the requested position fidelity.
type Accuracy int

const (
	AccuracyLow Accuracy = iota
	AccuracyBalanced
	AccuracyHigh
)

// PositionOptions tunes a position subscription.
type PositionOptions struct {
	Accuracy          Accuracy
	MinDistanceMeters float64
	Interval          time.Duration
}

// DefaultPositionOptions matches the fidelity used for activity tracking:
// high accuracy, 1 m minimum displacement, 1 s interval.
func DefaultPositionOptions() PositionOptions {
	return PositionOptions{
		Accuracy:          AccuracyHigh,
		MinDistanceMeters: 1,
		Interval:          time.Second,
	}
}

// Subscription cancels a stream subscription. No callbacks are delivered
// after Cancel returns.
type Subscription interface {
	Cancel()
}

// PositionStream delivers coordinate samples with monotonically
// non-decreasing timestamps, in arrival order.
type PositionStream interface {
	Subscribe(opts PositionOptions, fn func(domain.Coordinate)) (Subscription, error)
}

// AccelSample is a raw accelerometer reading in g-equivalent units.
type AccelSample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// AccelerometerStream delivers accelerometer samples at the requested
// interval, in arrival order.
type AccelerometerStream interface {
	Subscribe(interval time.Duration, fn func(AccelSample)) (Subscription, error)
}
