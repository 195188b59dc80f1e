// Package observability exposes Prometheus instrumentation for the tracker.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stepsDetectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "steps",
		Name:      "detected_total",
		Help:      "Number of steps registered by the threshold detector, per mode.",
	}, []string{"mode"})

	positionSamplesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "location",
		Name:      "samples_total",
		Help:      "Number of position samples appended to a tracked path, per mode.",
	}, []string{"mode"})

	geofenceTransitionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "geofence",
		Name:      "transitions_total",
		Help:      "Number of geofence boundary transitions, per direction.",
	}, []string{"direction"})

	sessionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "Number of tracking session starts and stops, per origin.",
	}, []string{"origin", "action"})

	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracker",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent finalized activity write.",
	})
)

func init() {
	prometheus.MustRegister(
		stepsDetectedCounter,
		positionSamplesCounter,
		geofenceTransitionsCounter,
		sessionsCounter,
		activityPersistGauge,
	)
}

// RecordStepDetected increments the step counter for the given mode
// ("foreground" or "background").
func RecordStepDetected(mode string) {
	stepsDetectedCounter.WithLabelValues(mode).Inc()
}

// RecordPositionSample increments the path-sample counter for the given mode.
func RecordPositionSample(mode string) {
	positionSamplesCounter.WithLabelValues(mode).Inc()
}

// RecordGeofenceTransition increments the transition counter
// ("enter" or "exit").
func RecordGeofenceTransition(direction string) {
	geofenceTransitionsCounter.WithLabelValues(direction).Inc()
}

// RecordSession increments the session counter for the origin
// ("manual" or "geofence") and action ("start" or "stop").
func RecordSession(origin, action string) {
	sessionsCounter.WithLabelValues(origin, action).Inc()
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}
