package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "ingest",
		Name:      "batches_processed_total",
		Help:      "Number of location batches successfully handled.",
	}, []string{"topic", "task"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "ingest",
		Name:      "handler_errors_total",
		Help:      "Number of handler errors grouped by topic and task.",
	}, []string{"topic", "task"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "ingest",
		Name:      "decode_errors_total",
		Help:      "Number of decode failures per topic.",
	}, []string{"topic"})

	lastBatchGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tracker",
		Subsystem: "ingest",
		Name:      "last_batch_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successfully processed batch per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, decodeErrorCounter, lastBatchGauge)
}

func recordProcessed(batch Batch) {
	processedCounter.WithLabelValues(batch.Topic, batch.Task).Inc()
	if !batch.Timestamp.IsZero() {
		lastBatchGauge.WithLabelValues(batch.Topic).Set(float64(batch.Timestamp.Unix()))
	}
}

func recordHandlerError(batch Batch) {
	handlerErrorCounter.WithLabelValues(batch.Topic, batch.Task).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}

// RecordLag allows external callers (e.g. tests) to set the last timestamp gauge directly.
func RecordLag(topic string, ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastBatchGauge.WithLabelValues(topic).Set(float64(ts.Unix()))
}
