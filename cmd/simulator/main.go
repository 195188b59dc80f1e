// Command simulator publishes synthetic location batches to the ingest
// topic, standing in for a device uploading samples recorded offline.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/tracker/internal/background"
	"example.com/tracker/internal/config"
	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/ingest"
)

func main() {
	var (
		user     = flag.String("user", "demo-user", "user id recorded as the message key")
		task     = flag.String("task", background.TaskBackgroundTracking, "receiving task (background_tracking or geofence_monitoring)")
		batches  = flag.Int("batches", 1, "number of batches to publish")
		samples  = flag.Int("samples", 30, "samples per batch")
		interval = flag.Duration("interval", time.Second, "simulated time between samples")
		lat      = flag.Float64("lat", 45.4642, "starting latitude")
		lon      = flag.Float64("lon", 9.19, "starting longitude")
		stride   = flag.Float64("stride", 0.00001, "latitude increment per sample, roughly one metre")
	)
	flag.Parse()

	cfg := config.Load()

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        ingest.TopicLocationBatches,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
	}
	defer writer.Close()

	ctx := context.Background()
	total := (*batches) * (*samples)
	cursor := time.Now().Add(-time.Duration(total) * *interval)
	latitude := *lat

	for b := 0; b < *batches; b++ {
		coords := make([]domain.Coordinate, 0, *samples)
		for s := 0; s < *samples; s++ {
			coords = append(coords, domain.Coordinate{
				Latitude:  latitude,
				Longitude: *lon,
				Timestamp: cursor,
			})
			latitude += *stride
			cursor = cursor.Add(*interval)
		}

		payload, err := json.Marshal(struct {
			Samples []domain.Coordinate `json:"samples"`
		}{Samples: coords})
		if err != nil {
			log.Fatalf("marshalling batch: %v", err)
		}

		err = writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(*user),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "task", Value: []byte(*task)},
			},
		})
		if err != nil {
			log.Fatalf("publishing batch %d: %v", b+1, err)
		}
		log.Printf("published batch %d/%d (%d samples, task=%s, user=%s)", b+1, *batches, len(coords), *task, *user)
	}
}
