package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/tracker/internal/background"
	"example.com/tracker/internal/config"
	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/geofence"
	"example.com/tracker/internal/ingest"
	"example.com/tracker/internal/location"
	"example.com/tracker/internal/notify"
	persistence "example.com/tracker/internal/persistence/postgres"
	"example.com/tracker/internal/sensors"
	"example.com/tracker/internal/steps"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	gateway := persistence.NewKVGateway(pool)
	activities := persistence.NewActivityRepository(pool)
	fences := persistence.NewGeofenceRepository(pool)

	sender := notify.NewKafkaSender(cfg.KafkaBrokers)
	defer sender.Close()

	// Batches are replayed against persisted state; the streams stay silent
	// here.
	positions := sensors.NewScriptedPositionStream()
	accelerometer := sensors.NewScriptedAccelerometer()

	detector := steps.NewDetector(gateway, accelerometer,
		steps.WithThreshold(cfg.StepThreshold),
		steps.WithSamplingInterval(cfg.SamplingInterval),
	)
	tracker := location.NewTracker(gateway, positions)
	monitor := geofence.NewMonitor(gateway, fences, activities, detector, tracker, positions, sender)

	runtime := background.NewRuntime(nil)
	runtime.Define(background.TaskBackgroundTracking, tracker.AppendBackgroundBatch)
	runtime.Define(background.TaskGeofenceMonitoring, monitor.HandleBatch)
	runtime.Start(background.TaskBackgroundTracking)
	runtime.Start(background.TaskGeofenceMonitoring)

	handler := &userRouter{
		next:    ingest.NewRuntimeHandler(runtime),
		monitor: monitor,
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}
	go func() {
		log.Printf("ingest metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.KafkaConsumerGroup,
		Topic:           ingest.TopicLocationBatches,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	defer reader.Close()

	proc := ingest.NewProcessor(reader, handler)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Printf("ingest started (topic=%s, group=%s)", ingest.TopicLocationBatches, cfg.KafkaConsumerGroup)
		if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("ingest stopped with error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("ingest shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	<-done
}

// userRouter points the geofence monitor at the batch's user before handing
// the batch to the runtime. The consumer is sequential, so serving one user
// at a time is enough.
type userRouter struct {
	next    ingest.Handler
	monitor *geofence.Monitor
	current string
}

func (u *userRouter) Handle(ctx context.Context, batch ingest.Batch) error {
	if batch.Task == background.TaskGeofenceMonitoring && batch.UserID != u.current {
		if err := u.monitor.Stop(ctx); err != nil {
			return err
		}
		if err := u.monitor.Start(ctx, batch.UserID); err != nil {
			if errors.Is(err, domain.ErrPermissionDenied) {
				log.Printf("dropping geofence batch for user %s: %v", batch.UserID, err)
				return nil
			}
			return err
		}
		u.current = batch.UserID
	}
	return u.next.Handle(ctx, batch)
}
