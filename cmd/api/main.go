package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/tracker/internal/api"
	"example.com/tracker/internal/auth"
	"example.com/tracker/internal/config"
	"example.com/tracker/internal/geofence"
	"example.com/tracker/internal/location"
	"example.com/tracker/internal/notify"
	persistence "example.com/tracker/internal/persistence/postgres"
	"example.com/tracker/internal/sensors"
	"example.com/tracker/internal/session"
	"example.com/tracker/internal/stats"
	"example.com/tracker/internal/steps"
	httptransport "example.com/tracker/internal/transport/http"
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

	scheduler, err := notify.NewScheduler(gateway, sender)
	if err != nil {
		log.Fatalf("failed to start notification scheduler: %v", err)
	}
	defer scheduler.Close()

	reminder := notify.NewInactivityReminder(gateway, scheduler,
		notify.WithInactivityInterval(cfg.InactivityInterval),
		notify.WithReminderDebounce(cfg.ReminderDebounce),
	)
	defer reminder.Stop()

	// The service process has no live sensor hardware; samples recorded on
	// devices arrive through the ingest pipeline. The scripted streams
	// satisfy the components' subscriptions without producing data.
	positions := sensors.NewScriptedPositionStream()
	accelerometer := sensors.NewScriptedAccelerometer()

	detector := steps.NewDetector(gateway, accelerometer,
		steps.WithThreshold(cfg.StepThreshold),
		steps.WithSamplingInterval(cfg.SamplingInterval),
	)
	tracker := location.NewTracker(gateway, positions)

	monitor := geofence.NewMonitor(gateway, fences, activities, detector, tracker, positions, sender,
		geofence.WithCompletionListener(reminder))
	fenceService := geofence.NewService(fences, gateway, monitor)

	engine := session.NewEngine(gateway, detector, tracker, activities,
		session.WithCompletionListener(reminder))

	handler := api.NewHandler(engine, activities, fenceService, monitor, scheduler, stats.NewService(activities), gateway)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Simple CORS middleware for local dev
	cors := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost:5173")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(logger(cors(mux))))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("tracker api listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	detector.Cleanup(shutdownCtx)
	tracker.Cleanup(shutdownCtx)
	if err := monitor.Stop(shutdownCtx); err != nil {
		log.Printf("stopping geofence monitor: %v", err)
	}
}
