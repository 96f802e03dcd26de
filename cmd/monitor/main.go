package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classwatch/internal/accounting"
	"classwatch/internal/apiclient"
	"classwatch/internal/config"
	"classwatch/internal/dispatch"
	"classwatch/internal/monitor"
	"classwatch/internal/queue"
	"classwatch/internal/store"
)

// The monitor consumes queued sightings for one room, drives the session
// window on a clock tick and dispatches accounting output at class end.
func main() {
	cfg := config.LoadMonitor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	api := apiclient.New(cfg.APIBaseURL)
	if err := registerWithRetry(ctx, api, cfg.DeviceID); err != nil {
		log.Fatalf("device registration failed: %v", err)
	}
	log.Printf("registered as device %s", cfg.DeviceID)

	// Expose the monitor's counters on a side port.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9091", mux); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server: %v", err)
		}
	}()

	m := monitor.New(monitor.Config{
		Room:          cfg.RoomLabel,
		MinutesBefore: cfg.MinutesBefore,
		MinutesAfter:  cfg.MinutesAfter,
		Policy: accounting.Policy{
			PresenceThresholdMinutes: cfg.PresenceThresholdMin,
			LateThresholdMinutes:     cfg.LateThresholdMin,
		},
		Schedules: api,
		Rosters:   api,
		Dispatcher: &dispatch.Dispatcher{
			Recorder: api,
			Unknowns: api,
			Reports:  api,
			Notifier: api,
			Room:     cfg.RoomLabel,
		},
		Queue: q,
		Tick:  cfg.TickInterval,
	})

	if err := m.Run(ctx); err != nil {
		log.Fatalf("monitor failed: %v", err)
	}
}

// registerWithRetry keeps trying registration so the monitor survives an
// api that comes up later than it does.
func registerWithRetry(ctx context.Context, api *apiclient.Client, deviceID string) error {
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		if err = api.Register(ctx, deviceID); err == nil {
			return nil
		}
		log.Printf("register attempt %d failed: %v", attempt+1, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 2 * time.Second):
		}
	}
	return err
}
