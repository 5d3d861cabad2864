package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/transplantflow/platform/pkg/common/config"
	"github.com/transplantflow/platform/pkg/common/database"
	"github.com/transplantflow/platform/pkg/common/kafka"
	"github.com/transplantflow/platform/pkg/common/logger"
	"github.com/transplantflow/platform/pkg/common/models"
	"github.com/transplantflow/platform/pkg/observability/metrics"
	"github.com/transplantflow/platform/pkg/pairsync"
	"github.com/transplantflow/platform/pkg/recordstore"
	"github.com/transplantflow/platform/pkg/registry"
	"github.com/transplantflow/platform/pkg/workflow"
)

// The sync worker applies partner sync for phase commits published by
// workflow-service instances running with SYNC_MODE=kafka.
func main() {
	logger.Init()
	cfg := config.Load()
	m := metrics.New()

	records, err := recordstore.Open(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to open record store")
	}
	parties := registry.NewService(records)

	catalog, err := workflow.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load catalog")
	}
	gating, err := workflow.ParseGatingMode(cfg.GatingMode)
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid gating mode")
	}
	store := workflow.NewStore(records, parties, workflow.NewTemplates(catalog, gating))
	store.Subscribe(workflow.ObserverFunc(func(_ context.Context, ev workflow.CommitEvent) {
		m.ObserveCommit(ev.PhaseID, string(ev.Origin))
	}))

	scheduler := pairsync.NewScheduler()
	defer scheduler.Stop()
	coordinator := pairsync.NewCoordinator(store, parties, scheduler, cfg.SyncDelay, m)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaPhasesTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:     router,
		ReadTimeout: cfg.ReadTimeout,
		IdleTimeout: 120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	done := make(chan error, 1)
	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"topic":    cfg.KafkaPhasesTopic,
			"group_id": cfg.KafkaGroupID,
		}).Info("Sync Worker started")
		done <- consumer.Consume(ctx, func(ctx context.Context, event models.Event) error {
			if err := coordinator.HandleEvent(ctx, event); err != nil {
				m.IncrementConsumed("malformed")
				logger.Log.WithError(err).WithField("event_id", event.ID).Warn("Dropping malformed phase event")
				return nil
			}
			m.IncrementConsumed("ok")
			return nil
		})
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.WithError(err).Error("consumer stopped")
		}
	}

	logger.Log.Info("Shutting down Sync Worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	// Propagations still waiting out the sync delay run before exit.
	scheduler.Flush()

	if c, ok := records.(recordstore.Closer); ok {
		c.Close()
	}
	database.CloseRedis()
	database.ClosePostgres()

	logger.Log.Info("Sync Worker stopped")
}
