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
	"github.com/transplantflow/platform/pkg/api"
	"github.com/transplantflow/platform/pkg/assist"
	"github.com/transplantflow/platform/pkg/common/config"
	"github.com/transplantflow/platform/pkg/common/database"
	"github.com/transplantflow/platform/pkg/common/errs"
	"github.com/transplantflow/platform/pkg/common/kafka"
	"github.com/transplantflow/platform/pkg/common/logger"
	"github.com/transplantflow/platform/pkg/documents"
	"github.com/transplantflow/platform/pkg/observability/metrics"
	"github.com/transplantflow/platform/pkg/pairsync"
	"github.com/transplantflow/platform/pkg/recordstore"
	"github.com/transplantflow/platform/pkg/registry"
	"github.com/transplantflow/platform/pkg/workflow"
)

const serviceName = "workflow-service"

func main() {
	logger.Init()
	cfg := config.Load()
	m := metrics.New()

	records, err := recordstore.Open(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to open record store")
	}

	parties := registry.NewService(records)
	if cfg.SeedDemoData {
		if err := parties.Seed(context.Background()); err != nil {
			logger.Log.WithError(err).Fatal("failed to seed demo data")
		}
	}

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
	store.Subscribe(parties.CompatibilityObserver())

	scheduler := pairsync.NewScheduler()
	var coordinator *pairsync.Coordinator
	var producer *kafka.Producer
	switch cfg.SyncMode {
	case "kafka":
		producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaPhasesTopic)
		store.Subscribe(pairsync.Publisher(producer, serviceName))
	case "inprocess", "":
		coordinator = pairsync.NewCoordinator(store, parties, scheduler, cfg.SyncDelay, m)
		store.Subscribe(coordinator)
	default:
		logger.Log.WithField("sync_mode", cfg.SyncMode).Fatal("unknown sync mode")
	}
	sessions := pairsync.NewSessions(store, scheduler, coordinator, cfg.LocalCommitDelay)

	docs, err := documents.Open(context.Background(), cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to open document archive")
	}

	var authenticator *api.Authenticator
	if cfg.AuthJWTSecret != "" {
		authenticator, err = api.NewAuthenticator(cfg.AuthJWTSecret, cfg.AuthIssuer)
		if err != nil {
			logger.Log.WithError(err).Fatal("invalid auth configuration")
		}
	} else {
		logger.Log.Warn("AUTH_JWT_SECRET not set, running without auth")
	}

	assistant := assist.NewClient(cfg, m)
	if assistant.Offline() {
		logger.Log.Warn("LLM credentials not set, summaries are rendered offline")
	}

	handler := api.NewHandler(api.Deps{
		Registry:  parties,
		Workflows: store,
		Sessions:  sessions,
		Assistant: assistant,
		Documents: docs,
		MaxUpload: cfg.MaxRequestBody,
	})

	router := mux.NewRouter()
	router.Use(api.Logging(m))
	router.Use(api.Recovery)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if _, err := records.Get(ctx, "parties/_index"); err != nil && !errors.Is(err, errs.ErrNotFound) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(api.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	apiRouter.Use(api.BodyLimit(cfg.MaxRequestBody))
	apiRouter.Use(api.Authenticate(authenticator))
	handler.Register(apiRouter)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      api.CORS(router),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":      cfg.ServerHost,
			"port":      cfg.ServerPort,
			"store":     cfg.StoreBackend,
			"sync_mode": cfg.SyncMode,
			"gating":    gating,
		}).Info("Workflow Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Workflow Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	// Pending debounced commits and propagations run before exit.
	scheduler.Flush()
	scheduler.Stop()

	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Log.WithError(err).Warn("failed to close kafka producer")
		}
	}
	if c, ok := records.(recordstore.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Log.WithError(err).Warn("failed to close record store")
		}
	}
	database.CloseRedis()
	database.ClosePostgres()

	logger.Log.Info("Workflow Service stopped")
}
