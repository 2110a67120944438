package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/secops-portal/backend/internal/config"
	"github.com/secops-portal/backend/internal/db"
	httpapi "github.com/secops-portal/backend/internal/http"
	"github.com/secops-portal/backend/internal/memstore"
	"github.com/secops-portal/backend/internal/metrics"
	"github.com/secops-portal/backend/internal/models"
	"github.com/secops-portal/backend/internal/service"
	"github.com/secops-portal/backend/internal/watchdog"
)

// backend is what the server needs from a store: the workflow backends plus
// intake, health and the stale-claim listing used by the watchdog.
type backend interface {
	service.TaskBackend
	service.RuleBackend
	watchdog.StaleLister
	Ping(ctx context.Context) error
	CreateRequest(ctx context.Context, in models.NewRequest) (models.Request, error)
	Close()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "secops-backend").Logger()

	ctx := context.Background()
	var store backend
	if cfg.DatabaseURL == "" {
		store = memstore.New()
		logger.Info().Msg("DATABASE_URL not set, using in-memory store")
	} else {
		pg, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect db")
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate db")
		}
		store = pg
	}
	defer store.Close()

	rec := metrics.NewRecorder(prometheus.DefaultRegisterer)
	rules := &service.RoutingService{Backend: store, Logger: logger}
	tasks := &service.TaskService{Backend: store, Rules: rules, Metrics: rec, Logger: logger}

	seed, err := config.LoadRoutingRules(cfg.RoutingRulesFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load routing rules")
	}
	for _, rule := range seed {
		if _, err := rules.SaveRoutingRule(ctx, rule); err != nil {
			logger.Fatal().Err(err).Str("service_type", rule.ServiceType).Msg("failed to seed routing rule")
		}
	}
	if len(seed) > 0 {
		logger.Info().Int("rules", len(seed)).Str("file", cfg.RoutingRulesFile).Msg("routing rules seeded")
	}

	var dog *watchdog.Watchdog
	if cfg.AutoReturnEnabled {
		dog = &watchdog.Watchdog{
			Store:    store,
			Tasks:    tasks,
			Metrics:  rec,
			Logger:   logger.With().Str("component", "watchdog").Logger(),
			After:    cfg.AutoReturnAfter,
			Actor:    cfg.AutoReturnActor,
			Schedule: cfg.AutoReturnSchedule,
			Timeout:  cfg.RequestTimeout,
		}
		if err := dog.Start(); err != nil {
			logger.Fatal().Err(err).Msg("failed to start auto-return watchdog")
		}
	}

	router := httpapi.Router(cfg, store, tasks, rules, rec, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if dog != nil {
		dog.Stop(ctxShutdown)
	}
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
