package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/venuepos/dispatch/internal/application/availability"
	"github.com/venuepos/dispatch/internal/application/distribution"
	"github.com/venuepos/dispatch/internal/application/notify"
	"github.com/venuepos/dispatch/internal/application/refund"
	"github.com/venuepos/dispatch/internal/config"
	"github.com/venuepos/dispatch/internal/infrastructure/feed"
	"github.com/venuepos/dispatch/internal/infrastructure/httptransport"
	"github.com/venuepos/dispatch/internal/infrastructure/id"
	"github.com/venuepos/dispatch/internal/infrastructure/kafkarelay"
	"github.com/venuepos/dispatch/internal/infrastructure/memstore"
	"github.com/venuepos/dispatch/internal/infrastructure/mongostore"
	"github.com/venuepos/dispatch/internal/infrastructure/triggers"
	"github.com/venuepos/dispatch/internal/observability"
	"github.com/venuepos/dispatch/internal/pkg/logging"
	"github.com/venuepos/dispatch/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.MustNewLogger(cfg.Service, cfg.Env)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	bus := feed.NewBus(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The gateway is the document store every reactor runs against. The
	// in-memory backend publishes its own changes; MongoDB needs the
	// change-stream watcher to feed the bus.
	var (
		gateway    store.Gateway
		mongoStore *mongostore.Store
		watcher    *mongostore.Watcher
	)
	switch cfg.Store.Backend {
	case config.BackendMongo:
		ms, err := mongostore.Connect(ctx, mongostore.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			CacheTTL: cfg.Mongo.CacheTTL,
		}, cfg.Paths(), metrics, logger)
		if err != nil {
			logger.Fatal("mongo_connect_failed", zap.Error(err))
		}
		mongoStore = ms
		watcher = mongostore.NewWatcher(ms, bus, logger)
		gateway = ms
	default:
		gateway = memstore.New(cfg.Paths(), bus)
	}

	ids := id.NewUUIDGenerator()
	notifier := notify.NewService(gateway, ids)
	scheduler := distribution.NewScheduler(gateway, metrics)
	distributor := distribution.NewUseCase(gateway, scheduler, ids)

	handlers := triggers.Handlers{
		Orchestrator: distribution.NewOrchestrator(gateway, scheduler),
		Reconciler:   availability.NewReconciler(gateway, notifier, metrics),
		Propagator:   refund.NewPropagator(gateway),
		Notifier:     notifier,
		Metrics:      metrics,
	}
	var relay *kafkarelay.Relay
	if cfg.RelayEnabled() {
		relay = kafkarelay.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, metrics)
		handlers.Relay = relay
		logger.Info("notification_relay_enabled", zap.String("topic", cfg.Kafka.Topic))
	}
	triggers.Register(bus, handlers)

	bus.Start(ctx)
	if watcher != nil {
		watcher.Start(ctx)
	}

	handler := httptransport.NewHandler(distributor, gateway, logger, metrics)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: mux,
	}

	go func() {
		logger.Info("http_server_start",
			zap.String("addr", server.Addr),
			zap.String("store_backend", cfg.Store.Backend),
			zap.String("collection_root", cfg.Paths().Root()),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_server_shutdown_error", zap.Error(err))
	} else {
		logger.Info("http_server_stopped")
	}

	// Stop producers before the bus so in-flight triggers can finish.
	if watcher != nil {
		watcher.Stop(shutdownCtx)
	}
	bus.Stop(shutdownCtx)
	if relay != nil {
		if err := relay.Close(); err != nil {
			logger.Error("relay_close_error", zap.Error(err))
		}
	}
	if mongoStore != nil {
		if err := mongoStore.Close(shutdownCtx); err != nil {
			logger.Error("mongo_disconnect_error", zap.Error(err))
		}
	}
}
