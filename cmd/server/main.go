package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	auditread "govengine/internal/audit"
	"govengine/internal/platform/config"
	"govengine/internal/platform/httpserver"
	"govengine/internal/platform/logger"
	"govengine/internal/platform/metrics"
	"govengine/internal/platform/middleware"
	processcatalog "govengine/internal/process/catalog"
	processhandler "govengine/internal/process/handler"
	processmetrics "govengine/internal/process/metrics"
	"govengine/internal/process/service"
	"govengine/internal/rules"
	rulescatalog "govengine/internal/rules/catalog"
	ruleshandler "govengine/internal/rules/handler"
	rulesmetrics "govengine/internal/rules/metrics"
	"govengine/pkg/platform/audit/publishers/compliance"
	"govengine/pkg/platform/audit/relay"
	"govengine/pkg/platform/httputil"
	"govengine/pkg/platform/middleware/admin"
	"govengine/pkg/platform/middleware/metadata"
	"govengine/pkg/platform/middleware/requesttime"
)

const shutdownTimeout = 10 * time.Second

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "govengine: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, _ := cfg.SlogLevel()
	log := logger.New(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.close()

	publisher := compliance.New(be.trail,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetricsWith(reg)),
	)
	processService := service.New(be.templates, be.instances, be.tx, publisher,
		service.WithLogger(log),
		service.WithMetrics(processmetrics.NewWith(reg)),
		service.WithAuditReader(be.trail),
	)

	loader := processcatalog.NewLoader(cfg.Documents.ProcessCatalogPath)
	if _, err := loader.Load(ctx); err != nil {
		// Bootstrap rereads the document, so a fix does not need a restart.
		log.Warn("process catalog is not loadable yet", "path", cfg.Documents.ProcessCatalogPath, "error", err)
	}

	ruleCatalog, err := rulescatalog.Load(ctx, cfg.Documents.RulesPath, cfg.Documents.UseCasesPath)
	if err != nil {
		return fmt.Errorf("load rule catalog: %w", err)
	}
	ruleEngine := rules.New(ruleCatalog, rules.WithLogger(log), rules.WithMetrics(rulesmetrics.NewWith(reg)))

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(metadata.ClientIP)
	router.Use(requesttime.Middleware)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logger(log, metrics.NewWith(reg)))

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	router.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(cfg.AdminToken, log))
		r.Use(middleware.RequireActor)
		processhandler.New(processService, loader, log).Register(r)
		auditread.NewHandler(auditread.NewService(be.trail), log).Register(r)
		ruleshandler.New(ruleEngine, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting governance engine", "addr", cfg.Addr, "postgres", cfg.UsesPostgres())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		log.Info("http server stopped")
		return nil
	})
	if cfg.AuditRelay.Enabled() {
		g.Go(func() error {
			return runRelay(gctx, cfg.AuditRelay, be, log)
		})
	}

	return g.Wait()
}

// runRelay ships the audit trail to Kafka until ctx ends. It resumes after
// the newest record already on the topic.
func runRelay(ctx context.Context, cfg config.AuditRelay, be *backend, log *slog.Logger) error {
	sink, err := relay.NewKafkaSink(ctx, cfg.Brokers, cfg.Topic)
	if err != nil {
		return err
	}
	defer sink.Close()

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	last, err := sink.LastRelayedSeq(readCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("resume audit relay: %w", err)
	}

	log.Info("audit relay started", "topic", cfg.Topic, "resume_after", last)
	r := relay.New(be.trail, sink,
		relay.WithLogger(log),
		relay.WithInterval(cfg.Interval),
		relay.WithStartAfter(last),
	)
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("audit relay stopped", "cursor", r.Cursor())
	return nil
}
