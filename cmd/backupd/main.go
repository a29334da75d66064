package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	api "github.com/pablopunk/bucky-sub000/internal/api/http"
	"github.com/pablopunk/bucky-sub000/internal/config"
	"github.com/pablopunk/bucky-sub000/internal/domain"
	"github.com/pablopunk/bucky-sub000/internal/engine"
	etcdinfra "github.com/pablopunk/bucky-sub000/internal/infra/etcd"
	"github.com/pablopunk/bucky-sub000/internal/infra/memory"
	"github.com/pablopunk/bucky-sub000/internal/infra/rclone"
	"github.com/pablopunk/bucky-sub000/internal/infra/webhook"
	"github.com/pablopunk/bucky-sub000/internal/tracing"
	"github.com/pablopunk/bucky-sub000/internal/usecase"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	tracerShutdown, err := tracing.Init("backupd")
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Printf("failed to shutdown tracer: %v", err)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel)

	var (
		jobs      domain.JobRepository
		history   domain.HistoryRepository
		providers domain.ProviderStore
	)
	switch cfg.Store {
	case "memory":
		jobs = memory.NewJobRepository()
		history = memory.NewHistoryRepository()
		providers = memory.NewProviderStore()
		logger.Info("using in-memory store, state is lost on restart")
	default:
		etcdClient, err := etcdinfra.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
		if err != nil {
			log.Fatalf("failed to create etcd client: %v", err)
		}
		defer etcdClient.Close()
		jobs = etcdinfra.NewJobRepository(etcdClient, logger)
		history = etcdinfra.NewHistoryRepository(etcdClient, logger)
		providers = etcdinfra.NewProviderStore(etcdClient)
		logger.Info("connected to etcd", "endpoints", cfg.EtcdEndpoints)
	}

	transferer := rclone.NewTransferer(cfg.RclonePath, cfg.TransferTimeout, logger)
	notifier := webhook.NewNotifier(cfg.Notify.Timeout)

	runner := engine.NewRunner(engine.RunnerDeps{
		Jobs:      jobs,
		History:   history,
		Providers: providers,
		Transfer:  transferer,
		Notifier:  notifier,
		Notify: engine.NotifyPolicy{
			OnSuccess:  cfg.Notify.OnSuccess,
			OnFailure:  cfg.Notify.OnFailure,
			Recipients: cfg.Notify.Recipients,
		},
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.RetryBackoff,
	}, logger)

	gate := engine.NewGate(64, runner.Execute, logger)
	reconciler := engine.NewReconciler(jobs, history, gate, cfg.StalenessThreshold, cfg.SweepInterval, logger)
	scheduler := engine.NewScheduler(engine.SchedulerOptions{
		Jobs:              jobs,
		History:           history,
		Gate:              gate,
		Reconciler:        reconciler,
		SweepInterval:     cfg.SweepInterval,
		ReconcileInterval: cfg.ReconcileInterval,
	}, logger)

	if err := scheduler.Start(rootCtx); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}

	jobService := usecase.NewJobService(jobs, history, scheduler, logger)
	jobHandler := api.NewJobHandler(jobService, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	jobHandler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	logger.Info("starting admin API", "addr", cfg.ListenAddr)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		logger.Error("scheduler shutdown timed out", "error", err)
	}
}

func setupGracefulShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("received signal %v, initiating graceful shutdown", sig)
		cancel()
	}()
}
