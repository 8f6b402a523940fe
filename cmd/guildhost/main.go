package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/guildhost/guildhost/internal/adapter/discord"
	ghhttp "github.com/guildhost/guildhost/internal/adapter/http"
	ghnats "github.com/guildhost/guildhost/internal/adapter/nats"
	"github.com/guildhost/guildhost/internal/adapter/otel"
	"github.com/guildhost/guildhost/internal/adapter/postgres"
	"github.com/guildhost/guildhost/internal/config"
	"github.com/guildhost/guildhost/internal/logger"
	"github.com/guildhost/guildhost/internal/port/controlplane"
	"github.com/guildhost/guildhost/internal/port/messagequeue"
	"github.com/guildhost/guildhost/internal/port/notifier"
	"github.com/guildhost/guildhost/internal/resilience"
	"github.com/guildhost/guildhost/internal/service"

	// Control-plane dialects register themselves.
	_ "github.com/guildhost/guildhost/internal/adapter/standalone"
	_ "github.com/guildhost/guildhost/internal/adapter/subserver"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"dialect", cfg.ControlPlane.Dialect,
		"log_level", cfg.Logging.Level,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	var queue messagequeue.Queue = messagequeue.Noop{}
	if cfg.NATS.URL != "" {
		nq, err := ghnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = nq.Close() }()
		queue = nq
	} else {
		slog.Info("nats url not configured, event publishing disabled")
	}

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Control plane ---

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	client, err := controlplane.New(cfg.ControlPlane.Dialect, controlplane.Settings{
		BaseURL:          cfg.ControlPlane.BaseURL,
		APIKey:           cfg.ControlPlane.APIKey,
		Timeout:          cfg.ControlPlane.Timeout,
		ParentIdentifier: cfg.ControlPlane.ParentIdentifier,
		NodeID:           cfg.ControlPlane.NodeID,
		BlueprintID:      cfg.ControlPlane.BlueprintID,
		AccountID:        cfg.ControlPlane.AccountID,
		DockerImage:      cfg.ControlPlane.DockerImage,
		Breaker:          breaker,
	})
	if err != nil {
		return fmt.Errorf("control plane: %w", err)
	}
	slog.Info("control plane client ready", "dialect", client.Name(), "available", controlplane.Available())

	// --- Services ---

	var notifiers []notifier.Notifier
	if cfg.Discord.WebhookURL != "" {
		notifiers = append(notifiers, discord.NewNotifier(cfg.Discord.WebhookURL))
	}
	notify := service.NewNotificationService(notifiers, cfg.Discord.Events)

	store := postgres.NewStore(pool)
	provisioner := service.NewProvisioningService(store, client, notify, queue, metrics, cfg.ControlPlane.ReadyWait)
	lifecycle := service.NewLifecycleService(store, client, notify, queue, metrics)
	scaler := service.NewAutoScaler(store, client, lifecycle, cfg.Scaling, queue, metrics)
	scheduler := service.NewScheduler(store, scaler, cfg.Scaling.Interval, cfg.Scaling.MaxConcurrent)

	go scheduler.Run(ctx)

	// --- HTTP ---

	handlers := &ghhttp.Handlers{
		Provisioner: provisioner,
		Lifecycle:   lifecycle,
		Scaler:      scaler,
		Store:       store,
	}

	r := chi.NewRouter()
	r.Use(ghhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(ghhttp.RequestID)
	r.Use(ghhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", healthHandler(cfg, queue))

	ghhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// healthHandler returns an http.HandlerFunc that reports service health.
func healthHandler(cfg *config.Config, queue messagequeue.Queue) http.HandlerFunc {
	type healthStatus struct {
		Status  string `json:"status"`
		NATS    bool   `json:"nats_connected"`
		Dialect string `json:"dialect"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{
			Status:  "ok",
			NATS:    queue.IsConnected(),
			Dialect: cfg.ControlPlane.Dialect,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
