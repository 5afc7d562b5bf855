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
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	cadhttp "github.com/cadencrm/cadence/internal/adapter/http"
	cadnats "github.com/cadencrm/cadence/internal/adapter/nats"
	"github.com/cadencrm/cadence/internal/adapter/natskv"
	"github.com/cadencrm/cadence/internal/adapter/otel"
	"github.com/cadencrm/cadence/internal/adapter/postgres"
	"github.com/cadencrm/cadence/internal/adapter/ristretto"
	"github.com/cadencrm/cadence/internal/adapter/tiered"
	"github.com/cadencrm/cadence/internal/adapter/ws"
	"github.com/cadencrm/cadence/internal/config"
	"github.com/cadencrm/cadence/internal/logger"
	"github.com/cadencrm/cadence/internal/middleware"
	"github.com/cadencrm/cadence/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

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

	log, closer := logger.New(cfg.Logging)
	defer closer.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
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

	queue, err := cadnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// Tracing and metrics are opt-in; the service runs fine without a collector.
	var metrics *otel.Metrics
	if cfg.Otel.Enabled {
		shutdown, err := otel.Init(ctx, cfg.Logging.Service, cfg.Otel.Endpoint)
		if err != nil {
			return fmt.Errorf("otel: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
		if metrics, err = otel.NewMetrics(); err != nil {
			return fmt.Errorf("otel metrics: %w", err)
		}
	}

	// Tenant lookups go through ristretto in-process with the JetStream KV
	// bucket behind it, so invalidations propagate across instances.
	l1, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("ristretto: %w", err)
	}
	kv, err := queue.TenantKV(ctx, cfg.Cache.TenantTTL)
	if err != nil {
		return fmt.Errorf("tenant kv bucket: %w", err)
	}
	tenantCache := tiered.New(l1, natskv.New(kv), cfg.Cache.TenantTTL)

	// --- Services ---

	hub := ws.NewHub()
	store := postgres.NewStore(pool)

	auditor := service.NewAuditService(store, log)
	auditor.SetQueue(queue)
	auditor.SetHub(hub)
	auditor.SetMetrics(metrics)

	authz := service.NewAuthzService(auditor, metrics)

	tenants := service.NewTenantService(store, authz, auditor, cfg.Quotas, cfg.Auth.BcryptCost, log)
	tenants.SetCache(tenantCache)
	tenants.SetQueue(queue)
	tenants.SetHub(hub)

	principals := service.NewPrincipalService(store, authz, auditor, cfg.Auth.BcryptCost, log)

	// --- HTTP ---

	handlers := cadhttp.NewHandlers(tenants, principals, auditor)

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)

	r := chi.NewRouter()
	r.Use(cadhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cadhttp.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(limiter.Handler)
	if cfg.Otel.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}
	r.Use(cadhttp.Logger)
	r.Use(middleware.AuditContext)
	r.Use(middleware.Principal(store, authz))

	cadhttp.MountRoutes(r, handlers, hub)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return auditor.StartRetentionJob(ctx, cfg.Audit.PruneInterval, cfg.Audit.RetentionDays)
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
