// Package app wires configuration, storage, HTTP routing and background jobs
// into a runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/bissquit/subtrack/internal/config"
	"github.com/bissquit/subtrack/internal/notifications"
	"github.com/bissquit/subtrack/internal/pkg/broker"
	"github.com/bissquit/subtrack/internal/pkg/metrics"
	"github.com/bissquit/subtrack/internal/pkg/postgres"
	"github.com/bissquit/subtrack/internal/version"
	"github.com/bissquit/subtrack/migrations"
)

// App owns every long-lived resource of the service.
type App struct {
	config *config.Config
	logger *slog.Logger
	db     *pgxpool.Pool

	api     *http.Server
	metrics *http.Server

	stopBackground context.CancelFunc
	publisher      *broker.Publisher
	worker         *notifications.Worker
	scheduler      *notifications.Scheduler
}

// New connects to the database, applies migrations when enabled and builds
// the HTTP servers. Background jobs are started before it returns.
func New(cfg *config.Config) (*App, error) {
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := metrics.RegisterPool(db); err != nil {
		logger.Warn("pool metrics not registered", "error", err)
	}

	bgCtx, stop := context.WithCancel(context.Background())
	a := &App{
		config:         cfg,
		logger:         logger,
		db:             db,
		stopBackground: stop,
	}

	handler, err := a.routes(bgCtx)
	if err != nil {
		a.stopJobs(context.Background())
		db.Close()
		return nil, fmt.Errorf("build routes: %w", err)
	}

	srv := cfg.Server
	a.api = &http.Server{
		Addr:              net.JoinHostPort(srv.Host, srv.Port),
		Handler:           handler,
		ReadTimeout:       srv.ReadTimeout,
		ReadHeaderTimeout: srv.ReadHeaderTimeout,
		WriteTimeout:      srv.WriteTimeout,
		IdleTimeout:       srv.IdleTimeout,
	}

	metricsMux := chi.NewRouter()
	metricsMux.Handle("/metrics", promhttp.Handler())
	a.metrics = &http.Server{
		Addr:              net.JoinHostPort(srv.Host, srv.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	return a, nil
}

func openDatabase(cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	db, err := postgres.Connect(ctx, postgres.Config{
		URL:             cfg.URL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnectAttempts: cfg.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := postgres.Migrate(migrations.FS, cfg.URL); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}
	return db, nil
}

// Router returns the API handler.
func (a *App) Router() http.Handler {
	return a.api.Handler
}

// NotificationScheduler returns the reminder scheduler, or nil when notifications are disabled.
func (a *App) NotificationScheduler() *notifications.Scheduler {
	return a.scheduler
}

// NotificationWorker returns the queue worker, or nil when notifications are disabled.
func (a *App) NotificationWorker() *notifications.Worker {
	return a.worker
}

// Run serves the API and metrics listeners until ctx is done or one of them
// fails, then shuts both down within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range []*http.Server{a.api, a.metrics} {
		g.Go(func() error {
			a.logger.Info("listening", "addr", srv.Addr, "version", version.Version)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
		defer cancel()
		return a.closeServers(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) closeServers(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return a.api.Shutdown(ctx) })
	g.Go(func() error { return a.metrics.Shutdown(ctx) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("shutdown servers: %w", err)
	}
	return nil
}

// Shutdown stops the servers, the background jobs and the broker connection,
// then closes the database pool.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	errs := []error{a.closeServers(ctx)}
	errs = append(errs, a.stopJobs(ctx))
	a.db.Close()

	return errors.Join(errs...)
}

// stopJobs stops work that uses the pool so it can be closed afterwards.
func (a *App) stopJobs(ctx context.Context) error {
	a.stopBackground()
	if a.scheduler != nil {
		a.scheduler.Stop(ctx)
	}
	if a.worker != nil {
		a.worker.Stop()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			return fmt.Errorf("close broker: %w", err)
		}
	}
	return nil
}
