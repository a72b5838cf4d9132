package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/learnpath/gamify/internal/api"
	"github.com/learnpath/gamify/internal/app/engagement"
	"github.com/learnpath/gamify/internal/app/league"
	"github.com/learnpath/gamify/internal/calendar"
	"github.com/learnpath/gamify/internal/domain"
	"github.com/learnpath/gamify/internal/health"
	"github.com/learnpath/gamify/internal/infra/postgres"
	"github.com/learnpath/gamify/internal/infra/scheduler"
	"github.com/learnpath/gamify/internal/infra/sqlite"
)

// Daemon is the gamify runtime. It wires together all services.
type Daemon struct {
	Config     Config
	Store      domain.Store
	Calendar   *calendar.Calendar
	Engagement *engagement.Service
	League     *league.Service
	Scheduler  *scheduler.Scheduler
	Health     *health.Checker
	Server     *api.Server
	Logger     *slog.Logger

	cancel context.CancelFunc
}

// New loads the configuration and creates a Daemon.
func New(ctx context.Context, version string) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg, NewLogger(cfg.Logging, os.Stderr), version)
}

// NewWithConfig creates a Daemon with the given configuration. Nothing runs
// until Serve.
func NewWithConfig(ctx context.Context, cfg Config, logger *slog.Logger, version string) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	cal, err := calendar.Load(cfg.Calendar.Timezone)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	lg := league.NewService(store, cal, cfg.LeaguePolicy(), logger)
	eng := engagement.NewService(store, engagement.NewEngine(cal, cfg.EngineOptions()), lg, logger)

	sched, err := scheduler.New(cfg.SchedulerConfig(cal.Location()), lg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	checker := health.NewChecker(store, lg, logger)

	opts := []api.Option{
		api.WithHealth(checker),
		api.WithVersion(version),
		api.WithTimeout(parseDuration(cfg.API.RequestTimeout, 30*time.Second)),
	}
	if cfg.API.Metrics {
		opts = append(opts, api.WithMetrics())
	}

	return &Daemon{
		Config:     cfg,
		Store:      store,
		Calendar:   cal,
		Engagement: eng,
		League:     lg,
		Scheduler:  sched,
		Health:     checker,
		Server:     api.NewServer(eng, lg, logger, opts...),
		Logger:     logger.With("component", "daemon"),
	}, nil
}

// openStore opens the configured store.
func openStore(ctx context.Context, cfg StorageConfig) (domain.Store, error) {
	switch cfg.Driver {
	case DriverPostgres:
		s, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	case DriverSQLite, "":
		s, err := sqlite.Open(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// Addr is the configured listen address.
func (d *Daemon) Addr() string {
	return net.JoinHostPort(d.Config.API.Host, strconv.Itoa(d.Config.API.Port))
}

// Serve starts background jobs and the HTTP server and blocks until ctx
// is cancelled or a termination signal arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	go d.Health.Run(ctx)
	d.Scheduler.Start(ctx)

	httpServer := &http.Server{
		Addr:              d.Addr(),
		Handler:           d.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case sig := <-sigCh:
			d.Logger.Info("shutting down", "signal", sig.String())
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		d.Scheduler.Stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			d.Logger.Warn("http shutdown", "error", err)
		}
	}()

	d.Logger.Info("gamify serving", "addr", "http://"+d.Addr(),
		"storage", d.Config.Storage.Driver, "timezone", d.Calendar.Location().String(),
		"metrics", d.Config.API.Metrics)

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-done
		return err
	}
	<-done
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Scheduler != nil {
		d.Scheduler.Stop()
	}
	if d.Store != nil {
		_ = d.Store.Close()
	}
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
