package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/lighttrace/internal/adapters/http/api"
	"github.com/okian/lighttrace/internal/adapters/http/lighttrace"
	"github.com/okian/lighttrace/internal/adapters/http/swagger"
	app "github.com/okian/lighttrace/internal/app"
	"github.com/okian/lighttrace/internal/config"
	"github.com/okian/lighttrace/internal/domain/catalog"
	"github.com/okian/lighttrace/pkg/logger"
	"github.com/okian/lighttrace/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		// Logger isn't available yet.
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "lighttrace demo exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := logger.Get()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if path := config.FilePath(); path != "" {
		if err := config.Watch(ctx, path, func(next *config.Config, err error) {
			applyReload(ctx, cfg, next, err)
		}); err != nil {
			log.Warn(ctx, "config hot reload disabled", logger.Error(err))
		}
	}

	opts := []app.Option{
		app.WithLogger(log.Named("tracer")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithMaxEntries(cfg.MaxEntries),
	}
	if cfg.Store == config.StoreSQLite {
		opts = append(opts, app.WithSQLitePath(cfg.SQLitePath))
	}
	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start tracer: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	handler, err := newHandler(ctx, cfg, svc)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("dashboard", cfg.BasePath+"/"),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// applyReload applies the reloaded log level. Other settings need a restart.
func applyReload(ctx context.Context, current, next *config.Config, err error) {
	log := logger.Get()
	if err != nil {
		log.Warn(ctx, "config reload failed", logger.Error(err))
		return
	}
	if err := logger.SetLevelString(next.LogLevel); err != nil {
		log.Warn(ctx, "config reload: invalid log_level", logger.String("log_level", next.LogLevel), logger.Error(err))
		return
	}
	log.Info(ctx, "config reloaded", logger.String("log_level", next.LogLevel))
	if next.Addr != current.Addr || next.BasePath != current.BasePath || next.Store != current.Store {
		log.Info(ctx, "config changed; restart to apply listener, base path or store settings")
	}
}

// newHandler assembles the demo host: API routes and docs on a mux, every
// request captured by the tracer, and the LightTrace middleware in front.
func newHandler(ctx context.Context, cfg *config.Config, svc *app.Service) (http.Handler, error) {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)

	cat := catalog.NewService(catalog.NewRepository(svc), svc)
	api.NewServer(cat, svc, svc).Register(ctx, mux)

	ui, err := lighttrace.New(svc, lighttrace.Options{
		BasePath:               cfg.BasePath,
		EnableUI:               cfg.EnableUI,
		RefreshIntervalSeconds: cfg.RefreshIntervalSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("lighttrace: %w", err)
	}

	capture := api.CaptureMiddleware(svc, ui.Options().BasePath, "/metrics")
	return ui.Handler(capture(mux)), nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats refreshes the queue and store gauges.
			_ = svc.GetStats()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
