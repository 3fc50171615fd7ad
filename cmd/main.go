package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/versus/internal/adapters/http/api"
	"github.com/okian/versus/internal/adapters/persistence"
	"github.com/okian/versus/internal/config"
	"github.com/okian/versus/internal/domain/catalog"
	"github.com/okian/versus/internal/engine/session"
	"github.com/okian/versus/pkg/logger"
	"github.com/okian/versus/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	cat, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		log.Error(ctx, "failed to load entity catalog", logger.Error(err))
		return
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		log.Error(ctx, "failed to open persistence backend", logger.Error(err))
		return
	}

	opts := []session.Option{}
	if backend != nil {
		opts = append(opts, session.WithBackend(backend))
	}
	sess, err := session.New(cfg, cat, opts...)
	if err != nil {
		log.Error(ctx, "failed to create session", logger.Error(err))
		return
	}
	if err := sess.Start(ctx); err != nil {
		log.Error(ctx, "failed to start session", logger.Error(err))
		return
	}
	defer sess.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.Handle("/", api.NewServer(sess).Router())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}

// openBackend picks the persistence backend: Postgres when a DSN is set,
// else the JSON state file, else none.
func openBackend(ctx context.Context, cfg *config.Config) (persistence.Backend, error) {
	if cfg.PostgresDSN != "" {
		b, err := persistence.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	if cfg.StatePath != "" {
		b, err := persistence.NewFileBackend(cfg.StatePath)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, nil
}
