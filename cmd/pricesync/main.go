package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/pricesync/internal/cache"
	"github.com/rickgao/pricesync/internal/catalog"
	"github.com/rickgao/pricesync/internal/config"
	"github.com/rickgao/pricesync/internal/engine"
	"github.com/rickgao/pricesync/internal/feed"
	"github.com/rickgao/pricesync/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/pricesync.local.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting pricesync",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
		"storage", cfg.Storage.Driver,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("pricesync failed", "error", err)
		os.Exit(1)
	}

	logger.Info("pricesync stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	backend, err := cache.NewBackend(cfg.Storage, logger.With("component", "storage"))
	if err != nil {
		return fmt.Errorf("create storage backend: %w", err)
	}
	store := cache.New(backend,
		cache.WithLogger(logger.With("component", "cache")),
		cache.WithWindow(cfg.Engine.HistoryWindow),
	)
	defer store.Close()

	priceFeed := feed.New(feed.Config{
		URL:              cfg.Feed.WSURL,
		APIKey:           cfg.Feed.APIKey,
		ReconnectDelay:   cfg.Feed.ReconnectDelay,
		HandshakeTimeout: cfg.Feed.HandshakeTimeout,
		PingTimeout:      cfg.Feed.PingTimeout,
		WriteTimeout:     cfg.Feed.WriteTimeout,
		BufferSize:       cfg.Feed.BufferSize,
	},
		feed.WithRecorder(store),
		feed.WithLogger(logger.With("component", "feed")),
	)

	eng := engine.New(engine.Config{
		HistoryWindow: cfg.Engine.HistoryWindow,
		StaleAfter:    cfg.Engine.StaleAfter,
		PurgeInterval: cfg.Engine.PurgeInterval,
	}, catalog.Seed(), store, priceFeed, logger.With("component", "engine"))

	search := catalog.NewClient(cfg.Catalog,
		catalog.WithLogger(logger.With("component", "catalog")),
	)

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := eng.Stop(shutdownCtx); err != nil {
			logger.Warn("engine shutdown incomplete", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           newHandler(eng, search, cfg.HTTP.MetricsPath, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening",
			"port", cfg.HTTP.Port,
			"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.HTTP.Port),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newLogger builds the process logger from config. Level and format were
// validated on load.
func newLogger(cfg config.LogConfig) *slog.Logger {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
