// feedtail connects to the price stream and prints normalized batches and
// invalidations to the console. No storage is touched.
// Usage: go run ./cmd/feedtail --assets bitcoin,ethereum,binancecoin
//
// The feed URL and API key come from the config file when it exists, with
// PRICESYNC_FEED_API_KEY available through ${VAR} expansion or .env.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/pricesync/internal/catalog"
	"github.com/rickgao/pricesync/internal/config"
	"github.com/rickgao/pricesync/internal/feed"
)

func main() {
	configPath := flag.String("config", "configs/pricesync.example.yaml", "path to config file")
	assetList := flag.String("assets", "", "comma-separated asset ids (default: seed catalog)")
	jsonOut := flag.Bool("json", false, "print batches as JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if err := config.LoadDotEnv(".env"); err != nil {
		logger.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadWithDefaults(*configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = &config.Config{}
		cfg.ApplyDefaults()
	} else if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	assets := parseAssets(*assetList)
	if len(assets) == 0 {
		for _, a := range catalog.Seed() {
			assets = append(assets, a.ID)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f := feed.New(feed.Config{
		URL:              cfg.Feed.WSURL,
		APIKey:           cfg.Feed.APIKey,
		ReconnectDelay:   cfg.Feed.ReconnectDelay,
		HandshakeTimeout: cfg.Feed.HandshakeTimeout,
		PingTimeout:      cfg.Feed.PingTimeout,
		WriteTimeout:     cfg.Feed.WriteTimeout,
		BufferSize:       cfg.Feed.BufferSize,
	}, feed.WithLogger(logger))

	if err := f.Start(ctx, assets); err != nil {
		logger.Error("failed to start feed", "error", err)
		os.Exit(1)
	}

	logger.Info("streaming started - press Ctrl+C to stop", "assets", assets)

	stats := time.NewTicker(10 * time.Second)
	defer stats.Stop()

	batches := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down...")
			f.Stop()
			logger.Info("shutdown complete", "batches", batches)
			return

		case b := <-f.Updates():
			batches++
			printBatch(b, *jsonOut)

		case ids := <-f.Invalidations():
			fmt.Printf("[INVALID] %s\n", strings.Join(ids, ","))

		case <-stats.C:
			st := f.Status()
			logger.Info("stats",
				"state", st.State,
				"attempts", st.Attempts,
				"batches", batches,
				"invalid", len(st.Invalid),
				"last_error", st.LastError,
			)
		}
	}
}

func printBatch(b feed.Batch, asJSON bool) {
	if asJSON {
		data, _ := json.Marshal(b)
		fmt.Println(string(data))
		return
	}

	parts := make([]string, len(b.Updates))
	for i, u := range b.Updates {
		parts[i] = fmt.Sprintf("%s=%g", u.AssetID, u.Price)
	}
	fmt.Printf("[PRICES] %s %s\n", b.ReceivedAt.Format(time.RFC3339Nano), strings.Join(parts, " "))
}

func parseAssets(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
