// Niftyshort — a live intraday engine that shorts confirmed swing-low
// breaks on NIFTY weekly index options.
//
// Architecture:
//
//	main.go                 — entry point: loads config, resolves the strike window, starts the coordinator
//	internal/autodetect     — resolves ATM strike + nearest weekly expiry when --auto is passed
//	internal/feed           — dual-source tick feed with automatic failover
//	internal/bar            — per-symbol 1-minute bar aggregation + session VWAP
//	internal/swing          — watch-counter swing high/low confirmation
//	internal/filter         — three-stage continuous candidate filter
//	internal/order          — pending-entry state machine, fill-to-stop pairing, broker reconciliation
//	internal/position       — session R ledger over open/closed positions
//	internal/risk           — position caps, daily R target/stop, force-exit cutoff, SL-failure latch
//	internal/store          — append-only journal + atomic session snapshot
//	internal/notify         — throttled alert channel (log or webhook)
//	internal/engine         — Coordinator: the single cooperative event loop wiring everything above
//	internal/api            — read-only dashboard snapshot + WebSocket event broadcast
//	internal/broker         — REST+WebSocket live client, and an in-memory paper client for dry runs
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"niftyshort/internal/api"
	"niftyshort/internal/autodetect"
	"niftyshort/internal/broker"
	"niftyshort/internal/config"
	"niftyshort/internal/engine"
	"niftyshort/internal/feed"
	"niftyshort/pkg/types"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("SHORT_CONFIG"); p != "" {
		cfgPath = p
	}

	auto := flag.Bool("auto", false, "auto-detect ATM strike and nearest weekly expiry")
	expiryToken := flag.String("expiry", "", "broker expiry token, e.g. 07AUG25 (required unless --auto)")
	atmStrike := flag.Int("atm", 0, "ATM strike anchor (required unless --auto)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(*cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	symbols, err := resolveSymbolWindow(ctx, *cfg, *auto, *expiryToken, *atmStrike)
	cancel()
	if err != nil {
		logger.Error("failed to resolve strike window", "error", err)
		os.Exit(1)
	}
	logger.Info("strike window resolved", "symbol_count", len(symbols))

	var client broker.Client
	var paper *broker.Paper
	if cfg.Mode == "live" {
		client = broker.NewLive(cfg.Broker, logger)
	} else {
		paper = broker.NewPaper(logger)
		client = paper
	}

	primary := feed.NewWSSource(cfg.Feed.PrimaryURL, logger)
	backup := feed.NewWSSource(cfg.Feed.BackupURL, logger)
	supervisor := feed.New(primary, backup, cfg.Feed.StaleThreshold, cfg.Feed.SwitchbackStable, nil, logger)

	coord, err := engine.New(*cfg, symbols, client, supervisor, logger)
	if err != nil {
		logger.Error("failed to construct coordinator", "error", err)
		os.Exit(1)
	}

	if paper != nil {
		go ingestPaperFills(paper, supervisor)
	}

	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, coord, *cfg, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	coord.Start()
	logger.Info("niftyshort started", "mode", cfg.Mode, "cutoff", cfg.Session.CutoffTime)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}

	coord.Stop()
}

// ingestPaperFills feeds every tick the Coordinator sees to the paper
// broker's resting-order matcher, since Paper has no WebSocket of its own.
func ingestPaperFills(paper *broker.Paper, supervisor interface{ Ticks() <-chan types.Tick }) {
	for tick := range supervisor.Ticks() {
		paper.Ingest(tick)
	}
}

// resolveSymbolWindow builds the ±N strike, both-side subscription list
// either from the explicit --atm/--expiry flags or from the auto-detector.
func resolveSymbolWindow(ctx context.Context, cfg config.Config, auto bool, expiryToken string, atmStrike int) ([]string, error) {
	if auto {
		client := autodetect.New(cfg.Autodetect)
		result, err := client.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("autodetect: %w", err)
		}
		return result.SymbolWindow(cfg.Autodetect.StrikeWindow, cfg.Autodetect.StrikeInterval), nil
	}
	if expiryToken == "" || atmStrike == 0 {
		return nil, fmt.Errorf("either --auto or both --atm and --expiry must be set")
	}
	return types.SymbolWindowFromToken(expiryToken, atmStrike, cfg.Autodetect.StrikeWindow, cfg.Autodetect.StrikeInterval), nil
}

func newLogger(cfg config.Config) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
