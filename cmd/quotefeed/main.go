// Command quotefeed ingests Binance combined-stream depth updates,
// maintains a per-symbol order book via snapshot+delta reconciliation,
// and publishes L1 quotes to the downstream tickerplant (§4.3).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/binance-feed/internal/binance"
	"github.com/rickgao/binance-feed/internal/config"
	"github.com/rickgao/binance-feed/internal/connection"
	"github.com/rickgao/binance-feed/internal/logging"
	"github.com/rickgao/binance-feed/internal/quotefeed"
	"github.com/rickgao/binance-feed/internal/symbol"
	"github.com/rickgao/binance-feed/internal/version"
)

const defaultConfigPath = "configs/quotefeed.json"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := defaultConfigPath
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quotefeed: fatal: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quotefeed: fatal: %v\n", err)
		return 1
	}

	logger.Info("starting quotefeed",
		"version", version.Version,
		"instance_id", cfg.Instance.ID,
		"symbols", cfg.Symbols,
	)

	table, err := symbol.NewTable(cfg.Symbols)
	if err != nil {
		logger.Error("fatal startup failure", "error", err)
		return 1
	}

	wsURL := binance.CombinedStreamURL(cfg.Binance.WSHost, table.All(), "depth")
	managerCfg := connection.ManagerConfig{
		URL:               wsURL,
		InitialBackoff:    cfg.Reconnect.InitialBackoff(),
		MaxBackoff:        cfg.Reconnect.MaxBackoff(),
		BackoffMultiplier: cfg.Reconnect.Multiplier,
		MessageBufferSize: 4096,
	}
	manager := connection.NewManager(managerCfg, logger.With("component", "ws"))
	sink := connection.NewSink(cfg.Tickerplant.Host, cfg.Tickerplant.Port, managerCfg, logger.With("component", "sink"))
	rest := binance.NewClient(cfg.Binance.RestURL, binance.WithLogger(logger.With("component", "rest")))

	handler := quotefeed.New(quotefeed.Config{
		HandlerName:    "quotefeed_binance",
		SnapshotDepth:  cfg.Binance.SnapshotDepth,
		HealthInterval: cfg.Health.Interval(),
	}, table, manager, sink, rest, logger.With("component", "quotefeed"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return handler.Run(gctx)
	})
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("quotefeed exited with error", "error", err)
		return 1
	}

	logger.Info("quotefeed stopped cleanly")
	return 0
}
