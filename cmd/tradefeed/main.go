// Command tradefeed ingests Binance combined-stream trade events and
// publishes timestamped, sequence-numbered trade records to the
// downstream tickerplant (§4.2).
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
	"github.com/rickgao/binance-feed/internal/symbol"
	"github.com/rickgao/binance-feed/internal/tradefeed"
	"github.com/rickgao/binance-feed/internal/version"
)

const defaultConfigPath = "configs/tradefeed.json"

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
		fmt.Fprintf(os.Stderr, "tradefeed: fatal: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tradefeed: fatal: %v\n", err)
		return 1
	}

	logger.Info("starting tradefeed",
		"version", version.Version,
		"instance_id", cfg.Instance.ID,
		"symbols", cfg.Symbols,
	)

	table, err := symbol.NewTable(cfg.Symbols)
	if err != nil {
		logger.Error("fatal startup failure", "error", err)
		return 1
	}

	wsURL := binance.CombinedStreamURL(cfg.Binance.WSHost, table.All(), "trade")
	managerCfg := connection.ManagerConfig{
		URL:               wsURL,
		InitialBackoff:    cfg.Reconnect.InitialBackoff(),
		MaxBackoff:        cfg.Reconnect.MaxBackoff(),
		BackoffMultiplier: cfg.Reconnect.Multiplier,
		MessageBufferSize: 4096,
	}
	manager := connection.NewManager(managerCfg, logger.With("component", "ws"))
	sink := connection.NewSink(cfg.Tickerplant.Host, cfg.Tickerplant.Port, managerCfg, logger.With("component", "sink"))

	handler := tradefeed.New(tradefeed.Config{
		HandlerName:    "tradefeed_binance",
		HealthInterval: cfg.Health.Interval(),
	}, table, manager, sink, logger.With("component", "tradefeed"))

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
		logger.Error("tradefeed exited with error", "error", err)
		return 1
	}

	logger.Info("tradefeed stopped cleanly")
	return 0
}
