package config

import (
	"errors"
	"fmt"

	"github.com/rickgao/binance-feed/internal/book"
)

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks that all required fields are set and values are valid.
// A non-nil error here is the §6.4 "missing/invalid config, no symbols"
// fatal-startup condition that exits the process with code 1.
func (c *HandlerConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if len(c.Symbols) == 0 {
		return errors.New("symbols must contain at least one ticker")
	}

	if c.Tickerplant.Host == "" {
		return errors.New("tickerplant.host is required")
	}
	if c.Tickerplant.Port < 1 || c.Tickerplant.Port > 65535 {
		return fmt.Errorf("tickerplant.port must be between 1 and 65535, got %d", c.Tickerplant.Port)
	}

	if c.Reconnect.InitialBackoffMs < 1 {
		return errors.New("reconnect.initial_backoff_ms must be >= 1")
	}
	if c.Reconnect.MaxBackoffMs < c.Reconnect.InitialBackoffMs {
		return errors.New("reconnect.max_backoff_ms must be >= reconnect.initial_backoff_ms")
	}
	if c.Reconnect.Multiplier <= 1.0 {
		return errors.New("reconnect.multiplier must be > 1.0")
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level %q is not one of trace, debug, info, warn, error", c.Logging.Level)
	}

	if c.Binance.WSHost == "" {
		return errors.New("binance.ws_host is required")
	}
	if c.Binance.RestURL == "" {
		return errors.New("binance.rest_url is required")
	}
	if c.Binance.SnapshotDepth < 10*book.Depth {
		return fmt.Errorf("binance.snapshot_depth must be >= %d (10x internal book depth), got %d", 10*book.Depth, c.Binance.SnapshotDepth)
	}

	if c.Health.IntervalMs < 1 {
		return errors.New("health.interval_ms must be >= 1")
	}

	return nil
}
