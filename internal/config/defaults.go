package config

import (
	"github.com/google/uuid"
)

// Default values for optional configuration fields, per the config file
// schema.
const (
	DefaultTickerplantHost     = "localhost"
	DefaultTickerplantPort     = 5010
	DefaultInitialBackoffMs    = 1000
	DefaultMaxBackoffMs        = 8000
	DefaultReconnectMultiplier = 2.0
	DefaultLogLevel            = "info"
	DefaultBinanceWSHost       = "stream.binance.com:9443"
	DefaultBinanceRestURL      = "https://api.binance.com"
	DefaultSnapshotDepth       = 100
	DefaultHealthIntervalMs    = 5000
)

func (c *HandlerConfig) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = uuid.NewString()
	}

	if c.Tickerplant.Host == "" {
		c.Tickerplant.Host = DefaultTickerplantHost
	}
	if c.Tickerplant.Port == 0 {
		c.Tickerplant.Port = DefaultTickerplantPort
	}

	if c.Reconnect.InitialBackoffMs == 0 {
		c.Reconnect.InitialBackoffMs = DefaultInitialBackoffMs
	}
	if c.Reconnect.MaxBackoffMs == 0 {
		c.Reconnect.MaxBackoffMs = DefaultMaxBackoffMs
	}
	if c.Reconnect.Multiplier == 0 {
		c.Reconnect.Multiplier = DefaultReconnectMultiplier
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}

	if c.Binance.WSHost == "" {
		c.Binance.WSHost = DefaultBinanceWSHost
	}
	if c.Binance.RestURL == "" {
		c.Binance.RestURL = DefaultBinanceRestURL
	}
	if c.Binance.SnapshotDepth == 0 {
		c.Binance.SnapshotDepth = DefaultSnapshotDepth
	}

	if c.Health.IntervalMs == 0 {
		c.Health.IntervalMs = DefaultHealthIntervalMs
	}
}
