package config

import "time"

// HandlerConfig is the root configuration for a single feed handler process.
type HandlerConfig struct {
	Instance    InstanceConfig    `json:"instance"`
	Symbols     []string          `json:"symbols"`
	Tickerplant TickerplantConfig `json:"tickerplant"`
	Reconnect   ReconnectConfig   `json:"reconnect"`
	Logging     LoggingConfig     `json:"logging"`
	Binance     BinanceConfig     `json:"binance"`
	Health      HealthConfig      `json:"health"`
}

// InstanceConfig identifies this handler process in logs and health records.
type InstanceConfig struct {
	ID string `json:"id"`
}

// TickerplantConfig addresses the downstream sink connection.
type TickerplantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ReconnectConfig governs exponential backoff for both the market WebSocket
// and the sink connection.
type ReconnectConfig struct {
	InitialBackoffMs int     `json:"initial_backoff_ms"`
	MaxBackoffMs     int     `json:"max_backoff_ms"`
	Multiplier       float64 `json:"multiplier"`
}

// LoggingConfig selects the log level and optional log file.
type LoggingConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

// BinanceConfig addresses the market data source.
type BinanceConfig struct {
	WSHost        string `json:"ws_host"`
	RestURL       string `json:"rest_url"`
	SnapshotDepth int    `json:"snapshot_depth"`
}

// HealthConfig governs the health heartbeat reporter.
type HealthConfig struct {
	IntervalMs int `json:"interval_ms"`
}

// InitialBackoff returns the reconnect policy's base delay as a Duration.
func (r ReconnectConfig) InitialBackoff() time.Duration {
	return time.Duration(r.InitialBackoffMs) * time.Millisecond
}

// MaxBackoff returns the reconnect policy's cap as a Duration.
func (r ReconnectConfig) MaxBackoff() time.Duration {
	return time.Duration(r.MaxBackoffMs) * time.Millisecond
}

// Interval returns the health reporter's period as a Duration.
func (h HealthConfig) Interval() time.Duration {
	return time.Duration(h.IntervalMs) * time.Millisecond
}
