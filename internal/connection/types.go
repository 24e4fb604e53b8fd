package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrChannelClosed   = errors.New("channel closed")

	// ErrChannelBroken is returned by Sink.Publish when the outbound
	// channel to the tickerplant has no live connection to write
	// through (§4.4's "ChannelBroken" result), whether because none has
	// been established yet or because the last write failed mid-flight.
	ErrChannelBroken = errors.New("sink channel broken")

	// ErrShutdownRequested is returned by blocking connection operations
	// (Sink.Connect, Manager.Start) when the supplied context is already
	// cancelled, propagating the cooperative shutdown signal out of a
	// blocking call per §4.1/§7 rather than leaving it to time out.
	ErrShutdownRequested = errors.New("shutdown requested")
)

// TimestampedMessage wraps raw message data with the local receive timestamp,
// captured immediately after the blocking read returns.
type TimestampedMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// ClientConfig configures a single WebSocket client connection.
type ClientConfig struct {
	URL          string        // combined-stream WebSocket URL
	PingTimeout  time.Duration // max time without ping/pong activity before considered stale
	WriteTimeout time.Duration // write deadline for sends
	BufferSize   int           // message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   4096,
	}
}

// ManagerConfig configures the reconnecting connection supervisor.
type ManagerConfig struct {
	URL               string
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	MessageBufferSize int
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		InitialBackoff:    time.Second,
		MaxBackoff:        8 * time.Second,
		BackoffMultiplier: 2.0,
		MessageBufferSize: 4096,
	}
}

// ConnectionState describes the current lifecycle state of the supervised
// connection, surfaced in health records.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)
