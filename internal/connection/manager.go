package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager supervises a single WebSocket connection to the combined market
// stream, reconnecting with exponential backoff on failure. A feed handler
// runs exactly one Manager: spec calls for a single logical pipeline per
// process, not a connection pool.
type Manager interface {
	// Start dials the connection and begins forwarding frames.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the connection and any reconnect loop.
	Stop(ctx context.Context) error

	// Messages returns the channel of raw frames for the decode pipeline.
	Messages() <-chan RawMessage

	// Stats returns current connection statistics.
	Stats() ManagerStats
}

// ManagerStats reports connection health for the health reporter.
type ManagerStats struct {
	Connected         bool
	State             ConnectionState
	ReconnectCount    int
	CurrentGeneration string
}

// RawMessage is a message handed from the Manager to the decode pipeline.
type RawMessage struct {
	Data       []byte
	ReceivedAt time.Time
	Generation string // reconnect generation this frame arrived on
}

type manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	router *GrowableBuffer[RawMessage]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.RWMutex
	client         Client
	connected      bool
	state          ConnectionState
	reconnectCount int
	generation     string
}

// NewManager creates a new connection supervisor.
func NewManager(cfg ManagerConfig, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &manager{
		cfg:    cfg,
		logger: logger,
		router: NewGrowableBuffer[RawMessage](cfg.MessageBufferSize),
	}
}

// Start dials the WebSocket and begins the read-forward loop. Each
// successful (re)connection is tagged with a fresh generation ID so
// downstream consumers can detect a reconnect mid-stream.
func (m *manager) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ErrShutdownRequested
	default:
	}

	m.ctx, m.cancel = context.WithCancel(ctx)

	clientCfg := ClientConfig{
		URL:          m.cfg.URL,
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   4096,
	}

	cl := NewClient(clientCfg, m.logger)
	if err := cl.Connect(m.ctx); err != nil {
		m.logger.Warn("initial connect failed, will retry", "error", err)
	}

	m.mu.Lock()
	m.client = cl
	m.connected = cl.IsConnected()
	if m.connected {
		m.state = StateConnected
	} else {
		m.state = StateConnecting
	}
	m.generation = uuid.NewString()
	gen := m.generation
	m.mu.Unlock()

	m.wg.Add(1)
	go m.readLoop(cl, gen)

	if !cl.IsConnected() {
		m.wg.Add(1)
		go m.reconnect()
	}

	return nil
}

// Stop gracefully shuts down the connection.
func (m *manager) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
	}

	m.mu.RLock()
	cl := m.client
	m.mu.RUnlock()
	if cl != nil {
		cl.Close()
	}

	m.router.Close()
	return nil
}

// Messages returns the output channel for the decode pipeline, drained
// via Receive/TryReceive on the underlying GrowableBuffer.
func (m *manager) Messages() <-chan RawMessage {
	ch := make(chan RawMessage, 1)
	go func() {
		defer close(ch)
		for {
			v, ok := m.router.Receive()
			if !ok {
				return
			}
			ch <- v
		}
	}()
	return ch
}

// Stats returns current connection statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ManagerStats{
		Connected:         m.connected,
		State:             m.state,
		ReconnectCount:    m.reconnectCount,
		CurrentGeneration: m.generation,
	}
}

// readLoop forwards frames from the client to the central buffer until
// the client reports an error or closes, then triggers a reconnect.
func (m *manager) readLoop(cl Client, generation string) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return

		case err := <-cl.Errors():
			m.logger.Warn("websocket error, reconnecting", "error", err)
			cl.Close()
			m.mu.Lock()
			m.connected = false
			m.state = StateReconnecting
			m.mu.Unlock()
			m.wg.Add(1)
			go m.reconnect()
			return

		case msg, ok := <-cl.Messages():
			if !ok {
				return
			}
			m.router.Send(RawMessage{
				Data:       msg.Data,
				ReceivedAt: msg.ReceivedAt,
				Generation: generation,
			})
		}
	}
}

// reconnect retries the connection with exponential backoff, multiplying
// the wait by BackoffMultiplier (2.0 if unset) on each failure up to
// MaxBackoff and resetting to InitialBackoff on the next successful connect.
func (m *manager) reconnect() {
	defer m.wg.Done()

	// The client that got us here (readLoop's error branch, or Start's
	// failed initial dial) may still be holding an open socket and a
	// running heartbeatLoop goroutine; release it before redialing, the
	// same order the teacher's manager.reconnect closes conn.client.
	m.mu.RLock()
	stale := m.client
	m.mu.RUnlock()
	if stale != nil {
		stale.Close()
	}

	wait := m.cfg.InitialBackoff
	if wait <= 0 {
		wait = time.Second
	}
	maxWait := m.cfg.MaxBackoff
	if maxWait <= 0 {
		maxWait = 8 * time.Second
	}
	mult := m.cfg.BackoffMultiplier
	if mult <= 1.0 {
		mult = 2.0
	}

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(wait):
		}

		m.logger.Info("attempting reconnection")

		clientCfg := ClientConfig{
			URL:          m.cfg.URL,
			PingTimeout:  60 * time.Second,
			WriteTimeout: 5 * time.Second,
			BufferSize:   4096,
		}
		cl := NewClient(clientCfg, m.logger)

		if err := cl.Connect(m.ctx); err != nil {
			m.logger.Warn("reconnection failed", "error", err)
			m.mu.Lock()
			m.reconnectCount++
			m.mu.Unlock()

			wait = time.Duration(float64(wait) * mult)
			if wait > maxWait {
				wait = maxWait
			}
			continue
		}

		gen := uuid.NewString()
		m.mu.Lock()
		m.client = cl
		m.connected = true
		m.state = StateConnected
		m.reconnectCount++
		m.generation = gen
		m.mu.Unlock()

		m.logger.Info("reconnected", "generation", gen)

		m.wg.Add(1)
		go m.readLoop(cl, gen)
		return
	}
}
