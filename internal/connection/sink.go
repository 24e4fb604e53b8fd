package connection

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Sink is a fire-and-forget publish connection to the downstream
// tickerplant. Unlike the batching writers a storage-backed system would
// use, Sink never buffers more than the single in-flight record: on
// reconnect it retransmits that one record once, then moves on.
type Sink interface {
	// Connect dials the sink and begins the reconnect supervisor.
	Connect(ctx context.Context) error

	// Close shuts down the sink connection.
	Close() error

	// Publish writes one newline-delimited JSON envelope. It does not
	// block on acknowledgement; the envelope is handed to the connection's
	// write buffer and is retransmitted once if the connection drops
	// before the write completes.
	Publish(envelope []byte) error

	// IsConnected reports current connection state.
	IsConnected() bool
}

type sink struct {
	cfg    ManagerConfig
	addr   string
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	conn      net.Conn
	writer    *bufio.Writer
	connected bool
	lastSent  []byte
}

// NewSink creates a new sink connection to host:port.
func NewSink(host string, port int, cfg ManagerConfig, logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &sink{
		cfg:    cfg,
		addr:   fmt.Sprintf("%s:%d", host, port),
		logger: logger,
	}
}

// Connect dials the sink and starts the reconnect supervisor.
func (s *sink) Connect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ErrShutdownRequested
	default:
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.dial(); err != nil {
		s.logger.Warn("sink initial connect failed, will retry", "addr", s.addr, "error", err)
		s.wg.Add(1)
		go s.reconnect()
	}

	return nil
}

// Close shuts down the sink connection.
func (s *sink) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Publish writes one envelope, retransmitting it once if the connection
// drops mid-write.
func (s *sink) Publish(envelope []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		s.lastSent = envelope
		return ErrChannelBroken
	}

	s.lastSent = envelope
	if err := s.writeLocked(envelope); err != nil {
		s.connected = false
		if s.conn != nil {
			s.conn.Close()
		}
		s.wg.Add(1)
		go s.reconnect()
		return fmt.Errorf("%w: %w", ErrChannelBroken, err)
	}
	return nil
}

func (s *sink) writeLocked(envelope []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := s.writer.Write(envelope); err != nil {
		return err
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return err
	}
	return s.writer.Flush()
}

// IsConnected reports current connection state.
func (s *sink) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *sink) dial() error {
	conn, err := net.DialTimeout("tcp", s.addr, 10*time.Second)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.writer = bufio.NewWriter(conn)
	s.connected = true
	s.mu.Unlock()

	return nil
}

// reconnect retries the dial with exponential backoff and retransmits the
// last record once on success.
func (s *sink) reconnect() {
	defer s.wg.Done()

	// The connection that triggered this reconnect (a failed write, or a
	// failed initial dial) is stale; release it before redialing so we
	// never hold two sockets open for the same logical sink.
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	wait := s.cfg.InitialBackoff
	if wait <= 0 {
		wait = time.Second
	}
	maxWait := s.cfg.MaxBackoff
	if maxWait <= 0 {
		maxWait = 8 * time.Second
	}
	mult := s.cfg.BackoffMultiplier
	if mult <= 1.0 {
		mult = 2.0
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(wait):
		}

		s.logger.Info("attempting sink reconnection", "addr", s.addr)

		if err := s.dial(); err != nil {
			s.logger.Warn("sink reconnection failed", "error", err)
			wait = time.Duration(float64(wait) * mult)
			if wait > maxWait {
				wait = maxWait
			}
			continue
		}

		s.logger.Info("sink reconnected", "addr", s.addr)

		s.mu.Lock()
		last := s.lastSent
		s.lastSent = nil // retransmit at most once; a failed retransmit is dropped
		s.mu.Unlock()

		if last != nil {
			s.mu.Lock()
			if err := s.writeLocked(last); err != nil {
				s.connected = false
				s.mu.Unlock()
				s.wg.Add(1)
				go s.reconnect()
				return
			}
			s.mu.Unlock()
		}

		return
	}
}
