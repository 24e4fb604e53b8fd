// Package quotefeed wires the WebSocket connection, depth-delta parsing,
// order-book engine, and publisher into the quote feed handler's
// single-pipeline message loop (§4.3).
package quotefeed

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rickgao/binance-feed/internal/binance"
	"github.com/rickgao/binance-feed/internal/book"
	"github.com/rickgao/binance-feed/internal/connection"
	"github.com/rickgao/binance-feed/internal/health"
	"github.com/rickgao/binance-feed/internal/model"
	"github.com/rickgao/binance-feed/internal/publish"
	"github.com/rickgao/binance-feed/internal/symbol"
)

// Config configures a Handler.
type Config struct {
	HandlerName    string
	SnapshotDepth  int // REST limit parameter, must be >= 10*book.Depth
	HealthInterval time.Duration
}

// Handler runs the quote feed's decode -> book -> publish pipeline for a
// fixed set of symbols, until ctx is cancelled.
type Handler struct {
	cfg    Config
	table  *symbol.Table
	engine *book.Engine

	manager connection.Manager
	sink    connection.Sink
	rest    *binance.Client
	pub     *publish.Publisher
	logger  *slog.Logger

	seqNo int64 // fhSeqNo, main-pipeline-goroutine-owned

	msgsReceived  atomic.Int64
	msgsPublished atomic.Int64
	lastMsgNanos  atomic.Int64
	lastPubNanos  atomic.Int64

	lastGeneration string

	snapshotInFlight map[int]bool
}

// New creates a quote feed Handler.
func New(cfg Config, table *symbol.Table, manager connection.Manager, sink connection.Sink, rest *binance.Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:              cfg,
		table:            table,
		engine:           book.NewEngine(table.All()),
		manager:          manager,
		sink:             sink,
		rest:             rest,
		pub:              publish.New(sink, logger),
		logger:           logger,
		snapshotInFlight: make(map[int]bool, table.Len()),
	}
}

// Snapshot satisfies health.StatsSource.
func (h *Handler) Snapshot() health.Snapshot {
	return health.Snapshot{
		MsgsReceived:  h.msgsReceived.Load(),
		MsgsPublished: h.msgsPublished.Load(),
		LastMsgNanos:  h.lastMsgNanos.Load(),
		LastPubNanos:  h.lastPubNanos.Load(),
		ConnState:     string(h.manager.Stats().State),
		SymbolCount:   h.table.Len(),
	}
}

type snapshotResult struct {
	idx     int
	symbol  string
	eventTS int64
	snap    model.Snapshot
	err     error
}

// Run starts the connection manager and sink, then processes frames
// until ctx is cancelled or a fatal error occurs.
func (h *Handler) Run(ctx context.Context) error {
	if err := h.manager.Start(ctx); err != nil {
		return fmt.Errorf("start connection manager: %w", err)
	}
	if err := h.sink.Connect(ctx); err != nil {
		return fmt.Errorf("connect sink: %w", err)
	}
	defer func() {
		h.sink.Close()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.manager.Stop(stopCtx)
	}()

	reporter := health.New(
		health.Config{Interval: h.cfg.HealthInterval, HandlerName: h.cfg.HandlerName},
		h, h.emitHealth, h.logger,
	)
	if err := reporter.Start(ctx); err != nil {
		return fmt.Errorf("start health reporter: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		reporter.Stop(stopCtx)
	}()

	results := make(chan snapshotResult, h.table.Len())
	messages := h.manager.Messages()

	heartbeatTicker := time.NewTicker(5 * time.Millisecond)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			h.handleFrame(ctx, msg, results)

		case res := <-results:
			h.handleSnapshotResult(res)

		case <-heartbeatTicker.C:
			h.publishDecisions(h.engine.ScanHeartbeats(time.Now(), time.Now().UTC().UnixNano()))
		}
	}
}

func (h *Handler) emitHealth(rec model.HealthRecord) {
	if err := h.pub.PublishHealth(rec); err != nil {
		h.logger.Warn("health publish failed", "error", err)
	}
}

func (h *Handler) handleFrame(ctx context.Context, msg connection.RawMessage, results chan<- snapshotResult) {
	if h.lastGeneration != "" && msg.Generation != h.lastGeneration {
		h.logger.Info("websocket reconnected, resetting all books to INIT", "generation", msg.Generation)
		h.engine.ResetAll()
		h.snapshotInFlight = make(map[int]bool, h.table.Len())
	}
	h.lastGeneration = msg.Generation

	recvNanos := msg.ReceivedAt.UTC().UnixNano()
	h.msgsReceived.Add(1)
	h.lastMsgNanos.Store(recvNanos)

	delta, err := binance.ParseDepth(msg.Data)
	if err != nil {
		h.logger.Warn("dropping malformed depth frame", "error", err)
		return
	}

	idx, err := h.table.Resolve(delta.Symbol)
	if err != nil {
		// Unknown symbol: silently dropped per the open-question decision
		// recorded in DESIGN.md.
		return
	}

	decision := h.engine.ApplyDelta(idx, delta, time.Now(), recvNanos)
	h.publishDecision(decision)

	if h.engine.Book(idx).NeedsSnapshot() && !h.snapshotInFlight[idx] {
		h.requestSnapshot(ctx, idx, delta.Symbol, delta.EventTS, results)
	}

	h.publishDecisions(h.engine.ScanHeartbeats(time.Now(), recvNanos))
}

// requestSnapshot fetches a REST snapshot asynchronously so the main
// pipeline goroutine keeps buffering deltas for the symbol while the
// round-trip is in flight (§4.3.4). The engine's book is never touched
// from the fetch goroutine; only the result crosses back over a channel.
func (h *Handler) requestSnapshot(ctx context.Context, idx int, ticker string, eventTS int64, results chan<- snapshotResult) {
	h.snapshotInFlight[idx] = true
	h.engine.Book(idx).MarkSnapshotRequested()

	go func() {
		snap, err := h.rest.FetchSnapshot(ctx, ticker, h.cfg.SnapshotDepth)
		select {
		case results <- snapshotResult{idx: idx, symbol: ticker, eventTS: eventTS, snap: snap, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (h *Handler) handleSnapshotResult(res snapshotResult) {
	delete(h.snapshotInFlight, res.idx)

	if res.err != nil {
		h.logger.Warn("snapshot fetch failed, will retry on next delta", "symbol", res.symbol, "error", res.err)
		return
	}

	decision := h.engine.InstallSnapshot(res.idx, res.snap, res.eventTS, time.Now(), time.Now().UTC().UnixNano())
	h.publishDecision(decision)
}

func (h *Handler) publishDecisions(decisions []book.PublishDecision) {
	for _, d := range decisions {
		h.publishDecision(d)
	}
}

func (h *Handler) publishDecision(d book.PublishDecision) {
	if !d.Publish {
		return
	}

	if d.InvalidReason != nil {
		h.logger.Warn("book invalidated", "symbol", d.Record.Symbol, "error", d.InvalidReason)
	}

	h.seqNo++
	d.Record.SeqNo = h.seqNo

	if err := h.pub.PublishQuote(d.Record); err != nil {
		h.logger.Warn("quote publish failed", "symbol", d.Record.Symbol, "error", err)
		return
	}

	h.msgsPublished.Add(1)
	h.lastPubNanos.Store(time.Now().UTC().UnixNano())
}
