// Package tradefeed wires the WebSocket connection, trade parsing, and
// publisher into the trade feed handler's timestamped, sequence-numbered
// pipeline (§4.2).
package tradefeed

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rickgao/binance-feed/internal/binance"
	"github.com/rickgao/binance-feed/internal/connection"
	"github.com/rickgao/binance-feed/internal/health"
	"github.com/rickgao/binance-feed/internal/model"
	"github.com/rickgao/binance-feed/internal/publish"
	"github.com/rickgao/binance-feed/internal/symbol"
)

// Config configures a Handler.
type Config struct {
	HandlerName    string
	HealthInterval time.Duration
}

// continuityState tracks the last tradeId seen per symbol, for the
// out-of-order/duplicate/gap logging in §4.2 step 4. seen is false until
// the first trade for a symbol, which is never itself out of order.
type continuityState struct {
	lastTradeID int64
	seen        bool
}

// Handler runs the trade feed's decode -> instrument -> publish pipeline
// for a fixed set of symbols, until ctx is cancelled.
type Handler struct {
	cfg   Config
	table *symbol.Table
	state []continuityState

	manager connection.Manager
	sink    connection.Sink
	pub     *publish.Publisher
	logger  *slog.Logger

	seqNo int64 // fhSeqNo, main-pipeline-goroutine-owned

	msgsReceived  atomic.Int64
	msgsPublished atomic.Int64
	lastMsgNanos  atomic.Int64
	lastPubNanos  atomic.Int64
}

// New creates a trade feed Handler.
func New(cfg Config, table *symbol.Table, manager connection.Manager, sink connection.Sink, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:     cfg,
		table:   table,
		state:   make([]continuityState, table.Len()),
		manager: manager,
		sink:    sink,
		pub:     publish.New(sink, logger),
		logger:  logger,
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

	messages := h.manager.Messages()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			h.handleFrame(msg)
		}
	}
}

func (h *Handler) emitHealth(rec model.HealthRecord) {
	if err := h.pub.PublishHealth(rec); err != nil {
		h.logger.Warn("health publish failed", "error", err)
	}
}

func (h *Handler) handleFrame(msg connection.RawMessage) {
	t0 := time.Now()
	recvNanos := msg.ReceivedAt.UTC().UnixNano()
	h.msgsReceived.Add(1)
	h.lastMsgNanos.Store(recvNanos)

	trade, err := binance.ParseTrade(msg.Data)
	if err != nil {
		h.logger.Warn("dropping malformed trade frame", "error", err)
		return
	}

	sendStart := time.Now()
	parseMicros := sendStart.Sub(t0).Microseconds()

	idx, err := h.table.Resolve(trade.Symbol)
	if err != nil {
		// Unknown symbol: silently dropped, matching the quote feed's
		// handling of the same open question.
		return
	}
	h.checkContinuity(idx, trade.Symbol, trade.TradeID)

	h.seqNo++

	rec := model.TradeRecord{
		Symbol:       trade.Symbol,
		TradeID:      trade.TradeID,
		Price:        trade.Price,
		Quantity:     trade.Quantity,
		BuyerIsMaker: trade.BuyerIsMaker,
		ExchEventTS:  trade.EventTS,
		ExchTradeTS:  trade.TradeTS,
		RecvUTCNanos: recvNanos,
		ParseMicros:  parseMicros,
		SeqNo:        h.seqNo,
	}
	rec.SendMicros = time.Since(sendStart).Microseconds()

	if err := h.pub.PublishTrade(rec); err != nil {
		h.logger.Warn("trade publish failed", "symbol", rec.Symbol, "error", err)
		return
	}

	h.msgsPublished.Add(1)
	h.lastPubNanos.Store(time.Now().UTC().UnixNano())
}

// checkContinuity validates trade-id continuity per symbol (§4.2 step 4)
// and persists the last-seen tradeId.
func (h *Handler) checkContinuity(idx int, ticker string, tradeID int64) {
	st := &h.state[idx]

	if !st.seen {
		st.seen = true
		st.lastTradeID = tradeID
		return
	}

	switch {
	case tradeID < st.lastTradeID:
		h.logger.Warn("OUT_OF_ORDER trade", "symbol", ticker, "tradeId", tradeID, "last", st.lastTradeID)
	case tradeID == st.lastTradeID:
		h.logger.Warn("DUPLICATE trade", "symbol", ticker, "tradeId", tradeID)
	case tradeID > st.lastTradeID+1:
		h.logger.Warn("GAP in trade sequence", "symbol", ticker, "tradeId", tradeID, "missed", tradeID-st.lastTradeID-1)
	}

	st.lastTradeID = tradeID
}
