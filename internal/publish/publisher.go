// Package publish serializes the feed handlers' typed records into the
// downstream sink's wire envelope and sends them fire-and-forget (§4.4).
package publish

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/binance-feed/internal/epoch"
	"github.com/rickgao/binance-feed/internal/model"
)

// Table names on the downstream sink (§6.2).
const (
	TableTrade  = "trade_binance"
	TableQuote  = "quote_binance"
	TableHealth = "health_feed_handler"
)

// updateFn is the named update function every envelope invokes on the
// sink, mirroring the kdb+ tickerplant convention of a single `upd`
// entry point dispatched by table name.
const updateFn = "upd"

// Sink is the transport the Publisher writes envelopes to. Satisfied by
// connection.Sink; narrowed here so this package does not import
// connection and stays independently testable.
type Sink interface {
	Publish(envelope []byte) error
}

// wireEnvelope is the newline-delimited JSON frame the sink expects, see
// SPEC_FULL.md §6.2's transport note.
type wireEnvelope struct {
	Fn    string        `json:"fn"`
	Table string        `json:"table"`
	Row   []interface{} `json:"row"`
}

// Publisher builds a table's row tuple from a typed record and hands the
// serialized envelope to a Sink. The feed pipeline itself calls this from
// a single goroutine (§4.4's ordering guarantee applies there), but the
// health reporter runs on its own ticker goroutine and publishes
// concurrently with the pipeline, so the counters below are mutex
// guarded, matching the stats-accessor pattern in connection.Manager.
type Publisher struct {
	sink   Sink
	logger *slog.Logger

	mu        sync.Mutex
	published int64
	dropped   int64
	lastPubAt time.Time
}

// New creates a Publisher writing to sink.
func New(sink Sink, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{sink: sink, logger: logger}
}

// Published returns the lifetime count of envelopes successfully handed
// to the sink, for health-record counters.
func (p *Publisher) Published() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published
}

// Dropped returns the lifetime count of envelopes whose Sink.Publish call
// returned an error. The sink may still retransmit such an envelope after
// it reconnects; the outcome of that retransmit is not counted here.
func (p *Publisher) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// LastPublishAt returns the wall-clock instant of the last successful
// publish, zero value if none yet.
func (p *Publisher) LastPublishAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPubAt
}

// PublishTrade serializes and sends a trade_binance row (§6.2, 12 fields).
func (p *Publisher) PublishTrade(r model.TradeRecord) error {
	now := time.Now().UTC()
	row := []interface{}{
		epoch.FromUnixNanos(now.UnixNano()),
		r.Symbol,
		r.TradeID,
		r.Price,
		r.Quantity,
		r.BuyerIsMaker,
		r.ExchEventTS,
		r.ExchTradeTS,
		epoch.FromUnixNanos(r.RecvUTCNanos),
		r.ParseMicros,
		r.SendMicros,
		r.SeqNo,
	}
	return p.send(TableTrade, row)
}

// PublishQuote serializes and sends a quote_binance row (§6.2, 10 fields).
func (p *Publisher) PublishQuote(r model.QuoteRecord) error {
	now := time.Now().UTC()
	row := []interface{}{
		epoch.FromUnixNanos(now.UnixNano()),
		r.Symbol,
		r.BidPrice,
		r.BidQty,
		r.AskPrice,
		r.AskQty,
		r.IsValid,
		r.ExchEventTS,
		epoch.FromUnixNanos(r.RecvUTCNanos),
		r.SeqNo,
	}
	return p.send(TableQuote, row)
}

// PublishHealth serializes and sends a health_feed_handler row (§6.2, 10
// fields).
func (p *Publisher) PublishHealth(r model.HealthRecord) error {
	row := []interface{}{
		epoch.FromUnixNanos(r.NowUTCNanos),
		r.HandlerName,
		epoch.FromUnixNanos(r.StartUTCNanos),
		r.UptimeSec,
		r.MsgsReceived,
		r.MsgsPublished,
		epoch.FromUnixNanos(r.LastMsgNanos),
		epoch.FromUnixNanos(r.LastPubNanos),
		r.ConnState,
		r.SymbolCount,
	}
	return p.send(TableHealth, row)
}

// send marshals the envelope and attempts a single publish. On failure it
// relies on the underlying Sink's own reconnect-and-retransmit-once
// behavior (§4.1); the failed call is logged and counted as dropped and
// is never retried here.
func (p *Publisher) send(table string, row []interface{}) error {
	env := wireEnvelope{Fn: updateFn, Table: table, Row: row}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", table, err)
	}

	if err := p.sink.Publish(data); err != nil {
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		p.logger.Warn("publish failed", "table", table, "error", err)
		return err
	}

	p.mu.Lock()
	p.published++
	p.lastPubAt = time.Now()
	p.mu.Unlock()
	return nil
}
