// Package health implements the fixed-interval liveness heartbeat every
// feed handler emits onto the health_feed_handler table (§4.5).
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/binance-feed/internal/model"
)

// Snapshot is the subset of a handler's mutable counters the reporter
// needs to build a HealthRecord. Handlers compute this on demand rather
// than handing the reporter a live pointer, since the counters are
// written from the pipeline goroutine while the reporter runs on its own
// ticker (SPEC_FULL.md §12's "Connection-state tracking" supplement).
type Snapshot struct {
	MsgsReceived  int64
	MsgsPublished int64
	LastMsgNanos  int64 // 0 if no message received yet
	LastPubNanos  int64 // 0 if no publish yet
	ConnState     string
	SymbolCount   int
}

// StatsSource supplies a fresh Snapshot on every tick.
type StatsSource interface {
	Snapshot() Snapshot
}

// EmitFunc hands a built HealthRecord to the handler, which publishes it.
// The Reporter calls it from its own ticker goroutine, not from the
// handler's pipeline goroutine; health records are not routed through the
// pipeline loop, and their order relative to quote/trade records is set
// only by the publisher's and sink's locks.
type EmitFunc func(model.HealthRecord)

// Config configures a Reporter.
type Config struct {
	Interval    time.Duration
	HandlerName string
}

// Reporter emits a HealthRecord every Config.Interval until stopped.
type Reporter struct {
	cfg    Config
	stats  StatsSource
	emit   EmitFunc
	logger *slog.Logger

	startAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Reporter. startAt is recorded at Start, not New, so
// uptimeSec is measured from when the handler actually began running.
func New(cfg Config, stats StatsSource, emit EmitFunc, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &Reporter{cfg: cfg, stats: stats, emit: emit, logger: logger}
}

// Start begins the ticking goroutine.
func (r *Reporter) Start(ctx context.Context) error {
	r.startAt = time.Now()
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run()

	r.logger.Info("health reporter started", "interval", r.cfg.Interval)
	return nil
}

// Stop halts the ticking goroutine.
func (r *Reporter) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("health reporter stop timed out")
	}
	return nil
}

func (r *Reporter) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Reporter) tick() {
	snap := r.stats.Snapshot()
	now := time.Now().UTC()

	rec := model.HealthRecord{
		NowUTCNanos:   now.UnixNano(),
		HandlerName:   r.cfg.HandlerName,
		StartUTCNanos: r.startAt.UTC().UnixNano(),
		UptimeSec:     int64(time.Since(r.startAt).Seconds()),
		MsgsReceived:  snap.MsgsReceived,
		MsgsPublished: snap.MsgsPublished,
		LastMsgNanos:  snap.LastMsgNanos,
		LastPubNanos:  snap.LastPubNanos,
		ConnState:     snap.ConnState,
		SymbolCount:   snap.SymbolCount,
	}
	r.emit(rec)
}
