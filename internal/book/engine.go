package book

import (
	"time"

	"github.com/rickgao/binance-feed/internal/model"
)

// HeartbeatInterval is the idle period after which a VALID symbol
// republishes its last L1 quote even without a content change (§4.3.5).
const HeartbeatInterval = 50 * time.Millisecond

// symbolState is the per-symbol publication bookkeeping layered on top of
// a Book: the last L1 record actually sent to the publisher.
type symbolState struct {
	book *Book

	everPublished bool
	lastPublished model.QuoteRecord
	lastPublishAt time.Time
}

// Engine owns one Book plus publication state per configured symbol,
// indexed densely by the symbol table's index (§9: "compact array indexed
// by dense symbol indices" rather than a map keyed by ticker string).
type Engine struct {
	symbols []symbolState
}

// NewEngine creates an engine with one book per ticker, in table order.
func NewEngine(tickers []string) *Engine {
	e := &Engine{symbols: make([]symbolState, len(tickers))}
	for i, t := range tickers {
		e.symbols[i] = symbolState{book: New(t)}
	}
	return e
}

// Book returns the underlying book for a symbol index, for snapshot
// installation and delta application callers.
func (e *Engine) Book(idx int) *Book {
	return e.symbols[idx].book
}

// ResetAll returns every symbol to INIT, clearing books, buffers, and
// publication caches. Used on WebSocket reconnect (§4.3.6).
func (e *Engine) ResetAll() {
	for i := range e.symbols {
		e.symbols[i].book.Reset()
		e.symbols[i].everPublished = false
		e.symbols[i].lastPublished = model.QuoteRecord{}
		e.symbols[i].lastPublishAt = time.Time{}
	}
}

// PublishDecision is the candidate L1 record an Apply* call produces,
// together with whether the publication policy says to send it.
type PublishDecision struct {
	Record  model.QuoteRecord
	Publish bool

	// InvalidReason is non-nil only for the single invalid marker emitted
	// on entering INVALID: ErrBookInvalid or ErrSnapshotTooOld, identifying
	// which §4.3.2 transition row fired.
	InvalidReason error
}

// candidate builds the L1 record for a symbol's current book state.
func candidate(idx int, s *symbolState, exchEventTS int64, recvUTCNanos int64) model.QuoteRecord {
	valid := s.book.State() == StateValid
	rec := model.QuoteRecord{
		Symbol:       s.book.Symbol,
		IsValid:      valid,
		ExchEventTS:  exchEventTS,
		RecvUTCNanos: recvUTCNanos,
	}
	if valid {
		bb := s.book.BestBid()
		ba := s.book.BestAsk()
		rec.BidPrice, rec.BidQty = bb.Price, bb.Qty
		rec.AskPrice, rec.AskQty = ba.Price, ba.Qty
	}
	return rec
}

// shouldPublish implements §4.3.5's publication policy given a freshly
// built candidate record and the symbol's last-published cache.
func shouldPublish(s *symbolState, cand model.QuoteRecord, now time.Time) bool {
	if !s.everPublished {
		return true
	}
	if cand.IsValid != s.lastPublished.IsValid {
		return true
	}
	if !cand.IsValid {
		// A single invalid marker was already emitted on entering INVALID;
		// do not republish while invalid.
		return false
	}
	if cand.BidPrice != s.lastPublished.BidPrice || cand.BidQty != s.lastPublished.BidQty ||
		cand.AskPrice != s.lastPublished.AskPrice || cand.AskQty != s.lastPublished.AskQty {
		return true
	}
	if now.Sub(s.lastPublishAt) >= HeartbeatInterval {
		return true
	}
	return false
}

// commit records cand as the last-published record for the symbol.
func (s *symbolState) commit(cand model.QuoteRecord, now time.Time) {
	s.everPublished = true
	s.lastPublished = cand
	s.lastPublishAt = now
}

// ApplyDelta applies a depth delta to the symbol's book and returns the
// publication decision. A delta that invalidates the book (§4.3.2's
// VALID/SYNCING -> INVALID rows) is handled atomically here: the single
// permitted invalid L1 marker is returned and the book is immediately
// reset to INIT, so the next delta re-requests a snapshot.
func (e *Engine) ApplyDelta(idx int, d model.Delta, now time.Time, recvUTCNanos int64) PublishDecision {
	s := &e.symbols[idx]

	invalidated := s.book.ApplyDelta(d)
	if invalidated {
		return e.emitInvalidMarker(idx, d.EventTS, recvUTCNanos, now)
	}
	if s.book.State() != StateValid {
		// Still INIT (buffered) or SYNCING-but-stale-dropped; nothing to
		// publish yet.
		return PublishDecision{}
	}

	cand := candidate(idx, s, d.EventTS, recvUTCNanos)
	pub := shouldPublish(s, cand, now)
	if pub {
		s.commit(cand, now)
	}
	return PublishDecision{Record: cand, Publish: pub}
}

// InstallSnapshot installs a REST snapshot and replays buffered deltas,
// returning a publication decision for the resulting state.
func (e *Engine) InstallSnapshot(idx int, snap model.Snapshot, eventTS int64, now time.Time, recvUTCNanos int64) PublishDecision {
	s := &e.symbols[idx]

	invalidated := s.book.InstallSnapshot(snap)
	if invalidated {
		return e.emitInvalidMarker(idx, eventTS, recvUTCNanos, now)
	}
	if s.book.State() != StateValid {
		// Replay consumed all buffered deltas without reaching VALID
		// (e.g. they were all stale); nothing to publish yet.
		return PublishDecision{}
	}

	cand := candidate(idx, s, eventTS, recvUTCNanos)
	pub := shouldPublish(s, cand, now)
	if pub {
		s.commit(cand, now)
	}
	return PublishDecision{Record: cand, Publish: pub}
}

// emitInvalidMarker returns the one permitted invalid L1 publication for
// an invalidation (§8 property 5) and resets the symbol to INIT.
func (e *Engine) emitInvalidMarker(idx int, eventTS int64, recvUTCNanos int64, now time.Time) PublishDecision {
	s := &e.symbols[idx]

	reason := s.book.InvalidReason()

	cand := model.QuoteRecord{
		Symbol:       s.book.Symbol,
		IsValid:      false,
		ExchEventTS:  eventTS,
		RecvUTCNanos: recvUTCNanos,
	}
	s.commit(cand, now)

	s.book.Reset()
	s.everPublished = false
	s.lastPublished = model.QuoteRecord{}

	return PublishDecision{Record: cand, Publish: true, InvalidReason: reason}
}

// ScanHeartbeats returns a publication decision for every symbol that is
// VALID and has been idle for at least HeartbeatInterval since its last
// publish. Called after each inbound frame per §4.3.5's auxiliary loop.
func (e *Engine) ScanHeartbeats(now time.Time, recvUTCNanos int64) []PublishDecision {
	var out []PublishDecision
	for i := range e.symbols {
		s := &e.symbols[i]
		if s.book.State() != StateValid || !s.everPublished {
			continue
		}
		if now.Sub(s.lastPublishAt) < HeartbeatInterval {
			continue
		}
		cand := candidate(i, s, s.lastPublished.ExchEventTS, recvUTCNanos)
		s.commit(cand, now)
		out = append(out, PublishDecision{Record: cand, Publish: true})
	}
	return out
}
