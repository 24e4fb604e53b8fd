// Package book implements the per-symbol order-book state machine:
// snapshot+delta reconciliation over a fixed internal depth, with an L1
// publication policy layered on top in engine.go.
package book

import (
	"errors"

	"github.com/rickgao/binance-feed/internal/model"
)

// Depth is the fixed number of levels tracked per side, internal to the
// engine. Only the top level is ever published.
const Depth = 5

// Invalidation reasons, matching the two INVALID-transition rows of the
// §4.3.2 state table. Engine.emitInvalidMarker surfaces whichever one
// triggered the current invalidation so the feed handler can log it.
var (
	// ErrBookInvalid is a VALID -> INVALID transition: a delta's U did not
	// immediately follow the book's lastUpdateId (sequence gap).
	ErrBookInvalid = errors.New("book invalid: sequence gap in deltas")

	// ErrSnapshotTooOld is a SYNCING -> INVALID transition: a buffered
	// delta's U was already past snapshotUpdateId+1 by the time the
	// snapshot installed, so the snapshot can never be reconciled with it.
	ErrSnapshotTooOld = errors.New("book invalid: snapshot too old for buffered delta")
)

// State is the per-symbol book lifecycle tag.
type State int

const (
	StateInit State = iota
	StateSyncing
	StateValid
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSyncing:
		return "syncing"
	case StateValid:
		return "valid"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// BufferedDelta is a delta held while the book awaits its first snapshot.
type BufferedDelta struct {
	FirstID int64
	FinalID int64
	EventTS int64
	Bids    []model.PriceLevel
	Asks    []model.PriceLevel
}

// Book is the order-book state machine for one symbol. It is mutated only
// by the single pipeline goroutine that owns it; no internal locking is
// used, matching the single-threaded pipeline model.
type Book struct {
	Symbol string

	state            State
	lastUpdateID     int64
	snapshotID       int64
	snapshotInFlight bool
	invalidReason    error

	bids [Depth]model.PriceLevel
	asks [Depth]model.PriceLevel

	buffer []BufferedDelta
}

// New creates an empty book in the INIT state.
func New(symbol string) *Book {
	return &Book{
		Symbol: symbol,
		state:  StateInit,
	}
}

// State returns the current lifecycle state.
func (b *Book) State() State {
	return b.state
}

// NeedsSnapshot reports whether the book is waiting on a REST snapshot and
// one has not already been requested.
func (b *Book) NeedsSnapshot() bool {
	return b.state == StateInit && !b.snapshotInFlight
}

// MarkSnapshotRequested records that a snapshot fetch is in flight, so
// concurrent buffered deltas do not trigger duplicate requests.
func (b *Book) MarkSnapshotRequested() {
	b.snapshotInFlight = true
}

// Reset returns the book to INIT, clearing all levels and buffered
// deltas. Used on WebSocket reconnect (§4.3.6) and after an invalidation
// marker has been emitted.
func (b *Book) Reset() {
	b.state = StateInit
	b.lastUpdateID = 0
	b.snapshotID = 0
	b.snapshotInFlight = false
	b.invalidReason = nil
	b.bids = [Depth]model.PriceLevel{}
	b.asks = [Depth]model.PriceLevel{}
	b.buffer = nil
}

// InvalidReason returns the sentinel identifying which §4.3.2 transition
// row drove the most recent move into INVALID (ErrBookInvalid or
// ErrSnapshotTooOld), or nil if the book has never been invalidated since
// its last Reset.
func (b *Book) InvalidReason() error {
	return b.invalidReason
}

// BestBid returns the top bid level, zero value if absent.
func (b *Book) BestBid() model.PriceLevel {
	return b.bids[0]
}

// BestAsk returns the top ask level, zero value if absent.
func (b *Book) BestAsk() model.PriceLevel {
	return b.asks[0]
}

// ApplyDelta processes one inbound delta while in INIT (buffer) or
// SYNCING/VALID (apply per the §4.3.2 transition table). Returns true if
// the delta caused a transition into INVALID.
func (b *Book) ApplyDelta(d model.Delta) (invalidated bool) {
	switch b.state {
	case StateInit:
		b.buffer = append(b.buffer, BufferedDelta{
			FirstID: d.FirstID,
			FinalID: d.FinalID,
			EventTS: d.EventTS,
			Bids:    d.Bids,
			Asks:    d.Asks,
		})
		return false

	case StateSyncing:
		return b.applySyncing(d)

	case StateValid:
		return b.applyValid(d)

	case StateInvalid:
		// Caller is responsible for emitting the single invalid marker and
		// resetting to INIT; ApplyDelta is not reached again until reset.
		return false
	}
	return false
}

func (b *Book) applySyncing(d model.Delta) (invalidated bool) {
	boundary := b.snapshotID + 1

	if d.FirstID > boundary {
		b.state = StateInvalid
		b.invalidReason = ErrSnapshotTooOld
		return true
	}
	if d.FinalID < boundary {
		// stale, drop
		return false
	}
	// U <= boundary <= u
	b.applyLevels(d.Bids, true)
	b.applyLevels(d.Asks, false)
	b.lastUpdateID = d.FinalID
	b.state = StateValid
	return false
}

func (b *Book) applyValid(d model.Delta) (invalidated bool) {
	if d.FirstID != b.lastUpdateID+1 {
		b.state = StateInvalid
		b.invalidReason = ErrBookInvalid
		return true
	}
	b.applyLevels(d.Bids, true)
	b.applyLevels(d.Asks, false)
	b.lastUpdateID = d.FinalID
	return false
}

// InstallSnapshot installs a REST snapshot's top-Depth levels, then
// replays buffered deltas in arrival order, stopping at the first one
// that would invalidate the book. The buffer is cleared regardless.
// Returns true if replay invalidated the book.
func (b *Book) InstallSnapshot(snap model.Snapshot) (invalidated bool) {
	b.bids = [Depth]model.PriceLevel{}
	b.asks = [Depth]model.PriceLevel{}

	for i := 0; i < Depth && i < len(snap.Bids); i++ {
		b.bids[i] = snap.Bids[i]
	}
	for i := 0; i < Depth && i < len(snap.Asks); i++ {
		b.asks[i] = snap.Asks[i]
	}

	b.snapshotID = snap.LastUpdateID
	b.lastUpdateID = snap.LastUpdateID
	b.snapshotInFlight = false
	b.state = StateSyncing

	buffered := b.buffer
	b.buffer = nil

	for _, bd := range buffered {
		d := model.Delta{FirstID: bd.FirstID, FinalID: bd.FinalID, EventTS: bd.EventTS, Bids: bd.Bids, Asks: bd.Asks}
		var inv bool
		switch b.state {
		case StateSyncing:
			inv = b.applySyncing(d)
		case StateValid:
			inv = b.applyValid(d)
		}
		if inv {
			return true
		}
	}

	return false
}

// applyLevels applies a batch of (price, qty) updates to one side using
// the level-update-with-shift algorithm (§4.3.3).
func (b *Book) applyLevels(updates []model.PriceLevel, isBid bool) {
	var side *[Depth]model.PriceLevel
	if isBid {
		side = &b.bids
	} else {
		side = &b.asks
	}

	for _, u := range updates {
		applyLevel(side, u, isBid)
	}
}

func applyLevel(side *[Depth]model.PriceLevel, u model.PriceLevel, isBid bool) {
	for i := 0; i < Depth; i++ {
		if side[i].Qty != 0 && side[i].Price == u.Price {
			if u.Qty == 0 {
				// delete: shift lower-ranked entries up, zero the last slot
				for j := i; j < Depth-1; j++ {
					side[j] = side[j+1]
				}
				side[Depth-1] = model.PriceLevel{}
			} else {
				side[i].Qty = u.Qty
			}
			return
		}
	}

	if u.Qty == 0 {
		return
	}

	idx := Depth
	for i := 0; i < Depth; i++ {
		if side[i].Qty == 0 || ranksBefore(u.Price, side[i].Price, isBid) {
			idx = i
			break
		}
	}
	if idx == Depth {
		return
	}

	for j := Depth - 1; j > idx; j-- {
		side[j] = side[j-1]
	}
	side[idx] = u
}

// ranksBefore reports whether price a should sit before price b on the
// given side: higher-first for bids, lower-first for asks.
func ranksBefore(a, b float64, isBid bool) bool {
	if isBid {
		return a > b
	}
	return a < b
}
