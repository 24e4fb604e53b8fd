// Package symbol resolves the configured instrument list into a dense,
// immutable index at startup, per the "replace per-symbol string maps with a
// compact array indexed by dense symbol indices" design note: every per-symbol
// array in the book engine and the handler pipelines is sized and indexed
// through the Table built here, and the string->index map exists solely to
// demultiplex inbound WebSocket frames.
package symbol

import (
	"errors"
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var upper = cases.Upper(language.Und)

// ErrUnknownSymbol is returned by Resolve for a ticker outside the
// configured symbol list (a depth or trade frame for an instrument this
// handler was not started with).
var ErrUnknownSymbol = errors.New("unknown symbol")

// Normalize upper-cases a raw symbol as it appears in config or on the wire.
// Binance and the downstream sink both expect upper-cased tickers; the wire
// itself is case-sensitive for subscription paths (lower-case) but not for
// the "s" field of data frames (upper-case), so normalization happens once at
// the data-model boundary rather than being repeated ad hoc.
func Normalize(raw string) string {
	return upper.String(raw)
}

// Table is the immutable mapping between symbol tickers and dense indices,
// resolved once at handler startup from the configured symbol list.
type Table struct {
	tickers []string
	index   map[string]int
}

// NewTable builds a dense symbol table from a list of raw (possibly
// lower-case or mixed-case) tickers. Order is preserved and deduplicated.
func NewTable(raw []string) (*Table, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("symbol table: at least one symbol is required")
	}

	t := &Table{
		index: make(map[string]int, len(raw)),
	}

	for _, r := range raw {
		sym := Normalize(r)
		if sym == "" {
			continue
		}
		if _, exists := t.index[sym]; exists {
			continue
		}
		t.index[sym] = len(t.tickers)
		t.tickers = append(t.tickers, sym)
	}

	if len(t.tickers) == 0 {
		return nil, fmt.Errorf("symbol table: no valid symbols after normalization")
	}

	return t, nil
}

// Len returns the number of distinct symbols, i.e. N in the dense 0..N-1 range.
func (t *Table) Len() int {
	return len(t.tickers)
}

// Index returns the dense index for a ticker and whether it is known.
func (t *Table) Index(ticker string) (int, bool) {
	idx, ok := t.index[Normalize(ticker)]
	return idx, ok
}

// Resolve returns the dense index for a ticker, or ErrUnknownSymbol if the
// ticker was never part of the configured symbol list. Equivalent to
// Index but in the taxonomy's sentinel-error shape for callers that want
// errors.Is dispatch rather than a bool.
func (t *Table) Resolve(ticker string) (int, error) {
	idx, ok := t.Index(ticker)
	if !ok {
		return 0, ErrUnknownSymbol
	}
	return idx, nil
}

// Ticker returns the normalized ticker for a dense index. Panics if out of
// range, matching the array-of-structs access pattern it backs.
func (t *Table) Ticker(idx int) string {
	return t.tickers[idx]
}

// All returns the tickers in index order; callers must not mutate the result.
func (t *Table) All() []string {
	return t.tickers
}
