// Package binance decodes combined-stream WebSocket frames and fetches
// REST depth snapshots from the Binance market data source.
package binance

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rickgao/binance-feed/internal/model"
)

// envelope is the outer combined-stream wrapper: {"stream": "...", "data": {...}}.
type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type tradeWire struct {
	Symbol       string `json:"s"`
	TradeID      int64  `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	BuyerIsMaker bool   `json:"m"`
	EventTime    int64  `json:"E"`
	TradeTime    int64  `json:"T"`
}

type depthWire struct {
	Symbol        string     `json:"s"`
	EventTime     int64      `json:"E"`
	FirstUpdateID int64      `json:"U"`
	FinalUpdateID int64      `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

type snapshotWire struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
	Code         int        `json:"code"`
	Msg          string     `json:"msg"`
}

// ParseTrade decodes one combined-stream trade frame. A frame missing
// required fields or containing non-numeric price/quantity strings
// returns an error; the caller drops the frame and continues (Transient).
func ParseTrade(raw []byte) (model.Trade, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.Trade{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	var w tradeWire
	if err := json.Unmarshal(env.Data, &w); err != nil {
		return model.Trade{}, fmt.Errorf("unmarshal trade data: %w", err)
	}
	if w.Symbol == "" {
		return model.Trade{}, fmt.Errorf("missing symbol")
	}

	price, err := strconv.ParseFloat(w.Price, 64)
	if err != nil {
		return model.Trade{}, fmt.Errorf("parse price: %w", err)
	}
	qty, err := strconv.ParseFloat(w.Quantity, 64)
	if err != nil {
		return model.Trade{}, fmt.Errorf("parse quantity: %w", err)
	}

	return model.Trade{
		Symbol:       w.Symbol,
		TradeID:      w.TradeID,
		Price:        price,
		Quantity:     qty,
		BuyerIsMaker: w.BuyerIsMaker,
		EventTS:      w.EventTime,
		TradeTS:      w.TradeTime,
	}, nil
}

// ParseDepth decodes one combined-stream depth-update frame. A frame
// missing U or u is dropped per §4.3.1.
func ParseDepth(raw []byte) (model.Delta, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.Delta{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	var w depthWire
	if err := json.Unmarshal(env.Data, &w); err != nil {
		return model.Delta{}, fmt.Errorf("unmarshal depth data: %w", err)
	}
	if w.Symbol == "" {
		return model.Delta{}, fmt.Errorf("missing symbol")
	}
	if w.FirstUpdateID == 0 || w.FinalUpdateID == 0 {
		return model.Delta{}, fmt.Errorf("missing U/u")
	}

	bids, err := parseLevels(w.Bids)
	if err != nil {
		return model.Delta{}, fmt.Errorf("parse bids: %w", err)
	}
	asks, err := parseLevels(w.Asks)
	if err != nil {
		return model.Delta{}, fmt.Errorf("parse asks: %w", err)
	}

	return model.Delta{
		Symbol:  w.Symbol,
		EventTS: w.EventTime,
		FirstID: w.FirstUpdateID,
		FinalID: w.FinalUpdateID,
		Bids:    bids,
		Asks:    asks,
	}, nil
}

// ParseSnapshot decodes a REST depth-snapshot response body.
func ParseSnapshot(body []byte) (model.Snapshot, error) {
	var w snapshotWire
	if err := json.Unmarshal(body, &w); err != nil {
		return model.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if w.Code != 0 {
		return model.Snapshot{}, fmt.Errorf("binance error %d: %s", w.Code, w.Msg)
	}

	bids, err := parseLevels(w.Bids)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("parse bids: %w", err)
	}
	asks, err := parseLevels(w.Asks)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("parse asks: %w", err)
	}

	return model.Snapshot{
		LastUpdateID: w.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
	}, nil
}

func parseLevels(raw [][]string) ([]model.PriceLevel, error) {
	levels := make([]model.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) != 2 {
			return nil, fmt.Errorf("malformed level %v", pair)
		}
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", pair[0], err)
		}
		qty, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse qty %q: %w", pair[1], err)
		}
		levels = append(levels, model.PriceLevel{Price: price, Qty: qty})
	}
	return levels, nil
}

// StreamName returns the lowercase combined-stream name for a symbol, e.g.
// "btcusdt@trade" or "btcusdt@depth".
func StreamName(symbol, kind string) string {
	return lowerASCII(symbol) + "@" + kind
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
