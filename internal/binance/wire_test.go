package binance

import "testing"

func TestParseTrade(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@trade","data":{"s":"BTCUSDT","t":100,"p":"30000.50","q":"0.1","m":false,"E":1700000000000,"T":1700000000000}}`)

	trade, err := ParseTrade(raw)
	if err != nil {
		t.Fatalf("ParseTrade failed: %v", err)
	}

	if trade.Symbol != "BTCUSDT" {
		t.Errorf("Symbol = %q, want BTCUSDT", trade.Symbol)
	}
	if trade.TradeID != 100 {
		t.Errorf("TradeID = %d, want 100", trade.TradeID)
	}
	if trade.Price != 30000.50 {
		t.Errorf("Price = %v, want 30000.50", trade.Price)
	}
	if trade.Quantity != 0.1 {
		t.Errorf("Quantity = %v, want 0.1", trade.Quantity)
	}
	if trade.BuyerIsMaker {
		t.Error("BuyerIsMaker = true, want false")
	}
}

func TestParseTradeMissingSymbol(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@trade","data":{"t":100,"p":"1","q":"1"}}`)
	if _, err := ParseTrade(raw); err == nil {
		t.Error("expected error for missing symbol")
	}
}

func TestParseTradeBadPrice(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@trade","data":{"s":"BTCUSDT","t":1,"p":"not-a-number","q":"1"}}`)
	if _, err := ParseTrade(raw); err == nil {
		t.Error("expected error for unparseable price")
	}
}

func TestParseDepth(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@depth","data":{"s":"BTCUSDT","E":1,"U":10,"u":12,"b":[["30000","1"]],"a":[["30001","2"]]}}`)

	delta, err := ParseDepth(raw)
	if err != nil {
		t.Fatalf("ParseDepth failed: %v", err)
	}

	if delta.FirstID != 10 || delta.FinalID != 12 {
		t.Errorf("FirstID/FinalID = %d/%d, want 10/12", delta.FirstID, delta.FinalID)
	}
	if len(delta.Bids) != 1 || delta.Bids[0].Price != 30000 || delta.Bids[0].Qty != 1 {
		t.Errorf("Bids = %v, want [{30000 1}]", delta.Bids)
	}
	if len(delta.Asks) != 1 || delta.Asks[0].Price != 30001 || delta.Asks[0].Qty != 2 {
		t.Errorf("Asks = %v, want [{30001 2}]", delta.Asks)
	}
}

func TestParseDepthMissingUpdateIDs(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@depth","data":{"s":"BTCUSDT","E":1,"b":[],"a":[]}}`)
	if _, err := ParseDepth(raw); err == nil {
		t.Error("expected error for missing U/u")
	}
}

func TestParseSnapshot(t *testing.T) {
	body := []byte(`{"lastUpdateId":11,"bids":[["30000","5"],["29999","3"]],"asks":[["30001","4"],["30002","2"]]}`)

	snap, err := ParseSnapshot(body)
	if err != nil {
		t.Fatalf("ParseSnapshot failed: %v", err)
	}

	if snap.LastUpdateID != 11 {
		t.Errorf("LastUpdateID = %d, want 11", snap.LastUpdateID)
	}
	if len(snap.Bids) != 2 || len(snap.Asks) != 2 {
		t.Errorf("expected 2 bids and 2 asks, got %d/%d", len(snap.Bids), len(snap.Asks))
	}
}

func TestParseSnapshotErrorResponse(t *testing.T) {
	body := []byte(`{"code":-1121,"msg":"Invalid symbol."}`)
	if _, err := ParseSnapshot(body); err == nil {
		t.Error("expected error for error-coded snapshot response")
	}
}

func TestStreamName(t *testing.T) {
	if got := StreamName("BTCUSDT", "trade"); got != "btcusdt@trade" {
		t.Errorf("StreamName = %q, want btcusdt@trade", got)
	}
	if got := StreamName("ethusdt", "depth"); got != "ethusdt@depth" {
		t.Errorf("StreamName = %q, want ethusdt@depth", got)
	}
}
