package tradefeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/binance-feed/internal/connection"
	"github.com/rickgao/binance-feed/internal/symbol"
)

type fakeManager struct {
	messages chan connection.RawMessage
}

func newFakeManager() *fakeManager {
	return &fakeManager{messages: make(chan connection.RawMessage, 64)}
}

func (f *fakeManager) Start(ctx context.Context) error        { return nil }
func (f *fakeManager) Stop(ctx context.Context) error         { return nil }
func (f *fakeManager) Messages() <-chan connection.RawMessage { return f.messages }
func (f *fakeManager) Stats() connection.ManagerStats {
	return connection.ManagerStats{Connected: true, State: connection.StateConnected}
}

type fakeSink struct {
	mu   sync.Mutex
	sent []map[string]interface{}
}

func (s *fakeSink) Connect(ctx context.Context) error { return nil }
func (s *fakeSink) Close() error                      { return nil }
func (s *fakeSink) IsConnected() bool                 { return true }
func (s *fakeSink) Publish(envelope []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(envelope, &m); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m)
	return nil
}

func (s *fakeSink) trades(t *testing.T) []map[string]interface{} {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]interface{}
	for _, m := range s.sent {
		if m["table"] == "trade_binance" {
			out = append(out, m)
		}
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func tradeFrame(t *testing.T, symbolName string, tradeID, eventTS, tradeTS int64, price, qty string, buyerIsMaker bool) connection.RawMessage {
	t.Helper()
	data := map[string]interface{}{
		"s": symbolName,
		"t": tradeID,
		"p": price,
		"q": qty,
		"m": buyerIsMaker,
		"E": eventTS,
		"T": tradeTS,
	}
	raw, err := json.Marshal(map[string]interface{}{
		"stream": symbolName + "@trade",
		"data":   data,
	})
	if err != nil {
		t.Fatalf("marshal trade frame: %v", err)
	}
	return connection.RawMessage{Data: raw, ReceivedAt: time.Now(), Generation: "gen-1"}
}

func newTestHandler(t *testing.T, tickers ...string) (*Handler, *fakeManager, *fakeSink) {
	t.Helper()
	table, err := symbol.NewTable(tickers)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	manager := newFakeManager()
	sink := &fakeSink{}
	h := New(Config{HandlerName: "tradefeed_test", HealthInterval: time.Hour}, table, manager, sink, discardLogger())
	return h, manager, sink
}

func TestHandlerPublishesTrade(t *testing.T) {
	h, manager, sink := newTestHandler(t, "BTCUSDT")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	manager.messages <- tradeFrame(t, "BTCUSDT", 1, 1000, 999, "100.5", "0.01", true)

	deadline := time.After(2 * time.Second)
	for len(sink.trades(t)) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for a trade publication")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}

	row, _ := sink.trades(t)[0]["row"].([]interface{})
	if len(row) != 12 {
		t.Fatalf("row has %d fields, want 12", len(row))
	}
	if sym, _ := row[1].(string); sym != "BTCUSDT" {
		t.Errorf("row[1] (symbol) = %v, want BTCUSDT", row[1])
	}
	if id, _ := row[2].(float64); int64(id) != 1 {
		t.Errorf("row[2] (tradeId) = %v, want 1", row[2])
	}
}

func TestHandlerDropsUnknownSymbol(t *testing.T) {
	h, manager, sink := newTestHandler(t, "BTCUSDT")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	manager.messages <- tradeFrame(t, "ETHUSDT", 1, 1000, 999, "1", "1", false)
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if len(sink.trades(t)) != 0 {
		t.Fatalf("expected no trades published for an unknown symbol, got %d", len(sink.trades(t)))
	}
}

func TestHandlerLogsContinuityIssuesWithoutDroppingTrades(t *testing.T) {
	h, manager, sink := newTestHandler(t, "BTCUSDT")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	manager.messages <- tradeFrame(t, "BTCUSDT", 5, 1000, 999, "1", "1", false)
	manager.messages <- tradeFrame(t, "BTCUSDT", 10, 1001, 1000, "1", "1", false) // gap, still published

	deadline := time.After(2 * time.Second)
	for len(sink.trades(t)) < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for both trade publications")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
