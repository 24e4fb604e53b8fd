package quotefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/binance-feed/internal/binance"
	"github.com/rickgao/binance-feed/internal/connection"
	"github.com/rickgao/binance-feed/internal/symbol"
)

// fakeManager is a connection.Manager stand-in driven entirely by the test:
// frames are pushed onto messages and Stats() reports a fixed state.
type fakeManager struct {
	messages chan connection.RawMessage
	state    connection.ConnectionState
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		messages: make(chan connection.RawMessage, 64),
		state:    connection.StateConnected,
	}
}

func (f *fakeManager) Start(ctx context.Context) error        { return nil }
func (f *fakeManager) Stop(ctx context.Context) error         { return nil }
func (f *fakeManager) Messages() <-chan connection.RawMessage { return f.messages }
func (f *fakeManager) Stats() connection.ManagerStats {
	return connection.ManagerStats{Connected: true, State: f.state}
}

// fakeSink is a connection.Sink stand-in that records every envelope.
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

func (s *fakeSink) quotes(t *testing.T) []map[string]interface{} {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]interface{}
	for _, m := range s.sent {
		if m["table"] == "quote_binance" {
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

func depthFrame(t *testing.T, symbolName string, eventTS, first, final int64, bids, asks [][2]string) connection.RawMessage {
	t.Helper()
	toLevels := func(pairs [][2]string) [][]string {
		out := make([][]string, len(pairs))
		for i, p := range pairs {
			out[i] = []string{p[0], p[1]}
		}
		return out
	}
	data := map[string]interface{}{
		"s": symbolName,
		"E": eventTS,
		"U": first,
		"u": final,
		"b": toLevels(bids),
		"a": toLevels(asks),
	}
	raw, err := json.Marshal(map[string]interface{}{
		"stream": symbolName + "@depth",
		"data":   data,
	})
	if err != nil {
		t.Fatalf("marshal depth frame: %v", err)
	}
	return connection.RawMessage{Data: raw, ReceivedAt: time.Now(), Generation: "gen-1"}
}

func newTestHandler(t *testing.T, restURL string, tickers ...string) (*Handler, *fakeManager, *fakeSink) {
	t.Helper()
	table, err := symbol.NewTable(tickers)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	manager := newFakeManager()
	sink := &fakeSink{}
	rest := binance.NewClient(restURL, binance.WithRetries(0, time.Millisecond))
	h := New(Config{HandlerName: "quotefeed_test", SnapshotDepth: 10, HealthInterval: time.Hour}, table, manager, sink, rest, discardLogger())
	return h, manager, sink
}

func TestHandlerFetchesSnapshotAndPublishesFirstQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"lastUpdateId":100,"bids":[["10","1"]],"asks":[["11","1"]]}`)
	}))
	defer server.Close()

	h, manager, sink := newTestHandler(t, server.URL, "BTCUSDT")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	// First delta arrives while the book is in INIT: triggers a snapshot
	// fetch and is buffered until the snapshot installs.
	manager.messages <- depthFrame(t, "BTCUSDT", 1000, 101, 101, [][2]string{{"10", "1"}}, nil)

	deadline := time.After(2 * time.Second)
	for len(sink.quotes(t)) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the first quote publication")
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

	quotes := sink.quotes(t)
	row, _ := quotes[0]["row"].([]interface{})
	if len(row) != 10 {
		t.Fatalf("row has %d fields, want 10", len(row))
	}
	if sym, _ := row[1].(string); sym != "BTCUSDT" {
		t.Errorf("row[1] (symbol) = %v, want BTCUSDT", row[1])
	}
	if valid, _ := row[6].(bool); !valid {
		t.Errorf("row[6] (isValid) = %v, want true", row[6])
	}
}

func TestHandlerDropsUnknownSymbol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"lastUpdateId":1,"bids":[],"asks":[]}`)
	}))
	defer server.Close()

	h, manager, sink := newTestHandler(t, server.URL, "BTCUSDT")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	manager.messages <- depthFrame(t, "ETHUSDT", 1000, 1, 1, nil, nil)
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if len(sink.quotes(t)) != 0 {
		t.Fatalf("expected no quotes published for an unknown symbol, got %d", len(sink.quotes(t)))
	}
}
