// Package model holds the record types that cross the publisher boundary
// toward the downstream sink, plus the Binance wire shapes they are built from.
package model

// TradeRecord is a single trade publication, one per inbound trade frame.
type TradeRecord struct {
	Symbol       string
	TradeID      int64
	Price        float64
	Quantity     float64
	BuyerIsMaker bool
	ExchEventTS  int64 // exchange event time, ms since epoch
	ExchTradeTS  int64 // exchange trade time, ms since epoch
	RecvUTCNanos int64 // fhRecvTimeUtcNs: wall clock receive time
	ParseMicros  int64 // fhParseUs
	SendMicros   int64 // fhSendUs
	SeqNo        int64 // fhSeqNo, per-handler monotonic counter starting at 1
}

// QuoteRecord is an L1 (best bid/ask) publication for a symbol.
type QuoteRecord struct {
	Symbol       string
	BidPrice     float64
	BidQty       float64
	AskPrice     float64
	AskQty       float64
	IsValid      bool
	ExchEventTS  int64 // ms since epoch; a heartbeat republish repeats the last published value
	RecvUTCNanos int64
	SeqNo        int64
}

// HealthRecord summarizes handler liveness, emitted on a fixed interval.
type HealthRecord struct {
	NowUTCNanos   int64
	HandlerName   string
	StartUTCNanos int64
	UptimeSec     int64
	MsgsReceived  int64
	MsgsPublished int64
	LastMsgNanos  int64
	LastPubNanos  int64
	ConnState     string
	SymbolCount   int
}

// PriceLevel is a single (price, quantity) point in a book side.
// Quantity of zero denotes "no entry" when used as fixed-size book storage.
type PriceLevel struct {
	Price float64
	Qty   float64
}

// Delta is a parsed depth-update frame, already normalized to floats.
type Delta struct {
	Symbol  string
	EventTS int64 // ms since epoch
	FirstID int64 // U
	FinalID int64 // u
	Bids    []PriceLevel
	Asks    []PriceLevel
}

// Snapshot is a parsed REST depth snapshot.
type Snapshot struct {
	LastUpdateID int64
	Bids         []PriceLevel // sorted high -> low
	Asks         []PriceLevel // sorted low -> high
}

// Trade is a parsed trade frame, already normalized to floats.
type Trade struct {
	Symbol       string
	TradeID      int64
	Price        float64
	Quantity     float64
	BuyerIsMaker bool
	EventTS      int64 // ms since epoch
	TradeTS      int64 // ms since epoch
}
