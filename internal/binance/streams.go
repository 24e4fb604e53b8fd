package binance

import "strings"

// CombinedStreamURL builds the wss:// combined-stream URL for a set of
// tickers and a stream kind ("trade" or "depth"), per §6.1.
func CombinedStreamURL(wsHost string, tickers []string, kind string) string {
	streams := make([]string, len(tickers))
	for i, t := range tickers {
		streams[i] = StreamName(t, kind)
	}
	return "wss://" + wsHost + "/stream?streams=" + strings.Join(streams, "/")
}
