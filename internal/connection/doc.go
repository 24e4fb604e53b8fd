// Package connection implements the WebSocket and sink transports for a
// single feed handler process.
//
// A handler maintains exactly one logical connection to the combined
// market stream (Manager) and one connection to the downstream
// tickerplant (Sink). Both reconnect independently with exponential
// backoff; neither maintains a connection pool.
package connection
