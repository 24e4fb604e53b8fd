// Package epoch converts between Unix time and kdb's epoch, which counts
// nanoseconds since 2000-01-01 UTC rather than 1970-01-01 UTC.
package epoch

// unixToKdbOffsetNanos is the number of nanoseconds between the Unix epoch
// (1970-01-01 UTC) and the kdb epoch (2000-01-01 UTC).
const unixToKdbOffsetNanos int64 = 946_684_800_000_000_000

// FromUnixNanos converts a Unix-epoch-nanosecond timestamp to kdb-epoch-ns.
func FromUnixNanos(unixNanos int64) int64 {
	return unixNanos - unixToKdbOffsetNanos
}

// ToUnixNanos converts a kdb-epoch-ns timestamp back to Unix-epoch-ns.
func ToUnixNanos(kdbNanos int64) int64 {
	return kdbNanos + unixToKdbOffsetNanos
}
