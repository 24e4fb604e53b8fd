package epoch

import "testing"

func TestRoundTrip(t *testing.T) {
	cases := []int64{
		0,
		1,
		946_684_800_000_000_000, // exactly 2000-01-01 UTC
		1_700_000_000_000_000_000,
		-1,
	}

	for _, unixNanos := range cases {
		kdb := FromUnixNanos(unixNanos)
		got := ToUnixNanos(kdb)
		if got != unixNanos {
			t.Errorf("round trip mismatch: unixNanos=%d -> kdb=%d -> %d", unixNanos, kdb, got)
		}
	}
}

func TestFromUnixNanosKnownValue(t *testing.T) {
	// 2000-01-01T00:00:00Z in Unix nanoseconds should map to kdb-epoch-ns 0.
	if got := FromUnixNanos(946_684_800_000_000_000); got != 0 {
		t.Errorf("FromUnixNanos(epoch) = %d, want 0", got)
	}
}
