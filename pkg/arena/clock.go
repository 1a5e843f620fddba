package arena

import "time"

// Offset is ledger time minus local wall-clock time, in seconds. Positive means the ledger
// runs ahead of the local clock.
type Offset int64

// EstimateOffset computes the skew from the latest block timestamp and the local time the
// read completed. A missing block time (<= 0) yields no correction.
func EstimateOffset(ledgerNow int64, localNow time.Time) Offset {
	if ledgerNow <= 0 {
		return 0
	}
	return Offset(ledgerNow - localNow.Unix())
}

// RealDeadline translates a ledger-time deadline to the local clock.
func (o Offset) RealDeadline(ledgerDeadline int64) int64 {
	return ledgerDeadline - int64(o)
}

// Sample is one wall-clock reading paired with the offset it is interpreted against.
// A derivation pass uses a single Sample so phase, countdown and eligibility agree.
type Sample struct {
	Now    int64
	Offset Offset
}

// NewSample takes the wall clock reading once.
func NewSample(now time.Time, offset Offset) Sample {
	return Sample{Now: now.Unix(), Offset: offset}
}
