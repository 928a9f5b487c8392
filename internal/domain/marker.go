package domain

import "time"

// MarkerName is the key of the single global resumption marker.
const MarkerName = "whale_worker_global"

// Marker is the pipeline's resumption point: the newest trade fully processed
// by a completed poll cycle. It advances at most once per cycle and only when
// the cycle produced new aggregated trades.
type Marker struct {
	LastTimestamp int64  // epoch seconds of the newest processed trade
	LastTxHash    string // transaction hash of that trade
	UpdatedAt     time.Time
}

// IsZero reports whether the marker has ever been persisted.
func (m Marker) IsZero() bool {
	return m.LastTimestamp == 0 && m.LastTxHash == ""
}
