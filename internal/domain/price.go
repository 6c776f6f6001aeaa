package domain

import "time"

// Synthetic source names used by the aggregator output.
const (
	SourceAggregated = "Aggregated"
	SourceFallback   = "Fallback"
)

// PriceSample is a single source's view of the index price at a point in
// time. Samples are produced by oracle source clients and consumed by the
// aggregator; they never leave the oracle package boundary unvalidated.
type PriceSample struct {
	Price      float64   `json:"price"`
	Volume24h  float64   `json:"volume_24h"`
	Change24h  float64   `json:"change_24h"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"` // 0..1 self-reported reliability
}

// AggregatedPrice is the oracle's current blended output. Source is
// SourceAggregated for a normal aggregate and SourceFallback when no sample
// survived filtering and the oracle degraded to its fixed fallback.
type AggregatedPrice struct {
	Price      float64   `json:"price"`
	Volume24h  float64   `json:"volume_24h"`
	Change24h  float64   `json:"change_24h"`
	Timestamp  time.Time `json:"timestamp"` // aggregation time, not sample time
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
}

// Degraded reports whether the price came from the fallback path rather than
// live source data. Callers can still display a degraded price; they should
// not trust it for liquidation decisions without flagging the state.
func (a AggregatedPrice) Degraded() bool {
	return a.Source == SourceFallback
}

// OracleHealth summarises per-source availability after the most recent
// fetch cycle.
type OracleHealth struct {
	Healthy    int     `json:"healthy"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}
