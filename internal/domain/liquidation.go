package domain

import "time"

// LiquidationRecord is one liquidatable position detected by a scan. Each
// scan replaces the full record set; records carry the price and margin
// state they were judged against so downstream consumers (settlement, UI,
// notifications) see a consistent snapshot.
type LiquidationRecord struct {
	PositionID       string    `json:"position_id"`
	Owner            string    `json:"owner"`
	CurrentPrice     float64   `json:"current_price"`
	LiquidationPrice float64   `json:"liquidation_price"`
	MarginRatio      float64   `json:"margin_ratio"`
	LiquidationFee   float64   `json:"liquidation_fee"`
	DetectedAt       time.Time `json:"detected_at"`
}

// LiquidationExecution is the persisted outcome of a settled liquidation.
type LiquidationExecution struct {
	ID          string    `json:"id"`
	PositionID  string    `json:"position_id"`
	Owner       string    `json:"owner"`
	Price       float64   `json:"price"` // index price at detection
	MarginRatio float64   `json:"margin_ratio"`
	Fee         float64   `json:"fee"`
	ExecutedAt  time.Time `json:"executed_at"`
}

// LiquidationStats are the scanner's cumulative counters plus the size of
// the current liquidatable snapshot.
type LiquidationStats struct {
	LiquidatableCount     int       `json:"liquidatable_count"`
	TotalLiquidations     int64     `json:"total_liquidations"`
	TotalFeesCollected    float64   `json:"total_fees_collected"`
	AverageLiquidationFee float64   `json:"average_liquidation_fee"`
	LastCheck             time.Time `json:"last_check"`
}
