package domain

import "time"

// Position limits enforced at the boundary where positions enter the engine.
const (
	MinLeverage = 1
	MaxLeverage = 50
	MaxSize     = 1_000_000 // quote-currency units
)

// Position is a snapshot of an open leveraged trade. Positions are created
// and closed by the trading/settlement layer; the risk engine only reads them
// and reports which ones should be liquidated.
type Position struct {
	ID              string
	Owner           string // account address
	Size            float64
	IsLong          bool
	Leverage        int
	EntryPrice      float64
	Margin          float64
	LastFundingTime time.Time
	UnrealizedPnL   float64 // last settled value; the risk model recomputes live
	IsActive        bool
	OpenedAt        time.Time
}

// Validate checks the numeric invariants the risk model assumes as
// preconditions. A position failing Validate must never reach the evaluation
// path: margin ratio and liquidation price divide by margin, size, leverage,
// and entry price, and none of those divisions are guarded there.
func (p Position) Validate() error {
	switch {
	case p.ID == "":
		return ErrInvalidPosition
	case p.Size <= 0 || p.Size > MaxSize:
		return ErrInvalidPosition
	case p.Leverage < MinLeverage || p.Leverage > MaxLeverage:
		return ErrInvalidPosition
	case p.EntryPrice <= 0:
		return ErrInvalidPosition
	case p.Margin <= 0:
		return ErrInvalidPosition
	}
	return nil
}
