// Package risk implements the perpetual-position risk model: liquidation
// price, margin ratio, liquidation fee, and the liquidatable predicate.
//
// Every function here is pure and allocation-free. Inputs are NOT defended
// against zero or negative margin, size, leverage, or entry price -- that is
// a documented precondition, enforced at the boundary via
// domain.Position.Validate, so the per-scan hot path stays branch-light.
package risk

import "github.com/domainetf/domainperp/internal/domain"

const (
	// LiquidationThreshold is the margin ratio at or below which a position
	// is liquidatable (80%).
	LiquidationThreshold = 0.80

	// LiquidationFeeRate is the flat fee charged on liquidation, as a
	// fraction of notional size (5%).
	LiquidationFeeRate = 0.05
)

// LiquidationPrice returns the index price at which the position's
// unrealized loss consumes its margin. The threshold depends only on the
// entry state; currentPrice is accepted for signature symmetry with the
// other model functions and is intentionally unused.
func LiquidationPrice(p domain.Position, currentPrice float64) float64 {
	_ = currentPrice
	threshold := p.Margin / (p.Size * float64(p.Leverage))
	if p.IsLong {
		return p.EntryPrice * (1 - threshold)
	}
	return p.EntryPrice * (1 + threshold)
}

// UnrealizedPnL returns the signed profit or loss of the position at the
// given index price, in quote-currency units.
func UnrealizedPnL(p domain.Position, currentPrice float64) float64 {
	var priceChange float64
	if p.IsLong {
		priceChange = (currentPrice - p.EntryPrice) / p.EntryPrice
	} else {
		priceChange = (p.EntryPrice - currentPrice) / p.EntryPrice
	}
	return priceChange * p.Size * float64(p.Leverage)
}

// MarginRatio returns remaining collateral (margin plus unrealized PnL)
// divided by the posted margin. 1.0 means no loss yet; the value falls
// toward and below LiquidationThreshold as losses grow and can go negative
// once losses exceed the margin.
func MarginRatio(p domain.Position, currentPrice float64) float64 {
	return (p.Margin + UnrealizedPnL(p, currentPrice)) / p.Margin
}

// Liquidatable reports whether the position's margin ratio has crossed the
// liquidation threshold at the given index price.
func Liquidatable(p domain.Position, currentPrice float64) bool {
	return MarginRatio(p, currentPrice) <= LiquidationThreshold
}

// LiquidationFee returns the fee charged when the position is liquidated.
// The fee is flat against notional size and independent of the price at
// which liquidation happens.
func LiquidationFee(p domain.Position, currentPrice float64) float64 {
	_ = currentPrice
	return p.Size * LiquidationFeeRate
}
