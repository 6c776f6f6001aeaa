package risk

import "github.com/domainetf/domainperp/internal/domain"

// defaultK is the virtual AMM liquidity constant used when the caller does
// not supply one.
const defaultK = 1_000_000

// Slippage estimates the execution price for an order of the given notional
// size against the virtual AMM curve. The impact model is deliberately
// simple: 1% price impact per 1% of the pool constant consumed.
func Slippage(size, currentPrice, k float64) float64 {
	if k <= 0 {
		k = defaultK
	}
	priceImpact := (size / k) * 0.01
	return currentPrice * (1 + priceImpact)
}

// EstimatedFillPrice returns the expected fill price for an order, applying
// slippage in the adverse direction for the given side.
func EstimatedFillPrice(size float64, isLong bool, currentPrice float64) float64 {
	slipped := Slippage(size, currentPrice, defaultK)
	if isLong {
		return slipped
	}
	return currentPrice - (slipped - currentPrice)
}

// ValidLeverage reports whether the leverage is within the system-wide
// bounds.
func ValidLeverage(leverage int) bool {
	return leverage >= domain.MinLeverage && leverage <= domain.MaxLeverage
}

// ValidSize reports whether the notional size is positive and within the
// system-wide cap.
func ValidSize(size float64) bool {
	return size > 0 && size <= domain.MaxSize
}
