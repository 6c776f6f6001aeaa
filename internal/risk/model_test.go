package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domainetf/domainperp/internal/domain"
)

func longPosition() domain.Position {
	return domain.Position{
		ID:         "pos-1",
		Owner:      "0xAbCd",
		Size:       1000,
		IsLong:     true,
		Leverage:   10,
		EntryPrice: 100,
		Margin:     100,
		IsActive:   true,
	}
}

func shortPosition() domain.Position {
	p := longPosition()
	p.ID = "pos-2"
	p.IsLong = false
	return p
}

func TestLiquidationPrice(t *testing.T) {
	long := longPosition()
	short := shortPosition()

	// threshold = 100 / (1000 * 10) = 0.01
	assert.InDelta(t, 99.0, LiquidationPrice(long, 105), 1e-9)
	assert.InDelta(t, 101.0, LiquidationPrice(short, 105), 1e-9)

	// Long liquidation price is always below entry, short always above.
	assert.Less(t, LiquidationPrice(long, 105), long.EntryPrice)
	assert.Greater(t, LiquidationPrice(short, 105), short.EntryPrice)

	// The formula depends only on entry state, never on the current price.
	assert.Equal(t, LiquidationPrice(long, 1), LiquidationPrice(long, 10000))
}

func TestMarginRatioAtEntry(t *testing.T) {
	// No price movement means no PnL: the ratio is exactly 1.
	assert.Equal(t, 1.0, MarginRatio(longPosition(), 100))
	assert.Equal(t, 1.0, MarginRatio(shortPosition(), 100))
}

func TestMarginRatioLongLoss(t *testing.T) {
	p := longPosition()

	// At 95: priceChange = -0.05, pnl = -500, ratio = (100-500)/100 = -4.
	ratio := MarginRatio(p, 95)
	assert.InDelta(t, -4.0, ratio, 1e-9)
	assert.True(t, Liquidatable(p, 95))
}

func TestMarginRatioMonotonic(t *testing.T) {
	long := longPosition()
	short := shortPosition()

	// Falling price monotonically decreases a long's margin ratio.
	prev := MarginRatio(long, 100)
	for price := 99.5; price >= 95; price -= 0.5 {
		cur := MarginRatio(long, price)
		require.Less(t, cur, prev, "price %.1f", price)
		prev = cur
	}

	// Rising price monotonically decreases a short's margin ratio.
	prev = MarginRatio(short, 100)
	for price := 100.5; price <= 105; price += 0.5 {
		cur := MarginRatio(short, price)
		require.Less(t, cur, prev, "price %.1f", price)
		prev = cur
	}
}

func TestLiquidatableThresholdBoundary(t *testing.T) {
	p := longPosition()

	// ratio(price) = 1 + (price-100)/100 * 100, so ratio == 0.8 exactly at
	// price = 99.998. Liquidatable is inclusive at the threshold.
	atThreshold := 100 * (1 + (LiquidationThreshold-1)/(10*10))
	assert.InDelta(t, LiquidationThreshold, MarginRatio(p, atThreshold), 1e-9)
	assert.True(t, Liquidatable(p, atThreshold))
	assert.False(t, Liquidatable(p, atThreshold+0.01))
}

func TestLiquidationFeeFlat(t *testing.T) {
	p := longPosition()

	want := p.Size * LiquidationFeeRate
	assert.Equal(t, want, LiquidationFee(p, 100))
	assert.Equal(t, want, LiquidationFee(p, 1))
	assert.Equal(t, want, LiquidationFee(p, 9999))
}

func TestShortScenarioMirrorsLong(t *testing.T) {
	short := shortPosition()

	// At 105 a short has lost what a long at 95 lost.
	assert.InDelta(t, MarginRatio(longPosition(), 95), MarginRatio(short, 105), 1e-9)
	assert.True(t, Liquidatable(short, 105))
}

func TestUnrealizedPnL(t *testing.T) {
	long := longPosition()

	assert.InDelta(t, 500.0, UnrealizedPnL(long, 105), 1e-9)
	assert.InDelta(t, -500.0, UnrealizedPnL(long, 95), 1e-9)
	assert.Zero(t, UnrealizedPnL(long, 100))
}
