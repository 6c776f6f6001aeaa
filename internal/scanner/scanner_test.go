package scanner

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domainetf/domainperp/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type stubPrices struct {
	price domain.AggregatedPrice
	err   error
}

func (s *stubPrices) Last() (domain.AggregatedPrice, error) { return s.price, s.err }

type stubSettler struct {
	calls []string
	fail  map[string]error
}

func (s *stubSettler) Liquidate(_ context.Context, positionID string) error {
	s.calls = append(s.calls, positionID)
	if err, ok := s.fail[positionID]; ok {
		return err
	}
	return nil
}

type stubHistory struct {
	recorded []domain.LiquidationExecution
}

func (s *stubHistory) Record(_ context.Context, exec domain.LiquidationExecution) error {
	s.recorded = append(s.recorded, exec)
	return nil
}

func (s *stubHistory) ListRecent(_ context.Context, _ int) ([]domain.LiquidationExecution, error) {
	return s.recorded, nil
}

func (s *stubHistory) ListBefore(_ context.Context, _ time.Time) ([]domain.LiquidationExecution, error) {
	return nil, nil
}

func position(id, owner string, size float64, isLong bool, lev int, entry, margin float64) domain.Position {
	return domain.Position{
		ID:         id,
		Owner:      owner,
		Size:       size,
		IsLong:     isLong,
		Leverage:   lev,
		EntryPrice: entry,
		Margin:     margin,
		IsActive:   true,
		OpenedAt:   time.Now().UTC(),
	}
}

func newTestScanner(settler domain.Settler) *Scanner {
	return New(nil, &stubPrices{}, settler, time.Second, false, testLogger())
}

func TestScanFindsUnderwaterPositions(t *testing.T) {
	s := newTestScanner(&stubSettler{})

	healthy := position("p-healthy", "0xaaa", 1000, true, 10, 100, 100)
	drowning := position("p-drowning", "0xbbb", 1000, true, 10, 100, 100)

	// At price 95 the long with 10x leverage is far past its liquidation
	// price of 99; the same position judged at 100 is untouched.
	found := s.Scan([]domain.Position{healthy, drowning}, 95)

	require.Len(t, found, 2)
	for _, rec := range found {
		assert.InDelta(t, 95.0, rec.CurrentPrice, 1e-9)
		assert.InDelta(t, 99.0, rec.LiquidationPrice, 1e-9)
		assert.InDelta(t, -4.0, rec.MarginRatio, 1e-9)
		assert.InDelta(t, 50.0, rec.LiquidationFee, 1e-9)
		assert.False(t, rec.DetectedAt.IsZero())
	}

	found = s.Scan([]domain.Position{healthy, drowning}, 100)
	assert.Empty(t, found)
	assert.Empty(t, s.Records(), "snapshot replaced wholesale on every scan")
}

func TestScanSkipsInactiveAndMalformed(t *testing.T) {
	s := newTestScanner(&stubSettler{})

	closed := position("p-closed", "0xaaa", 1000, true, 10, 100, 100)
	closed.IsActive = false

	malformed := position("p-bad", "0xaaa", 1000, true, 10, 100, 100)
	malformed.Leverage = 0

	found := s.Scan([]domain.Position{closed, malformed}, 95)
	assert.Empty(t, found)
}

func TestExecuteLiquidationSuccess(t *testing.T) {
	settler := &stubSettler{}
	history := &stubHistory{}
	s := newTestScanner(settler)
	s.SetHistory(history)

	p := position("p-1", "0xabc", 1000, true, 10, 100, 100)
	s.Scan([]domain.Position{p}, 95)
	require.Len(t, s.Records(), 1)

	err := s.ExecuteLiquidation(context.Background(), "p-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"p-1"}, settler.calls)
	assert.Empty(t, s.Records(), "settled record leaves the snapshot")

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.TotalLiquidations)
	assert.InDelta(t, 50.0, stats.TotalFeesCollected, 1e-9)
	assert.InDelta(t, 50.0, stats.AverageLiquidationFee, 1e-9)

	require.Len(t, history.recorded, 1)
	exec := history.recorded[0]
	assert.Equal(t, "p-1", exec.PositionID)
	assert.Equal(t, "0xabc", exec.Owner)
	assert.InDelta(t, 95.0, exec.Price, 1e-9)
	assert.NotEmpty(t, exec.ID)
}

func TestExecuteLiquidationFailureKeepsRecord(t *testing.T) {
	settler := &stubSettler{fail: map[string]error{"p-1": errors.New("rpc down")}}
	s := newTestScanner(settler)

	p := position("p-1", "0xabc", 1000, true, 10, 100, 100)
	s.Scan([]domain.Position{p}, 95)

	err := s.ExecuteLiquidation(context.Background(), "p-1")
	require.Error(t, err)

	assert.Len(t, s.Records(), 1, "failed settlement keeps the record for retry")
	stats := s.Stats()
	assert.Equal(t, int64(0), stats.TotalLiquidations)
	assert.Zero(t, stats.TotalFeesCollected)
	assert.Zero(t, stats.AverageLiquidationFee)
}

func TestExecuteLiquidationUnknownPosition(t *testing.T) {
	s := newTestScanner(&stubSettler{})
	err := s.ExecuteLiquidation(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAutoLiquidateContinuesPastFailures(t *testing.T) {
	settler := &stubSettler{fail: map[string]error{"p-2": errors.New("reverted")}}
	s := newTestScanner(settler)

	positions := []domain.Position{
		position("p-1", "0xaaa", 1000, true, 10, 100, 100),
		position("p-2", "0xbbb", 1000, true, 10, 100, 100),
		position("p-3", "0xccc", 1000, true, 10, 100, 100),
	}
	s.Scan(positions, 95)

	s.AutoLiquidate(context.Background())

	assert.Equal(t, []string{"p-1", "p-2", "p-3"}, settler.calls, "one failure never aborts the rest")

	records := s.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "p-2", records[0].PositionID)
	assert.Equal(t, int64(2), s.Stats().TotalLiquidations)
}

func TestOwnerRecordsCaseInsensitive(t *testing.T) {
	s := newTestScanner(&stubSettler{})

	positions := []domain.Position{
		position("p-1", "0xAbCd", 1000, true, 10, 100, 100),
		position("p-2", "0xother", 1000, true, 10, 100, 100),
	}
	s.Scan(positions, 95)

	recs := s.OwnerRecords("0xabcd")
	require.Len(t, recs, 1)
	assert.Equal(t, "p-1", recs[0].PositionID)

	assert.Empty(t, s.OwnerRecords("0xmissing"))
}

func TestStatsEmpty(t *testing.T) {
	s := newTestScanner(&stubSettler{})
	stats := s.Stats()
	assert.Zero(t, stats.LiquidatableCount)
	assert.Zero(t, stats.TotalLiquidations)
	assert.Zero(t, stats.AverageLiquidationFee, "average is zero, not NaN, with no liquidations")
	assert.True(t, stats.LastCheck.IsZero())
}

func TestMonitoringFlag(t *testing.T) {
	s := newTestScanner(&stubSettler{})
	assert.False(t, s.IsMonitoring())
	s.StartMonitoring()
	assert.True(t, s.IsMonitoring())
	s.StopMonitoring()
	assert.False(t, s.IsMonitoring())
}
