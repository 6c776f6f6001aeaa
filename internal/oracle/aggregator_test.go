package oracle

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

// fakeSource returns a canned sample or error.
type fakeSource struct {
	name   string
	weight float64
	sample domain.PriceSample
	err    error
}

func (f *fakeSource) Name() string    { return f.name }
func (f *fakeSource) Weight() float64 { return f.weight }

func (f *fakeSource) Fetch(context.Context) (domain.PriceSample, error) {
	if f.err != nil {
		return domain.PriceSample{}, f.err
	}
	return f.sample, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func sampleFrom(name string, price, confidence float64) domain.PriceSample {
	return domain.PriceSample{
		Price:      price,
		Volume24h:  1_000_000,
		Change24h:  1.5,
		Timestamp:  time.Now().UTC(),
		Source:     name,
		Confidence: confidence,
	}
}

func TestFetchAllWeightedBlend(t *testing.T) {
	a := NewAggregator([]Source{
		&fakeSource{name: "A", weight: 0.4, sample: sampleFrom("A", 105.42, 0.9)},
		&fakeSource{name: "B", weight: 0.3, sample: sampleFrom("B", 105.38, 0.85)},
	}, nil, nil, 0, testLogger())

	agg, err := a.FetchAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.SourceAggregated, agg.Source)

	// (105.42*0.4 + 105.38*0.3) / 0.7
	wantPrice := (105.42*0.4 + 105.38*0.3) / 0.7
	assert.InDelta(t, wantPrice, agg.Price, 1e-9)

	// Confidence: weighted sum divided by sample count.
	wantConf := (0.9*0.4 + 0.85*0.3) / 2
	assert.InDelta(t, wantConf, agg.Confidence, 1e-9)
}

func TestFetchAllIdenticalSources(t *testing.T) {
	// All sources agreeing means the aggregate equals that price exactly.
	a := NewAggregator([]Source{
		&fakeSource{name: "A", weight: 0.4, sample: sampleFrom("A", 101.5, 0.9)},
		&fakeSource{name: "B", weight: 0.3, sample: sampleFrom("B", 101.5, 0.9)},
		&fakeSource{name: "C", weight: 0.2, sample: sampleFrom("C", 101.5, 0.9)},
	}, nil, nil, 0, testLogger())

	agg, err := a.FetchAll(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 101.5, agg.Price, 1e-9)
}

func TestFetchAllFiltersInvalidSamples(t *testing.T) {
	good := sampleFrom("good", 100, 0.9)

	stale := sampleFrom("stale", 500, 0.9)
	stale.Timestamp = time.Now().UTC().Add(-6 * time.Minute)

	lowConf := sampleFrom("lowconf", 500, 0.5) // exactly at the floor: excluded

	zeroPrice := sampleFrom("zero", 0, 0.9)

	withJunk := NewAggregator([]Source{
		&fakeSource{name: "good", weight: 0.4, sample: good},
		&fakeSource{name: "stale", weight: 0.4, sample: stale},
		&fakeSource{name: "lowconf", weight: 0.4, sample: lowConf},
		&fakeSource{name: "zero", weight: 0.4, sample: zeroPrice},
	}, nil, nil, 0, testLogger())

	onlyGood := NewAggregator([]Source{
		&fakeSource{name: "good", weight: 0.4, sample: good},
	}, nil, nil, 0, testLogger())

	aggJunk, err := withJunk.FetchAll(context.Background())
	require.NoError(t, err)
	aggGood, err := onlyGood.FetchAll(context.Background())
	require.NoError(t, err)

	// Filtered-out samples must not influence the output at all.
	assert.Equal(t, aggGood.Price, aggJunk.Price)
	assert.Equal(t, aggGood.Confidence, aggJunk.Confidence)
}

func TestFetchAllFallbackOnTotalFailure(t *testing.T) {
	boom := errors.New("connection refused")
	a := NewAggregator([]Source{
		&fakeSource{name: "A", weight: 0.4, err: boom},
		&fakeSource{name: "B", weight: 0.3, err: boom},
	}, nil, nil, 0, testLogger())

	agg, err := a.FetchAll(context.Background())

	assert.ErrorIs(t, err, domain.ErrNoValidSamples)
	assert.Equal(t, domain.SourceFallback, agg.Source)
	assert.Equal(t, 0.5, agg.Confidence)
	assert.Equal(t, 105.42, agg.Price)
	assert.True(t, agg.Degraded())

	// Degraded state is also visible through Last.
	last, lastErr := a.Last()
	assert.Equal(t, agg.Price, last.Price)
	assert.ErrorIs(t, lastErr, domain.ErrNoValidSamples)
}

func TestFetchAllIsolatesSourceFailures(t *testing.T) {
	a := NewAggregator([]Source{
		&fakeSource{name: "up", weight: 0.5, sample: sampleFrom("up", 99, 0.95)},
		&fakeSource{name: "down", weight: 0.5, err: errors.New("timeout")},
	}, nil, nil, 0, testLogger())

	agg, err := a.FetchAll(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 99, agg.Price, 1e-9)

	status := a.SourceStatus()
	assert.True(t, status["up"])
	assert.False(t, status["down"])

	health := a.Health()
	assert.Equal(t, 1, health.Healthy)
	assert.Equal(t, 2, health.Total)
	assert.InDelta(t, 50, health.Percentage, 1e-9)
}

func TestSanityEnvelope(t *testing.T) {
	a := NewAggregator(nil, nil, nil, 0, testLogger())

	ok := domain.AggregatedPrice{
		Price: 105, Volume24h: 100, Change24h: 2,
		Timestamp: time.Now().UTC(), Confidence: 0.8,
	}
	assert.True(t, a.sane(ok))

	bad := ok
	bad.Price = 10_001
	assert.False(t, a.sane(bad))

	bad = ok
	bad.Change24h = -150
	assert.False(t, a.sane(bad))

	bad = ok
	bad.Volume24h = -1
	assert.False(t, a.sane(bad))

	bad = ok
	bad.Confidence = 0
	assert.False(t, a.sane(bad))

	bad = ok
	bad.Timestamp = time.Now().UTC().Add(-11 * time.Minute)
	assert.False(t, a.sane(bad))
}

func TestRefreshDoesNotBlock(t *testing.T) {
	a := NewAggregator(nil, nil, nil, 0, testLogger())

	// Multiple refresh requests with no running loop must not block.
	for i := 0; i < 5; i++ {
		a.Refresh()
	}
}
