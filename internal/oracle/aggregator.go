package oracle

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/domainetf/domainperp/internal/domain"
)

const (
	// DefaultPollInterval is how often the aggregator refreshes on its own.
	DefaultPollInterval = 30 * time.Second

	// maxSampleAge is how old a source sample may be and still contribute.
	maxSampleAge = 5 * time.Minute

	// minConfidence is the exclusive lower bound for a usable sample.
	minConfidence = 0.5

	// maxAggregateAge is the sanity-envelope bound on aggregate staleness.
	maxAggregateAge = 10 * time.Minute

	// unknownSourceWeight is used when a sample's source has no configured
	// weight (defensive; should not happen with static source lists).
	unknownSourceWeight = 0.1

	// priceChannel is the signal-bus channel aggregates are published on.
	priceChannel = "prices"
)

// fallbackPrice is the fixed degraded sample emitted when no source
// produced a usable sample. Availability wins over precision: callers always
// get something renderable, with the degraded state visible through Source
// and Confidence.
func fallbackPrice() domain.AggregatedPrice {
	return domain.AggregatedPrice{
		Price:      105.42,
		Volume24h:  1_250_000,
		Change24h:  2.34,
		Timestamp:  time.Now().UTC(),
		Source:     domain.SourceFallback,
		Confidence: 0.5,
	}
}

// Aggregator polls the configured sources, filters and blends their samples,
// and exposes one current price plus per-source health. A single instance is
// constructed per process and shared by reference; there is no package-level
// state.
type Aggregator struct {
	sources      []Source
	cache        domain.PriceCache // optional
	bus          domain.SignalBus  // optional
	pollInterval time.Duration
	logger       *slog.Logger

	// flight coalesces concurrent FetchAll calls: a refresh arriving while a
	// fetch is in flight joins that fetch instead of issuing another.
	flight singleflight.Group

	refreshCh chan struct{}

	mu      sync.RWMutex
	last    domain.AggregatedPrice
	lastErr error
	status  map[string]bool // per-source: last attempt succeeded
}

// NewAggregator creates an Aggregator over the given sources. cache and bus
// may be nil; when set, every produced aggregate is written to the cache and
// published on the signal bus. pollInterval <= 0 selects the default.
func NewAggregator(
	sources []Source,
	cache domain.PriceCache,
	bus domain.SignalBus,
	pollInterval time.Duration,
	logger *slog.Logger,
) *Aggregator {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Aggregator{
		sources:      sources,
		cache:        cache,
		bus:          bus,
		pollInterval: pollInterval,
		logger:       logger.With(slog.String("component", "oracle")),
		refreshCh:    make(chan struct{}, 1),
		status:       make(map[string]bool, len(sources)),
	}
}

// FetchAll queries every source concurrently, aggregates the usable samples,
// and returns the new current price. Concurrent callers are coalesced onto a
// single in-flight fetch. FetchAll never fails hard: on total source failure
// it returns the fallback sample together with domain.ErrNoValidSamples so
// callers can render something and surface the degraded state.
func (a *Aggregator) FetchAll(ctx context.Context) (domain.AggregatedPrice, error) {
	v, err, _ := a.flight.Do("fetch", func() (any, error) {
		return a.fetchAll(ctx), nil
	})
	if err != nil {
		// singleflight only propagates our own closure error, which is nil.
		return fallbackPrice(), err
	}
	agg := v.(domain.AggregatedPrice)

	a.mu.RLock()
	lastErr := a.lastErr
	a.mu.RUnlock()
	return agg, lastErr
}

// fetchAll runs one full fetch/aggregate/validate cycle, retrying once when
// the aggregate fails the sanity envelope.
func (a *Aggregator) fetchAll(ctx context.Context) domain.AggregatedPrice {
	agg, err := a.fetchOnce(ctx)
	if err == nil && !a.sane(agg) {
		a.logger.Warn("aggregate failed sanity validation, refetching",
			slog.Float64("price", agg.Price),
			slog.Float64("confidence", agg.Confidence),
		)
		retried, retryErr := a.fetchOnce(ctx)
		if retryErr != nil || !a.sane(retried) {
			err = domain.ErrStaleAggregate
		} else {
			agg = retried
		}
	}

	if err != nil {
		agg = fallbackPrice()
		a.logger.Error("oracle degraded to fallback price",
			slog.Float64("price", agg.Price),
			slog.String("error", err.Error()),
		)
	}

	a.mu.Lock()
	a.last = agg
	a.lastErr = err
	a.mu.Unlock()

	a.publish(ctx, agg)
	return agg
}

// fetchOnce fans out to all sources, waits for every call to settle or time
// out, and aggregates the survivors.
func (a *Aggregator) fetchOnce(ctx context.Context) (domain.AggregatedPrice, error) {
	type result struct {
		name   string
		sample domain.PriceSample
		err    error
	}

	results := make([]result, len(a.sources))

	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			fctx, cancel := context.WithTimeout(ctx, sourceTimeout)
			defer cancel()
			sample, err := src.Fetch(fctx)
			results[i] = result{name: src.Name(), sample: sample, err: err}
		}(i, src)
	}
	wg.Wait()

	samples := make([]domain.PriceSample, 0, len(a.sources))
	status := make(map[string]bool, len(a.sources))
	for _, r := range results {
		if r.err != nil {
			status[r.name] = false
			a.logger.Warn("oracle source failed",
				slog.String("source", r.name),
				slog.String("error", r.err.Error()),
			)
			continue
		}
		status[r.name] = true
		samples = append(samples, r.sample)
	}

	a.mu.Lock()
	a.status = status
	a.mu.Unlock()

	return a.aggregate(samples)
}

// usable applies the validity filter: positive price, confidence strictly
// above the floor, and a sample no older than maxSampleAge.
func usable(s domain.PriceSample, now time.Time) bool {
	return s.Price > 0 &&
		s.Confidence > minConfidence &&
		now.Sub(s.Timestamp) < maxSampleAge
}

// aggregate blends the usable samples into one AggregatedPrice using the
// configured per-source weights. Price, volume, and change are the
// weight-normalised means; confidence is the weighted sum divided by the
// number of contributing samples.
func (a *Aggregator) aggregate(samples []domain.PriceSample) (domain.AggregatedPrice, error) {
	now := time.Now().UTC()

	valid := samples[:0:0]
	for _, s := range samples {
		if usable(s, now) {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return domain.AggregatedPrice{}, domain.ErrNoValidSamples
	}

	weights := make(map[string]float64, len(a.sources))
	for _, src := range a.sources {
		weights[src.Name()] = src.Weight()
	}

	var totalWeight, price, volume, change, confidence float64
	for _, s := range valid {
		w, ok := weights[s.Source]
		if !ok || w <= 0 {
			w = unknownSourceWeight
		}
		totalWeight += w
		price += s.Price * w
		volume += s.Volume24h * w
		change += s.Change24h * w
		confidence += s.Confidence * w
	}

	return domain.AggregatedPrice{
		Price:      price / totalWeight,
		Volume24h:  volume / totalWeight,
		Change24h:  change / totalWeight,
		Timestamp:  now,
		Source:     domain.SourceAggregated,
		Confidence: confidence / float64(len(valid)),
	}, nil
}

// sane validates an aggregate against the broad sanity envelope. Values
// outside it indicate a feed gone wrong rather than a market move.
func (a *Aggregator) sane(agg domain.AggregatedPrice) bool {
	return agg.Price > 0 &&
		agg.Price < 10_000 &&
		agg.Volume24h >= 0 &&
		math.Abs(agg.Change24h) < 100 &&
		agg.Confidence > 0 &&
		agg.Confidence <= 1 &&
		time.Since(agg.Timestamp) < maxAggregateAge
}

// publish writes the aggregate to the price cache and signal bus when those
// are wired. Failures are logged and swallowed; distribution is best-effort
// and never blocks price production.
func (a *Aggregator) publish(ctx context.Context, agg domain.AggregatedPrice) {
	if a.cache != nil {
		if err := a.cache.SetAggregated(ctx, agg); err != nil {
			a.logger.Warn("failed to cache aggregated price", slog.String("error", err.Error()))
		}
	}
	if a.bus != nil {
		payload, err := json.Marshal(map[string]any{
			"type":    "price_update",
			"payload": agg,
		})
		if err == nil {
			if err := a.bus.Publish(ctx, priceChannel, payload); err != nil {
				a.logger.Warn("failed to publish price update", slog.String("error", err.Error()))
			}
		}
	}
}

// Run fetches immediately and then refreshes on the poll interval until the
// context is cancelled. Manual Refresh requests wake the loop early; if a
// fetch is already in flight the request joins it rather than queueing.
func (a *Aggregator) Run(ctx context.Context) error {
	a.logger.Info("oracle aggregator started",
		slog.Int("sources", len(a.sources)),
		slog.Duration("poll_interval", a.pollInterval),
	)

	a.FetchAll(ctx)

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("oracle aggregator stopped")
			return ctx.Err()
		case <-ticker.C:
			a.FetchAll(ctx)
		case <-a.refreshCh:
			a.FetchAll(ctx)
		}
	}
}

// Refresh requests an immediate re-fetch without blocking. Requests arriving
// while one is already pending are dropped; the pending fetch serves them.
func (a *Aggregator) Refresh() {
	select {
	case a.refreshCh <- struct{}{}:
	default:
	}
}

// Last returns the most recent aggregate together with the non-fatal error
// state of the cycle that produced it (nil for a healthy aggregate,
// domain.ErrNoValidSamples / domain.ErrStaleAggregate for a degraded one).
func (a *Aggregator) Last() (domain.AggregatedPrice, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last, a.lastErr
}

// SourceStatus returns whether each source's last attempt succeeded.
func (a *Aggregator) SourceStatus() map[string]bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]bool, len(a.status))
	for k, v := range a.status {
		out[k] = v
	}
	return out
}

// Health reports the healthy/total source ratio from the last fetch cycle.
func (a *Aggregator) Health() domain.OracleHealth {
	a.mu.RLock()
	defer a.mu.RUnlock()

	h := domain.OracleHealth{Total: len(a.sources)}
	for _, ok := range a.status {
		if ok {
			h.Healthy++
		}
	}
	if h.Total > 0 {
		h.Percentage = float64(h.Healthy) / float64(h.Total) * 100
	}
	return h
}
