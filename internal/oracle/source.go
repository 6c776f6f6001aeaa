// Package oracle aggregates the index price from several independently
// queried, unreliable sources into one trustworthy current price.
package oracle

import (
	"context"

	"github.com/domainetf/domainperp/internal/domain"
)

// SourceConfig describes one configured price feed. Weights need not sum to
// one; the aggregator renormalises over the samples that survive filtering.
type SourceConfig struct {
	Name     string
	Weight   float64
	Endpoint string
	Enabled  bool
}

// Source is a single price feed. Fetch either returns one sample or fails;
// a failing source is excluded from the current aggregation cycle and
// reflected in per-source health, never propagated to the caller.
type Source interface {
	Name() string
	Weight() float64
	Fetch(ctx context.Context) (domain.PriceSample, error)
}
