// Package settlement provides the adapters that close liquidated positions:
// a dry-run settler for monitoring deployments and an on-chain settler that
// calls the perpetual pool contract.
package settlement

import (
	"context"
	"log/slog"

	"github.com/domainetf/domainperp/internal/domain"
)

// NoopSettler logs the liquidation it would have performed and succeeds.
// Used in monitor mode and in dry runs where no contract is wired.
type NoopSettler struct {
	logger *slog.Logger
}

var _ domain.Settler = (*NoopSettler)(nil)

func NewNoopSettler(logger *slog.Logger) *NoopSettler {
	return &NoopSettler{logger: logger.With(slog.String("component", "settler.noop"))}
}

func (n *NoopSettler) Liquidate(_ context.Context, positionID string) error {
	n.logger.Info("dry run: would liquidate position", slog.String("position_id", positionID))
	return nil
}
