// Package scanner implements the liquidation monitor loop: it re-evaluates
// every open position against the current oracle price on a fixed interval,
// keeps a snapshot of liquidatable positions, and optionally drives the
// settlement layer to liquidate them.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/domainetf/domainperp/internal/domain"
	"github.com/domainetf/domainperp/internal/risk"
)

// DefaultInterval is the monitoring tick period.
const DefaultInterval = 10 * time.Second

// liquidationChannel is the signal-bus channel liquidation events go out on.
const liquidationChannel = "liquidations"

// PriceProvider supplies the current aggregated price. Implemented by the
// oracle aggregator.
type PriceProvider interface {
	Last() (domain.AggregatedPrice, error)
}

// Notifier is the optional operator-alert hook, satisfied by notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Scanner holds the set of currently liquidatable positions and the
// cumulative liquidation counters. All state transitions run under one
// mutex: a scan fires every ten seconds, so contention is not a concern and
// fine-grained locking would buy nothing.
type Scanner struct {
	positions domain.PositionStore
	prices    PriceProvider
	settler   domain.Settler
	history   domain.LiquidationStore // optional
	bus       domain.SignalBus        // optional
	notifier  Notifier                // optional
	logger    *slog.Logger

	interval      time.Duration
	autoLiquidate bool

	// degraded tracks whether the last tick ran on a fallback price, so the
	// operator alert fires once per outage instead of every tick.
	degraded bool

	mu                sync.Mutex
	records           []domain.LiquidationRecord
	lastCheck         time.Time
	totalLiquidations int64
	totalFees         float64
	monitoring        bool
}

// New creates a Scanner. history, bus, and notifier may be nil; interval <= 0
// selects the default. autoLiquidate controls whether the monitoring loop
// executes detected liquidations or only reports them.
func New(
	positions domain.PositionStore,
	prices PriceProvider,
	settler domain.Settler,
	interval time.Duration,
	autoLiquidate bool,
	logger *slog.Logger,
) *Scanner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scanner{
		positions:     positions,
		prices:        prices,
		settler:       settler,
		interval:      interval,
		autoLiquidate: autoLiquidate,
		logger:        logger.With(slog.String("component", "scanner")),
	}
}

// SetHistory wires the optional persisted liquidation history.
func (s *Scanner) SetHistory(store domain.LiquidationStore) { s.history = store }

// SetSignalBus wires the optional event publication bus.
func (s *Scanner) SetSignalBus(bus domain.SignalBus) { s.bus = bus }

// SetNotifier wires the optional operator notifier.
func (s *Scanner) SetNotifier(n Notifier) { s.notifier = n }

// Scan evaluates the given positions against currentPrice and replaces the
// liquidatable snapshot wholesale. Inactive positions are skipped; positions
// failing their numeric preconditions are rejected and logged rather than
// evaluated, since the risk model does not defend against them. Every
// position in one scan is judged against the same price.
func (s *Scanner) Scan(positions []domain.Position, currentPrice float64) []domain.LiquidationRecord {
	now := time.Now().UTC()
	found := make([]domain.LiquidationRecord, 0)

	for _, p := range positions {
		if !p.IsActive {
			continue
		}
		if err := p.Validate(); err != nil {
			s.logger.Error("rejecting malformed position",
				slog.String("position_id", p.ID),
				slog.String("owner", p.Owner),
				slog.String("error", err.Error()),
			)
			continue
		}

		if !risk.Liquidatable(p, currentPrice) {
			continue
		}

		found = append(found, domain.LiquidationRecord{
			PositionID:       p.ID,
			Owner:            p.Owner,
			CurrentPrice:     currentPrice,
			LiquidationPrice: risk.LiquidationPrice(p, currentPrice),
			MarginRatio:      risk.MarginRatio(p, currentPrice),
			LiquidationFee:   risk.LiquidationFee(p, currentPrice),
			DetectedAt:       now,
		})
	}

	s.mu.Lock()
	s.records = found
	s.lastCheck = now
	s.mu.Unlock()

	if len(found) > 0 {
		s.logger.Info("scan found liquidatable positions",
			slog.Int("count", len(found)),
			slog.Float64("price", currentPrice),
		)
	}
	return found
}

// ExecuteLiquidation settles a single detected liquidation. On success the
// record is removed from the snapshot and the counters advance; on failure
// the record stays in place so the next cycle retries, and the error is
// returned to the caller.
func (s *Scanner) ExecuteLiquidation(ctx context.Context, positionID string) error {
	s.mu.Lock()
	idx := -1
	for i, r := range s.records {
		if r.PositionID == positionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("scanner: position %s: %w", positionID, domain.ErrNotFound)
	}
	rec := s.records[idx]
	s.mu.Unlock()

	if err := s.settler.Liquidate(ctx, positionID); err != nil {
		return fmt.Errorf("scanner: liquidate %s: %w", positionID, err)
	}

	s.mu.Lock()
	// Re-locate: a scan may have replaced the snapshot while settling.
	for i, r := range s.records {
		if r.PositionID == positionID {
			s.records = append(s.records[:i], s.records[i+1:]...)
			break
		}
	}
	s.totalLiquidations++
	s.totalFees += rec.LiquidationFee
	s.mu.Unlock()

	s.logger.Info("position liquidated",
		slog.String("position_id", rec.PositionID),
		slog.String("owner", rec.Owner),
		slog.Float64("price", rec.CurrentPrice),
		slog.Float64("fee", rec.LiquidationFee),
	)

	s.recordExecution(ctx, rec)
	return nil
}

// recordExecution persists and announces a settled liquidation. All sinks
// are best-effort: the liquidation already happened, so failures here are
// logged and swallowed.
func (s *Scanner) recordExecution(ctx context.Context, rec domain.LiquidationRecord) {
	exec := domain.LiquidationExecution{
		ID:          uuid.New().String(),
		PositionID:  rec.PositionID,
		Owner:       rec.Owner,
		Price:       rec.CurrentPrice,
		MarginRatio: rec.MarginRatio,
		Fee:         rec.LiquidationFee,
		ExecutedAt:  time.Now().UTC(),
	}

	if s.history != nil {
		if err := s.history.Record(ctx, exec); err != nil {
			s.logger.Warn("failed to record liquidation",
				slog.String("position_id", exec.PositionID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus != nil {
		payload, err := json.Marshal(map[string]any{
			"type":    "liquidation",
			"payload": exec,
		})
		if err == nil {
			if err := s.bus.Publish(ctx, liquidationChannel, payload); err != nil {
				s.logger.Warn("failed to publish liquidation event", slog.String("error", err.Error()))
			}
		}
	}

	if s.notifier != nil {
		title := "Position liquidated"
		msg := fmt.Sprintf("position %s (owner %s) liquidated at %.4f, fee %.2f",
			exec.PositionID, exec.Owner, exec.Price, exec.Fee)
		if err := s.notifier.Notify(ctx, "liquidation", title, msg); err != nil {
			s.logger.Warn("failed to notify liquidation", slog.String("error", err.Error()))
		}
	}
}

// AutoLiquidate walks the current snapshot and settles each record in
// order. A failed settlement is logged and left for the next cycle; it never
// aborts the remaining records.
func (s *Scanner) AutoLiquidate(ctx context.Context) {
	s.mu.Lock()
	pending := make([]domain.LiquidationRecord, len(s.records))
	copy(pending, s.records)
	s.mu.Unlock()

	for _, rec := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := s.ExecuteLiquidation(ctx, rec.PositionID); err != nil {
			s.logger.Error("auto-liquidation failed, record kept for retry",
				slog.String("position_id", rec.PositionID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// StartMonitoring enables the tick loop. Run must be executing for scans to
// fire.
func (s *Scanner) StartMonitoring() {
	s.mu.Lock()
	s.monitoring = true
	s.mu.Unlock()
	s.logger.Info("monitoring started", slog.Duration("interval", s.interval))
}

// StopMonitoring disables the tick loop. No scan begins after the flag
// drops; a scan already in flight completes.
func (s *Scanner) StopMonitoring() {
	s.mu.Lock()
	s.monitoring = false
	s.mu.Unlock()
	s.logger.Info("monitoring stopped")
}

// IsMonitoring reports whether the tick loop is active.
func (s *Scanner) IsMonitoring() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitoring
}

// Run drives the monitoring loop until the context is cancelled. Each tick,
// when monitoring is enabled: read the current position snapshot and oracle
// price, scan, and auto-liquidate any findings when configured to.
func (s *Scanner) Run(ctx context.Context) error {
	s.StartMonitoring()
	defer s.StopMonitoring()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !s.IsMonitoring() {
				continue
			}
			s.tick(ctx)
		}
	}
}

// tick runs one scan-and-act cycle.
func (s *Scanner) tick(ctx context.Context) {
	price, priceErr := s.prices.Last()
	if priceErr != nil {
		// Degraded price: still scan, the fallback keeps the system
		// observable, but skip settlements based on it.
		s.logger.Warn("oracle degraded, skipping auto-liquidation this tick",
			slog.String("price_source", price.Source),
			slog.String("error", priceErr.Error()),
		)
		if !s.degraded && s.notifier != nil {
			_ = s.notifier.Notify(ctx, "oracle_degraded",
				"Oracle degraded",
				fmt.Sprintf("Scanning on fallback price %.2f: %v", price.Price, priceErr),
			)
		}
	}
	s.degraded = priceErr != nil
	if price.Price <= 0 {
		s.logger.Warn("no usable price yet, skipping scan")
		return
	}

	positions, err := s.positions.ListActive(ctx)
	if err != nil {
		s.logger.Error("failed to list active positions", slog.String("error", err.Error()))
		return
	}

	found := s.Scan(positions, price.Price)

	if s.autoLiquidate && priceErr == nil && len(found) > 0 {
		s.AutoLiquidate(ctx)
	}
}

// Records returns a copy of the current liquidatable snapshot.
func (s *Scanner) Records() []domain.LiquidationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LiquidationRecord, len(s.records))
	copy(out, s.records)
	return out
}

// OwnerRecords returns the liquidatable records belonging to owner,
// compared case-insensitively (addresses arrive in mixed checksum casing).
func (s *Scanner) OwnerRecords(owner string) []domain.LiquidationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.LiquidationRecord, 0)
	for _, r := range s.records {
		if strings.EqualFold(r.Owner, owner) {
			out = append(out, r)
		}
	}
	return out
}

// Stats returns the scanner's counters and current snapshot size.
func (s *Scanner) Stats() domain.LiquidationStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := domain.LiquidationStats{
		LiquidatableCount:  len(s.records),
		TotalLiquidations:  s.totalLiquidations,
		TotalFeesCollected: s.totalFees,
		LastCheck:          s.lastCheck,
	}
	if s.totalLiquidations > 0 {
		stats.AverageLiquidationFee = s.totalFees / float64(s.totalLiquidations)
	}
	return stats
}
