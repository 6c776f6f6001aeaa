package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/domainetf/domainperp/internal/domain"
)

// LiquidationService defines the scanner methods the liquidation handler
// requires.
type LiquidationService interface {
	Records() []domain.LiquidationRecord
	OwnerRecords(owner string) []domain.LiquidationRecord
	Stats() domain.LiquidationStats
	ExecuteLiquidation(ctx context.Context, positionID string) error
	IsMonitoring() bool
}

// LiquidationHandler serves liquidation-related HTTP endpoints.
type LiquidationHandler struct {
	scanner LiquidationService
	history domain.LiquidationStore // may be nil when no store is wired
	logger  *slog.Logger
}

// NewLiquidationHandler creates a LiquidationHandler with the given scanner,
// optional history store, and logger.
func NewLiquidationHandler(scanner LiquidationService, history domain.LiquidationStore, logger *slog.Logger) *LiquidationHandler {
	return &LiquidationHandler{
		scanner: scanner,
		history: history,
		logger:  logger,
	}
}

// listLiquidationsResponse wraps the current liquidatable snapshot.
type listLiquidationsResponse struct {
	Monitoring   bool                       `json:"monitoring"`
	Liquidatable []domain.LiquidationRecord `json:"liquidatable"`
}

// ListLiquidatable returns the positions currently flagged for liquidation,
// optionally filtered to one owner.
// GET /api/liquidations?owner=0x...
func (h *LiquidationHandler) ListLiquidatable(w http.ResponseWriter, r *http.Request) {
	var records []domain.LiquidationRecord
	if owner := r.URL.Query().Get("owner"); owner != "" {
		records = h.scanner.OwnerRecords(owner)
	} else {
		records = h.scanner.Records()
	}
	if records == nil {
		records = []domain.LiquidationRecord{}
	}

	writeJSON(w, http.StatusOK, listLiquidationsResponse{
		Monitoring:   h.scanner.IsMonitoring(),
		Liquidatable: records,
	})
}

// GetStats returns the scanner's cumulative liquidation statistics.
// GET /api/liquidations/stats
func (h *LiquidationHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scanner.Stats())
}

// listHistoryResponse wraps the executed-liquidation history.
type listHistoryResponse struct {
	Liquidations []domain.LiquidationExecution `json:"liquidations"`
}

// ListHistory returns recently executed liquidations from the store.
// GET /api/liquidations/history?limit=50
func (h *LiquidationHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "liquidation history is not configured")
		return
	}

	limit := queryLimit(r, 50, 500)
	execs, err := h.history.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list liquidation history failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list liquidation history")
		return
	}
	if execs == nil {
		execs = []domain.LiquidationExecution{}
	}

	writeJSON(w, http.StatusOK, listHistoryResponse{Liquidations: execs})
}

// Execute settles a single flagged position immediately.
// POST /api/liquidations/{id}/execute
func (h *LiquidationHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "position id required")
		return
	}

	if err := h.scanner.ExecuteLiquidation(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position is not flagged for liquidation")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: execute liquidation failed",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "liquidation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "liquidated",
		"position_id": id,
	})
}
