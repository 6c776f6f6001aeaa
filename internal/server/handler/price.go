package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/domainetf/domainperp/internal/domain"
)

// PriceService defines the oracle methods the price handler requires.
type PriceService interface {
	Last() (domain.AggregatedPrice, error)
	SourceStatus() map[string]bool
	Health() domain.OracleHealth
	Refresh()
}

// PriceHandler serves oracle price endpoints.
type PriceHandler struct {
	oracle PriceService
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler with the given service and logger.
func NewPriceHandler(oracle PriceService, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{
		oracle: oracle,
		logger: logger,
	}
}

// priceResponse wraps the current aggregated price. Degraded reports whether
// the price came from the fallback path rather than live feeds.
type priceResponse struct {
	Price    domain.AggregatedPrice `json:"price"`
	Degraded bool                   `json:"degraded"`
}

// GetPrice returns the latest aggregated price.
// GET /api/price
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	price, err := h.oracle.Last()
	if price.Timestamp.IsZero() {
		writeError(w, http.StatusServiceUnavailable, "no price available yet")
		return
	}
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: serving degraded price",
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusOK, priceResponse{
		Price:    price,
		Degraded: price.Degraded(),
	})
}

// oracleHealthResponse reports per-source reachability and the overall ratio.
type oracleHealthResponse struct {
	Sources    map[string]bool `json:"sources"`
	Healthy    int             `json:"healthy"`
	Total      int             `json:"total"`
	Percentage float64         `json:"percentage"`
	Timestamp  string          `json:"timestamp"`
}

// GetOracleHealth returns the status of every configured price source.
// GET /api/oracle/health
func (h *PriceHandler) GetOracleHealth(w http.ResponseWriter, r *http.Request) {
	health := h.oracle.Health()

	writeJSON(w, http.StatusOK, oracleHealthResponse{
		Sources:    h.oracle.SourceStatus(),
		Healthy:    health.Healthy,
		Total:      health.Total,
		Percentage: health.Percentage,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

// RefreshPrice requests an immediate out-of-band oracle poll. The refresh is
// asynchronous; the response only acknowledges the request.
// POST /api/price/refresh
func (h *PriceHandler) RefreshPrice(w http.ResponseWriter, r *http.Request) {
	h.oracle.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh requested"})
}
