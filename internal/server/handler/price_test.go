package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domainetf/domainperp/internal/domain"
)

type stubOracle struct {
	last      domain.AggregatedPrice
	lastErr   error
	status    map[string]bool
	health    domain.OracleHealth
	refreshed int
}

func (s *stubOracle) Last() (domain.AggregatedPrice, error) { return s.last, s.lastErr }
func (s *stubOracle) SourceStatus() map[string]bool         { return s.status }
func (s *stubOracle) Health() domain.OracleHealth           { return s.health }
func (s *stubOracle) Refresh()                              { s.refreshed++ }

func TestGetPrice(t *testing.T) {
	oracle := &stubOracle{
		last: domain.AggregatedPrice{
			Price:      105.42,
			Confidence: 0.9,
			Source:     domain.SourceAggregated,
			Timestamp:  time.Now().UTC(),
		},
	}
	h := NewPriceHandler(oracle, slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	h.GetPrice(rec, httptest.NewRequest(http.MethodGet, "/api/price", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp priceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 105.42, resp.Price.Price, 1e-9)
	assert.False(t, resp.Degraded)
}

func TestGetPriceNoneYet(t *testing.T) {
	h := NewPriceHandler(&stubOracle{}, slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	h.GetPrice(rec, httptest.NewRequest(http.MethodGet, "/api/price", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetPriceDegraded(t *testing.T) {
	oracle := &stubOracle{
		last: domain.AggregatedPrice{
			Price:      105.42,
			Confidence: 0.5,
			Source:     domain.SourceFallback,
			Timestamp:  time.Now().UTC(),
		},
		lastErr: domain.ErrNoValidSamples,
	}
	h := NewPriceHandler(oracle, slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	h.GetPrice(rec, httptest.NewRequest(http.MethodGet, "/api/price", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp priceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Degraded)
}

func TestGetOracleHealth(t *testing.T) {
	oracle := &stubOracle{
		status: map[string]bool{"Doma Protocol Oracle": true, "Backup Oracle": false},
		health: domain.OracleHealth{Healthy: 1, Total: 2, Percentage: 50},
	}
	h := NewPriceHandler(oracle, slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	h.GetOracleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/oracle/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp oracleHealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Healthy)
	assert.Equal(t, 2, resp.Total)
	assert.True(t, resp.Sources["Doma Protocol Oracle"])
	assert.False(t, resp.Sources["Backup Oracle"])
}

func TestRefreshPrice(t *testing.T) {
	oracle := &stubOracle{}
	h := NewPriceHandler(oracle, slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	h.RefreshPrice(rec, httptest.NewRequest(http.MethodPost, "/api/price/refresh", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, oracle.refreshed)
}
