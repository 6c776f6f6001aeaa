package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domainetf/domainperp/internal/domain"
)

type stubScanner struct {
	records    []domain.LiquidationRecord
	stats      domain.LiquidationStats
	execErr    error
	executed   []string
	monitoring bool
}

func (s *stubScanner) Records() []domain.LiquidationRecord { return s.records }

func (s *stubScanner) OwnerRecords(owner string) []domain.LiquidationRecord {
	var out []domain.LiquidationRecord
	for _, r := range s.records {
		if r.Owner == owner {
			out = append(out, r)
		}
	}
	return out
}

func (s *stubScanner) Stats() domain.LiquidationStats { return s.stats }

func (s *stubScanner) ExecuteLiquidation(_ context.Context, id string) error {
	s.executed = append(s.executed, id)
	return s.execErr
}

func (s *stubScanner) IsMonitoring() bool { return s.monitoring }

func newMux(h *LiquidationHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/liquidations", h.ListLiquidatable)
	mux.HandleFunc("GET /api/liquidations/stats", h.GetStats)
	mux.HandleFunc("GET /api/liquidations/history", h.ListHistory)
	mux.HandleFunc("POST /api/liquidations/{id}/execute", h.Execute)
	return mux
}

func TestListLiquidatable(t *testing.T) {
	scanner := &stubScanner{
		monitoring: true,
		records: []domain.LiquidationRecord{
			{PositionID: "p-1", Owner: "0xaaa", CurrentPrice: 95, MarginRatio: -4, DetectedAt: time.Now().UTC()},
			{PositionID: "p-2", Owner: "0xbbb", CurrentPrice: 95, MarginRatio: 0.5, DetectedAt: time.Now().UTC()},
		},
	}
	h := NewLiquidationHandler(scanner, nil, slog.New(slog.DiscardHandler))
	mux := newMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/liquidations", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listLiquidationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Monitoring)
	assert.Len(t, resp.Liquidatable, 2)

	// Owner filter.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/liquidations?owner=0xaaa", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Liquidatable, 1)
	assert.Equal(t, "p-1", resp.Liquidatable[0].PositionID)
}

func TestExecuteLiquidationEndpoint(t *testing.T) {
	scanner := &stubScanner{}
	h := NewLiquidationHandler(scanner, nil, slog.New(slog.DiscardHandler))
	mux := newMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/liquidations/p-9/execute", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"p-9"}, scanner.executed)
}

func TestExecuteLiquidationNotFlagged(t *testing.T) {
	scanner := &stubScanner{execErr: domain.ErrNotFound}
	h := NewLiquidationHandler(scanner, nil, slog.New(slog.DiscardHandler))
	mux := newMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/liquidations/nope/execute", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteLiquidationSettlementFailure(t *testing.T) {
	scanner := &stubScanner{execErr: errors.New("rpc down")}
	h := NewLiquidationHandler(scanner, nil, slog.New(slog.DiscardHandler))
	mux := newMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/liquidations/p-1/execute", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestListHistoryNotConfigured(t *testing.T) {
	h := NewLiquidationHandler(&stubScanner{}, nil, slog.New(slog.DiscardHandler))
	mux := newMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/liquidations/history", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
