package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"price":105.42,"volume24h":1250000,"change24h":2.34,"confidence":0.9}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(SourceConfig{Name: "Doma Protocol Oracle", Weight: 0.4, Endpoint: srv.URL})

	sample, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Doma Protocol Oracle", sample.Source)
	assert.InDelta(t, 105.42, sample.Price, 1e-9)
	assert.InDelta(t, 1_250_000, sample.Volume24h, 1e-9)
	assert.InDelta(t, 2.34, sample.Change24h, 1e-9)
	assert.InDelta(t, 0.9, sample.Confidence, 1e-9)
	assert.False(t, sample.Timestamp.IsZero())
}

func TestHTTPSourceFieldAliases(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":99.5,"volume":42000,"change":-1.2}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(SourceConfig{Name: "Backup Oracle", Weight: 0.1, Endpoint: srv.URL})

	sample, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 99.5, sample.Price, 1e-9)
	assert.InDelta(t, 42_000, sample.Volume24h, 1e-9)
	assert.InDelta(t, -1.2, sample.Change24h, 1e-9)
	assert.InDelta(t, defaultConfidence, sample.Confidence, 1e-9, "missing confidence takes the default")
}

func TestHTTPSourceNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream melted", http.StatusBadGateway)
	}))
	defer srv.Close()

	src := NewHTTPSource(SourceConfig{Name: "Chainlink Domain Oracle", Weight: 0.3, Endpoint: srv.URL})

	_, err := src.Fetch(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPSourceBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	src := NewHTTPSource(SourceConfig{Name: "Domain Market Oracle", Weight: 0.2, Endpoint: srv.URL})

	_, err := src.Fetch(context.Background())
	assert.Error(t, err)
}
