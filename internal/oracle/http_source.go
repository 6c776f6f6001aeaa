package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/domainetf/domainperp/internal/domain"
)

const (
	// sourceTimeout bounds a single source request. A slow source costs at
	// most this much of the fetch cycle and never stalls the other sources.
	sourceTimeout = 5 * time.Second

	// defaultConfidence is assumed when a feed does not report one.
	defaultConfidence = 0.8
)

// HTTPSource fetches a price sample from a JSON REST endpoint. Feeds differ
// in field naming, so the decoder normalises the common aliases
// (price/value/rate, volume24h/volume, change24h/change) into one shape.
type HTTPSource struct {
	name     string
	weight   float64
	endpoint string
	client   *http.Client
}

// NewHTTPSource creates an HTTPSource for the given feed configuration.
func NewHTTPSource(cfg SourceConfig) *HTTPSource {
	return &HTTPSource{
		name:     cfg.Name,
		weight:   cfg.Weight,
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: sourceTimeout},
	}
}

// Name returns the configured feed name.
func (s *HTTPSource) Name() string { return s.name }

// Weight returns the configured aggregation weight.
func (s *HTTPSource) Weight() float64 { return s.weight }

// sourceResponse covers the field-name variants the known feeds use.
type sourceResponse struct {
	Price      float64 `json:"price"`
	Value      float64 `json:"value"`
	Rate       float64 `json:"rate"`
	Volume24h  float64 `json:"volume24h"`
	Volume     float64 `json:"volume"`
	Change24h  float64 `json:"change24h"`
	Change     float64 `json:"change"`
	Timestamp  int64   `json:"timestamp"` // unix millis; 0 means unreported
	Confidence float64 `json:"confidence"`
}

// Fetch performs one GET against the feed endpoint and normalises the
// response into a domain.PriceSample.
func (s *HTTPSource) Fetch(ctx context.Context) (domain.PriceSample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("oracle: %s: create request: %w", s.name, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "domainperp/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("oracle: %s: fetch: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.PriceSample{}, fmt.Errorf("oracle: %s: unexpected status %d", s.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.PriceSample{}, fmt.Errorf("oracle: %s: read body: %w", s.name, err)
	}

	var raw sourceResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.PriceSample{}, fmt.Errorf("oracle: %s: decode: %w", s.name, err)
	}

	return s.normalize(raw), nil
}

// normalize picks the first populated alias of each numeric field and fills
// the defaults for unreported timestamp and confidence.
func (s *HTTPSource) normalize(raw sourceResponse) domain.PriceSample {
	price := raw.Price
	if price == 0 {
		price = raw.Value
	}
	if price == 0 {
		price = raw.Rate
	}

	volume := raw.Volume24h
	if volume == 0 {
		volume = raw.Volume
	}

	change := raw.Change24h
	if change == 0 {
		change = raw.Change
	}

	ts := time.Now().UTC()
	if raw.Timestamp > 0 {
		ts = time.UnixMilli(raw.Timestamp).UTC()
	}

	confidence := raw.Confidence
	if confidence == 0 {
		confidence = defaultConfidence
	}

	return domain.PriceSample{
		Price:      price,
		Volume24h:  volume,
		Change24h:  change,
		Timestamp:  ts,
		Source:     s.name,
		Confidence: confidence,
	}
}
