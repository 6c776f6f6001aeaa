package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/domainetf/domainperp/internal/domain"
)

// aggregatedPriceKey is the Redis hash holding the latest aggregated price.
// There is one instrument, so one key.
const aggregatedPriceKey = "oracle:aggregated"

// priceTTL bounds staleness for external readers: a dead oracle process must
// not leave a forever-fresh-looking price behind.
const priceTTL = 10 * time.Minute

// PriceCache implements domain.PriceCache using a Redis hash.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

// SetAggregated stores the latest aggregated price.
func (pc *PriceCache) SetAggregated(ctx context.Context, price domain.AggregatedPrice) error {
	fields := map[string]interface{}{
		"price":      strconv.FormatFloat(price.Price, 'f', -1, 64),
		"volume24h":  strconv.FormatFloat(price.Volume24h, 'f', -1, 64),
		"change24h":  strconv.FormatFloat(price.Change24h, 'f', -1, 64),
		"confidence": strconv.FormatFloat(price.Confidence, 'f', -1, 64),
		"source":     price.Source,
		"ts":         strconv.FormatInt(price.Timestamp.UnixNano(), 10),
	}

	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, aggregatedPriceKey, fields)
	pipe.Expire(ctx, aggregatedPriceKey, priceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set aggregated price: %w", err)
	}
	return nil
}

// GetAggregated retrieves the latest aggregated price. It returns
// domain.ErrNotFound when no price has been published yet.
func (pc *PriceCache) GetAggregated(ctx context.Context) (domain.AggregatedPrice, error) {
	vals, err := pc.rdb.HGetAll(ctx, aggregatedPriceKey).Result()
	if err != nil {
		return domain.AggregatedPrice{}, fmt.Errorf("redis: get aggregated price: %w", err)
	}
	if len(vals) == 0 {
		return domain.AggregatedPrice{}, domain.ErrNotFound
	}

	var out domain.AggregatedPrice
	out.Source = vals["source"]

	if out.Price, err = parseField(vals, "price"); err != nil {
		return domain.AggregatedPrice{}, err
	}
	if out.Volume24h, err = parseField(vals, "volume24h"); err != nil {
		return domain.AggregatedPrice{}, err
	}
	if out.Change24h, err = parseField(vals, "change24h"); err != nil {
		return domain.AggregatedPrice{}, err
	}
	if out.Confidence, err = parseField(vals, "confidence"); err != nil {
		return domain.AggregatedPrice{}, err
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.AggregatedPrice{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.AggregatedPrice{}, fmt.Errorf("redis: parse ts: %w", err)
	}
	out.Timestamp = time.Unix(0, tsNano).UTC()

	return out, nil
}

func parseField(vals map[string]string, field string) (float64, error) {
	s, ok := vals[field]
	if !ok {
		return 0, domain.ErrNotFound
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse %s: %w", field, err)
	}
	return f, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
