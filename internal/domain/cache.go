package domain

import "context"

// PriceCache holds the most recent aggregated price for consumers outside
// the oracle process (UI backends, other services sharing the Redis).
type PriceCache interface {
	SetAggregated(ctx context.Context, price AggregatedPrice) error
	GetAggregated(ctx context.Context) (AggregatedPrice, error)
}

// SignalBus is ephemeral pub/sub used to push price updates and liquidation
// events to the WebSocket hub and any other subscribed process.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
