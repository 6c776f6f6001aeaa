package domain

import "context"

// Settler closes a position on the settlement layer. The risk engine treats
// it as an opaque call with a binary outcome: a nil error means the position
// was liquidated, anything else means it remains open and at risk.
type Settler interface {
	Liquidate(ctx context.Context, positionID string) error
}
