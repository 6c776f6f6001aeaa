package domain

import (
	"context"
	"time"
)

// PositionStore persists positions. The trading layer writes; the scanner
// only reads snapshots through ListActive.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Update(ctx context.Context, pos Position) error
	Deactivate(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (Position, error)
	ListActive(ctx context.Context) ([]Position, error)
	ListByOwner(ctx context.Context, owner string) ([]Position, error)
}

// LiquidationStore persists executed liquidations for history and archival.
type LiquidationStore interface {
	Record(ctx context.Context, exec LiquidationExecution) error
	ListRecent(ctx context.Context, limit int) ([]LiquidationExecution, error)
	ListBefore(ctx context.Context, before time.Time) ([]LiquidationExecution, error)
}
