package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/domainetf/domainperp/internal/domain"
)

// LiquidationStore implements domain.LiquidationStore using PostgreSQL.
type LiquidationStore struct {
	pool *pgxpool.Pool
}

var _ domain.LiquidationStore = (*LiquidationStore)(nil)

// NewLiquidationStore creates a new LiquidationStore backed by the given pool.
func NewLiquidationStore(pool *pgxpool.Pool) *LiquidationStore {
	return &LiquidationStore{pool: pool}
}

const liquidationSelectCols = `id, position_id, owner, price, margin_ratio, fee, executed_at`

func scanLiquidationRows(rows pgx.Rows) ([]domain.LiquidationExecution, error) {
	var execs []domain.LiquidationExecution
	for rows.Next() {
		var e domain.LiquidationExecution
		if err := rows.Scan(
			&e.ID, &e.PositionID, &e.Owner, &e.Price, &e.MarginRatio, &e.Fee, &e.ExecutedAt,
		); err != nil {
			return nil, err
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

// Record inserts an executed liquidation.
func (s *LiquidationStore) Record(ctx context.Context, e domain.LiquidationExecution) error {
	const query = `
		INSERT INTO liquidations (
			id, position_id, owner, price, margin_ratio, fee, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		e.ID, e.PositionID, e.Owner, e.Price, e.MarginRatio, e.Fee, e.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record liquidation %s: %w", e.ID, err)
	}
	return nil
}

// ListRecent returns the most recent liquidations, newest first.
func (s *LiquidationStore) ListRecent(ctx context.Context, limit int) ([]domain.LiquidationExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+liquidationSelectCols+` FROM liquidations
		 ORDER BY executed_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent liquidations: %w", err)
	}
	defer rows.Close()

	execs, err := scanLiquidationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent liquidations: %w", err)
	}
	return execs, nil
}

// ListBefore returns all liquidations executed strictly before the cutoff,
// oldest first. Used by the archiver.
func (s *LiquidationStore) ListBefore(ctx context.Context, before time.Time) ([]domain.LiquidationExecution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+liquidationSelectCols+` FROM liquidations
		 WHERE executed_at < $1
		 ORDER BY executed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list liquidations before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	execs, err := scanLiquidationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan liquidations before cutoff: %w", err)
	}
	return execs, nil
}

// DeleteBefore removes liquidations older than the cutoff after they have
// been archived. Returns the number of rows removed.
func (s *LiquidationStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM liquidations WHERE executed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete liquidations before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}
