package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/domainetf/domainperp/internal/domain"
)

// LiquidationArchiveStore is the narrow store surface the archiver needs:
// the time-ranged query, not the full domain.LiquidationStore.
type LiquidationArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.LiquidationExecution, error)
}

// ArchiveImpl implements domain.Archiver by querying old liquidation
// records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// not performed here; that is a separate, explicit step executed after the
// archive upload has succeeded.
type ArchiveImpl struct {
	writer domain.BlobWriter
	store  LiquidationArchiveStore
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, store LiquidationArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		store:  store,
	}
}

// ArchiveLiquidations uploads all liquidations executed before the cutoff as
// one JSONL object and returns the number of records archived. No records
// before the cutoff is not an error; nothing is uploaded and zero is
// returned.
func (a *ArchiveImpl) ArchiveLiquidations(ctx context.Context, before time.Time) (int64, error) {
	execs, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: query liquidations for archive: %w", err)
	}
	if len(execs) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range execs {
		if err := enc.Encode(e); err != nil {
			return 0, fmt.Errorf("s3blob: encode liquidation %s: %w", e.ID, err)
		}
	}

	key := archiveKey(before)
	if err := a.writer.Put(ctx, key, &buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: upload archive %s: %w", key, err)
	}

	return int64(len(execs)), nil
}

// archiveKey builds the object key for an archive batch. Batches are grouped
// by cutoff month so re-running archival for the same period overwrites
// rather than duplicates.
func archiveKey(before time.Time) string {
	return fmt.Sprintf("archive/liquidations/%s.jsonl", before.UTC().Format("2006-01"))
}
