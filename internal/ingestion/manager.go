// Package ingestion implements the staged load of curated records into the
// durable store: bulk overwrite of a per-run staging area followed by an
// insert-only merge keyed on article id. The two-phase pattern means a crash
// between staging and merging never corrupts the durable table, and a crash
// during the merge is detectable because the staging area survives.
package ingestion

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"horse.fit/curator/internal/curation"
)

// State tracks one ingestion run through its lifecycle.
type State string

const (
	StateAssembled   State = "ASSEMBLED"
	StateStaged      State = "STAGED"
	StateMerging     State = "MERGING"
	StateCommitted   State = "COMMITTED"
	StateMergeFailed State = "MERGE_FAILED"
	StateCleanedUp   State = "CLEANED_UP"
)

// Warehouse is the write side of the external store. StageRecords must fully
// overwrite the staging area, MergeStaged must insert only ids absent from
// the destination, and DropStaging removes the staging area if it exists.
type Warehouse interface {
	StageRecords(ctx context.Context, records []curation.CuratedRecord) error
	MergeStaged(ctx context.Context) (int64, error)
	DropStaging(ctx context.Context) error
}

// MergeError signals that the merge failed after staging succeeded. The
// staging area is deliberately preserved for diagnosis and replay; re-running
// the merge is safe because it is idempotent on id.
type MergeError struct {
	Err error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("insert-only merge failed (staging area preserved): %v", e.Err)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// Manager drives one ingestion run through the state machine
// ASSEMBLED -> STAGED -> MERGING -> {COMMITTED -> CLEANED_UP, MERGE_FAILED}.
type Manager struct {
	warehouse Warehouse
	logger    zerolog.Logger
}

func NewManager(warehouse Warehouse, logger zerolog.Logger) *Manager {
	return &Manager{
		warehouse: warehouse,
		logger:    logger,
	}
}

// Ingest loads the assembled keep-set. An empty batch is not a fault: it
// short-circuits with zero counts. On merge failure the staging area is kept
// and a MergeError is returned; cleanup failures after a committed merge are
// logged but never revert the outcome, since durability is already achieved.
func (m *Manager) Ingest(ctx context.Context, records []curation.CuratedRecord) (curation.IngestSummary, error) {
	summary := curation.IngestSummary{State: string(StateAssembled)}
	if len(records) == 0 {
		m.logger.Info().Msg("empty keep-set, nothing to ingest")
		return summary, nil
	}

	if err := m.warehouse.StageRecords(ctx, records); err != nil {
		return summary, fmt.Errorf("stage %d records: %w", len(records), err)
	}
	summary.State = string(StateStaged)
	summary.Staged = len(records)

	summary.State = string(StateMerging)
	inserted, err := m.warehouse.MergeStaged(ctx)
	if err != nil {
		summary.State = string(StateMergeFailed)
		return summary, &MergeError{Err: err}
	}
	summary.State = string(StateCommitted)
	summary.Inserted = inserted

	if err := m.warehouse.DropStaging(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("failed to drop staging area after committed merge")
		return summary, nil
	}
	summary.State = string(StateCleanedUp)

	m.logger.Info().
		Int("staged", summary.Staged).
		Int64("inserted", summary.Inserted).
		Msg("staged ingestion committed")
	return summary, nil
}
