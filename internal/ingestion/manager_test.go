package ingestion

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/curator/internal/curation"
)

// fakeWarehouse models the staging and destination areas in memory with the
// same contract as the real store: staging is a full overwrite, the merge
// inserts only ids the destination has never seen.
type fakeWarehouse struct {
	staging     []curation.CuratedRecord
	destination map[string]curation.CuratedRecord
	mergeErr    error
	dropErr     error
	dropCalls   int
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{destination: make(map[string]curation.CuratedRecord)}
}

func (w *fakeWarehouse) StageRecords(_ context.Context, records []curation.CuratedRecord) error {
	w.staging = append([]curation.CuratedRecord(nil), records...)
	return nil
}

func (w *fakeWarehouse) MergeStaged(context.Context) (int64, error) {
	if w.mergeErr != nil {
		return 0, w.mergeErr
	}
	var inserted int64
	for _, r := range w.staging {
		if _, exists := w.destination[r.ID]; exists {
			continue
		}
		w.destination[r.ID] = r
		inserted++
	}
	return inserted, nil
}

func (w *fakeWarehouse) DropStaging(context.Context) error {
	w.dropCalls++
	if w.dropErr != nil {
		return w.dropErr
	}
	w.staging = nil
	return nil
}

func testRecords(ids ...string) []curation.CuratedRecord {
	now := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	records := make([]curation.CuratedRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, curation.CuratedRecord{ID: id, Sector: "banking", RunDatetime: now})
	}
	return records
}

func TestIngestEmptyBatch(t *testing.T) {
	t.Parallel()

	warehouse := newFakeWarehouse()
	manager := NewManager(warehouse, zerolog.Nop())

	summary, err := manager.Ingest(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty batch must not be a fault: %v", err)
	}
	if summary.State != string(StateAssembled) || summary.Staged != 0 || summary.Inserted != 0 {
		t.Fatalf("summary = %+v, want assembled with zero counts", summary)
	}
	if warehouse.dropCalls != 0 {
		t.Fatal("empty batch must not touch the staging area")
	}
}

func TestIngestHappyPath(t *testing.T) {
	t.Parallel()

	warehouse := newFakeWarehouse()
	manager := NewManager(warehouse, zerolog.Nop())

	summary, err := manager.Ingest(context.Background(), testRecords("a", "b", "c"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if summary.State != string(StateCleanedUp) {
		t.Fatalf("state = %q, want %q", summary.State, StateCleanedUp)
	}
	if summary.Staged != 3 || summary.Inserted != 3 {
		t.Fatalf("staged=%d inserted=%d, want 3/3", summary.Staged, summary.Inserted)
	}
	if len(warehouse.destination) != 3 {
		t.Fatalf("destination rows = %d, want 3", len(warehouse.destination))
	}
	if warehouse.staging != nil {
		t.Fatal("staging area should be dropped after a committed merge")
	}
}

func TestIngestReplaySameBatchIsIdempotent(t *testing.T) {
	t.Parallel()

	warehouse := newFakeWarehouse()
	manager := NewManager(warehouse, zerolog.Nop())
	records := testRecords("a", "b")

	if _, err := manager.Ingest(context.Background(), records); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	summary, err := manager.Ingest(context.Background(), records)
	if err != nil {
		t.Fatalf("replay ingest: %v", err)
	}
	if summary.Inserted != 0 {
		t.Fatalf("replay inserted = %d, want 0", summary.Inserted)
	}
	if len(warehouse.destination) != 2 {
		t.Fatalf("destination rows = %d after replay, want 2", len(warehouse.destination))
	}
}

func TestIngestMergeFailurePreservesStaging(t *testing.T) {
	t.Parallel()

	warehouse := newFakeWarehouse()
	warehouse.mergeErr = fmt.Errorf("merge deadlock")
	manager := NewManager(warehouse, zerolog.Nop())

	summary, err := manager.Ingest(context.Background(), testRecords("a", "b"))
	if err == nil {
		t.Fatal("merge failure must surface as an error")
	}
	var mergeErr *MergeError
	if !errors.As(err, &mergeErr) {
		t.Fatalf("expected MergeError, got %v", err)
	}
	if summary.State != string(StateMergeFailed) {
		t.Fatalf("state = %q, want %q", summary.State, StateMergeFailed)
	}
	if warehouse.dropCalls != 0 {
		t.Fatal("staging area must be preserved after a failed merge")
	}
	if len(warehouse.staging) != 2 {
		t.Fatalf("staging rows = %d, want 2 preserved", len(warehouse.staging))
	}
	if len(warehouse.destination) != 0 {
		t.Fatal("failed merge must not leave partial rows in the destination")
	}
}

func TestIngestCleanupFailureKeepsCommit(t *testing.T) {
	t.Parallel()

	warehouse := newFakeWarehouse()
	warehouse.dropErr = fmt.Errorf("drop denied")
	manager := NewManager(warehouse, zerolog.Nop())

	summary, err := manager.Ingest(context.Background(), testRecords("a"))
	if err != nil {
		t.Fatalf("cleanup failure must not fail the run: %v", err)
	}
	if summary.State != string(StateCommitted) {
		t.Fatalf("state = %q, want %q after failed cleanup", summary.State, StateCommitted)
	}
	if summary.Inserted != 1 {
		t.Fatalf("inserted = %d, want 1", summary.Inserted)
	}
}
