package warehouse

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"horse.fit/curator/internal/curation"
	"horse.fit/curator/internal/globaltime"
)

// Run statuses as stored in the runs table.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunRecord is one row of the run bookkeeping table.
type RunRecord struct {
	RunID                int64      `json:"run_id"`
	Sector               string     `json:"sector"`
	Status               string     `json:"status"`
	FailedStage          *string    `json:"failed_stage,omitempty"`
	ErrorMessage         *string    `json:"error_message,omitempty"`
	Fetched              int        `json:"fetched"`
	Canonical            int        `json:"canonical"`
	AfterHeuristics      int        `json:"after_heuristics"`
	AfterInternalDedup   int        `json:"after_internal_dedup"`
	AfterHistoricalDedup int        `json:"after_historical_dedup"`
	Relevant             int        `json:"relevant"`
	Staged               int        `json:"staged"`
	Inserted             int64      `json:"inserted"`
	IngestState          *string    `json:"ingest_state,omitempty"`
	StartedAt            time.Time  `json:"started_at"`
	FinishedAt           *time.Time `json:"finished_at,omitempty"`
}

// StartRun opens a bookkeeping row for a run and returns its id.
func (w *Postgres) StartRun(ctx context.Context, startedAt time.Time) (int64, error) {
	sqlStr, args, err := builder.
		Insert(w.res.RunsTable).
		Columns("sector", "status", "started_at").
		Values(w.res.Sector.Name, RunStatusRunning, startedAt).
		Suffix("RETURNING run_id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build run insert: %w", err)
	}

	var runID int64
	if err := w.pool.QueryRow(ctx, sqlStr, args...).Scan(&runID); err != nil {
		return 0, fmt.Errorf("start run in %s: %w", w.res.RunsTable, err)
	}
	return runID, nil
}

// CompleteRun closes a run row as completed with its final counts.
func (w *Postgres) CompleteRun(ctx context.Context, runID int64, report curation.Report) error {
	return w.finishRun(ctx, runID, RunStatusCompleted, "", "", report)
}

// FailRun closes a run row as failed, recording the failing stage and the
// counts accumulated before it.
func (w *Postgres) FailRun(ctx context.Context, runID int64, stage, errMsg string, report curation.Report) error {
	return w.finishRun(ctx, runID, RunStatusFailed, stage, errMsg, report)
}

func (w *Postgres) finishRun(ctx context.Context, runID int64, status, stage, errMsg string, report curation.Report) error {
	update := builder.
		Update(w.res.RunsTable).
		Set("status", status).
		Set("fetched", report.Fetched).
		Set("canonical", report.Canonical).
		Set("after_heuristics", report.AfterHeuristics).
		Set("after_internal_dedup", report.AfterInternalDedup).
		Set("after_historical_dedup", report.AfterHistoricalDedup).
		Set("relevant", report.Relevant).
		Set("staged", report.Staged).
		Set("inserted", report.Inserted).
		Set("ingest_state", nullIfEmpty(report.IngestState)).
		Set("failed_stage", nullIfEmpty(stage)).
		Set("error_message", nullIfEmpty(errMsg)).
		Set("finished_at", globaltime.UTC()).
		Where(sq.Eq{"run_id": runID})

	sqlStr, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build run update: %w", err)
	}
	if _, err := w.pool.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("finish run %d in %s: %w", runID, w.res.RunsTable, err)
	}
	return nil
}

// RecentRuns lists the newest bookkeeping rows for this sector.
func (w *Postgres) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	sqlStr, args, err := builder.
		Select(
			"run_id", "sector", "status", "failed_stage", "error_message",
			"fetched", "canonical", "after_heuristics", "after_internal_dedup",
			"after_historical_dedup", "relevant", "staged", "inserted",
			"ingest_state", "started_at", "finished_at",
		).
		From(w.res.RunsTable).
		Where(sq.Eq{"sector": w.res.Sector.Name}).
		OrderBy("run_id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build runs query: %w", err)
	}

	rows, err := w.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs from %s: %w", w.res.RunsTable, err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(
			&r.RunID, &r.Sector, &r.Status, &r.FailedStage, &r.ErrorMessage,
			&r.Fetched, &r.Canonical, &r.AfterHeuristics, &r.AfterInternalDedup,
			&r.AfterHistoricalDedup, &r.Relevant, &r.Staged, &r.Inserted,
			&r.IngestState, &r.StartedAt, &r.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run record: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run records: %w", err)
	}
	return runs, nil
}

// QARow is one rejected article from the filtered QA trail.
type QARow struct {
	ID             string    `json:"id"`
	CompanyID      *int64    `json:"company_id,omitempty"`
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	SourceName     *string   `json:"source_name,omitempty"`
	FilteredReason string    `json:"filtered_reason"`
	RunDatetime    time.Time `json:"run_datetime"`
}

// FilteredQATrail reads the rejected-articles trail of the latest QA write.
func (w *Postgres) FilteredQATrail(ctx context.Context, limit int) ([]QARow, error) {
	if limit <= 0 {
		limit = 200
	}

	sqlStr, args, err := builder.
		Select("id", "company_id", "url", "title", "source_name", "filtered_reason", "run_datetime").
		From(w.res.QAFiltered).
		OrderBy("run_datetime DESC", "id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build qa trail query: %w", err)
	}

	rows, err := w.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("read qa trail from %s: %w", w.res.QAFiltered, err)
	}
	defer rows.Close()

	var trail []QARow
	for rows.Next() {
		var r QARow
		var url, title *string
		if err := rows.Scan(&r.ID, &r.CompanyID, &url, &title, &r.SourceName, &r.FilteredReason, &r.RunDatetime); err != nil {
			return nil, fmt.Errorf("scan qa row: %w", err)
		}
		if url != nil {
			r.URL = *url
		}
		if title != nil {
			r.Title = *title
		}
		trail = append(trail, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate qa rows: %w", err)
	}
	return trail, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
