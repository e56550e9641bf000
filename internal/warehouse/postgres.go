// Package warehouse implements the external-store contracts of the curation
// pipeline against postgres: the windowed raw read, the scoped historical
// read, the staging overwrite, the insert-only merge, and the QA trail.
package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"

	"horse.fit/curator/internal/config"
	"horse.fit/curator/internal/curation"
	"horse.fit/curator/internal/db"
	"horse.fit/curator/internal/globaltime"
	payloadschema "horse.fit/curator/internal/schema"
)

const (
	topTierSourcesTable = "curated.top_tier_sources"
	unrankedSourceRank  = 999998
)

var builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Postgres serves one sector's resolved table set. Table names are fixed at
// construction from the sector registry; test runs arrive here already routed
// to the temporary namespace.
type Postgres struct {
	pool   *db.Pool
	res    config.Resources
	logger zerolog.Logger
}

func NewPostgres(pool *db.Pool, res config.Resources, logger zerolog.Logger) *Postgres {
	return &Postgres{
		pool:   pool,
		res:    res,
		logger: logger,
	}
}

// EnsureTables creates the destination, QA, run, and source-registry tables
// if absent. The raw table belongs to the upstream fetcher and the staging
// table is created per run.
func (w *Postgres) EnsureTables(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaOf(w.res.MergeTable)),
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaOf(w.res.RunsTable)),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	source_uri TEXT PRIMARY KEY,
	is_top_tier BOOLEAN NOT NULL DEFAULT TRUE
)`, topTierSourcesTable),
		fmt.Sprintf(curatedTableDDL, w.res.MergeTable),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT NOT NULL,
	company_id BIGINT,
	sector TEXT,
	url TEXT,
	title TEXT,
	source_name TEXT,
	source_importance_rank INTEGER,
	filtered_reason TEXT NOT NULL,
	run_datetime TIMESTAMPTZ NOT NULL
)`, w.res.QAFiltered),
		fmt.Sprintf(curatedTableDDL, w.res.QAKept),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id BIGSERIAL PRIMARY KEY,
	sector TEXT NOT NULL,
	status TEXT NOT NULL,
	failed_stage TEXT,
	error_message TEXT,
	fetched INTEGER NOT NULL DEFAULT 0,
	canonical INTEGER NOT NULL DEFAULT 0,
	after_heuristics INTEGER NOT NULL DEFAULT 0,
	after_internal_dedup INTEGER NOT NULL DEFAULT 0,
	after_historical_dedup INTEGER NOT NULL DEFAULT 0,
	relevant INTEGER NOT NULL DEFAULT 0,
	staged INTEGER NOT NULL DEFAULT 0,
	inserted BIGINT NOT NULL DEFAULT 0,
	ingest_state TEXT,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
)`, w.res.RunsTable),
	}

	for _, stmt := range statements {
		if _, err := w.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure warehouse tables: %w", err)
		}
	}
	return nil
}

const curatedTableDDL = `
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	company_id BIGINT,
	sector TEXT,
	url TEXT,
	title TEXT,
	body TEXT,
	source_name TEXT,
	pillar TEXT,
	date_published TIMESTAMPTZ,
	run_datetime TIMESTAMPTZ
)`

// FetchArticles reads the raw window for this sector, joins source trust
// flags, validates every payload against the article schema, and returns the
// decoded batch. Malformed payloads are skipped and counted, never fatal.
func (w *Postgres) FetchArticles(ctx context.Context, window curation.DateWindow) ([]curation.Article, error) {
	query := builder.
		Select(
			"r.article_json",
			"COALESCE(o.is_top_tier, FALSE) AS is_top_tier",
		).
		From(w.res.RawTable + " r").
		LeftJoin(topTierSourcesTable + " o ON o.source_uri = r.article_json::jsonb #>> '{source,uri}'").
		Where("COALESCE((r.article_json::jsonb ->> 'isDuplicate')::boolean, FALSE) = FALSE").
		Where(sq.Expr("(r.article_json::jsonb ->> 'dateTimePub')::timestamptz >= ?", window.Start)).
		Where(sq.Expr("(r.article_json::jsonb ->> 'dateTimePub')::timestamptz <= ?", window.End))

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build raw fetch query: %w", err)
	}

	rows, err := w.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch raw articles from %s: %w", w.res.RawTable, err)
	}
	defer rows.Close()

	ingestedAt := globaltime.UTC()
	var articles []curation.Article
	skipped := 0
	for rows.Next() {
		var rawJSON string
		var isTopTier bool
		if err := rows.Scan(&rawJSON, &isTopTier); err != nil {
			return nil, fmt.Errorf("scan raw article row: %w", err)
		}

		article, err := decodeArticle(json.RawMessage(rawJSON), w.res.Sector.Name, isTopTier, ingestedAt)
		if err != nil {
			skipped++
			w.logger.Warn().Err(err).Msg("skipping malformed raw article payload")
			continue
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw articles: %w", err)
	}

	if skipped > 0 {
		w.logger.Warn().Int("skipped", skipped).Int("decoded", len(articles)).Msg("raw window contained invalid payloads")
	}
	return articles, nil
}

func decodeArticle(raw json.RawMessage, sector string, isTopTier bool, ingestedAt time.Time) (curation.Article, error) {
	payload, err := payloadschema.ValidateArticlePayload(raw)
	if err != nil {
		return curation.Article{}, err
	}

	publishedAt, err := payload.PublishedAt()
	if err != nil {
		return curation.Article{}, err
	}

	rank := unrankedSourceRank
	if payload.Source.Ranking != nil && payload.Source.Ranking.ImportanceRank != nil {
		rank = *payload.Source.Ranking.ImportanceRank
	}

	body := ""
	if payload.Body != nil {
		body = *payload.Body
	}
	sourceName := ""
	if payload.Source.Title != nil {
		sourceName = *payload.Source.Title
	}

	return curation.Article{
		ID:                   curation.ArticleID(publishedAt, payload.URL),
		CompanyID:            payload.CompanyIDInt64(),
		Sector:               sector,
		URL:                  strings.TrimSpace(payload.URL),
		Title:                strings.TrimSpace(payload.Title),
		Body:                 body,
		SourceName:           sourceName,
		SourceURI:            strings.TrimSpace(payload.Source.URI),
		SourceImportanceRank: rank,
		IsTopTier:            isTopTier,
		DatePublished:        publishedAt,
		IngestedAt:           ingestedAt,
	}, nil
}

// HistoricalRecords reads previously curated records for this sector within
// the trailing window. Read-only: historical dedup never mutates the store.
func (w *Postgres) HistoricalRecords(ctx context.Context, since, until time.Time) ([]curation.HistoricalRecord, error) {
	query := builder.
		Select("id", "title", "body", "date_published").
		From(w.res.MergeTable).
		Where(sq.GtOrEq{"date_published": since}).
		Where(sq.LtOrEq{"date_published": until}).
		OrderBy("date_published DESC")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build historical query: %w", err)
	}

	rows, err := w.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch historical records from %s: %w", w.res.MergeTable, err)
	}
	defer rows.Close()

	var records []curation.HistoricalRecord
	for rows.Next() {
		var r curation.HistoricalRecord
		var body *string
		if err := rows.Scan(&r.ID, &r.Title, &body, &r.DatePublished); err != nil {
			return nil, fmt.Errorf("scan historical record: %w", err)
		}
		if body != nil {
			r.Body = *body
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate historical records: %w", err)
	}
	return records, nil
}

// StageRecords overwrites the staging table with the outgoing batch inside a
// single transaction, so the staging area is never left partially written.
func (w *Postgres) StageRecords(ctx context.Context, records []curation.CuratedRecord) error {
	tx, err := w.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin staging tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, fmt.Sprintf(curatedTableDDL, w.res.StageTable)); err != nil {
		return fmt.Errorf("create staging table %s: %w", w.res.StageTable, err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", w.res.StageTable)); err != nil {
		return fmt.Errorf("truncate staging table %s: %w", w.res.StageTable, err)
	}

	insert := builder.
		Insert(w.res.StageTable).
		Columns("id", "company_id", "sector", "url", "title", "body", "source_name", "pillar", "date_published", "run_datetime")
	for _, r := range records {
		insert = insert.Values(r.ID, r.CompanyID, r.Sector, r.URL, r.Title, r.Body, r.SourceName, r.Pillar, r.DatePublished, r.RunDatetime)
	}

	sqlStr, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build staging insert: %w", err)
	}
	if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert %d staged records: %w", len(records), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit staging tx: %w", err)
	}
	return nil
}

// MergeStaged inserts every staged id absent from the destination table and
// reports how many rows were added. Existing ids are left untouched, which
// makes replaying the same batch a no-op.
func (w *Postgres) MergeStaged(ctx context.Context) (int64, error) {
	stmt := fmt.Sprintf(`
INSERT INTO %s (id, company_id, sector, url, title, body, source_name, pillar, date_published, run_datetime)
SELECT s.id, s.company_id, s.sector, s.url, s.title, s.body, s.source_name, s.pillar, s.date_published, s.run_datetime
FROM %s s
ON CONFLICT (id) DO NOTHING
`, w.res.MergeTable, w.res.StageTable)

	tag, err := w.pool.Exec(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("merge %s into %s: %w", w.res.StageTable, w.res.MergeTable, err)
	}
	return tag.RowsAffected(), nil
}

// DropStaging removes the staging table. Only called after a committed merge.
func (w *Postgres) DropStaging(ctx context.Context) error {
	if _, err := w.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", w.res.StageTable)); err != nil {
		return fmt.Errorf("drop staging table %s: %w", w.res.StageTable, err)
	}
	return nil
}

// WriteQAFiltered replaces the rejected-articles QA table with this run's
// trail: every rejected article and the reason it was rejected.
func (w *Postgres) WriteQAFiltered(ctx context.Context, rejected []curation.RejectedArticle, runDatetime time.Time) error {
	tx, err := w.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin qa tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", w.res.QAFiltered)); err != nil {
		return fmt.Errorf("truncate qa table %s: %w", w.res.QAFiltered, err)
	}

	if len(rejected) > 0 {
		insert := builder.
			Insert(w.res.QAFiltered).
			Columns("id", "company_id", "sector", "url", "title", "source_name", "source_importance_rank", "filtered_reason", "run_datetime")
		for _, r := range rejected {
			insert = insert.Values(
				r.Article.ID,
				r.Article.CompanyID,
				r.Article.Sector,
				r.Article.URL,
				r.Article.Title,
				r.Article.SourceName,
				r.Article.SourceImportanceRank,
				string(r.Reason),
				runDatetime,
			)
		}
		sqlStr, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("build qa insert: %w", err)
		}
		if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("insert %d qa rows: %w", len(rejected), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit qa tx: %w", err)
	}
	return nil
}

// WriteQAKept replaces the kept-set QA table with this run's accepted records.
func (w *Postgres) WriteQAKept(ctx context.Context, kept []curation.CuratedRecord) error {
	tx, err := w.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin qa kept tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", w.res.QAKept)); err != nil {
		return fmt.Errorf("truncate qa kept table %s: %w", w.res.QAKept, err)
	}

	if len(kept) > 0 {
		insert := builder.
			Insert(w.res.QAKept).
			Columns("id", "company_id", "sector", "url", "title", "body", "source_name", "pillar", "date_published", "run_datetime")
		for _, r := range kept {
			insert = insert.Values(r.ID, r.CompanyID, r.Sector, r.URL, r.Title, r.Body, r.SourceName, r.Pillar, r.DatePublished, r.RunDatetime)
		}
		sqlStr, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("build qa kept insert: %w", err)
		}
		if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("insert %d qa kept rows: %w", len(kept), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit qa kept tx: %w", err)
	}
	return nil
}

func schemaOf(table string) string {
	if idx := strings.IndexByte(table, '.'); idx > 0 {
		return table[:idx]
	}
	return "public"
}
