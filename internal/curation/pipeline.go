package curation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/curator/internal/globaltime"
)

const DefaultHistoricalLookbackDays = 30

// Stage names the pipeline stages for failure reporting.
type Stage string

const (
	StageFetch           Stage = "fetch"
	StageCanonical       Stage = "canonical_dedup"
	StageHeuristics      Stage = "heuristic_filters"
	StageInternalDedup   Stage = "internal_dedup"
	StageHistoricalDedup Stage = "historical_dedup"
	StageRelevance       Stage = "relevance_gate"
	StageIngest          Stage = "staged_ingest"
	StageQA              Stage = "qa_trail"
)

// StageError reports which stage failed together with the counts of records
// processed by the stages before it. A failed run is never reported as a
// partial success.
type StageError struct {
	Stage  Stage
	Report Report
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline failed at stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// DateWindow bounds the publish dates of the batch under curation.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// ResolveWindow derives the window from any combination of start, end, and a
// day count, mirroring how callers specify it: a zero end defaults to now and
// a zero start backs off the given number of days from the end.
func ResolveWindow(start, end time.Time, days int) DateWindow {
	if days <= 0 {
		days = 7
	}
	if end.IsZero() {
		end = globaltime.UTC()
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -days)
	}
	return DateWindow{Start: start.UTC(), End: end.UTC()}
}

// Store is the warehouse read/QA-write capability the pipeline consumes. The
// staged merge into the durable table goes through Ingestor instead.
type Store interface {
	FetchArticles(ctx context.Context, window DateWindow) ([]Article, error)
	HistoricalRecords(ctx context.Context, since, until time.Time) ([]HistoricalRecord, error)
	WriteQAFiltered(ctx context.Context, rejected []RejectedArticle, runDatetime time.Time) error
	WriteQAKept(ctx context.Context, kept []CuratedRecord) error
}

// IngestSummary reports the outcome of the staged ingestion.
type IngestSummary struct {
	State    string
	Staged   int
	Inserted int64
}

// Ingestor loads the final keep-set durably (stage, then insert-only merge).
type Ingestor interface {
	Ingest(ctx context.Context, records []CuratedRecord) (IngestSummary, error)
}

// Options configures one curation run.
type Options struct {
	Sector                 string
	Pillar                 string
	Companies              []string
	Window                 DateWindow
	MinWords               int
	TitleThreshold         float64
	BodyThreshold          float64
	CheckLanguage          bool
	SkipHistoricalDedup    bool
	CollectQAData          bool
	HistoricalLookbackDays int
}

// Report carries the per-stage record counts of a run. On failure it reflects
// everything processed before the failing stage.
type Report struct {
	Sector               string
	RunDatetime          time.Time
	Fetched              int
	TrustDropped         int
	Canonical            int
	AfterHeuristics      int
	AfterInternalDedup   int
	AfterHistoricalDedup int
	Relevant             int
	Staged               int
	Inserted             int64
	IngestState          string
	RejectedByReason     map[FilterReason]int
}

// Pipeline wires the curation stages over explicitly injected capabilities.
// It is single-threaded and batch-oriented; the caller serializes runs per
// sector.
type Pipeline struct {
	store      Store
	filter     *FilterEngine
	detector   *Detector
	classifier Classifier
	ingestor   Ingestor
	logger     zerolog.Logger
	opts       Options
}

func NewPipeline(store Store, embedder Embedder, classifier Classifier, ingestor Ingestor, logger zerolog.Logger, opts Options) *Pipeline {
	if opts.HistoricalLookbackDays <= 0 {
		opts.HistoricalLookbackDays = DefaultHistoricalLookbackDays
	}

	filter := NewFilterEngine(FilterOptions{
		MinWords:      opts.MinWords,
		Companies:     opts.Companies,
		CheckLanguage: opts.CheckLanguage,
	})
	detector := NewDetector(embedder, DetectorOptions{
		TitleThreshold: opts.TitleThreshold,
		BodyThreshold:  opts.BodyThreshold,
	})

	return &Pipeline{
		store:      store,
		filter:     filter,
		detector:   detector,
		classifier: classifier,
		ingestor:   ingestor,
		logger:     logger,
		opts:       opts,
	}
}

// Run executes the full curation pass. An empty batch at any stage is not a
// fault: later stages run with zero counts and the report says so. Any stage
// error aborts the remaining stages and is returned as a StageError carrying
// the counts accumulated so far.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	report := Report{
		Sector:           p.opts.Sector,
		RunDatetime:      globaltime.UTC(),
		RejectedByReason: make(map[FilterReason]int),
	}

	raw, err := p.store.FetchArticles(ctx, p.opts.Window)
	if err != nil {
		return report, &StageError{Stage: StageFetch, Report: report, Err: err}
	}
	report.Fetched = len(raw)

	canonical := ResolveCanonical(raw)
	report.TrustDropped = len(canonical.Dropped)
	report.Canonical = len(canonical.Survivors)
	p.logger.Info().
		Str("sector", p.opts.Sector).
		Int("fetched", report.Fetched).
		Int("trust_dropped", report.TrustDropped).
		Int("canonical", report.Canonical).
		Msg("canonical dedup completed")

	var trail []RejectedArticle

	kept, rejected := p.filter.Apply(canonical.Survivors)
	trail = append(trail, rejected...)
	report.AfterHeuristics = len(kept)

	kept, rejected, err = p.detector.DedupWithin(ctx, kept)
	if err != nil {
		return report, &StageError{Stage: StageInternalDedup, Report: report, Err: err}
	}
	trail = append(trail, rejected...)
	report.AfterInternalDedup = len(kept)

	if p.opts.SkipHistoricalDedup {
		p.logger.Info().Str("sector", p.opts.Sector).Msg("historical dedup skipped")
		report.AfterHistoricalDedup = len(kept)
	} else {
		since := p.opts.Window.End.AddDate(0, 0, -p.opts.HistoricalLookbackDays)
		history, err := p.store.HistoricalRecords(ctx, since, p.opts.Window.End)
		if err != nil {
			return report, &StageError{Stage: StageHistoricalDedup, Report: report, Err: err}
		}
		kept, rejected, err = p.detector.DedupAgainstHistory(ctx, kept, history)
		if err != nil {
			return report, &StageError{Stage: StageHistoricalDedup, Report: report, Err: err}
		}
		trail = append(trail, rejected...)
		report.AfterHistoricalDedup = len(kept)
	}

	kept, rejected, err = ApplyRelevanceGate(ctx, p.classifier, kept)
	if err != nil {
		return report, &StageError{Stage: StageRelevance, Report: report, Err: err}
	}
	trail = append(trail, rejected...)
	report.Relevant = len(kept)

	for _, r := range trail {
		report.RejectedByReason[r.Reason]++
	}

	records := make([]CuratedRecord, 0, len(kept))
	for _, a := range kept {
		records = append(records, NewCuratedRecord(a, p.opts.Pillar, report.RunDatetime))
	}

	summary, err := p.ingestor.Ingest(ctx, records)
	report.IngestState = summary.State
	report.Staged = summary.Staged
	report.Inserted = summary.Inserted
	if err != nil {
		return report, &StageError{Stage: StageIngest, Report: report, Err: err}
	}

	if p.opts.CollectQAData {
		if err := p.store.WriteQAFiltered(ctx, trail, report.RunDatetime); err != nil {
			return report, &StageError{Stage: StageQA, Report: report, Err: err}
		}
		if err := p.store.WriteQAKept(ctx, records); err != nil {
			return report, &StageError{Stage: StageQA, Report: report, Err: err}
		}
	}

	p.logger.Info().
		Str("sector", p.opts.Sector).
		Int("relevant", report.Relevant).
		Int64("inserted", report.Inserted).
		Str("ingest_state", report.IngestState).
		Msg("curation run completed")

	return report, nil
}
