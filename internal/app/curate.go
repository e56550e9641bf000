package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/curator/internal/classifier"
	"horse.fit/curator/internal/cli"
	"horse.fit/curator/internal/config"
	"horse.fit/curator/internal/curation"
	"horse.fit/curator/internal/db"
	"horse.fit/curator/internal/embed"
	"horse.fit/curator/internal/globaltime"
	"horse.fit/curator/internal/ingestion"
	"horse.fit/curator/internal/logging"
	"horse.fit/curator/internal/warehouse"
)

func runCurate(args []string) int {
	fs := flag.NewFlagSet("curate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 15*time.Minute, "Command timeout")
	sector := fs.String("sector", "", "Sector to curate (required)")
	startDate := fs.String("start-date", "", "Window start (YYYY-MM-DD or RFC3339; default: end minus --days)")
	endDate := fs.String("end-date", "", "Window end (YYYY-MM-DD or RFC3339; default: now)")
	days := fs.Int("days", 7, "Window length in days when --start-date is omitted")
	minWords := fs.Int("min-words", curation.DefaultMinWords, "Minimum body word count")
	titleThreshold := fs.Float64("title-threshold", curation.DefaultSimilarityThreshold, "Title cosine similarity duplicate threshold")
	bodyThreshold := fs.Float64("body-threshold", curation.DefaultSimilarityThreshold, "Body cosine similarity duplicate threshold")
	checkLanguage := fs.Bool("check-language", true, "Reject articles not detected as English")
	skipHistorical := fs.Bool("skip-historical-dedup", false, "Skip dedup against already curated records")
	lookbackDays := fs.Int("lookback-days", curation.DefaultHistoricalLookbackDays, "How many days of curated records to dedup against")
	testRun := fs.Bool("test-run", false, "Route every table to the temporary namespace")
	qaData := fs.Bool("qa-data", false, "Write the filtered and kept QA tables")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*sector) == "" {
		fmt.Fprintln(os.Stderr, "--sector is required")
		return 2
	}
	if *days <= 0 {
		fmt.Fprintln(os.Stderr, "--days must be > 0")
		return 2
	}
	if *minWords <= 0 {
		fmt.Fprintln(os.Stderr, "--min-words must be > 0")
		return 2
	}
	if *titleThreshold <= 0 || *titleThreshold > 1 || *bodyThreshold <= 0 || *bodyThreshold > 1 {
		fmt.Fprintln(os.Stderr, "--title-threshold and --body-threshold must be in (0, 1]")
		return 2
	}
	if *lookbackDays <= 0 {
		fmt.Fprintln(os.Stderr, "--lookback-days must be > 0")
		return 2
	}

	start, err := parseDateFlag(*startDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --start-date: %v\n", err)
		return 2
	}
	end, err := parseDateFlag(*endDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --end-date: %v\n", err)
		return 2
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		fmt.Fprintln(os.Stderr, "--end-date must not precede --start-date")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	res, err := config.ResolveSector(*sector, *testRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve sector: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("curate command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	store := warehouse.NewPostgres(pool, res, logger)
	if err := store.EnsureTables(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to prepare warehouse tables")
		fmt.Fprintf(os.Stderr, "Failed to prepare warehouse tables: %v\n", err)
		return 1
	}

	embedder := embed.NewClient(embed.Options{
		Endpoint: cfg.EmbedEndpoint,
		Model:    cfg.EmbedModel,
	}, logger)

	gate, err := classifier.New(classifier.Options{
		Host:      cfg.ClassifierHost,
		Token:     cfg.ClassifierToken,
		Model:     cfg.ClassifierModel,
		Sector:    res.Sector.Name,
		Pillar:    res.Sector.Pillar,
		Companies: res.Sector.Companies,
	}, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize relevance classifier")
		fmt.Fprintf(os.Stderr, "Failed to initialize relevance classifier: %v\n", err)
		return 1
	}

	manager := ingestion.NewManager(store, logger)
	pipe := curation.NewPipeline(store, embedder, gate, manager, logger, curation.Options{
		Sector:                 res.Sector.Name,
		Pillar:                 res.Sector.Pillar,
		Companies:              res.Sector.Companies,
		Window:                 curation.ResolveWindow(start, end, *days),
		MinWords:               *minWords,
		TitleThreshold:         *titleThreshold,
		BodyThreshold:          *bodyThreshold,
		CheckLanguage:          *checkLanguage,
		SkipHistoricalDedup:    *skipHistorical,
		CollectQAData:          *qaData,
		HistoricalLookbackDays: *lookbackDays,
	})

	runID, err := store.StartRun(ctx, globaltime.UTC())
	if err != nil {
		logger.Error().Err(err).Msg("failed to open run bookkeeping")
		fmt.Fprintf(os.Stderr, "Failed to open run bookkeeping: %v\n", err)
		return 1
	}

	report, runErr := pipe.Run(ctx)
	if runErr != nil {
		stage := "unknown"
		var stageErr *curation.StageError
		if errors.As(runErr, &stageErr) {
			stage = string(stageErr.Stage)
			report = stageErr.Report
		}
		if err := store.FailRun(ctx, runID, stage, runErr.Error(), report); err != nil {
			logger.Error().Err(err).Int64("run_id", runID).Msg("failed to record run failure")
		}
		logger.Error().Err(runErr).Str("sector", res.Sector.Name).Str("stage", stage).Msg("curation run failed")
		fmt.Fprintf(os.Stderr, "Curation failed: %v\n", runErr)
		return 1
	}

	if err := store.CompleteRun(ctx, runID, report); err != nil {
		logger.Error().Err(err).Int64("run_id", runID).Msg("failed to record run completion")
	}

	fmt.Printf(
		"curate sector=%s fetched=%d canonical=%d after_heuristics=%d after_internal_dedup=%d after_historical_dedup=%d relevant=%d staged=%d inserted=%d ingest_state=%s\n",
		res.Sector.Name,
		report.Fetched,
		report.Canonical,
		report.AfterHeuristics,
		report.AfterInternalDedup,
		report.AfterHistoricalDedup,
		report.Relevant,
		report.Staged,
		report.Inserted,
		report.IngestState,
	)
	return 0
}

func parseDateFlag(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", raw)
}
