package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/curator/internal/cli"
	"horse.fit/curator/internal/config"
	"horse.fit/curator/internal/db"
	"horse.fit/curator/internal/logging"
	"horse.fit/curator/internal/warehouse"
)

func runMigrate(args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	sector := fs.String("sector", "", "Sector whose tables to create (required)")
	testRun := fs.Bool("test-run", false, "Create the tables in the temporary namespace")

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
		logger.Error().Err(err).Msg("migrate command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	store := warehouse.NewPostgres(pool, res, logger)
	if err := store.EnsureTables(ctx); err != nil {
		logger.Error().Err(err).Str("sector", res.Sector.Name).Msg("migrate failed")
		fmt.Fprintf(os.Stderr, "Migrate failed: %v\n", err)
		return 1
	}

	logger.Info().Str("sector", res.Sector.Name).Bool("test_run", *testRun).Msg("warehouse tables ensured")
	fmt.Printf("migrate sector=%s destination=%s runs=%s\n", res.Sector.Name, res.MergeTable, res.RunsTable)
	return 0
}
