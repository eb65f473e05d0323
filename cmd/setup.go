package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/facegate/internal/auditlog"
	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/engine"
	"github.com/kozaktomas/facegate/internal/extractor"
	"github.com/kozaktomas/facegate/internal/matcher"
	"github.com/kozaktomas/facegate/internal/store"
	"github.com/kozaktomas/facegate/internal/store/filestore"
	"github.com/kozaktomas/facegate/internal/store/postgres"
)

// buildEngine assembles the verification engine from the environment
// configuration. With DATABASE_URL set, credentials live in PostgreSQL;
// otherwise they live on the filesystem under the storage root. Images
// and the audit log are always on the filesystem.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine.Engine, func(), error) {
	var credStore store.Store
	if cfg.Database.URL != "" {
		pool, err := postgres.NewPool(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		if err := pool.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		credStore = postgres.NewCredentialStore(pool)
	} else {
		fs, err := filestore.New(cfg.Storage.Root)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open file store: %w", err)
		}
		credStore = fs
	}

	audit, err := auditlog.New(cfg.Storage.Root)
	if err != nil {
		credStore.Close()
		return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	selection, err := extractor.ParseSelectionPolicy(cfg.Extractor.Selection)
	if err != nil {
		credStore.Close()
		return nil, nil, err
	}

	eng := engine.New(engine.Options{
		Store:     credStore,
		Extractor: extractor.NewClient(cfg.Extractor.URL),
		Selection: selection,
		Matcher:   matcher.New(cfg.Match.Threshold),
		Audit:     audit,
		Archive:   filestore.NewImageArchive(cfg.Storage.Root),
		Roles:     cfg.Roles(),
		Dim:       cfg.Extractor.Dim,
	})

	cleanup := func() {
		if err := credStore.Close(); err != nil {
			fmt.Printf("Warning: failed to close store: %v\n", err)
		}
	}
	return eng, cleanup, nil
}

// printResult renders an engine result for terminal output.
func printResult(res engine.Result) {
	fmt.Printf("Outcome:  %s\n", res.Outcome)
	if res.Key.Username != "" {
		fmt.Printf("Identity: %s\n", res.Key)
	}
	if res.Outcome == engine.OutcomeSuccess || res.Outcome == engine.OutcomeNoMatch {
		fmt.Printf("Distance: %.4f (confidence %.2f)\n", res.Distance, res.Confidence)
	}
	fmt.Printf("Message:  %s\n", res.Message)
}
