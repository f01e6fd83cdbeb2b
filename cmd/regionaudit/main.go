// Command regionaudit reports stored region names that are still in raw
// alias form, meaning the rows were written before the alias table learned
// them. Read-only; rerunning collection rewrites those rows canonically.
package main

import (
	"context"
	"fmt"
	"os"

	"TrendsCollector/internal/config"
	"TrendsCollector/internal/infrastructure/storage"
	"TrendsCollector/internal/logging"
	"TrendsCollector/internal/region"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	if cfg.Database.DSN == "" {
		logger.Error("database DSN is not configured")
		os.Exit(1)
	}

	db, err := storage.Open(cfg.Database.DSN)
	if err != nil {
		logger.Error("connect storage", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	sink := storage.NewPostgresSink(db)
	regions, err := sink.DistinctRegions(ctx)
	if err != nil {
		logger.Error("list stored regions", "error", err)
		os.Exit(1)
	}

	aliases := region.Aliases()
	var stale []string
	for _, name := range regions {
		if canonical, isAlias := aliases[name]; isAlias {
			stale = append(stale, fmt.Sprintf("%s (canonical: %s)", name, canonical))
		}
	}

	fmt.Printf("distinct stored regions: %d\n", len(regions))
	if len(stale) == 0 {
		fmt.Println("no raw alias names found; storage is canonical")
		return
	}

	fmt.Printf("regions stored in raw alias form: %d\n", len(stale))
	for _, entry := range stale {
		fmt.Printf("  - %s\n", entry)
	}
}
