package main

import (
	"context"
	"flag"
	"fmt"

	"course-ledger-go/internal/common"
	"course-ledger-go/internal/config"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	catalogFlag := flag.String("catalog", "", "Path to the catalog file (default: CATALOG_FILE or catalog.yaml)")
	dryRun := flag.Bool("dry-run", false, "Validate the catalog without writing it")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	catalogFile := cfg.Catalog.File
	if *catalogFlag != "" {
		catalogFile = *catalogFlag
	}

	zap.L().Info("Loading catalog", zap.String("file", catalogFile))
	snapshot, err := common.LoadCatalog(catalogFile)
	if err != nil {
		zap.L().Fatal("Failed to load catalog", zap.Error(err))
	}

	common.PrintHeader("CATALOG", common.DefaultWidth)
	for _, c := range snapshot.Courses {
		fmt.Printf("%-30s %-30s %s\n", c.Id, c.Title, common.FormatPrice(c.Price, c.Currency))
	}
	summary := fmt.Sprintf("%d courses, %d modules, %d lessons, %d certificates",
		len(snapshot.Courses), len(snapshot.Modules), len(snapshot.Lessons), len(snapshot.Certificates))
	common.PrintFooter(summary, common.DefaultWidth)

	if *dryRun {
		zap.L().Info("Dry run, catalog not written")
		return
	}

	// Initializing the database also applies pending migrations
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	if err := dbService.SyncCatalog(ctx, *snapshot); err != nil {
		zap.L().Fatal("Failed to sync catalog", zap.Error(err))
	}

	zap.L().Info("Setup completed successfully")
}
