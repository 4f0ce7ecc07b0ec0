/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"

	"course-ledger-go/internal/common"
	"course-ledger-go/internal/config"
	"course-ledger-go/internal/enrollment"
	"course-ledger-go/internal/listener"

	"go.uber.org/zap"
)

// reconcile runs a single sweep and exits, for cron jobs outside the server
func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	batchFlag := flag.Int("batch", 0, "Maximum rows repaired per category (default: RECONCILE_BATCH_SIZE)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	batch := cfg.Reconcile.BatchSize
	if *batchFlag > 0 {
		batch = *batchFlag
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	reconciler := listener.NewReconciler(listener.ReconcilerConfig{
		DbService:    dbService,
		Materializer: enrollment.NewMaterializer(dbService),
		BatchSize:    batch,
	})

	report, err := reconciler.Sweep(ctx)
	if err != nil {
		zap.L().Fatal("Reconciliation failed", zap.Error(err))
	}

	common.PrintHeader("RECONCILIATION", common.DefaultWidth)
	fmt.Printf("Unmaterialized payments found:  %d\n", report.Scanned)
	fmt.Printf("Enrollments materialized:       %d\n", report.Materialized)
	fmt.Printf("Materialization failures:       %d\n", report.MaterializeFailures)
	fmt.Printf("Course progress repaired:       %d\n", report.ProgressRepaired)
	fmt.Printf("Certificates expired:           %d\n", report.CertificatesExpired)
	common.PrintSeparator("=", common.DefaultWidth)

	if report.MaterializeFailures > 0 {
		zap.L().Fatal("Some payments could not be materialized", zap.Int("failures", report.MaterializeFailures))
	}
}
