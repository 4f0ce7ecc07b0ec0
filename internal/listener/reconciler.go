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

package listener

import (
	"context"
	"fmt"
	"time"

	"course-ledger-go/internal/models"
	"course-ledger-go/internal/store"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Materializer creates the enrollment for a settled payment.
type Materializer interface {
	MaterializeOnSuccess(ctx context.Context, payment *models.Payment) (*models.Enrollment, error)
}

// ReconcilerConfig contains configuration for Reconciler
type ReconcilerConfig struct {
	DbService    store.LedgerStore
	Materializer Materializer
	Schedule     string
	BatchSize    int
}

// Reconciler repairs state that a partial failure can leave behind:
// succeeded payments without an enrollment, course aggregates that disagree
// with their lesson rows, and certificates past their expiry.
type Reconciler struct {
	dbService    store.LedgerStore
	materializer Materializer
	schedule     string
	batchSize    int

	cron *cron.Cron
	now  func() time.Time
}

func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Reconciler{
		dbService:    cfg.DbService,
		materializer: cfg.Materializer,
		schedule:     cfg.Schedule,
		batchSize:    batch,
		now:          time.Now,
	}
}

// Start performs a startup sweep and then sweeps on the cron schedule.
// Overlapping runs are skipped.
func (r *Reconciler) Start(ctx context.Context) error {
	logger := cronLogger{}
	r.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.Sweep(ctx); err != nil {
			zap.L().Error("Scheduled reconciliation failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", r.schedule, err)
	}

	if _, err := r.Sweep(ctx); err != nil {
		zap.L().Error("Startup reconciliation failed", zap.Error(err))
		return fmt.Errorf("startup reconciliation failed: %w", err)
	}

	r.cron.Start()
	zap.L().Info("Reconciler started", zap.String("schedule", r.schedule))
	return nil
}

// Stop waits for a running sweep to finish
func (r *Reconciler) Stop() {
	if r.cron == nil {
		return
	}
	zap.L().Info("Stopping reconciler")
	<-r.cron.Stop().Done()
	zap.L().Info("Reconciler stopped")
}

// Sweep runs one reconciliation pass. Individual repair failures are counted
// and logged. Only a failure to list work aborts the pass.
func (r *Reconciler) Sweep(ctx context.Context) (*models.SweepReport, error) {
	report := &models.SweepReport{}

	orphans, err := r.dbService.ListSucceededPaymentsWithoutEnrollment(ctx, r.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list unmaterialized payments: %w", err)
	}
	report.Scanned = len(orphans)

	for i := range orphans {
		payment := &orphans[i]
		if _, err := r.materializer.MaterializeOnSuccess(ctx, payment); err != nil {
			report.MaterializeFailures++
			zap.L().Error("Failed to materialize enrollment during sweep",
				zap.String("payment_id", payment.Id),
				zap.String("user_id", payment.UserId),
				zap.String("course_id", payment.CourseId),
				zap.Error(err))
			continue
		}
		report.Materialized++
	}

	drifted, err := r.dbService.ListDriftedCourseProgress(ctx, r.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list drifted course progress: %w", err)
	}
	for _, cp := range drifted {
		_, changed, err := r.dbService.RecomputeCourseProgress(ctx, cp.UserId, cp.CourseId)
		if err != nil {
			zap.L().Error("Failed to repair course progress",
				zap.String("user_id", cp.UserId),
				zap.String("course_id", cp.CourseId),
				zap.Error(err))
			continue
		}
		if changed {
			report.ProgressRepaired++
		}
	}

	expired, err := r.dbService.ExpireCertificates(ctx, r.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to expire certificates: %w", err)
	}
	report.CertificatesExpired = expired

	if report.Scanned > 0 || report.ProgressRepaired > 0 || report.CertificatesExpired > 0 {
		zap.L().Info("Reconciliation sweep completed",
			zap.Int("scanned", report.Scanned),
			zap.Int("materialized", report.Materialized),
			zap.Int("materialize_failures", report.MaterializeFailures),
			zap.Int("progress_repaired", report.ProgressRepaired),
			zap.Int("certificates_expired", report.CertificatesExpired))
	} else {
		zap.L().Debug("Reconciliation sweep found nothing to repair")
	}
	return report, nil
}

// cronLogger routes cron's logging through zap
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	zap.L().Sugar().Debugw(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	zap.L().Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
