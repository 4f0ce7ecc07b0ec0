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
	"course-ledger-go/internal/progress"

	"go.uber.org/zap"
)

func printLearner(report common.LearnerReport) {
	user := report.User
	fmt.Printf("\n┌─ User: %s (%s)\n", user.Name, user.Email)
	fmt.Printf("│  ID: %s\n", user.Id)
	fmt.Printf("│  Enrollments: %d   Streak: %d day(s), longest %d\n",
		len(report.Courses), report.Streak.CurrentStreak, report.Streak.LongestStreak)
	common.PrintBoxSeparator(98)

	for i, c := range report.Courses {
		fmt.Printf("%s %-30s %s  %d/%d lessons\n",
			common.BoxPrefix(i == len(report.Courses)-1), c.Enrollment.CourseId,
			common.ProgressBar(c.Progress.ProgressPercentage), c.Progress.CompletedLessons, c.Progress.TotalLessons)
	}
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Filter by specific user email (optional)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	reports, err := common.BuildLearnerReports(ctx, dbService, progress.NewEngine(dbService), *emailFlag, logger)
	if err != nil {
		logger.Fatal("Failed to build learner reports", zap.Error(err))
	}

	enrollments, completed := 0, 0
	common.PrintHeader("LEARNER PROGRESS REPORT", common.WideWidth)
	for _, report := range reports {
		if len(report.Courses) == 0 {
			continue
		}
		printLearner(report)
		enrollments += len(report.Courses)
		completed += report.CompletedCourses()
	}

	summary := fmt.Sprintf("SUMMARY: %d enrollments across %d users, %d courses completed",
		enrollments, len(reports), completed)
	common.PrintFooter(summary, common.WideWidth)
}
