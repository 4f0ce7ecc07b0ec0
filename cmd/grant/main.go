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

	"go.uber.org/zap"
)

// grant enrolls a user in a course without a payment, e.g. for support
// refunds-in-kind or instructors.
func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Email of the user to enroll (required)")
	courseFlag := flag.String("course", "", "Course id (required)")
	flag.Parse()

	if *emailFlag == "" || *courseFlag == "" {
		logger.Fatal("Both flags are required: --email and --course")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	user, err := common.FindLearner(ctx, dbService, *emailFlag)
	if err != nil {
		logger.Fatal("Failed to find learner", zap.Error(err))
	}

	enrolled, created, err := enrollment.NewMaterializer(dbService).Grant(ctx, user.Id, *courseFlag)
	if err != nil {
		logger.Fatal("Failed to grant enrollment",
			zap.String("user_id", user.Id),
			zap.String("course_id", *courseFlag),
			zap.Error(err))
	}

	status := "granted"
	if !created {
		status = "already enrolled"
	}
	fmt.Printf("%s (%s) → %s: %s (enrollment %s, source %s)\n",
		user.Name, user.Email, enrolled.CourseId, status, enrolled.Id, enrolled.Source)
}
