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

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"course-ledger-go/internal/models"
	"course-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IssueCertificate stores a certificate instance. ErrDuplicate means the user
// already holds this certificate; ErrDuplicateCode means the code collided.
func (s *Service) IssueCertificate(ctx context.Context, params store.IssueCertificateParams) (*models.UserCertificate, error) {
	data, err := json.Marshal(params.VerificationData)
	if err != nil {
		return nil, fmt.Errorf("failed to encode verification data: %w", err)
	}

	var cert *models.UserCertificate
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		cert, err = scanUserCertificate(tx.QueryRowContext(ctx, queryInsertUserCertificate,
			uuid.New().String(), params.UserId, params.CertificateId, params.CourseId, params.Code,
			params.IssuedAt.UTC(), nullTime(params.ExpiresAt), string(data)))
		if err != nil {
			switch {
			case isUniqueViolation(err, "certificate_code"):
				return fmt.Errorf("code %s: %w", params.Code, store.ErrDuplicateCode)
			case isUniqueViolation(err, "certificate_id"):
				return fmt.Errorf("user %s certificate %s: %w", params.UserId, params.CertificateId, store.ErrDuplicate)
			}
			return fmt.Errorf("failed to insert certificate: %w", err)
		}

		return insertOutboxEvent(ctx, tx, models.EventCertificateIssued, cert.Id, cert, params.IssuedAt)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Certificate issued",
		zap.String("user_id", cert.UserId),
		zap.String("course_id", cert.CourseId),
		zap.String("certificate_code", cert.CertificateCode))
	return cert, nil
}

func (s *Service) GetUserCertificate(ctx context.Context, userId, certificateId string) (*models.UserCertificate, error) {
	cert, err := scanUserCertificate(s.db.QueryRowContext(ctx, queryGetUserCertificate, userId, certificateId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("certificate %s for user %s: %w", certificateId, userId, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query user certificate: %w", err)
	}
	return cert, nil
}

func (s *Service) GetUserCertificateByCode(ctx context.Context, code string) (*models.UserCertificate, error) {
	cert, err := scanUserCertificate(s.db.QueryRowContext(ctx, queryGetUserCertificateByCode, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("certificate code %s: %w", code, store.ErrNotFound)
		}
		return nil, fmt.Errorf("unable to query certificate by code: %w", err)
	}
	return cert, nil
}

// ExpireCertificates flips active certificates whose expiry has passed.
func (s *Service) ExpireCertificates(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, queryExpireCertificates, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("unable to expire certificates: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("unable to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		zap.L().Info("Expired certificates", zap.Int64("count", rowsAffected))
	}
	return int(rowsAffected), nil
}

func scanUserCertificate(row rowScanner) (*models.UserCertificate, error) {
	var c models.UserCertificate
	var status, data string
	var expiresAt sql.NullTime
	err := row.Scan(&c.Id, &c.UserId, &c.CertificateId, &c.CourseId, &c.CertificateCode, &status,
		&c.IssuedAt, &expiresAt, &data)
	if err != nil {
		return nil, err
	}
	c.Status = models.CertificateStatus(status)
	c.ExpiresAt = timePtr(expiresAt)
	if err := json.Unmarshal([]byte(data), &c.VerificationData); err != nil {
		return nil, fmt.Errorf("failed to decode verification data: %w", err)
	}
	return &c, nil
}
