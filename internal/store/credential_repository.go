/**
 * @description
 * This file implements the data access layer for PIN/biometric credential
 * state. The failed-attempt increment and lockout decision happen inside a
 * single UPDATE so that concurrent verification failures cannot race past the
 * configured maximum.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver.
 * - The service's internal domain package for the CredentialState model.
 */
package store

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia/wallet-service/internal/domain"
)

// PostgresCredentialRepository is the PostgreSQL implementation of CredentialRepository.
type PostgresCredentialRepository struct {
	db *pgxpool.Pool
}

// NewPostgresCredentialRepository creates a new instance of PostgresCredentialRepository.
func NewPostgresCredentialRepository(db *pgxpool.Pool) *PostgresCredentialRepository {
	return &PostgresCredentialRepository{db: db}
}

// Get returns security credential metadata for a user.
func (r *PostgresCredentialRepository) Get(ctx context.Context, userID string) (*domain.CredentialState, error) {
	var cred domain.CredentialState
	query := `
		SELECT user_id, pin_hash, pin_salt, pin_enabled, biometric_enabled,
		       failed_attempts, locked_until, last_successful_auth
		FROM user_security_credentials
		WHERE user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&cred.UserID,
		&cred.PINHash,
		&cred.PINSalt,
		&cred.PINEnabled,
		&cred.BiometricEnabled,
		&cred.FailedAttempts,
		&cred.LockedUntil,
		&cred.LastSuccessfulAuth,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		log.Printf("Error fetching credential state for user %s: %v", userID, err)
		return nil, err
	}
	return &cred, nil
}

// Save upserts the full credential state. Credential rows are created lazily
// on the user's first SetupPin or EnableBiometric call.
func (r *PostgresCredentialRepository) Save(ctx context.Context, cred *domain.CredentialState) error {
	query := `
		INSERT INTO user_security_credentials
			(user_id, pin_hash, pin_salt, pin_enabled, biometric_enabled,
			 failed_attempts, locked_until, last_successful_auth)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			pin_hash = EXCLUDED.pin_hash,
			pin_salt = EXCLUDED.pin_salt,
			pin_enabled = EXCLUDED.pin_enabled,
			biometric_enabled = EXCLUDED.biometric_enabled,
			failed_attempts = EXCLUDED.failed_attempts,
			locked_until = EXCLUDED.locked_until,
			last_successful_auth = EXCLUDED.last_successful_auth
	`
	_, err := r.db.Exec(ctx, query,
		cred.UserID,
		cred.PINHash,
		cred.PINSalt,
		cred.PINEnabled,
		cred.BiometricEnabled,
		cred.FailedAttempts,
		cred.LockedUntil,
		cred.LastSuccessfulAuth,
	)
	if err != nil {
		log.Printf("Error saving credential state for user %s: %v", cred.UserID, err)
	}
	return err
}

// RecordFailedAttempt atomically increments failed attempts and applies lockout.
func (r *PostgresCredentialRepository) RecordFailedAttempt(ctx context.Context, id string, maxAttempts int, lockout time.Duration) (*domain.CredentialState, error) {
	var cred domain.CredentialState
	query := `
		UPDATE user_security_credentials
		SET
			failed_attempts = CASE
				WHEN locked_until IS NOT NULL AND locked_until <= NOW() THEN 1
				ELSE failed_attempts + 1
			END,
			locked_until = CASE
				WHEN (
					CASE
						WHEN locked_until IS NOT NULL AND locked_until <= NOW() THEN 1
						ELSE failed_attempts + 1
					END
				) >= $2 THEN NOW() + ($3 * INTERVAL '1 second')
				ELSE NULL
			END
		WHERE user_id = $1
		RETURNING user_id, pin_hash, pin_salt, pin_enabled, biometric_enabled,
		          failed_attempts, locked_until, last_successful_auth
	`
	err := r.db.QueryRow(ctx, query, id, maxAttempts, int(lockout.Seconds())).Scan(
		&cred.UserID,
		&cred.PINHash,
		&cred.PINSalt,
		&cred.PINEnabled,
		&cred.BiometricEnabled,
		&cred.FailedAttempts,
		&cred.LockedUntil,
		&cred.LastSuccessfulAuth,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return &cred, nil
}

// ResetFailureState clears failed-attempt counters after a successful verification.
func (r *PostgresCredentialRepository) ResetFailureState(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE user_security_credentials
		SET failed_attempts = 0, locked_until = NULL, last_successful_auth = $2
		WHERE user_id = $1
	`
	result, err := r.db.Exec(ctx, query, id, now)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}
	return nil
}
