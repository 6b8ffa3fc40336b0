/**
 * @description
 * This file defines the interfaces for the data access layer (repositories).
 * Defining interfaces allows for dependency injection and easy mocking in
 * tests, promoting a loosely coupled architecture.
 *
 * @notes
 * - Any component that needs to interact with the database should depend on
 *   these interfaces, not on the concrete PostgreSQL implementation.
 * - The (user_id, currency) unique constraint enforced by WalletRepository
 *   implementations is the single source of idempotency truth for
 *   provisioning; the orchestrator's existence pre-check is an optimization.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/custodia/wallet-service/internal/domain"
)

// Sentinel errors shared by all repository implementations.
var (
	// ErrWalletExists signals that the (user_id, currency) pair already has a
	// record. Callers treat it as a benign idempotent skip, not a failure.
	ErrWalletExists = errors.New("wallet already exists for user and currency")

	// ErrCredentialNotFound signals that no CredentialState exists for the
	// user yet.
	ErrCredentialNotFound = errors.New("credential state not found")
)

// WalletRepository defines the contract for wallet persistence.
type WalletRepository interface {
	// Exists reports whether a wallet record exists for the pair.
	Exists(ctx context.Context, userID, currency string) (bool, error)

	// Insert conditionally inserts the record. It returns ErrWalletExists if
	// the (user_id, currency) unique constraint is already taken, which is how
	// concurrent provisioning races are decided.
	Insert(ctx context.Context, rec *domain.WalletRecord) error

	// ListByUserID returns every wallet provisioned for the user.
	ListByUserID(ctx context.Context, userID string) ([]domain.WalletRecord, error)
}

// CredentialRepository defines the contract for PIN/biometric security state.
type CredentialRepository interface {
	// Get returns the user's credential state, or ErrCredentialNotFound.
	Get(ctx context.Context, userID string) (*domain.CredentialState, error)

	// Save upserts the full credential state (lazy creation on first setup).
	Save(ctx context.Context, cred *domain.CredentialState) error

	// RecordFailedAttempt atomically increments the failed-attempt counter and
	// applies the lockout window once maxAttempts is reached, returning the
	// post-increment state. The increment and lockout check are one
	// read-modify-write so concurrent failures cannot exceed the maximum.
	RecordFailedAttempt(ctx context.Context, userID string, maxAttempts int, lockout time.Duration) (*domain.CredentialState, error)

	// ResetFailureState clears the counter and lockout after a successful
	// verification and stamps the last successful auth time.
	ResetFailureState(ctx context.Context, userID string, now time.Time) error
}
