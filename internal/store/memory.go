/**
 * @description
 * In-memory implementations of the repository interfaces, used by tests and
 * local development when no database is configured. They honour the same
 * contracts as the PostgreSQL implementations, including the conditional
 * insert that decides concurrent provisioning races.
 */
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia/wallet-service/internal/domain"
)

// MemoryWalletRepository is a mutex-guarded in-memory WalletRepository.
type MemoryWalletRepository struct {
	mu      sync.Mutex
	wallets map[string]map[string]domain.WalletRecord // userID -> currency -> record
}

// NewMemoryWalletRepository creates an empty in-memory wallet repository.
func NewMemoryWalletRepository() *MemoryWalletRepository {
	return &MemoryWalletRepository{wallets: make(map[string]map[string]domain.WalletRecord)}
}

func (r *MemoryWalletRepository) Exists(ctx context.Context, userID, currency string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.wallets[userID][currency]
	return ok, nil
}

// Insert mirrors the unique-constraint semantics of the PostgreSQL
// repository: the check and the write happen under one lock.
func (r *MemoryWalletRepository) Insert(ctx context.Context, rec *domain.WalletRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byCurrency, ok := r.wallets[rec.UserID]
	if !ok {
		byCurrency = make(map[string]domain.WalletRecord)
		r.wallets[rec.UserID] = byCurrency
	}
	if _, taken := byCurrency[rec.Currency]; taken {
		return ErrWalletExists
	}
	byCurrency[rec.Currency] = *rec
	return nil
}

func (r *MemoryWalletRepository) ListByUserID(ctx context.Context, userID string) ([]domain.WalletRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.WalletRecord
	for _, rec := range r.wallets[userID] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

// MemoryCredentialRepository is a mutex-guarded in-memory CredentialRepository.
type MemoryCredentialRepository struct {
	mu    sync.Mutex
	creds map[string]domain.CredentialState
	now   func() time.Time
}

// NewMemoryCredentialRepository creates an empty in-memory credential repository.
func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{creds: make(map[string]domain.CredentialState), now: time.Now}
}

func (r *MemoryCredentialRepository) Get(ctx context.Context, userID string) (*domain.CredentialState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.creds[userID]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	out := cred
	return &out, nil
}

func (r *MemoryCredentialRepository) Save(ctx context.Context, cred *domain.CredentialState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds[cred.UserID] = *cred
	return nil
}

// RecordFailedAttempt performs the increment and lockout decision under one
// lock, matching the atomic UPDATE of the PostgreSQL repository.
func (r *MemoryCredentialRepository) RecordFailedAttempt(ctx context.Context, userID string, maxAttempts int, lockout time.Duration) (*domain.CredentialState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.creds[userID]
	if !ok {
		return nil, ErrCredentialNotFound
	}

	now := r.now()
	if cred.LockedUntil != nil && !cred.LockedUntil.After(now) {
		// Expired lockout: this failure starts a fresh attempt streak.
		cred.FailedAttempts = 1
		cred.LockedUntil = nil
	} else {
		cred.FailedAttempts++
	}
	if cred.FailedAttempts >= maxAttempts {
		until := now.Add(lockout)
		cred.LockedUntil = &until
	}

	r.creds[userID] = cred
	out := cred
	return &out, nil
}

func (r *MemoryCredentialRepository) ResetFailureState(ctx context.Context, userID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.creds[userID]
	if !ok {
		return ErrCredentialNotFound
	}
	cred.FailedAttempts = 0
	cred.LockedUntil = nil
	cred.LastSuccessfulAuth = &now
	r.creds[userID] = cred
	return nil
}
