package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia/wallet-service/internal/domain"
)

func TestMemoryWalletRepository_InsertEnforcesUniqueness(t *testing.T) {
	repo := NewMemoryWalletRepository()
	ctx := context.Background()

	rec := &domain.WalletRecord{ID: "w-1", UserID: "u1", Currency: "BTC", Address: "bc1qexample"}
	if err := repo.Insert(ctx, rec); err != nil {
		t.Fatalf("first insert returned error: %v", err)
	}

	dup := &domain.WalletRecord{ID: "w-2", UserID: "u1", Currency: "BTC", Address: "bc1qother"}
	if err := repo.Insert(ctx, dup); !errors.Is(err, ErrWalletExists) {
		t.Fatalf("expected ErrWalletExists, got %v", err)
	}

	// Same currency for a different user is fine.
	other := &domain.WalletRecord{ID: "w-3", UserID: "u2", Currency: "BTC", Address: "bc1qthird"}
	if err := repo.Insert(ctx, other); err != nil {
		t.Fatalf("insert for different user returned error: %v", err)
	}

	wallets, _ := repo.ListByUserID(ctx, "u1")
	if len(wallets) != 1 || wallets[0].ID != "w-1" {
		t.Fatalf("expected the original record to survive, got %+v", wallets)
	}
}

func TestMemoryCredentialRepository_RecordFailedAttemptLocksAtThreshold(t *testing.T) {
	repo := NewMemoryCredentialRepository()
	ctx := context.Background()

	if err := repo.Save(ctx, &domain.CredentialState{UserID: "u1", PINEnabled: true}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	for i := 1; i <= 4; i++ {
		cred, err := repo.RecordFailedAttempt(ctx, "u1", 5, 5*time.Minute)
		if err != nil {
			t.Fatalf("RecordFailedAttempt returned error: %v", err)
		}
		if cred.FailedAttempts != i {
			t.Fatalf("expected %d failed attempts, got %d", i, cred.FailedAttempts)
		}
		if cred.LockedUntil != nil {
			t.Fatalf("expected no lockout before the threshold, got %v", cred.LockedUntil)
		}
	}

	cred, err := repo.RecordFailedAttempt(ctx, "u1", 5, 5*time.Minute)
	if err != nil {
		t.Fatalf("RecordFailedAttempt returned error: %v", err)
	}
	if cred.LockedUntil == nil {
		t.Fatal("expected lockout at the fifth failure")
	}
}

func TestMemoryCredentialRepository_ExpiredLockoutRestartsStreak(t *testing.T) {
	repo := NewMemoryCredentialRepository()
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	if err := repo.Save(ctx, &domain.CredentialState{
		UserID:         "u1",
		PINEnabled:     true,
		FailedAttempts: 5,
		LockedUntil:    &past,
	}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	cred, err := repo.RecordFailedAttempt(ctx, "u1", 5, 5*time.Minute)
	if err != nil {
		t.Fatalf("RecordFailedAttempt returned error: %v", err)
	}
	if cred.FailedAttempts != 1 {
		t.Fatalf("expected a fresh streak of 1 after an expired lockout, got %d", cred.FailedAttempts)
	}
	if cred.LockedUntil != nil {
		t.Fatalf("expected the expired lockout to be cleared, got %v", cred.LockedUntil)
	}
}

func TestMemoryCredentialRepository_ResetFailureStateClearsEverything(t *testing.T) {
	repo := NewMemoryCredentialRepository()
	ctx := context.Background()

	future := time.Now().Add(time.Minute)
	if err := repo.Save(ctx, &domain.CredentialState{
		UserID:         "u1",
		PINEnabled:     true,
		FailedAttempts: 3,
		LockedUntil:    &future,
	}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	now := time.Now()
	if err := repo.ResetFailureState(ctx, "u1", now); err != nil {
		t.Fatalf("ResetFailureState returned error: %v", err)
	}

	cred, _ := repo.Get(ctx, "u1")
	if cred.FailedAttempts != 0 || cred.LockedUntil != nil {
		t.Fatalf("expected failure state cleared, got %+v", cred)
	}
	if cred.LastSuccessfulAuth == nil || !cred.LastSuccessfulAuth.Equal(now) {
		t.Fatalf("expected last_successful_auth stamped with %v, got %v", now, cred.LastSuccessfulAuth)
	}
}

func TestMemoryCredentialRepository_UnknownUserIsNotFound(t *testing.T) {
	repo := NewMemoryCredentialRepository()
	ctx := context.Background()

	if _, err := repo.Get(ctx, "ghost"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
	if _, err := repo.RecordFailedAttempt(ctx, "ghost", 5, time.Minute); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
	if err := repo.ResetFailureState(ctx, "ghost", time.Now()); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}
