/**
 * @description
 * This file contains the credential gate: the single state machine that
 * authorizes access to wallet-sensitive operations. It owns PIN setup and
 * verification with failed-attempt lockout, biometric enablement through the
 * injected platform authenticator, and the per-session unlocked flag.
 *
 * Key features:
 * - One consolidated state per user (Unconfigured, Configuring, Guarded,
 *   Unlocked) instead of scattered boolean security flags.
 * - Lockout checks consume no attempt; failed attempts are recorded through
 *   the store's atomic read-modify-write so concurrent failures serialize.
 * - The PIN itself never reaches a log, an audit entry or an error message.
 *
 * @dependencies
 * - crypto/rand, crypto/sha256, crypto/subtle, encoding/hex: PIN hashing.
 * - golang.org/x/crypto/pbkdf2: Key derivation over pin+salt.
 * - internal/domain, internal/store, internal/audit: State and auditing.
 */
package app

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/custodia/wallet-service/internal/audit"
	"github.com/custodia/wallet-service/internal/domain"
	"github.com/custodia/wallet-service/internal/store"
	"github.com/custodia/wallet-service/pkg/rabbitmq"
)

const (
	pinLength          = 6
	pbkdf2Iterations   = 100_000
	pbkdf2KeyLength    = 32
	defaultMaxAttempts = 5
	defaultLockout     = 5 * time.Minute
)

// SessionState is the gate's per-user state.
type SessionState string

const (
	StateUnconfigured SessionState = "unconfigured"
	StateConfiguring  SessionState = "configuring"
	StateGuarded      SessionState = "guarded"
	StateUnlocked     SessionState = "unlocked"
)

// Sentinel errors returned by gate operations.
var (
	ErrInvalidPINFormat = errors.New("pin must be exactly 6 numeric digits")
	ErrPINNotSet        = errors.New("pin not set")
	ErrBiometricDenied  = errors.New("biometric challenge failed")
)

// LockoutError rejects a verification inside the lockout window. The attempt
// counter is untouched when it is returned from the pre-check.
type LockoutError struct {
	Until time.Time
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("pin verification locked until %s", e.Until.Format(time.RFC3339))
}

// InvalidPINError reports a mismatch along with the attempts left before the
// lockout window starts.
type InvalidPINError struct {
	RemainingAttempts int
}

func (e *InvalidPINError) Error() string {
	return fmt.Sprintf("invalid pin, %d attempt(s) remaining", e.RemainingAttempts)
}

// BiometricAuthenticator is the platform biometric primitive. Enabling the
// method requires a passed challenge first: prove you can authenticate before
// the gate trusts this method.
type BiometricAuthenticator interface {
	Challenge(ctx context.Context, userID string) (bool, error)
}

// CredentialGate guards wallet-sensitive operations behind PIN/biometric.
type CredentialGate struct {
	creds       store.CredentialRepository
	auditLog    Auditor
	biometric   BiometricAuthenticator
	publisher   rabbitmq.Publisher
	maxAttempts int
	lockout     time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]SessionState
}

// NewCredentialGate creates a gate with the default 5-attempt / 5-minute
// lockout policy. biometric may be nil on platforms without the primitive.
func NewCredentialGate(creds store.CredentialRepository, auditLog Auditor, biometric BiometricAuthenticator, publisher rabbitmq.Publisher) *CredentialGate {
	return &CredentialGate{
		creds:       creds,
		auditLog:    auditLog,
		biometric:   biometric,
		publisher:   publisher,
		maxAttempts: defaultMaxAttempts,
		lockout:     defaultLockout,
		now:         time.Now,
		sessions:    make(map[string]SessionState),
	}
}

func validPIN(pin string) bool {
	if len(pin) != pinLength {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func derivePINHash(pin string, salt []byte) string {
	key := pbkdf2.Key([]byte(pin), salt, pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
	return hex.EncodeToString(key)
}

// SetupPin derives and stores the user's PIN credential. The credential row
// is created lazily on first setup; the configuring user is trusted for the
// current session and ends up Unlocked.
func (g *CredentialGate) SetupPin(ctx context.Context, userID, pin string) error {
	if !validPIN(pin) {
		return ErrInvalidPINFormat
	}

	g.setSession(userID, StateConfiguring)

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		g.setSession(userID, StateUnconfigured)
		return fmt.Errorf("failed to generate pin salt: %w", err)
	}

	cred, err := g.creds.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrCredentialNotFound) {
			g.setSession(userID, StateUnconfigured)
			return err
		}
		cred = &domain.CredentialState{UserID: userID}
	}

	cred.PINHash = derivePINHash(pin, salt)
	cred.PINSalt = hex.EncodeToString(salt)
	cred.PINEnabled = true
	cred.FailedAttempts = 0
	cred.LockedUntil = nil

	if err := g.creds.Save(ctx, cred); err != nil {
		g.setSession(userID, StateUnconfigured)
		return err
	}

	g.setSession(userID, StateUnlocked)
	g.auditLog.Record(audit.EventPINSetup, map[string]any{"user_id": userID})
	return nil
}

// VerifyPin checks the PIN against the stored credential. Verification inside
// the lockout window is rejected up front and consumes no attempt. A mismatch
// records the failure atomically; reaching the maximum starts the lockout
// window. A match resets the failure state and unlocks the session.
func (g *CredentialGate) VerifyPin(ctx context.Context, userID, pin string) error {
	cred, err := g.creds.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrCredentialNotFound) {
			return ErrPINNotSet
		}
		return err
	}
	if !cred.PINEnabled || cred.PINHash == "" {
		return ErrPINNotSet
	}

	now := g.now()
	if cred.Locked(now) {
		g.auditLog.Record(audit.EventPINRejected, map[string]any{"user_id": userID, "reason": "locked"})
		return &LockoutError{Until: *cred.LockedUntil}
	}

	salt, err := hex.DecodeString(cred.PINSalt)
	if err != nil {
		return fmt.Errorf("corrupt pin salt for user %s: %w", userID, err)
	}

	if subtle.ConstantTimeCompare([]byte(derivePINHash(pin, salt)), []byte(cred.PINHash)) == 1 {
		if err := g.creds.ResetFailureState(ctx, userID, now); err != nil {
			return err
		}
		g.setSession(userID, StateUnlocked)
		g.auditLog.Record(audit.EventPINVerified, map[string]any{"user_id": userID})
		return nil
	}

	updated, err := g.creds.RecordFailedAttempt(ctx, userID, g.maxAttempts, g.lockout)
	if err != nil {
		return err
	}
	if updated.Locked(g.now()) {
		g.auditLog.Record(audit.EventPINLocked, map[string]any{
			"user_id": userID, "locked_until": updated.LockedUntil.Format(time.RFC3339),
		})
		g.publishLocked(userID, *updated.LockedUntil)
		return &LockoutError{Until: *updated.LockedUntil}
	}

	remaining := g.maxAttempts - updated.FailedAttempts
	g.auditLog.Record(audit.EventPINRejected, map[string]any{
		"user_id": userID, "remaining_attempts": remaining,
	})
	return &InvalidPINError{RemainingAttempts: remaining}
}

// EnableBiometric turns the biometric method on after a passed challenge.
func (g *CredentialGate) EnableBiometric(ctx context.Context, userID string) error {
	if g.biometric == nil {
		return errors.New("biometric authentication is not available on this platform")
	}

	ok, err := g.biometric.Challenge(ctx, userID)
	if err != nil {
		return fmt.Errorf("biometric challenge error: %w", err)
	}
	if !ok {
		return ErrBiometricDenied
	}

	cred, err := g.creds.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrCredentialNotFound) {
			return err
		}
		cred = &domain.CredentialState{UserID: userID}
	}
	cred.BiometricEnabled = true
	if err := g.creds.Save(ctx, cred); err != nil {
		return err
	}

	g.setSession(userID, StateUnlocked)
	g.auditLog.Record(audit.EventBiometricEnabled, map[string]any{"user_id": userID})
	return nil
}

// DisableBiometric turns the biometric method off.
func (g *CredentialGate) DisableBiometric(ctx context.Context, userID string) error {
	cred, err := g.creds.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrCredentialNotFound) {
			return nil
		}
		return err
	}
	cred.BiometricEnabled = false
	if err := g.creds.Save(ctx, cred); err != nil {
		return err
	}
	g.auditLog.Record(audit.EventBiometricDisabled, map[string]any{"user_id": userID})
	return nil
}

// RequireAuth reports whether the caller may reach wallet-sensitive
// operations right now. A user with no security method configured gets open
// access; otherwise the session must be unlocked first.
func (g *CredentialGate) RequireAuth(ctx context.Context, userID string) bool {
	cred, err := g.creds.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrCredentialNotFound) {
			return true
		}
		log.Printf("ERROR: Failed to load credential state for user %s: %v", userID, err)
		return false
	}
	if !cred.PINEnabled && !cred.BiometricEnabled {
		return true
	}
	return g.State(ctx, userID) == StateUnlocked
}

// Lock drops an unlocked session back to guarded (logout, app backgrounded).
// Locking a session that was not unlocked is a no-op and leaves no audit trace.
func (g *CredentialGate) Lock(userID string) {
	g.mu.Lock()
	locked := g.sessions[userID] == StateUnlocked
	if locked {
		g.sessions[userID] = StateGuarded
	}
	g.mu.Unlock()
	if locked {
		g.auditLog.Record(audit.EventSessionLocked, map[string]any{"user_id": userID})
	}
}

// State returns the gate's current state for the user.
func (g *CredentialGate) State(ctx context.Context, userID string) SessionState {
	g.mu.Lock()
	session, tracked := g.sessions[userID]
	g.mu.Unlock()
	if tracked {
		return session
	}

	cred, err := g.creds.Get(ctx, userID)
	if err != nil || (!cred.PINEnabled && !cred.BiometricEnabled) {
		return StateUnconfigured
	}
	return StateGuarded
}

// Status summarizes the user's security configuration for the API surface.
func (g *CredentialGate) Status(ctx context.Context, userID string) (*domain.CredentialState, SessionState, error) {
	state := g.State(ctx, userID)
	cred, err := g.creds.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrCredentialNotFound) {
			return &domain.CredentialState{UserID: userID}, state, nil
		}
		return nil, state, err
	}
	return cred, state, nil
}

func (g *CredentialGate) setSession(userID string, state SessionState) {
	g.mu.Lock()
	g.sessions[userID] = state
	g.mu.Unlock()
}

func (g *CredentialGate) publishLocked(userID string, until time.Time) {
	if g.publisher == nil {
		return
	}
	event := domain.PINLockedEvent{UserID: userID, LockedUntil: until.Format(time.RFC3339)}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.publisher.Publish(ctx, "wallet_events", "security.pin_locked", event); err != nil {
		log.Printf("WARN: Failed to publish security.pin_locked event for user %s: %v", userID, err)
	}
}
