/**
 * @description
 * This file defines the backend-managed PIN/biometric security metadata for a
 * user. Exactly one CredentialState exists per user; it is created lazily on
 * the first SetupPin or EnableBiometric call.
 *
 * @notes
 * - Only the derived PIN hash and its salt are stored, never the PIN itself.
 * - FailedAttempts and LockedUntil are maintained atomically by the store so
 *   concurrent verification attempts cannot exceed the configured maximum.
 */
package domain

import "time"

// CredentialState stores PIN/biometric security metadata for a user.
type CredentialState struct {
	UserID             string     `json:"user_id"`
	PINHash            string     `json:"-"`
	PINSalt            string     `json:"-"`
	PINEnabled         bool       `json:"pin_enabled"`
	BiometricEnabled   bool       `json:"biometric_enabled"`
	FailedAttempts     int        `json:"failed_attempts"`
	LockedUntil        *time.Time `json:"locked_until,omitempty"`
	LastSuccessfulAuth *time.Time `json:"last_successful_auth,omitempty"`
}

// Locked reports whether the credential is inside its lockout window at now.
func (c *CredentialState) Locked(now time.Time) bool {
	return c.LockedUntil != nil && c.LockedUntil.After(now)
}
