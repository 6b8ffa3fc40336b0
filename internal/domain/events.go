/**
 * @description
 * This file defines the domain models for events published by the
 * wallet-service to the message broker (RabbitMQ).
 *
 * @notes
 * - Event payloads carry only network symbols and counts. Addresses, PINs and
 *   any other sensitive values stay out of the broker entirely.
 */
package domain

// WalletsProvisionedEvent is published after a provisioning batch completes
// with at least one newly generated wallet.
type WalletsProvisionedEvent struct {
	UserID         string   `json:"user_id"`
	Networks       []string `json:"networks"`
	GeneratedCount int      `json:"generated_count"`
	FailedCount    int      `json:"failed_count"`
}

// PINLockedEvent is published when a user's PIN enters its lockout window.
type PINLockedEvent struct {
	UserID      string `json:"user_id"`
	LockedUntil string `json:"locked_until"`
}

// UserVerifiedEvent is the payload received when a user's identity check has
// been approved and their default wallets are ready to be provisioned.
type UserVerifiedEvent struct {
	UserID string `json:"user_id"`
}
