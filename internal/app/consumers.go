/**
 * @description
 * This file contains the event handler that processes messages from RabbitMQ
 * to provision wallets. When a user's identity check is approved elsewhere in
 * the platform, a user.verified event arrives here and the full default
 * wallet set is provisioned for them.
 *
 * @dependencies
 * - context, encoding/json, log: Standard Go libraries.
 * - The service's internal packages for domain models and the orchestrator.
 */
package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/custodia/wallet-service/internal/domain"
)

// WalletEventHandler handles the processing of wallet-related events.
type WalletEventHandler struct {
	provisioner *Provisioner
}

// NewWalletEventHandler creates a new instance of WalletEventHandler.
func NewWalletEventHandler(provisioner *Provisioner) *WalletEventHandler {
	return &WalletEventHandler{provisioner: provisioner}
}

// HandleUserVerifiedEvent provisions the default wallet set for a newly
// verified user. Provisioning is idempotent per network, so a redelivered
// event results in skips, never duplicates.
func (h *WalletEventHandler) HandleUserVerifiedEvent(body []byte) bool {
	var event domain.UserVerifiedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("Error unmarshaling user.verified event: %v", err)
		return true // Acknowledge malformed message.
	}

	if event.UserID == "" {
		log.Printf("user.verified event missing UserID; acking")
		return true
	}

	log.Printf("Processing user.verified event for user %s", event.UserID)
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	result := h.provisioner.Provision(ctx, domain.ProvisioningRequest{
		UserID:      event.UserID,
		GenerateAll: true,
	})

	if result.Summary.FailedCount > 0 {
		// Request redelivery only when a retry can change the outcome;
		// idempotency makes the redelivery retry just the missing networks.
		// Permanent failures (unsupported symbols, invariant violations) are
		// acked so a bad event cannot loop hot through the queue forever.
		if hasTransientFailure(result.Errors) {
			log.Printf("WARN: %d network(s) failed transiently during event-driven provisioning for user %s; requeueing",
				result.Summary.FailedCount, event.UserID)
			return false
		}
		log.Printf("WARN: %d network(s) failed permanently during event-driven provisioning for user %s; acking",
			result.Summary.FailedCount, event.UserID)
	}
	return true
}

func hasTransientFailure(errs []domain.ProvisioningError) bool {
	for _, e := range errs {
		switch e.Message {
		case msgKMSUnavailable, msgPersistence, msgCancelled:
			return true
		}
	}
	return false
}
