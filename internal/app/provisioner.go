/**
 * @description
 * This file contains the wallet provisioning orchestrator, the core business
 * logic of the wallet-service. A provisioning request fans out over the
 * requested networks with bounded concurrency, calling the external KMS per
 * network and persisting each validated result.
 *
 * Key features:
 * - Idempotent per network: an existing (user, currency) record is a benign
 *   skip, decided by the store's unique constraint rather than the pre-check.
 * - Partial-failure tolerant: one network's failure never blocks or rolls
 *   back another network's success, and the batch always returns a result.
 * - Every candidate record passes the security invariant validator before it
 *   may reach storage; a violation is fatal for that network and audited.
 *
 * @dependencies
 * - context, errors, fmt, log, sync, time: Standard Go libraries.
 * - github.com/google/uuid: For wallet record IDs.
 * - internal/domain, internal/store, internal/validator: Domain models, data
 *   access and invariant enforcement.
 * - pkg/kmsclient, pkg/rabbitmq: For external service communication.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia/wallet-service/internal/audit"
	"github.com/custodia/wallet-service/internal/domain"
	"github.com/custodia/wallet-service/internal/store"
	"github.com/custodia/wallet-service/internal/validator"
	"github.com/custodia/wallet-service/pkg/kmsclient"
	"github.com/custodia/wallet-service/pkg/rabbitmq"
)

const (
	defaultMaxInFlight  = 4
	defaultRetryBackoff = 500 * time.Millisecond

	// Error codes surfaced in per-network result entries.
	msgNetworkUnsupported = "NetworkUnsupported"
	msgKMSUnavailable     = "KMSUnavailable"
	msgKMSMalformed       = "KMSMalformedResponse"
	msgValidation         = "ValidationError"
	msgPersistence        = "PersistenceError"
	msgCancelled          = "cancelled"
)

// KMSProvider is the slice of the KMS client the provisioner depends on.
type KMSProvider interface {
	GenerateWallet(ctx context.Context, network string) (*domain.WalletMaterial, error)
	DeriveAddress(ctx context.Context, xpub string, index uint32) (string, error)
}

// Auditor records security-relevant events.
type Auditor interface {
	Record(eventType string, details map[string]any)
}

// Provisioner orchestrates per-network wallet generation for a user.
type Provisioner struct {
	wallets      store.WalletRepository
	kms          KMSProvider
	auditLog     Auditor
	publisher    rabbitmq.Publisher
	maxInFlight  int
	retryBackoff time.Duration
}

// NewProvisioner creates a new provisioning orchestrator. maxInFlight caps
// concurrent in-flight KMS calls per batch; values below one fall back to the
// default.
func NewProvisioner(wallets store.WalletRepository, kms KMSProvider, auditLog Auditor, publisher rabbitmq.Publisher, maxInFlight int) *Provisioner {
	if maxInFlight < 1 {
		maxInFlight = defaultMaxInFlight
	}
	return &Provisioner{
		wallets:      wallets,
		kms:          kms,
		auditLog:     auditLog,
		publisher:    publisher,
		maxInFlight:  maxInFlight,
		retryBackoff: defaultRetryBackoff,
	}
}

// networkOutcome carries one network's result back from its worker.
type networkOutcome struct {
	record *domain.WalletRecord
	err    *domain.ProvisioningError
}

// Provision fans the request out over the requested networks and aggregates
// whatever completed. The batch never fails as a whole: cancellations and
// per-network errors are reported inside the returned result.
func (p *Provisioner) Provision(ctx context.Context, req domain.ProvisioningRequest) *domain.ProvisioningResult {
	networks := req.Networks
	if req.GenerateAll || len(networks) == 0 {
		networks = domain.SupportedNetworkSymbols()
	}

	log.Printf("Provisioning %d network(s) for user %s", len(networks), req.UserID)

	outcomes := make(chan networkOutcome, len(networks))
	sem := make(chan struct{}, p.maxInFlight)
	var wg sync.WaitGroup

	for _, symbol := range networks {
		// A cancelled batch still returns a well-formed result: networks that
		// never started are reported as cancelled, not dropped.
		select {
		case <-ctx.Done():
			outcomes <- networkOutcome{err: &domain.ProvisioningError{Network: symbol, Message: msgCancelled}}
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes <- p.provisionNetwork(ctx, req.UserID, symbol)
		}(symbol)
	}

	wg.Wait()
	close(outcomes)

	result := &domain.ProvisioningResult{
		Generated: []domain.WalletRecord{},
		Errors:    []domain.ProvisioningError{},
	}
	for outcome := range outcomes {
		if outcome.record != nil {
			result.Generated = append(result.Generated, *outcome.record)
		}
		if outcome.err != nil {
			result.Errors = append(result.Errors, *outcome.err)
		}
	}
	result.Summary = domain.ProvisioningSummary{
		GeneratedCount: len(result.Generated),
		FailedCount:    len(result.Errors),
		TotalRequested: len(networks),
	}

	if len(result.Generated) > 0 {
		p.publishProvisioned(req.UserID, result)
	}

	log.Printf("Provisioning finished for user %s: %d generated, %d failed, %d requested",
		req.UserID, result.Summary.GeneratedCount, result.Summary.FailedCount, result.Summary.TotalRequested)
	return result
}

// provisionNetwork runs the full pipeline for one network. A nil outcome on
// both fields means an idempotent skip.
func (p *Provisioner) provisionNetwork(ctx context.Context, userID, symbol string) networkOutcome {
	fail := func(message string) networkOutcome {
		return networkOutcome{err: &domain.ProvisioningError{Network: symbol, Message: message}}
	}

	if ctx.Err() != nil {
		return fail(msgCancelled)
	}

	network, supported := domain.ResolveNetwork(symbol)
	if !supported {
		p.auditLog.Record(audit.EventProvisionFailed, map[string]any{
			"user_id": userID, "network": symbol, "reason": msgNetworkUnsupported,
		})
		return fail(msgNetworkUnsupported)
	}

	// Fast-path idempotency check. The store's unique constraint remains the
	// source of truth; this only avoids a pointless KMS round trip.
	exists, err := p.wallets.Exists(ctx, userID, network.Symbol)
	if err != nil {
		log.Printf("ERROR: Failed existence check for user %s network %s: %v", userID, network.Symbol, err)
		return fail(msgPersistence)
	}
	if exists {
		p.auditLog.Record(audit.EventWalletSkipped, map[string]any{
			"user_id": userID, "network": network.Symbol,
		})
		return networkOutcome{}
	}

	material, err := p.generateWithRetry(ctx, network.Symbol)
	if err != nil {
		if ctx.Err() != nil {
			return fail(msgCancelled)
		}
		log.Printf("ERROR: KMS wallet generation failed for user %s network %s: %v", userID, network.Symbol, err)
		p.auditLog.Record(audit.EventProvisionFailed, map[string]any{
			"user_id": userID, "network": network.Symbol, "reason": kmsErrorCode(err),
		})
		return fail(kmsErrorCode(err))
	}

	address := material.Address
	if network.RequiresDerivation && address == "" {
		address, err = p.kms.DeriveAddress(ctx, material.XPub, 0)
		if err != nil {
			log.Printf("ERROR: Address derivation failed for user %s network %s: %v", userID, network.Symbol, err)
			p.auditLog.Record(audit.EventProvisionFailed, map[string]any{
				"user_id": userID, "network": network.Symbol, "reason": kmsErrorCode(err),
			})
			return fail(kmsErrorCode(err))
		}
	}

	now := time.Now().UTC()
	record := domain.WalletRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      fmt.Sprintf("%s Wallet", network.Name),
		Address:   address,
		Currency:  network.Symbol,
		XPub:      material.XPub,
		KMSID:     material.KMSID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Hard stop on invariant violations: the candidate must not be persisted
	// or logged, and the violation is surfaced, never swallowed.
	if ok, violated := validator.Validate(validator.CandidateFromRecord(record)); !ok {
		p.auditLog.Record(audit.EventSecurityViolation, map[string]any{
			"user_id": userID, "network": network.Symbol, "field": violated,
		})
		return fail(fmt.Sprintf("%s: %s", msgValidation, violated))
	}

	if err := p.wallets.Insert(ctx, &record); err != nil {
		if errors.Is(err, store.ErrWalletExists) {
			// Lost the race against a concurrent batch; the winner's record
			// stands and this is a skip, not an error.
			p.auditLog.Record(audit.EventWalletSkipped, map[string]any{
				"user_id": userID, "network": network.Symbol,
			})
			return networkOutcome{}
		}
		log.Printf("ERROR: Failed to persist wallet for user %s network %s: %v", userID, network.Symbol, err)
		p.auditLog.Record(audit.EventProvisionFailed, map[string]any{
			"user_id": userID, "network": network.Symbol, "reason": msgPersistence,
		})
		return fail(msgPersistence)
	}

	p.auditLog.Record(audit.EventWalletProvisioned, map[string]any{
		"user_id": userID, "network": network.Symbol, "kms_id": record.KMSID,
	})
	return networkOutcome{record: &record}
}

// generateWithRetry performs at most one bounded retry on provider
// unavailability. Anything else surfaces immediately; retry amplification
// against a struggling provider is worse than a reported failure.
func (p *Provisioner) generateWithRetry(ctx context.Context, symbol string) (*domain.WalletMaterial, error) {
	material, err := p.kms.GenerateWallet(ctx, symbol)
	if err == nil || !errors.Is(err, kmsclient.ErrKMSUnavailable) {
		return material, err
	}

	select {
	case <-ctx.Done():
		return nil, err
	case <-time.After(p.retryBackoff):
	}
	return p.kms.GenerateWallet(ctx, symbol)
}

func kmsErrorCode(err error) string {
	switch {
	case errors.Is(err, kmsclient.ErrKMSMalformedResponse):
		return msgKMSMalformed
	case errors.Is(err, kmsclient.ErrKMSUnavailable):
		return msgKMSUnavailable
	default:
		return msgKMSUnavailable
	}
}

func (p *Provisioner) publishProvisioned(userID string, result *domain.ProvisioningResult) {
	if p.publisher == nil {
		return
	}
	networks := make([]string, 0, len(result.Generated))
	for _, rec := range result.Generated {
		networks = append(networks, rec.Currency)
	}
	event := domain.WalletsProvisionedEvent{
		UserID:         userID,
		Networks:       networks,
		GeneratedCount: result.Summary.GeneratedCount,
		FailedCount:    result.Summary.FailedCount,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.publisher.Publish(ctx, "wallet_events", "wallet.provisioned", event); err != nil {
		log.Printf("WARN: Failed to publish wallet.provisioned event for user %s: %v", userID, err)
	}
}
