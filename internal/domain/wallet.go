/**
 * @description
 * This file defines the core domain model for a provisioned wallet within the
 * wallet-service. It represents the structure of a wallet as stored in our own
 * database, decoupled from the KMS provider's representation.
 *
 * @notes
 * - The persisted field set is a fixed allow-list. Anything outside of it (and
 *   in particular any private key material) must never reach this struct; the
 *   validator package enforces that boundary before every write.
 * - `KMSID` is an opaque reference into the external KMS; the service never
 *   holds the keys themselves.
 */
package domain

import "time"

// WalletRecord represents one provisioned address for a (user, currency) pair.
type WalletRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Currency  string    `json:"currency"`
	Balance   int64     `json:"balance"` // Stored in the currency's smallest unit.
	XPub      string    `json:"xpub,omitempty"`
	KMSID     string    `json:"kms_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Network describes one supported blockchain network.
type Network struct {
	Symbol string
	Name   string
	// RequiresDerivation marks network families where the KMS hands back an
	// extended public key and the address must be derived from it.
	RequiresDerivation bool
}

// SupportedNetworks is the fixed table of networks this service can provision.
// Symbols not present here are rejected per network, never for the whole batch.
var SupportedNetworks = []Network{
	{Symbol: "BTC", Name: "Bitcoin", RequiresDerivation: true},
	{Symbol: "ETH", Name: "Ethereum"},
	{Symbol: "TRX", Name: "Tron"},
	{Symbol: "SOL", Name: "Solana"},
	{Symbol: "MATIC", Name: "Polygon"},
	{Symbol: "BNB", Name: "BNB Chain"},
	{Symbol: "LTC", Name: "Litecoin", RequiresDerivation: true},
	{Symbol: "DOGE", Name: "Dogecoin", RequiresDerivation: true},
	{Symbol: "XRP", Name: "Ripple"},
	{Symbol: "ADA", Name: "Cardano"},
}

// ResolveNetwork looks up a network by symbol. The second return value is
// false for unsupported symbols.
func ResolveNetwork(symbol string) (Network, bool) {
	for _, n := range SupportedNetworks {
		if n.Symbol == symbol {
			return n, true
		}
	}
	return Network{}, false
}

// SupportedNetworkSymbols returns the symbols of every supported network.
func SupportedNetworkSymbols() []string {
	symbols := make([]string, 0, len(SupportedNetworks))
	for _, n := range SupportedNetworks {
		symbols = append(symbols, n.Symbol)
	}
	return symbols
}

// ProvisioningRequest asks for wallets to be generated for a user. An empty
// network list (or GenerateAll) means every supported network.
type ProvisioningRequest struct {
	UserID      string   `json:"user_id"`
	Networks    []string `json:"networks,omitempty"`
	GenerateAll bool     `json:"generate_all,omitempty"`
}

// ProvisioningError describes a single network's failure within a batch.
type ProvisioningError struct {
	Network string `json:"network"`
	Message string `json:"message"`
}

// ProvisioningSummary aggregates the outcome counts of a batch.
type ProvisioningSummary struct {
	GeneratedCount int `json:"generated_count"`
	FailedCount    int `json:"failed_count"`
	TotalRequested int `json:"total_requested"`
}

// ProvisioningResult is the value object returned for every provisioning
// batch. The batch as a whole never fails; partial failure is signalled only
// by entries in Errors. It is never mutated after being returned.
type ProvisioningResult struct {
	Generated []WalletRecord      `json:"generated"`
	Errors    []ProvisioningError `json:"errors"`
	Summary   ProvisioningSummary `json:"summary"`
}
