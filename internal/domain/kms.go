/**
 * @description
 * This file defines the Go structs that map to the wire contract of the
 * external KMS provider's wallet endpoints.
 *
 * @notes
 * - These structs are used by the KMS client to serialize requests and
 *   deserialize responses for wallet generation and address derivation.
 * - The expected contract never includes a private key field. The client
 *   treats any response that carries one as malformed and discards it.
 */
package domain

// GenerateWalletRequest is the payload sent to the provider's per-network
// wallet-generation endpoint. It carries only the network identifier.
type GenerateWalletRequest struct {
	Network string `json:"network"`
}

// GenerateWalletResponse is the provider's response for a generated wallet.
// Either Address or XPub is populated depending on the network family.
type GenerateWalletResponse struct {
	Data struct {
		ID         string `json:"id"`
		Network    string `json:"network"`
		Address    string `json:"address,omitempty"`
		XPub       string `json:"xpub,omitempty"`
		PublicKey  string `json:"public_key,omitempty"`
		PrivateKey string `json:"private_key,omitempty"` // Never expected; presence fails the response closed.
	} `json:"data"`
}

// DeriveAddressRequest asks the provider to derive a child address from an
// extended public key at the given index.
type DeriveAddressRequest struct {
	XPub  string `json:"xpub"`
	Index uint32 `json:"index"`
}

// DeriveAddressResponse carries the derived address.
type DeriveAddressResponse struct {
	Data struct {
		Address string `json:"address"`
	} `json:"data"`
}

// WalletMaterial is what the KMS client hands back to the orchestrator: only
// public material and an opaque reference into the provider.
type WalletMaterial struct {
	Address string
	XPub    string
	KMSID   string
}
