/**
 * @description
 * This package provides a client for the external custodial key-management
 * provider. It encapsulates the logic for making authenticated HTTP requests
 * to the provider's wallet-generation and address-derivation endpoints.
 *
 * Key features:
 * - Manages the API base URL and secret key.
 * - Surfaces transport failures and bad payloads as typed errors so the
 *   orchestrator can decide its own retry policy; the client never retries.
 * - Fails closed: a response carrying private key material is discarded and
 *   treated as malformed, whatever else it contains.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, io, net/http, time: Standard Go libraries.
 * - The service's internal domain package for KMS wire models.
 */
package kmsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/custodia/wallet-service/internal/domain"
)

const (
	// callTimeout bounds every provider call so one unresponsive network
	// cannot stall a provisioning batch indefinitely.
	callTimeout = 5 * time.Second

	maxBodyBytes = 1 << 20 // 1MiB
)

// Typed failures surfaced to the orchestrator.
var (
	// ErrKMSUnavailable covers transport errors, timeouts and non-2xx statuses.
	ErrKMSUnavailable = errors.New("kms provider unavailable")

	// ErrKMSMalformedResponse covers undecodable payloads, responses missing
	// both address and xpub, and responses that include private key material.
	ErrKMSMalformedResponse = errors.New("kms provider returned malformed response")
)

// Client is a client for the KMS provider API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new KMS API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: callTimeout,
		},
	}
}

// GenerateWallet calls the provider's wallet-generation endpoint for the
// network. The returned material contains only public data and an opaque
// provider reference.
func (c *Client) GenerateWallet(ctx context.Context, network string) (*domain.WalletMaterial, error) {
	url := fmt.Sprintf("%s/v1/wallets", c.baseURL)
	var resp domain.GenerateWalletResponse

	req := domain.GenerateWalletRequest{Network: network}
	if err := c.do(ctx, http.MethodPost, url, req, &resp); err != nil {
		return nil, err
	}

	// Fail closed: the contract never includes a private key. If one ever
	// shows up the whole response is untrusted and must be discarded.
	if resp.Data.PrivateKey != "" {
		log.Printf("ERROR: KMS response for network %s contained private key material; discarding", network)
		return nil, fmt.Errorf("%w: response included private key material", ErrKMSMalformedResponse)
	}
	if resp.Data.ID == "" || (resp.Data.Address == "" && resp.Data.XPub == "") {
		return nil, fmt.Errorf("%w: missing wallet reference or address material", ErrKMSMalformedResponse)
	}

	return &domain.WalletMaterial{
		Address: resp.Data.Address,
		XPub:    resp.Data.XPub,
		KMSID:   resp.Data.ID,
	}, nil
}

// DeriveAddress asks the provider to derive a child address from an extended
// public key. Used only for network families that hand back an xpub instead
// of a ready address.
func (c *Client) DeriveAddress(ctx context.Context, xpub string, index uint32) (string, error) {
	url := fmt.Sprintf("%s/v1/addresses/derive", c.baseURL)
	var resp domain.DeriveAddressResponse

	req := domain.DeriveAddressRequest{XPub: xpub, Index: index}
	if err := c.do(ctx, http.MethodPost, url, req, &resp); err != nil {
		return "", err
	}
	if resp.Data.Address == "" {
		return "", fmt.Errorf("%w: derivation returned no address", ErrKMSMalformedResponse)
	}
	return resp.Data.Address, nil
}

// HealthCheck reports whether the provider answers within the call timeout.
// It never blocks the caller beyond that ceiling.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/health", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// do is a helper function to make HTTP requests to the KMS provider API.
func (c *Client) do(ctx context.Context, method, url string, body, target interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKMSUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("KMS API returned non-success status %d for %s %s", resp.StatusCode, method, url)
		return fmt.Errorf("%w: status %d", ErrKMSUnavailable, resp.StatusCode)
	}

	if target != nil {
		if err := json.Unmarshal(respBody, target); err != nil {
			return fmt.Errorf("%w: %v", ErrKMSMalformedResponse, err)
		}
	}

	return nil
}
