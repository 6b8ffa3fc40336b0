/**
 * @description
 * This file defines the HTTP handlers for the wallet-service's API endpoints.
 * Handlers are responsible for parsing requests, calling the appropriate
 * service method, and writing the response.
 *
 * @notes
 * - Wallet endpoints consult the credential gate first: a guarded session is
 *   rejected before any wallet data or provisioning is reachable.
 * - PIN verification failures map to dedicated status codes so the UI can
 *   distinguish "wrong PIN" from "locked out".
 *
 * @dependencies
 * - Standard Go libraries for HTTP, JSON, etc.
 * - The service's internal packages for app logic and middleware.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/custodia/wallet-service/internal/app"
	"github.com/custodia/wallet-service/internal/audit"
	"github.com/custodia/wallet-service/internal/domain"
	"github.com/custodia/wallet-service/internal/store"
	"github.com/custodia/wallet-service/pkg/middleware"
)

// HealthChecker reports external provider reachability for the health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// WalletHandler holds the dependencies for wallet-related handlers.
type WalletHandler struct {
	provisioner *app.Provisioner
	wallets     store.WalletRepository
	gate        *app.CredentialGate
}

// SecurityHandler holds the dependencies for PIN/biometric handlers.
type SecurityHandler struct {
	gate     *app.CredentialGate
	auditLog *audit.Log
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(provisioner *app.Provisioner, wallets store.WalletRepository, gate *app.CredentialGate) *WalletHandler {
	return &WalletHandler{provisioner: provisioner, wallets: wallets, gate: gate}
}

// NewSecurityHandler creates a new SecurityHandler.
func NewSecurityHandler(gate *app.CredentialGate, auditLog *audit.Log) *SecurityHandler {
	return &SecurityHandler{gate: gate, auditLog: auditLog}
}

// ProvisionRequest defines the expected JSON body for provisioning wallets.
type ProvisionRequest struct {
	Networks    []string `json:"networks,omitempty"`
	GenerateAll bool     `json:"generate_all,omitempty"`
}

// Provision handles fan-out wallet generation for the authenticated user.
func (h *WalletHandler) Provision(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if !h.gate.RequireAuth(r.Context(), userID) {
		writeError(w, http.StatusForbidden, "Authentication required. Unlock with PIN or biometrics first.")
		return
	}

	var req ProvisionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	result := h.provisioner.Provision(r.Context(), domain.ProvisioningRequest{
		UserID:      userID,
		Networks:    req.Networks,
		GenerateAll: req.GenerateAll,
	})
	writeJSON(w, http.StatusOK, result)
}

// ListWallets handles listing all wallets for the authenticated user.
func (h *WalletHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if !h.gate.RequireAuth(r.Context(), userID) {
		writeError(w, http.StatusForbidden, "Authentication required. Unlock with PIN or biometrics first.")
		return
	}

	wallets, err := h.wallets.ListByUserID(r.Context(), userID)
	if err != nil {
		log.Printf("ERROR: Failed to list wallets for user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Unable to list wallets")
		return
	}
	if wallets == nil {
		wallets = []domain.WalletRecord{}
	}
	writeJSON(w, http.StatusOK, wallets)
}

// PINRequest defines the expected JSON body for PIN setup and verification.
type PINRequest struct {
	PIN string `json:"pin"`
}

// SetupPin handles creating or replacing the user's PIN.
func (h *SecurityHandler) SetupPin(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req PINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.gate.SetupPin(r.Context(), userID, req.PIN); err != nil {
		if errors.Is(err, app.ErrInvalidPINFormat) {
			writeError(w, http.StatusBadRequest, "PIN must be exactly 6 numeric digits.")
			return
		}
		log.Printf("ERROR: Failed to set up PIN for user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Unable to set up PIN")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pin_enabled": true})
}

// VerifyPin handles a PIN verification attempt.
func (h *SecurityHandler) VerifyPin(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req PINRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.gate.VerifyPin(r.Context(), userID, req.PIN)
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true})
		return
	}

	var lockErr *app.LockoutError
	var pinErr *app.InvalidPINError
	switch {
	case errors.Is(err, app.ErrPINNotSet):
		writeError(w, http.StatusPreconditionFailed, "PIN is not set. Please create your PIN first.")
	case errors.As(err, &lockErr):
		writeJSON(w, http.StatusLocked, map[string]any{
			"authenticated": false,
			"locked_until":  lockErr.Until,
			"message":       "Too many incorrect PIN attempts. Please wait and try again.",
		})
	case errors.As(err, &pinErr):
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"authenticated":      false,
			"remaining_attempts": pinErr.RemainingAttempts,
			"message":            "Invalid PIN.",
		})
	default:
		log.Printf("ERROR: Failed to verify PIN for user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Unable to verify PIN")
	}
}

// EnableBiometric handles enabling the biometric method after a challenge.
func (h *SecurityHandler) EnableBiometric(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := h.gate.EnableBiometric(r.Context(), userID); err != nil {
		if errors.Is(err, app.ErrBiometricDenied) {
			writeError(w, http.StatusUnauthorized, "Biometric challenge failed.")
			return
		}
		log.Printf("ERROR: Failed to enable biometrics for user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Unable to enable biometrics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"biometric_enabled": true})
}

// DisableBiometric handles disabling the biometric method.
func (h *SecurityHandler) DisableBiometric(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := h.gate.DisableBiometric(r.Context(), userID); err != nil {
		log.Printf("ERROR: Failed to disable biometrics for user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Unable to disable biometrics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"biometric_enabled": false})
}

// Status reports the user's security configuration and gate state.
func (h *SecurityHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	cred, state, err := h.gate.Status(r.Context(), userID)
	if err != nil {
		log.Printf("ERROR: Failed to load security status for user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Unable to load security status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":             state,
		"pin_enabled":       cred.PINEnabled,
		"biometric_enabled": cred.BiometricEnabled,
		"locked_until":      cred.LockedUntil,
	})
}

// Lock drops the session back to guarded (logout / app backgrounded).
func (h *SecurityHandler) Lock(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	h.gate.Lock(userID)
	writeJSON(w, http.StatusOK, map[string]any{"state": h.gate.State(r.Context(), userID)})
}

// ListAudit returns the newest retained audit entries.
func (h *SecurityHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}
	writeJSON(w, http.StatusOK, h.auditLog.ListLimit(limit))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
