/**
 * @description
 * This package enforces the service's hard security invariant: no private key
 * material is ever persisted or logged. Every candidate record is checked
 * against a fixed forbidden-field list before it may reach storage, and audit
 * payloads are scrubbed through the same list as defense in depth.
 *
 * @notes
 * - All functions are pure and safe for concurrent use without locking.
 * - Candidates are built from the fixed allow-list of WalletRecord fields via
 *   CandidateFromRecord, so a renamed or nested sensitive field cannot slip
 *   past the check by bypassing the schema.
 */
package validator

import (
	"strings"

	"github.com/custodia/wallet-service/internal/domain"
)

// forbiddenFields is the fixed list of field names that must never appear in
// a persisted or logged record. Matching is case-insensitive and ignores
// underscores, so "privateKey", "private_key" and "PRIVATE-KEY" all hit.
var forbiddenFields = []string{
	"privatekey",
	"mnemonic",
	"seed",
	"seedphrase",
	"secretkey",
	"secret",
	"passphrase",
	"wif",
}

// requiredFields must all be present and non-empty in a wallet candidate.
var requiredFields = []string{"user_id", "address", "currency"}

func normalize(field string) string {
	field = strings.ToLower(field)
	field = strings.ReplaceAll(field, "_", "")
	field = strings.ReplaceAll(field, "-", "")
	return field
}

func forbidden(field string) bool {
	n := normalize(field)
	for _, f := range forbiddenFields {
		if n == f {
			return true
		}
	}
	return false
}

// Validate checks the exact field set about to be persisted. It returns false
// with the offending field name on the first forbidden field found (searching
// nested maps as well), or on a missing required field. A false result is a
// hard stop: the caller must not persist or log the candidate.
func Validate(candidate map[string]any) (bool, string) {
	if field, ok := findForbidden(candidate); ok {
		return false, field
	}
	for _, req := range requiredFields {
		v, ok := candidate[req]
		if !ok {
			return false, req
		}
		if s, isString := v.(string); isString && s == "" {
			return false, req
		}
	}
	return true, ""
}

func findForbidden(candidate map[string]any) (string, bool) {
	for field, value := range candidate {
		if forbidden(field) {
			return field, true
		}
		if nested, ok := value.(map[string]any); ok {
			if inner, found := findForbidden(nested); found {
				return field + "." + inner, true
			}
		}
	}
	return "", false
}

// CandidateFromRecord builds the candidate field set from the fixed allow-list
// of persisted WalletRecord fields. This is the only way orchestrator records
// enter validation, so the persisted schema is checked at compile time.
func CandidateFromRecord(rec domain.WalletRecord) map[string]any {
	return map[string]any{
		"id":         rec.ID,
		"user_id":    rec.UserID,
		"name":       rec.Name,
		"address":    rec.Address,
		"currency":   rec.Currency,
		"balance":    rec.Balance,
		"xpub":       rec.XPub,
		"kms_id":     rec.KMSID,
		"created_at": rec.CreatedAt,
		"updated_at": rec.UpdatedAt,
	}
}

// Scrub returns a copy of details with every forbidden field dropped,
// recursing into nested maps. Values are never truncated or rewritten; an
// offending field is removed entirely.
func Scrub(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for field, value := range details {
		if forbidden(field) {
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			out[field] = Scrub(nested)
			continue
		}
		out[field] = value
	}
	return out
}
