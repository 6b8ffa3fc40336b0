package validator

import (
	"testing"
	"time"

	"github.com/custodia/wallet-service/internal/domain"
)

func validRecord() domain.WalletRecord {
	now := time.Now().UTC()
	return domain.WalletRecord{
		ID:        "w-1",
		UserID:    "u1",
		Name:      "Bitcoin Wallet",
		Address:   "bc1qexample",
		Currency:  "BTC",
		XPub:      "xpub6Cexample",
		KMSID:     "kms-123",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestValidate_AcceptsAllowListedRecord(t *testing.T) {
	ok, violated := Validate(CandidateFromRecord(validRecord()))
	if !ok {
		t.Fatalf("expected valid record to pass, violated field %q", violated)
	}
}

func TestValidate_RejectsForbiddenFields(t *testing.T) {
	forbidden := []string{
		"private_key", "privateKey", "PRIVATE_KEY", "mnemonic", "seed",
		"seed_phrase", "secret_key", "secretKey", "passphrase", "wif",
	}
	for _, field := range forbidden {
		candidate := CandidateFromRecord(validRecord())
		candidate[field] = "super-sensitive"
		ok, violated := Validate(candidate)
		if ok {
			t.Fatalf("expected candidate with %q to be rejected", field)
		}
		if violated != field {
			t.Fatalf("expected violated field %q, got %q", field, violated)
		}
	}
}

func TestValidate_RejectsNestedForbiddenField(t *testing.T) {
	candidate := CandidateFromRecord(validRecord())
	candidate["metadata"] = map[string]any{"mnemonic": "abandon abandon"}
	ok, violated := Validate(candidate)
	if ok {
		t.Fatal("expected nested forbidden field to be rejected")
	}
	if violated != "metadata.mnemonic" {
		t.Fatalf("expected violated field metadata.mnemonic, got %q", violated)
	}
}

func TestValidate_RejectsMissingRequiredFields(t *testing.T) {
	for _, required := range []string{"user_id", "address", "currency"} {
		candidate := CandidateFromRecord(validRecord())
		delete(candidate, required)
		if ok, _ := Validate(candidate); ok {
			t.Fatalf("expected candidate missing %q to be rejected", required)
		}

		candidate = CandidateFromRecord(validRecord())
		candidate[required] = ""
		if ok, _ := Validate(candidate); ok {
			t.Fatalf("expected candidate with empty %q to be rejected", required)
		}
	}
}

func TestScrub_DropsForbiddenFieldsEntirely(t *testing.T) {
	details := map[string]any{
		"user_id":     "u1",
		"network":     "BTC",
		"private_key": "leaked",
		"nested":      map[string]any{"seed": "leaked", "kms_id": "kms-1"},
	}
	scrubbed := Scrub(details)

	if _, present := scrubbed["private_key"]; present {
		t.Fatal("expected private_key to be dropped")
	}
	nested, ok := scrubbed["nested"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested map to survive, got %T", scrubbed["nested"])
	}
	if _, present := nested["seed"]; present {
		t.Fatal("expected nested seed to be dropped")
	}
	if nested["kms_id"] != "kms-1" {
		t.Fatal("expected benign nested field to survive")
	}
	if scrubbed["user_id"] != "u1" || scrubbed["network"] != "BTC" {
		t.Fatal("expected benign fields to survive scrubbing")
	}
	// The input map is left untouched.
	if details["private_key"] != "leaked" {
		t.Fatal("expected Scrub to copy, not mutate, the input")
	}
}

func FuzzValidate(f *testing.F) {
	f.Add("private_key", "value")
	f.Add("Private-Key", "value")
	f.Add("mnemonic", "abandon")
	f.Add("balance", "100")
	f.Add("notes", "hello")

	f.Fuzz(func(t *testing.T, field, value string) {
		candidate := CandidateFromRecord(validRecord())
		candidate[field] = value

		ok, violated := Validate(candidate)
		if forbidden(field) {
			if ok {
				t.Fatalf("forbidden field %q passed validation", field)
			}
			if violated != field {
				t.Fatalf("expected violated field %q, got %q", field, violated)
			}
			return
		}
		// A benign extra field must never mask the allow-listed content.
		if !ok && forbidden(violated) {
			t.Fatalf("benign field %q reported forbidden violation %q", field, violated)
		}
	})
}
