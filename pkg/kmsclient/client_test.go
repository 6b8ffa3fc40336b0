package kmsclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateWallet_ReturnsPublicMaterial(t *testing.T) {
	var gotPath, gotAPIKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("x-api-key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"id":"kms-1","network":"ETH","address":"0xabc"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	material, err := client.GenerateWallet(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("GenerateWallet returned error: %v", err)
	}
	if material.Address != "0xabc" || material.KMSID != "kms-1" {
		t.Fatalf("unexpected material: %+v", material)
	}
	if gotPath != "/v1/wallets" {
		t.Fatalf("expected call to /v1/wallets, got %s", gotPath)
	}
	if gotAPIKey != "test-key" {
		t.Fatalf("expected api key header to be sent, got %q", gotAPIKey)
	}
}

func TestGenerateWallet_FailsClosedOnPrivateKeyInResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"id":"kms-1","network":"ETH","address":"0xabc","private_key":"deadbeef"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	material, err := client.GenerateWallet(context.Background(), "ETH")
	if !errors.Is(err, ErrKMSMalformedResponse) {
		t.Fatalf("expected ErrKMSMalformedResponse, got %v", err)
	}
	if material != nil {
		t.Fatal("expected the whole response to be discarded")
	}
}

func TestGenerateWallet_MissingAddressMaterialIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"id":"kms-1","network":"ETH"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	if _, err := client.GenerateWallet(context.Background(), "ETH"); !errors.Is(err, ErrKMSMalformedResponse) {
		t.Fatalf("expected ErrKMSMalformedResponse, got %v", err)
	}
}

func TestGenerateWallet_XPubOnlyResponseIsAccepted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"id":"kms-2","network":"BTC","xpub":"xpub6Cexample"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	material, err := client.GenerateWallet(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("GenerateWallet returned error: %v", err)
	}
	if material.XPub != "xpub6Cexample" || material.Address != "" {
		t.Fatalf("unexpected material: %+v", material)
	}
}

func TestGenerateWallet_NonSuccessStatusIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	if _, err := client.GenerateWallet(context.Background(), "ETH"); !errors.Is(err, ErrKMSUnavailable) {
		t.Fatalf("expected ErrKMSUnavailable, got %v", err)
	}
}

func TestGenerateWallet_UndecodableBodyIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	if _, err := client.GenerateWallet(context.Background(), "ETH"); !errors.Is(err, ErrKMSMalformedResponse) {
		t.Fatalf("expected ErrKMSMalformedResponse, got %v", err)
	}
}

func TestGenerateWallet_UnreachableProviderIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := NewClient(server.URL, "test-key")
	if _, err := client.GenerateWallet(context.Background(), "ETH"); !errors.Is(err, ErrKMSUnavailable) {
		t.Fatalf("expected ErrKMSUnavailable, got %v", err)
	}
}

func TestDeriveAddress_ReturnsChildAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/addresses/derive" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"address":"bc1qchild"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	address, err := client.DeriveAddress(context.Background(), "xpub6Cexample", 0)
	if err != nil {
		t.Fatalf("DeriveAddress returned error: %v", err)
	}
	if address != "bc1qchild" {
		t.Fatalf("expected derived child address, got %q", address)
	}
}

func TestDeriveAddress_EmptyAddressIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	if _, err := client.DeriveAddress(context.Background(), "xpub6Cexample", 0); !errors.Is(err, ErrKMSMalformedResponse) {
		t.Fatalf("expected ErrKMSMalformedResponse, got %v", err)
	}
}

func TestHealthCheck_ReflectsProviderStatus(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	if !client.HealthCheck(context.Background()) {
		t.Fatal("expected healthy provider to report true")
	}

	healthy = false
	if client.HealthCheck(context.Background()) {
		t.Fatal("expected unhealthy provider to report false")
	}
}
