/**
 * @description
 * This file sets up the HTTP router for the wallet-service using the `chi`
 * routing library. It defines all the API routes and applies necessary
 * middleware.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: The routing library.
 * - github.com/go-chi/cors: CORS middleware for browser clients.
 * - The service's internal packages for handlers and middleware.
 */
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/custodia/wallet-service/internal/config"
	"github.com/custodia/wallet-service/pkg/middleware"
)

// RouterDeps bundles the dependencies the router wires into handlers.
type RouterDeps struct {
	Wallets  *WalletHandler
	Security *SecurityHandler
	KMS      HealthChecker
}

// NewRouter creates and configures a new HTTP router.
func NewRouter(cfg *config.Config, deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-User-Id"},
		MaxAge:         300,
	}))

	// Health check endpoint, including KMS provider reachability.
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		kmsHealthy := deps.KMS != nil && deps.KMS.HealthCheck(req.Context())
		status := http.StatusOK
		if !kmsHealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"healthy": status == http.StatusOK, "kms": kmsHealthy})
	})

	// Group routes that require authentication
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg))

		r.Route("/wallets", func(r chi.Router) {
			r.Post("/provision", deps.Wallets.Provision)
			r.Get("/", deps.Wallets.ListWallets)
		})

		r.Route("/security", func(r chi.Router) {
			r.Post("/pin", deps.Security.SetupPin)
			r.With(middleware.RateLimitMiddleware(cfg.PINVerifyRateLimit)).
				Post("/pin/verify", deps.Security.VerifyPin)
			r.Post("/biometric/enable", deps.Security.EnableBiometric)
			r.Post("/biometric/disable", deps.Security.DisableBiometric)
			r.Get("/status", deps.Security.Status)
			r.Post("/lock", deps.Security.Lock)
		})

		r.Get("/audit", deps.Security.ListAudit)
	})

	return r
}
