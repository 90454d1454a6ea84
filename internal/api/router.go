// Package api wires every handler package into one HTTP surface.
package api

import (
	"net/http"

	"github.com/laviou/backend/internal/auth"
	"github.com/laviou/backend/internal/concierge"
	"github.com/laviou/backend/internal/health"
	"github.com/laviou/backend/internal/items"
	"github.com/laviou/backend/internal/sharing"
)

type Router struct {
	mux               *http.ServeMux
	authService       *auth.Service
	authHandlers      *auth.Handlers
	itemHandlers      *items.Handlers
	sharingHandlers   *sharing.Handlers
	conciergeHandlers *concierge.Handlers
	healthHandlers    *health.Handler
}

type Config struct {
	AuthService       *auth.Service
	AuthHandlers      *auth.Handlers
	ItemHandlers      *items.Handlers
	SharingHandlers   *sharing.Handlers
	ConciergeHandlers *concierge.Handlers
	HealthHandlers    *health.Handler
}

func NewRouter(cfg *Config) *Router {
	r := &Router{
		mux:               http.NewServeMux(),
		authService:       cfg.AuthService,
		authHandlers:      cfg.AuthHandlers,
		itemHandlers:      cfg.ItemHandlers,
		sharingHandlers:   cfg.SharingHandlers,
		conciergeHandlers: cfg.ConciergeHandlers,
		healthHandlers:    cfg.HealthHandlers,
	}
	r.setupRoutes()
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) setupRoutes() {
	// Probes
	r.mux.HandleFunc("GET /health", r.healthHandlers.Liveness)
	r.mux.HandleFunc("GET /health/ready", r.healthHandlers.Readiness)

	// Auth routes (no auth required)
	r.mux.HandleFunc("POST /api/v1/auth/register", r.authHandlers.Register)
	r.mux.HandleFunc("POST /api/v1/auth/login", r.authHandlers.Login)
	r.mux.HandleFunc("POST /api/v1/auth/refresh", r.authHandlers.Refresh)
	r.mux.HandleFunc("POST /api/v1/auth/forgot-password", r.authHandlers.ForgotPassword)
	r.mux.HandleFunc("POST /api/v1/auth/verify-reset-otp", r.authHandlers.VerifyResetOTP)
	r.mux.HandleFunc("POST /api/v1/auth/reset-password", r.authHandlers.ResetPassword)

	// Auth routes (auth required)
	r.mux.HandleFunc("POST /api/v1/auth/logout", r.withAuth(r.authHandlers.Logout))
	r.mux.HandleFunc("GET /api/v1/auth/me", r.withAuth(r.authHandlers.Me))

	// Items. Lifecycle actions are registered before /items/{id} would be
	// ambiguous; the mux prefers the literal segment over the wildcard.
	r.mux.HandleFunc("GET /api/v1/items", r.withAuth(r.itemHandlers.List))
	r.mux.HandleFunc("POST /api/v1/items", r.withAuth(r.itemHandlers.Create))
	r.mux.HandleFunc("POST /api/v1/items/sell", r.withAuth(r.itemHandlers.Sell))
	r.mux.HandleFunc("POST /api/v1/items/gift", r.withAuth(r.itemHandlers.Gift))
	r.mux.HandleFunc("POST /api/v1/items/donate", r.withAuth(r.itemHandlers.Donate))
	r.mux.HandleFunc("GET /api/v1/items/{id}", r.withAuth(r.itemHandlers.Get))
	r.mux.HandleFunc("DELETE /api/v1/items/{id}", r.withAuth(r.itemHandlers.Delete))
	r.mux.HandleFunc("POST /api/v1/items/{id}/image", r.withAuth(r.itemHandlers.UploadImage))

	// Sharing
	r.mux.HandleFunc("GET /api/v1/sharing/{itemId}", r.withAuth(r.sharingHandlers.Get))
	r.mux.HandleFunc("PUT /api/v1/sharing", r.withAuth(r.sharingHandlers.Update))
	r.mux.HandleFunc("DELETE /api/v1/sharing/{itemId}/access/{email}", r.withAuth(r.sharingHandlers.RemoveAccess))

	// Concierge
	r.mux.HandleFunc("GET /api/v1/concierge", r.withAuth(r.conciergeHandlers.List))
	r.mux.HandleFunc("POST /api/v1/concierge", r.withAuth(r.conciergeHandlers.Create))
	r.mux.HandleFunc("GET /api/v1/concierge/{id}", r.withAuth(r.conciergeHandlers.Get))
	r.mux.HandleFunc("POST /api/v1/concierge/{id}/cancel", r.withAuth(r.conciergeHandlers.Cancel))
}

func (r *Router) withAuth(next http.HandlerFunc) http.HandlerFunc {
	protected := r.authService.Middleware(next)
	return func(w http.ResponseWriter, req *http.Request) {
		protected.ServeHTTP(w, req)
	}
}
