/**
 * @description
 * This file sets up the HTTP router for the commerce service using the
 * go-chi/chi router. It defines the API routes, applies middleware for
 * logging, CORS, and session authentication, and maps the routes to their
 * corresponding handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/oz-TeamWizard/MealStack/internal/app"
	"github.com/oz-TeamWizard/MealStack/internal/domain"
)

// NewRouter creates a new Chi router and registers the service routes.
func NewRouter(h *Handler, auth *app.AuthService) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "X-Session-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("MealStack commerce service is healthy"))
	})

	// The product and plan catalogs are public.
	r.Get("/products", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, domain.Products())
	})
	r.Get("/plans", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, domain.Plans())
	})

	// Login flows
	r.Post("/auth/send-code", h.handleSendCode)
	r.Post("/auth/verify-code", h.handleVerifyCode)
	r.Post("/auth/kakao", h.handleKakaoLogin)

	// Provider redirect targets; the provider navigates the customer's
	// browser here without a session.
	r.Get("/checkout/success", h.handleCheckoutSuccess)
	r.Get("/checkout/fail", h.handleCheckoutFail)

	// Protected routes that require a session
	r.Group(func(r chi.Router) {
		r.Use(SessionAuthMiddleware(auth))

		r.Get("/cart", h.handleGetCart)
		r.Post("/cart/items", h.handleAddCartItem)
		r.Put("/cart/items/{productID}", h.handleUpdateCartItem)
		r.Delete("/cart/items/{productID}", h.handleRemoveCartItem)
		r.Delete("/cart", h.handleClearCart)
		r.Put("/cart/subscription", h.handleSelectSubscription)
		r.Delete("/cart/subscription", h.handleClearSubscription)

		r.Get("/subscription", h.handleGetSubscription)
		r.Post("/subscription/pause", h.handlePauseSubscription)
		r.Post("/subscription/resume", h.handleResumeSubscription)
		r.Post("/subscription/cancel", h.handleCancelSubscription)
		r.Post("/subscription/skip", h.handleSkipDelivery)
		r.Put("/subscription/plan", h.handleChangePlan)
		r.Put("/subscription/schedule", h.handleUpdateDeliverySchedule)
		r.Put("/subscription/preferences", h.handleUpdateMenuPreferences)

		r.Post("/checkout/session", h.handleCreateCheckoutSession)
		r.Get("/checkout/session/{sessionID}", h.handleGetCheckoutSession)
		r.Post("/checkout/session/{sessionID}/pay", h.handlePay)

		r.Get("/orders", h.handleListOrders)
	})

	return r
}
