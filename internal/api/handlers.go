/**
 * @description
 * This file contains the shared handler plumbing for the commerce service.
 * Individual endpoint handlers live in the handlers_*.go files in this
 * package; they parse requests, call the app layer, and write responses
 * through the helpers here.
 */
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/oz-TeamWizard/MealStack/internal/app"
	"github.com/oz-TeamWizard/MealStack/internal/store"
)

// Handler holds the application services that handlers interact with.
type Handler struct {
	auth       *app.AuthService
	cart       *app.CartService
	subs       *app.SubscriptionService
	checkout   *app.CheckoutOrchestrator
	settlement *app.CheckoutSettlement
	users      store.UserRepository
	orders     store.OrderRepository
	logger     *slog.Logger
}

// NewHandler creates a new Handler with the given services.
func NewHandler(
	auth *app.AuthService,
	cart *app.CartService,
	subs *app.SubscriptionService,
	checkout *app.CheckoutOrchestrator,
	settlement *app.CheckoutSettlement,
	users store.UserRepository,
	orders store.OrderRepository,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		auth:       auth,
		cart:       cart,
		subs:       subs,
		checkout:   checkout,
		settlement: settlement,
		users:      users,
		orders:     orders,
		logger:     logger,
	}
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithError writes a JSON error payload.
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
