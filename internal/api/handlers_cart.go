/**
 * @description
 * Handlers for the product cart and the subscription plan selection. Cart
 * mutations refresh the live checkout amount so an open payment widget
 * tracks the cart.
 */
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/oz-TeamWizard/MealStack/internal/domain"
)

type cartResponse struct {
	Items     []domain.CartItem     `json:"items"`
	Total     int64                 `json:"total"`
	Selection *domain.PlanSelection `json:"selection,omitempty"`
}

func (h *Handler) cartSnapshot(userID uuid.UUID) cartResponse {
	resp := cartResponse{
		Items: h.cart.Items(userID),
		Total: h.cart.Total(userID),
	}
	if sel, ok := h.cart.Selection(userID); ok {
		resp.Selection = &sel
	}
	return resp
}

// handleGetCart returns the cart contents, total, and plan selection.
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	respondWithJSON(w, http.StatusOK, h.cartSnapshot(userID))
}

// handleAddCartItem adds a catalog product to the cart, merging quantities
// for an existing line. The price comes from the catalog, never the client.
func (h *Handler) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	product, ok := domain.FindProduct(req.ProductID)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Unknown product")
		return
	}
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	h.cart.AddItem(userID, domain.CartItem{
		ProductID: product.ID,
		Name:      product.Name,
		UnitPrice: product.UnitPrice,
		Quantity:  quantity,
	})
	h.checkout.RefreshAmount(r.Context(), userID)

	respondWithJSON(w, http.StatusOK, h.cartSnapshot(userID))
}

// handleUpdateCartItem sets the quantity for a product; zero or below
// removes it.
func (h *Handler) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	productID := chi.URLParam(r, "productID")
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.cart.UpdateQuantity(userID, productID, req.Quantity)
	h.checkout.RefreshAmount(r.Context(), userID)

	respondWithJSON(w, http.StatusOK, h.cartSnapshot(userID))
}

// handleRemoveCartItem removes a product from the cart.
func (h *Handler) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	h.cart.RemoveItem(userID, chi.URLParam(r, "productID"))
	h.checkout.RefreshAmount(r.Context(), userID)

	respondWithJSON(w, http.StatusOK, h.cartSnapshot(userID))
}

// handleClearCart empties the cart.
func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	h.cart.ClearCart(userID)
	h.checkout.RefreshAmount(r.Context(), userID)

	respondWithJSON(w, http.StatusOK, h.cartSnapshot(userID))
}

// handleSelectSubscription sets the pending plan selection. The selection
// slot holds at most one plan; selecting again replaces it.
func (h *Handler) handleSelectSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		PlanID string `json:"plan_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	plan, ok := domain.FindPlan(req.PlanID)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Unknown plan")
		return
	}

	h.cart.SelectSubscription(userID, plan)
	h.checkout.RefreshAmount(r.Context(), userID)

	respondWithJSON(w, http.StatusOK, h.cartSnapshot(userID))
}

// handleClearSubscription clears the pending plan selection.
func (h *Handler) handleClearSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	h.cart.ClearSubscription(userID)
	h.checkout.RefreshAmount(r.Context(), userID)

	respondWithJSON(w, http.StatusOK, h.cartSnapshot(userID))
}
