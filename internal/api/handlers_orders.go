/**
 * @description
 * Handlers for order history.
 */
package api

import (
	"net/http"
)

// handleListOrders returns the user's payment attempts, newest first.
func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	orders, err := h.orders.ListOrdersByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list orders", "user_id", userID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}
