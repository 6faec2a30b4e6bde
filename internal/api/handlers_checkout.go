/**
 * @description
 * Handlers for the checkout flow: session creation (which drives the
 * payment widget through its load/render sequence), payment requests, and
 * the provider redirect endpoints that settle or fail the order.
 */
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/oz-TeamWizard/MealStack/internal/app"
	"github.com/oz-TeamWizard/MealStack/internal/domain"
	"github.com/oz-TeamWizard/MealStack/internal/store"
)

// handleCreateCheckoutSession starts (or restarts) the user's checkout
// session. Restarting supersedes any in-flight load sequence.
func (h *Handler) handleCreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		OrderType string `json:"order_type"`
		Theme     string `json:"theme"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	user, err := h.users.FindUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		h.logger.Error("failed to load user for checkout", "user_id", userID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to start checkout")
		return
	}

	session, err := h.checkout.Begin(r.Context(), user, req.OrderType, req.Theme)
	if err != nil {
		if errors.Is(err, app.ErrSuperseded) {
			respondWithError(w, http.StatusConflict, "Checkout was restarted")
			return
		}
		h.logger.Error("checkout begin failed", "user_id", userID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to start checkout")
		return
	}

	respondWithJSON(w, http.StatusOK, session)
}

// handleGetCheckoutSession returns the current session when the path ID
// matches it.
func (h *Handler) handleGetCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid session id")
		return
	}

	session, err := h.checkout.Session(userID)
	if err != nil || session.ID != sessionID {
		respondWithError(w, http.StatusNotFound, "Checkout session not found")
		return
	}

	respondWithJSON(w, http.StatusOK, session)
}

// handlePay submits the delivery form and requests payment for the current
// session.
func (h *Handler) handlePay(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid session id")
		return
	}

	var delivery domain.DeliveryInfo
	if err := json.NewDecoder(r.Body).Decode(&delivery); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.checkout.Session(userID)
	if err != nil || session.ID != sessionID {
		respondWithError(w, http.StatusNotFound, "Checkout session not found")
		return
	}

	user, err := h.users.FindUserByID(r.Context(), userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}

	outcome, err := h.checkout.Pay(r.Context(), user, delivery)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrSessionNotFound):
			respondWithError(w, http.StatusNotFound, "Checkout session not found")
		case errors.Is(err, app.ErrNotReady):
			respondWithError(w, http.StatusConflict, "Checkout session is not ready for payment")
		default:
			h.logger.Error("payment request failed", "user_id", userID, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Payment request failed")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, outcome)
}

// handleCheckoutSuccess settles the order after the provider redirects the
// customer back. The redirect itself is the only success signal; the stored
// amount must match the redirected one.
func (h *Handler) handleCheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(r.URL.Query().Get("orderId"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid orderId")
		return
	}
	amount, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	order, err := h.settlement.ConfirmSuccess(r.Context(), orderID, amount)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrOrderNotFound):
			respondWithError(w, http.StatusNotFound, "Order not found")
		case errors.Is(err, app.ErrOrderNotPending):
			respondWithError(w, http.StatusConflict, "Order already settled")
		case errors.Is(err, app.ErrAmountMismatch):
			respondWithError(w, http.StatusBadRequest, "Amount mismatch")
		default:
			h.logger.Error("settlement failed", "order_id", orderID, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Settlement failed")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, order)
}

// handleCheckoutFail records the provider's failure redirect. The payload
// echoes the provider code and message for display; an orderId, when
// present, marks the pending order failed.
func (h *Handler) handleCheckoutFail(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	message := r.URL.Query().Get("message")

	if rawOrderID := r.URL.Query().Get("orderId"); rawOrderID != "" {
		if orderID, err := uuid.Parse(rawOrderID); err == nil {
			if err := h.settlement.RecordFailure(r.Context(), orderID); err != nil && !errors.Is(err, store.ErrOrderNotFound) {
				h.logger.Warn("failed to record payment failure", "order_id", orderID, "error", err)
			}
		}
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"code":    code,
		"message": message,
	})
}
