/**
 * @description
 * Handlers for subscription lifecycle management: pause, resume, cancel,
 * plan change, delivery schedule, menu preferences, and week skipping.
 */
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/oz-TeamWizard/MealStack/internal/app"
	"github.com/oz-TeamWizard/MealStack/internal/domain"
	"github.com/oz-TeamWizard/MealStack/internal/store"
)

// handleGetSubscription returns the user's subscription record.
func (h *Handler) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sub, err := h.subs.Get(r.Context(), userID)
	if err != nil {
		h.respondSubscriptionError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sub)
}

// handlePauseSubscription pauses the subscription, optionally for a fixed
// number of weeks (1-4) after which it auto-resumes.
func (h *Handler) handlePauseSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Weeks int `json:"weeks"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	var (
		sub *domain.Subscription
		err error
	)
	if req.Weeks > 0 {
		sub, err = h.subs.PauseWithPeriod(r.Context(), userID, req.Weeks)
	} else {
		sub, err = h.subs.Pause(r.Context(), userID)
	}
	if err != nil {
		h.respondSubscriptionError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sub)
}

// handleResumeSubscription resumes a paused subscription.
func (h *Handler) handleResumeSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sub, err := h.subs.Resume(r.Context(), userID)
	if err != nil {
		h.respondSubscriptionError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sub)
}

// handleCancelSubscription cancels the subscription. Cancellation is
// terminal.
func (h *Handler) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sub, err := h.subs.Cancel(r.Context(), userID)
	if err != nil {
		h.respondSubscriptionError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sub)
}

// handleChangePlan switches the subscription to another plan.
func (h *Handler) handleChangePlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		PlanID           string `json:"plan_id"`
		ApplyImmediately bool   `json:"apply_immediately"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sub, err := h.subs.ChangePlan(r.Context(), userID, req.PlanID, req.ApplyImmediately)
	if err != nil {
		h.respondSubscriptionError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sub)
}

// handleUpdateDeliverySchedule updates the delivery day, time slot, and
// address.
func (h *Handler) handleUpdateDeliverySchedule(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Day     string `json:"day"`
		Time    string `json:"time"`
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	day, ok := parseWeekday(req.Day)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Unknown delivery day")
		return
	}

	sub, err := h.subs.UpdateDeliverySchedule(r.Context(), userID, day, req.Time, req.Address)
	if err != nil {
		h.respondSubscriptionError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sub)
}

// handleUpdateMenuPreferences replaces the menu customization.
func (h *Handler) handleUpdateMenuPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req domain.MenuPreferences
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sub, err := h.subs.UpdateMenuPreferences(r.Context(), userID, req)
	if err != nil {
		h.respondSubscriptionError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sub)
}

// handleSkipDelivery skips one week's delivery.
func (h *Handler) handleSkipDelivery(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Date string `json:"date"` // YYYY-MM-DD
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sub, err := h.subs.SkipWeeklyDelivery(r.Context(), userID, req.Date)
	if err != nil {
		h.respondSubscriptionError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sub)
}

// respondSubscriptionError maps subscription service errors onto HTTP
// status codes.
func (h *Handler) respondSubscriptionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrSubscriptionNotFound):
		respondWithError(w, http.StatusNotFound, "No subscription found")
	case errors.Is(err, app.ErrSubscriptionCancelled):
		respondWithError(w, http.StatusConflict, "Subscription is cancelled")
	case errors.Is(err, app.ErrNotActive),
		errors.Is(err, app.ErrNotPaused):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrVersionConflict):
		respondWithError(w, http.StatusConflict, "Subscription was modified concurrently, retry")
	case errors.Is(err, app.ErrWeekendDelivery),
		errors.Is(err, app.ErrInvalidDeliveryTime),
		errors.Is(err, app.ErrTooManyPreferences),
		errors.Is(err, app.ErrInvalidPauseWeeks),
		errors.Is(err, app.ErrUnknownPlan):
		respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("subscription operation failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Subscription operation failed")
	}
}

func parseWeekday(name string) (time.Weekday, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday":
		return time.Sunday, true
	case "monday":
		return time.Monday, true
	case "tuesday":
		return time.Tuesday, true
	case "wednesday":
		return time.Wednesday, true
	case "thursday":
		return time.Thursday, true
	case "friday":
		return time.Friday, true
	case "saturday":
		return time.Saturday, true
	}
	return time.Sunday, false
}
