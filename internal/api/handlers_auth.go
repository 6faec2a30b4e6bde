/**
 * @description
 * Handlers for the login flows: send a verification code and verify it
 * (phone login), or exchange a Kakao access token (OAuth login). Both
 * return a session token.
 */
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/oz-TeamWizard/MealStack/internal/app"
	"github.com/oz-TeamWizard/MealStack/internal/domain"
)

// handleSendCode issues a verification code to the given phone number.
func (h *Handler) handleSendCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	phone := normalizePhone(req.PhoneNumber)
	retryAfter, err := h.auth.SendCode(r.Context(), phone)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidPhone):
			respondWithError(w, http.StatusBadRequest, "Invalid phone number")
		case errors.Is(err, app.ErrRateLimited):
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			respondWithError(w, http.StatusTooManyRequests, "Too many code requests")
		default:
			h.logger.Error("failed to send verification code", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to send verification code")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// handleVerifyCode checks the submitted code and returns a session token.
func (h *Handler) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
		Code        string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	phone := normalizePhone(req.PhoneNumber)
	token, user, err := h.auth.VerifyCode(r.Context(), phone, strings.TrimSpace(req.Code))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidPhone):
			respondWithError(w, http.StatusBadRequest, "Invalid phone number")
		case errors.Is(err, app.ErrCodeInvalid):
			respondWithError(w, http.StatusUnauthorized, "Verification code does not match")
		case errors.Is(err, app.ErrCodeExpired):
			respondWithError(w, http.StatusUnauthorized, "Verification code expired")
		case errors.Is(err, app.ErrTooManyAttempts):
			respondWithError(w, http.StatusTooManyRequests, "Too many verification attempts")
		default:
			h.logger.Error("failed to verify code", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to verify code")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, struct {
		Token string       `json:"token"`
		User  *domain.User `json:"user"`
	}{Token: token, User: user})
}

// handleKakaoLogin exchanges a Kakao SDK access token for a session token.
func (h *Handler) handleKakaoLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, user, err := h.auth.LoginWithKakao(r.Context(), strings.TrimSpace(req.AccessToken))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrOAuthTokenInvalid):
			respondWithError(w, http.StatusUnauthorized, "Kakao access token rejected")
		case errors.Is(err, app.ErrOAuthUnavailable):
			respondWithError(w, http.StatusServiceUnavailable, "Kakao login is not available")
		default:
			h.logger.Error("kakao login failed", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Kakao login failed")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, struct {
		Token string       `json:"token"`
		User  *domain.User `json:"user"`
	}{Token: token, User: user})
}

// normalizePhone strips formatting from Korean mobile numbers: hyphens and
// spaces are dropped and a +82 country prefix is folded back to the leading
// zero, so "+82 10-1234-5678" and "010-1234-5678" normalize identically.
func normalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if strings.HasPrefix(digits, "8210") && len(digits) >= 12 {
		digits = "0" + digits[2:]
	}
	return digits
}
