/**
 * @description
 * This file defines the user and phone-verification domain models.
 * Users are created on their first successful SMS code verification;
 * there is no separate sign-up step.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents an authenticated customer. Identity comes from one of two
// places: a verified phone number, or a Kakao account (KakaoID non-zero).
type User struct {
	ID              uuid.UUID `json:"id"`
	PhoneNumber     string    `json:"phone_number,omitempty"`
	KakaoID         int64     `json:"kakao_id,omitempty"`
	Name            string    `json:"name,omitempty"`
	Email           string    `json:"email,omitempty"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LastLoginAt     time.Time `json:"last_login_at"`
}

// VerificationCode is a single-use SMS login code. A code is valid for
// three minutes and allows a bounded number of verification attempts.
type VerificationCode struct {
	ID          uuid.UUID `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expires_at"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	Used        bool      `json:"used"`
	CreatedAt   time.Time `json:"created_at"`
}
