/**
 * @description
 * This file defines the data-access contracts for the commerce service and
 * the sentinel errors the app layer branches on. Concrete implementations
 * live in the postgres repository files in this package.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/oz-TeamWizard/MealStack/internal/domain"
)

var (
	// ErrUserNotFound is returned when no user matches the query.
	ErrUserNotFound = errors.New("user not found")

	// ErrSubscriptionNotFound is returned when a user has no subscription row.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrOrderNotFound is returned when no order matches the query.
	ErrOrderNotFound = errors.New("order not found")

	// ErrCodeNotFound is returned when no matching verification code exists.
	ErrCodeNotFound = errors.New("verification code not found")

	// ErrVersionConflict is returned when an optimistic-concurrency write
	// lost the race: the row's version no longer matches the one read.
	ErrVersionConflict = errors.New("subscription version conflict")
)

// UserRepository persists users keyed by phone number or Kakao account.
type UserRepository interface {
	FindUserByPhone(ctx context.Context, phoneNumber string) (*domain.User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	// UpsertUserByPhone creates the user on first verification or stamps
	// last_login_at on a returning one.
	UpsertUserByPhone(ctx context.Context, phoneNumber string) (*domain.User, error)
	// UpsertUserByKakao creates the user on first Kakao login or refreshes
	// the stored profile on a returning one.
	UpsertUserByKakao(ctx context.Context, kakaoID int64, nickname, profileImageURL, email string) (*domain.User, error)
}

// VerificationCodeRepository persists single-use SMS login codes.
type VerificationCodeRepository interface {
	// ReplaceCode deletes any unused codes for the phone number and inserts
	// the new one.
	ReplaceCode(ctx context.Context, code domain.VerificationCode) error
	FindActiveCode(ctx context.Context, phoneNumber string) (*domain.VerificationCode, error)
	IncrementAttempts(ctx context.Context, id uuid.UUID) error
	MarkUsed(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// SubscriptionRepository persists subscription records with optimistic
// concurrency control on the version column.
type SubscriptionRepository interface {
	GetSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)
	CreateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
	// UpdateSubscription writes the record if and only if the stored version
	// equals sub.Version; on success the returned record carries version+1.
	UpdateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
	ListAutoResumeDue(ctx context.Context, now time.Time) ([]domain.Subscription, error)
	ListBillingDue(ctx context.Context, now time.Time) ([]domain.Subscription, error)
}

// OrderRepository persists payment attempts.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error)
	MarkOrderPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) error
	MarkOrderFailed(ctx context.Context, id uuid.UUID) error
}
