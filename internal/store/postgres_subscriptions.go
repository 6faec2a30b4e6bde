/**
 * @description
 * Subscription queries for the PostgreSQL repository. Writes use optimistic
 * concurrency: every UPDATE is conditioned on the version read by the caller
 * and bumps it, so concurrent lifecycle mutations from multiple devices
 * cannot silently overwrite each other.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/oz-TeamWizard/MealStack/internal/domain"
)

const subscriptionColumns = `
    id, user_id, plan_id, plan_name, price, status,
    started_at, next_payment_date, next_delivery_date,
    delivery_day, delivery_time, COALESCE(delivery_address, ''),
    allergies, dislikes, preferences, skipped_weeks,
    paused_at, resumed_at, cancelled_at, auto_resume_date,
    pause_duration_weeks, version, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var s domain.Subscription
	var deliveryDay int
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.PlanID,
		&s.PlanName,
		&s.Price,
		&s.Status,
		&s.StartedAt,
		&s.NextPaymentDate,
		&s.NextDeliveryDate,
		&deliveryDay,
		&s.DeliveryTime,
		&s.DeliveryAddress,
		&s.MenuPreferences.Allergies,
		&s.MenuPreferences.Dislikes,
		&s.MenuPreferences.Preferences,
		&s.SkippedWeeks,
		&s.PausedAt,
		&s.ResumedAt,
		&s.CancelledAt,
		&s.AutoResumeDate,
		&s.PauseDurationWeeks,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.DeliveryDay = time.Weekday(deliveryDay)
	return &s, nil
}

// GetSubscriptionByUserID retrieves the subscription for a given user.
func (r *Repository) GetSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to query subscription: %w", err)
	}
	return sub, nil
}

// CreateSubscription inserts a new subscription record at version 1.
func (r *Repository) CreateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	query := `
        INSERT INTO subscriptions (
            id, user_id, plan_id, plan_name, price, status,
            started_at, next_payment_date, next_delivery_date,
            delivery_day, delivery_time, delivery_address,
            allergies, dislikes, preferences, skipped_weeks,
            pause_duration_weeks, version, created_at, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 1, NOW(), NOW())
        RETURNING ` + subscriptionColumns
	created, err := scanSubscription(r.db.QueryRow(ctx, query,
		sub.ID,
		sub.UserID,
		sub.PlanID,
		sub.PlanName,
		sub.Price,
		sub.Status,
		sub.StartedAt,
		sub.NextPaymentDate,
		sub.NextDeliveryDate,
		int(sub.DeliveryDay),
		sub.DeliveryTime,
		sub.DeliveryAddress,
		sub.MenuPreferences.Allergies,
		sub.MenuPreferences.Dislikes,
		sub.MenuPreferences.Preferences,
		sub.SkippedWeeks,
		sub.PauseDurationWeeks,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert subscription: %w", err)
	}
	return created, nil
}

// UpdateSubscription writes the record if and only if the stored version
// equals sub.Version. A stale version returns ErrVersionConflict.
func (r *Repository) UpdateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	query := `
        UPDATE subscriptions SET
            plan_id = $3, plan_name = $4, price = $5, status = $6,
            next_payment_date = $7, next_delivery_date = $8,
            delivery_day = $9, delivery_time = $10, delivery_address = $11,
            allergies = $12, dislikes = $13, preferences = $14, skipped_weeks = $15,
            paused_at = $16, resumed_at = $17, cancelled_at = $18,
            auto_resume_date = $19, pause_duration_weeks = $20,
            version = version + 1, updated_at = NOW()
        WHERE id = $1 AND version = $2
        RETURNING ` + subscriptionColumns
	updated, err := scanSubscription(r.db.QueryRow(ctx, query,
		sub.ID,
		sub.Version,
		sub.PlanID,
		sub.PlanName,
		sub.Price,
		sub.Status,
		sub.NextPaymentDate,
		sub.NextDeliveryDate,
		int(sub.DeliveryDay),
		sub.DeliveryTime,
		sub.DeliveryAddress,
		sub.MenuPreferences.Allergies,
		sub.MenuPreferences.Dislikes,
		sub.MenuPreferences.Preferences,
		sub.SkippedWeeks,
		sub.PausedAt,
		sub.ResumedAt,
		sub.CancelledAt,
		sub.AutoResumeDate,
		sub.PauseDurationWeeks,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}
	return updated, nil
}

// ListAutoResumeDue returns paused subscriptions whose auto-resume date has
// passed.
func (r *Repository) ListAutoResumeDue(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE status = $1 AND auto_resume_date IS NOT NULL AND auto_resume_date <= $2`
	return r.listSubscriptions(ctx, query, domain.SubscriptionPaused, now)
}

// ListBillingDue returns active subscriptions whose next payment date has
// passed and needs advancing.
func (r *Repository) ListBillingDue(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE status = $1 AND next_payment_date <= $2`
	return r.listSubscriptions(ctx, query, domain.SubscriptionActive, now)
}

func (r *Repository) listSubscriptions(ctx context.Context, query string, args ...interface{}) ([]domain.Subscription, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}
