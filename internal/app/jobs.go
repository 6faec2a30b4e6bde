/**
 * @description
 * Scheduled job implementations: automatic resume of paused subscriptions,
 * billing-cycle advancement for active ones, and expired verification code
 * cleanup.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oz-TeamWizard/MealStack/internal/domain"
	"github.com/oz-TeamWizard/MealStack/internal/store"
	"github.com/oz-TeamWizard/MealStack/pkg/rabbitmq"
)

// JobSubscriptionRepository defines the subscription operations the jobs need.
type JobSubscriptionRepository interface {
	ListAutoResumeDue(ctx context.Context, now time.Time) ([]domain.Subscription, error)
	ListBillingDue(ctx context.Context, now time.Time) ([]domain.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
}

// JobCodeRepository defines the verification code cleanup operation.
type JobCodeRepository interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	subs      JobSubscriptionRepository
	codes     JobCodeRepository
	publisher rabbitmq.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(subs JobSubscriptionRepository, codes JobCodeRepository, publisher rabbitmq.Publisher, logger *slog.Logger) *Jobs {
	return &Jobs{
		subs:      subs,
		codes:     codes,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessSubscriptionCycle resumes paused subscriptions whose pause period
// has elapsed and rolls active subscriptions forward past due billing dates.
func (j *Jobs) ProcessSubscriptionCycle() {
	j.logger.Info("starting subscription cycle job")
	ctx := context.Background()
	now := j.now()

	j.processAutoResumes(ctx, now)
	j.processBillingDue(ctx, now)

	j.logger.Info("subscription cycle job finished")
}

func (j *Jobs) processAutoResumes(ctx context.Context, now time.Time) {
	due, err := j.subs.ListAutoResumeDue(ctx, now)
	if err != nil {
		j.logger.Error("failed to list auto-resume candidates", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	j.logger.Info("found subscriptions to auto-resume", "count", len(due))

	for i := range due {
		sub := due[i]
		sub.Status = domain.SubscriptionActive
		sub.ResumedAt = &now
		sub.AutoResumeDate = nil
		sub.PauseDurationWeeks = 0

		updated, err := j.subs.UpdateSubscription(ctx, &sub)
		if err != nil {
			// A conflict means someone resumed or cancelled by hand; the
			// next run picks up whatever is still due.
			if errors.Is(err, store.ErrVersionConflict) {
				j.logger.Info("auto-resume skipped, subscription changed concurrently", "subscription_id", sub.ID)
				continue
			}
			j.logger.Error("failed to auto-resume subscription", "subscription_id", sub.ID, "error", err)
			continue
		}

		j.logger.Info("subscription auto-resumed", "subscription_id", updated.ID, "user_id", updated.UserID)
		j.publishStatusEvent(ctx, updated)
	}
}

func (j *Jobs) processBillingDue(ctx context.Context, now time.Time) {
	due, err := j.subs.ListBillingDue(ctx, now)
	if err != nil {
		j.logger.Error("failed to list billing-due subscriptions", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	j.logger.Info("found subscriptions with due billing dates", "count", len(due))

	for i := range due {
		sub := due[i]
		sub.NextPaymentDate = advancePaymentDate(sub.NextPaymentDate, sub.PlanID, now)
		sub.NextDeliveryDate = nextUnskippedDelivery(&sub, now)

		updated, err := j.subs.UpdateSubscription(ctx, &sub)
		if err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				j.logger.Info("billing advance skipped, subscription changed concurrently", "subscription_id", sub.ID)
				continue
			}
			j.logger.Error("failed to advance billing cycle", "subscription_id", sub.ID, "error", err)
			continue
		}

		j.logger.Info("billing cycle advanced",
			"subscription_id", updated.ID,
			"next_payment_date", updated.NextPaymentDate,
			"next_delivery_date", updated.NextDeliveryDate)
	}
}

// SweepExpiredCodes deletes verification codes past their expiry.
func (j *Jobs) SweepExpiredCodes() {
	ctx := context.Background()

	deleted, err := j.codes.DeleteExpired(ctx, j.now())
	if err != nil {
		j.logger.Error("failed to sweep expired verification codes", "error", err)
		return
	}
	if deleted > 0 {
		j.logger.Info("swept expired verification codes", "count", deleted)
	}
}

func (j *Jobs) publishStatusEvent(ctx context.Context, sub *domain.Subscription) {
	if j.publisher == nil {
		return
	}
	event := rabbitmq.SubscriptionEvent{
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		PlanID:         sub.PlanID,
		Status:         sub.Status,
		Timestamp:      j.now(),
	}
	if err := j.publisher.PublishSubscriptionEvent(ctx, event); err != nil {
		j.logger.Error("failed to publish subscription event", "subscription_id", sub.ID, "error", err)
	}
}

// advancePaymentDate rolls the billing date forward by one plan period,
// repeating until it lands in the future.
func advancePaymentDate(current time.Time, planID string, now time.Time) time.Time {
	step := func(t time.Time) time.Time {
		if plan, ok := domain.FindPlan(planID); ok && plan.Period == domain.PeriodMonth {
			return t.AddDate(0, 1, 0)
		}
		return t.AddDate(0, 0, 7)
	}

	next := step(current)
	for !next.After(now) {
		next = step(next)
	}
	return next
}

// nextUnskippedDelivery finds the next delivery occurrence on the
// subscription's delivery day, skipping any dates the customer skipped.
func nextUnskippedDelivery(sub *domain.Subscription, now time.Time) time.Time {
	next := sub.NextDeliveryDate
	for !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	for sub.HasSkipped(next.Format("2006-01-02")) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}
