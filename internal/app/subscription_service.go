/**
 * @description
 * This file contains the subscription lifecycle logic: the status machine
 * over active/paused/cancelled plus the schedule, menu-preference, plan and
 * skip-week mutations. Every operation is a read-modify-write against the
 * repository guarded by optimistic concurrency, so concurrent mutations from
 * multiple devices surface as a version conflict instead of a lost update.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oz-TeamWizard/MealStack/internal/domain"
	"github.com/oz-TeamWizard/MealStack/pkg/rabbitmq"
)

var (
	// ErrSubscriptionCancelled rejects any transition out of the terminal
	// cancelled status, including resume.
	ErrSubscriptionCancelled = errors.New("subscription is cancelled")

	// ErrNotActive rejects pausing a subscription that is not active.
	ErrNotActive = errors.New("subscription is not active")

	// ErrNotPaused rejects resuming a subscription that is not paused.
	ErrNotPaused = errors.New("subscription is not paused")

	// ErrWeekendDelivery rejects delivery days outside Monday through Friday.
	ErrWeekendDelivery = errors.New("weekend delivery is not offered")

	// ErrInvalidDeliveryTime rejects unknown delivery time slots.
	ErrInvalidDeliveryTime = errors.New("invalid delivery time slot")

	// ErrTooManyPreferences rejects more than the allowed preferred menus.
	ErrTooManyPreferences = errors.New("too many menu preferences")

	// ErrInvalidPauseWeeks rejects pause periods outside 1-4 weeks.
	ErrInvalidPauseWeeks = errors.New("pause period must be 1-4 weeks")

	// ErrUnknownPlan rejects plan IDs not in the catalog.
	ErrUnknownPlan = errors.New("unknown subscription plan")
)

// SubscriptionRepository defines the store operations the service needs.
type SubscriptionRepository interface {
	GetSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)
	CreateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
}

// SubscriptionService provides the business logic for subscription
// management.
type SubscriptionService struct {
	repo      SubscriptionRepository
	publisher rabbitmq.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewSubscriptionService creates a new subscription service.
func NewSubscriptionService(repo SubscriptionRepository, publisher rabbitmq.Publisher, logger *slog.Logger) *SubscriptionService {
	return &SubscriptionService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Get retrieves the user's subscription.
func (s *SubscriptionService) Get(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return s.repo.GetSubscriptionByUserID(ctx, userID)
}

// Pause transitions an active subscription to paused with no auto-resume.
func (s *SubscriptionService) Pause(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return s.pause(ctx, userID, 0)
}

// PauseWithPeriod pauses for the given number of weeks and schedules an
// automatic resume.
func (s *SubscriptionService) PauseWithPeriod(ctx context.Context, userID uuid.UUID, weeks int) (*domain.Subscription, error) {
	if weeks < 1 || weeks > 4 {
		return nil, ErrInvalidPauseWeeks
	}
	return s.pause(ctx, userID, weeks)
}

func (s *SubscriptionService) pause(ctx context.Context, userID uuid.UUID, weeks int) (*domain.Subscription, error) {
	sub, err := s.repo.GetSubscriptionByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.SubscriptionCancelled {
		return nil, ErrSubscriptionCancelled
	}
	if sub.Status != domain.SubscriptionActive {
		return nil, ErrNotActive
	}

	now := s.now()
	sub.Status = domain.SubscriptionPaused
	sub.PausedAt = &now
	sub.ResumedAt = nil
	sub.AutoResumeDate = nil
	sub.PauseDurationWeeks = 0
	if weeks > 0 {
		resumeAt := now.AddDate(0, 0, weeks*7)
		sub.AutoResumeDate = &resumeAt
		sub.PauseDurationWeeks = weeks
	}

	updated, err := s.repo.UpdateSubscription(ctx, sub)
	if err != nil {
		return nil, err
	}
	s.publishStatus(ctx, updated)
	return updated, nil
}

// Resume transitions a paused subscription back to active. Resuming a
// cancelled subscription is rejected: cancelled is terminal.
func (s *SubscriptionService) Resume(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.repo.GetSubscriptionByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.SubscriptionCancelled {
		return nil, ErrSubscriptionCancelled
	}
	if sub.Status != domain.SubscriptionPaused {
		return nil, ErrNotPaused
	}

	now := s.now()
	sub.Status = domain.SubscriptionActive
	sub.PausedAt = nil
	sub.ResumedAt = &now
	sub.AutoResumeDate = nil
	sub.PauseDurationWeeks = 0

	updated, err := s.repo.UpdateSubscription(ctx, sub)
	if err != nil {
		return nil, err
	}
	s.publishStatus(ctx, updated)
	return updated, nil
}

// Cancel terminates the subscription. The record is kept for history and no
// transition ever leaves cancelled.
func (s *SubscriptionService) Cancel(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.repo.GetSubscriptionByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.SubscriptionCancelled {
		return nil, ErrSubscriptionCancelled
	}

	now := s.now()
	sub.Status = domain.SubscriptionCancelled
	sub.CancelledAt = &now
	sub.AutoResumeDate = nil

	updated, err := s.repo.UpdateSubscription(ctx, sub)
	if err != nil {
		return nil, err
	}
	s.publishStatus(ctx, updated)
	return updated, nil
}

// ChangePlan rewrites the plan without touching the status. Immediate
// application pulls the next payment a week out; deferred application leaves
// the billing date to the billing system.
func (s *SubscriptionService) ChangePlan(ctx context.Context, userID uuid.UUID, planID string, applyImmediately bool) (*domain.Subscription, error) {
	plan, ok := domain.FindPlan(planID)
	if !ok {
		return nil, ErrUnknownPlan
	}

	sub, err := s.repo.GetSubscriptionByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.SubscriptionCancelled {
		return nil, ErrSubscriptionCancelled
	}

	sub.PlanID = plan.PlanID
	sub.PlanName = plan.Name
	sub.Price = plan.UnitPrice
	if applyImmediately {
		sub.NextPaymentDate = s.now().AddDate(0, 0, 7)
	}

	return s.repo.UpdateSubscription(ctx, sub)
}

// UpdateDeliverySchedule changes the delivery day, time slot and address.
// Only Monday through Friday are deliverable.
func (s *SubscriptionService) UpdateDeliverySchedule(ctx context.Context, userID uuid.UUID, day time.Weekday, timeSlot, address string) (*domain.Subscription, error) {
	if !domain.DeliverableWeekday(day) {
		return nil, ErrWeekendDelivery
	}
	if timeSlot != domain.DeliveryMorning && timeSlot != domain.DeliveryAfternoon {
		return nil, ErrInvalidDeliveryTime
	}

	sub, err := s.repo.GetSubscriptionByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.SubscriptionCancelled {
		return nil, ErrSubscriptionCancelled
	}

	sub.DeliveryDay = day
	sub.DeliveryTime = timeSlot
	if address != "" {
		sub.DeliveryAddress = address
	}

	return s.repo.UpdateSubscription(ctx, sub)
}

// UpdateMenuPreferences replaces the menu customization. The preferred-menu
// cap is owned here, not by callers.
func (s *SubscriptionService) UpdateMenuPreferences(ctx context.Context, userID uuid.UUID, prefs domain.MenuPreferences) (*domain.Subscription, error) {
	if len(prefs.Preferences) > domain.MaxMenuPreferences {
		return nil, ErrTooManyPreferences
	}

	sub, err := s.repo.GetSubscriptionByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.SubscriptionCancelled {
		return nil, ErrSubscriptionCancelled
	}

	sub.MenuPreferences = domain.MenuPreferences{
		Allergies:   append([]string{}, prefs.Allergies...),
		Dislikes:    append([]string{}, prefs.Dislikes...),
		Preferences: append([]string{}, prefs.Preferences...),
	}

	return s.repo.UpdateSubscription(ctx, sub)
}

// SkipWeeklyDelivery suppresses one scheduled delivery. Skipping a week that
// is already skipped is a no-op rather than a duplicate entry.
func (s *SubscriptionService) SkipWeeklyDelivery(ctx context.Context, userID uuid.UUID, date string) (*domain.Subscription, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("invalid skip date %q: %w", date, err)
	}

	sub, err := s.repo.GetSubscriptionByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.SubscriptionCancelled {
		return nil, ErrSubscriptionCancelled
	}
	if sub.HasSkipped(date) {
		return sub, nil
	}

	sub.SkippedWeeks = append(sub.SkippedWeeks, date)
	return s.repo.UpdateSubscription(ctx, sub)
}

// ActivateFromOrder seeds the initial subscription record after a
// subscription checkout settles.
func (s *SubscriptionService) ActivateFromOrder(ctx context.Context, order *domain.Order) (*domain.Subscription, error) {
	plan, ok := domain.FindPlan(order.PlanID)
	if !ok {
		return nil, ErrUnknownPlan
	}

	now := s.now()
	sub := &domain.Subscription{
		ID:               uuid.New(),
		UserID:           order.UserID,
		PlanID:           plan.PlanID,
		PlanName:         plan.Name,
		Price:            plan.UnitPrice,
		Status:           domain.SubscriptionActive,
		StartedAt:        now,
		NextPaymentDate:  nextPaymentAfter(now, plan.Period),
		NextDeliveryDate: nextDeliverableDate(now, time.Thursday),
		DeliveryDay:      time.Thursday,
		DeliveryTime:     domain.DeliveryMorning,
		DeliveryAddress:  order.Delivery.Address,
		MenuPreferences: domain.MenuPreferences{
			Allergies:   []string{},
			Dislikes:    []string{},
			Preferences: []string{},
		},
		SkippedWeeks: []string{},
	}

	created, err := s.repo.CreateSubscription(ctx, sub)
	if err != nil {
		return nil, err
	}
	s.publishStatus(ctx, created)
	return created, nil
}

func (s *SubscriptionService) publishStatus(ctx context.Context, sub *domain.Subscription) {
	if s.publisher == nil {
		return
	}
	event := rabbitmq.SubscriptionEvent{
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		PlanID:         sub.PlanID,
		Status:         sub.Status,
		Timestamp:      s.now(),
	}
	if err := s.publisher.PublishSubscriptionEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish subscription event", "subscription_id", sub.ID, "status", sub.Status, "error", err)
	}
}

// nextPaymentAfter computes the first billing date after activation.
func nextPaymentAfter(from time.Time, period string) time.Time {
	if period == domain.PeriodMonth {
		return from.AddDate(0, 1, 0)
	}
	return from.AddDate(0, 0, 7)
}

// nextDeliverableDate finds the next occurrence of the delivery day,
// excluding today.
func nextDeliverableDate(from time.Time, day time.Weekday) time.Time {
	d := from.AddDate(0, 0, 1)
	for d.Weekday() != day {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
