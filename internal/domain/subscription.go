/**
 * @description
 * This file defines the active-subscription domain model and its status
 * machine vocabulary. A subscription record is created when a subscription
 * checkout succeeds and is never hard-deleted; 'cancelled' is a terminal
 * status retained for history.
 *
 * @notes
 * - All mutations go through named lifecycle operations in the app layer;
 *   nothing writes these fields directly from the API layer.
 * - Version backs optimistic concurrency control: concurrent pause/resume/
 *   cancel from multiple devices is a realistic race against a shared store.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Subscription statuses.
const (
	SubscriptionActive    = "active"
	SubscriptionPaused    = "paused"
	SubscriptionCancelled = "cancelled"
)

// Delivery time slots.
const (
	DeliveryMorning   = "morning"
	DeliveryAfternoon = "afternoon"
)

// MaxMenuPreferences caps the number of preferred-menu entries.
const MaxMenuPreferences = 3

// MenuPreferences holds the customer's menu customization.
type MenuPreferences struct {
	Allergies   []string `json:"allergies"`
	Dislikes    []string `json:"dislikes"`
	Preferences []string `json:"preferences"` // at most MaxMenuPreferences
}

// Subscription is the long-lived record of a customer's meal subscription.
type Subscription struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             uuid.UUID       `json:"user_id"`
	PlanID             string          `json:"plan_id"`
	PlanName           string          `json:"plan_name"`
	Price              int64           `json:"price"` // KRW per period
	Status             string          `json:"status"`
	StartedAt          time.Time       `json:"started_at"`
	NextPaymentDate    time.Time       `json:"next_payment_date"`
	NextDeliveryDate   time.Time       `json:"next_delivery_date"`
	DeliveryDay        time.Weekday    `json:"delivery_day"`
	DeliveryTime       string          `json:"delivery_time"`
	DeliveryAddress    string          `json:"delivery_address,omitempty"`
	MenuPreferences    MenuPreferences `json:"menu_preferences"`
	SkippedWeeks       []string        `json:"skipped_weeks"` // YYYY-MM-DD
	PausedAt           *time.Time      `json:"paused_at,omitempty"`
	ResumedAt          *time.Time      `json:"resumed_at,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	AutoResumeDate     *time.Time      `json:"auto_resume_date,omitempty"`
	PauseDurationWeeks int             `json:"pause_duration_weeks,omitempty"`
	Version            int64           `json:"version"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// HasSkipped reports whether the given delivery date is already skipped.
func (s *Subscription) HasSkipped(date string) bool {
	for _, d := range s.SkippedWeeks {
		if d == date {
			return true
		}
	}
	return false
}

// DeliverableWeekday reports whether the given weekday is a valid delivery
// day. Weekend delivery is not offered.
func DeliverableWeekday(day time.Weekday) bool {
	return day >= time.Monday && day <= time.Friday
}
