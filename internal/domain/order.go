/**
 * @description
 * This file defines the order domain models used by checkout. A PayableOrder
 * is derived per checkout session and never stored; an Order row is written
 * when payment is requested and settled by the success-redirect handler.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Order types.
const (
	OrderTypeProduct      = "product"
	OrderTypeSubscription = "subscription"
)

// Order statuses.
const (
	OrderPending = "pending"
	OrderPaid    = "paid"
	OrderFailed  = "failed"
)

// PayableOrder is the derived description of what a checkout session will
// charge. Amount is always a positive integer number of KRW; zero is a
// terminal precondition failure for checkout.
type PayableOrder struct {
	OrderType   string `json:"order_type"` // 'product' or 'subscription'
	Amount      int64  `json:"amount"`
	OrderName   string `json:"order_name"`
	CustomerKey string `json:"customer_key"`
}

// DeliveryInfo is the recipient form collected before payment.
type DeliveryInfo struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	DetailAddress string `json:"detail_address,omitempty"`
	Memo          string `json:"memo,omitempty"`
}

// Order is the persisted record of a payment attempt. One row per attempt;
// the order ID doubles as the provider-facing orderId and must be unique
// per attempt.
type Order struct {
	ID        uuid.UUID    `json:"id"`
	UserID    uuid.UUID    `json:"user_id"`
	OrderType string       `json:"order_type"`
	OrderName string       `json:"order_name"`
	Amount    int64        `json:"amount"`
	Status    string       `json:"status"`
	PlanID    string       `json:"plan_id,omitempty"` // subscription orders only
	Delivery  DeliveryInfo `json:"delivery"`
	CreatedAt time.Time    `json:"created_at"`
	PaidAt    *time.Time   `json:"paid_at,omitempty"`
}
