/**
 * @description
 * Settlement of checkout redirects. The payment provider redirects the
 * customer back with the order id and amount; settlement verifies the
 * pending order, marks it paid, and applies the post-payment effects
 * (cart clear for product orders, subscription activation for plan orders).
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
	"github.com/oz-TeamWizard/MealStack/internal/store"
	"github.com/oz-TeamWizard/MealStack/pkg/rabbitmq"
)

var (
	// ErrAmountMismatch is returned when the redirected amount differs from
	// the stored order amount.
	ErrAmountMismatch = errors.New("redirected amount does not match order")

	// ErrOrderNotPending is returned when the order has already been settled
	// or failed.
	ErrOrderNotPending = errors.New("order is not pending")
)

// SettlementOrderRepository defines the order operations settlement needs.
type SettlementOrderRepository interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	MarkOrderPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) error
	MarkOrderFailed(ctx context.Context, id uuid.UUID) error
}

// CheckoutSettlement applies the side effects of a finished payment.
type CheckoutSettlement struct {
	orders    SettlementOrderRepository
	cart      *CartService
	subs      *SubscriptionService
	publisher rabbitmq.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewCheckoutSettlement(
	orders SettlementOrderRepository,
	cart *CartService,
	subs *SubscriptionService,
	publisher rabbitmq.Publisher,
	logger *slog.Logger,
) *CheckoutSettlement {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutSettlement{
		orders:    orders,
		cart:      cart,
		subs:      subs,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// ConfirmSuccess settles a success redirect. The amount must equal the
// stored order amount; the order must still be pending.
func (s *CheckoutSettlement) ConfirmSuccess(ctx context.Context, orderID uuid.UUID, amount int64) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderPending {
		return nil, ErrOrderNotPending
	}
	if order.Amount != amount {
		s.logger.Warn("settlement amount mismatch",
			"order_id", order.ID, "stored", order.Amount, "redirected", amount)
		return nil, ErrAmountMismatch
	}

	paidAt := s.now()
	if err := s.orders.MarkOrderPaid(ctx, order.ID, paidAt); err != nil {
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}
	order.Status = domain.OrderPaid
	order.PaidAt = &paidAt

	switch order.OrderType {
	case domain.OrderTypeSubscription:
		// The cart is deliberately untouched here: a subscription checkout
		// consumes the plan selection, not the product cart.
		if _, err := s.subs.ActivateFromOrder(ctx, order); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				s.logger.Warn("subscription activation raced another writer", "order_id", order.ID)
			} else {
				s.logger.Error("failed to activate subscription from order", "order_id", order.ID, "error", err)
			}
		}
		s.cart.ClearSubscription(order.UserID)
	default:
		s.cart.ClearCart(order.UserID)
	}

	if s.publisher != nil {
		event := rabbitmq.OrderCompletedEvent{
			OrderID:   order.ID,
			UserID:    order.UserID,
			OrderType: order.OrderType,
			Amount:    order.Amount,
			Timestamp: paidAt,
		}
		if err := s.publisher.PublishOrderCompleted(ctx, event); err != nil {
			s.logger.Error("failed to publish order completed event", "order_id", order.ID, "error", err)
		}
	}

	s.logger.Info("order settled", "order_id", order.ID, "order_type", order.OrderType, "amount", order.Amount)
	return order, nil
}

// RecordFailure marks a pending order failed after a fail redirect. Unknown
// or already-settled orders are left alone.
func (s *CheckoutSettlement) RecordFailure(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != domain.OrderPending {
		return nil
	}
	return s.orders.MarkOrderFailed(ctx, order.ID)
}
