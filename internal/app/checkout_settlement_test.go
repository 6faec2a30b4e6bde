package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/oz-TeamWizard/MealStack/internal/domain"
	"github.com/oz-TeamWizard/MealStack/internal/store"
)

type settlementOrdersStub struct {
	order     *domain.Order
	paidIDs   []uuid.UUID
	failedIDs []uuid.UUID
}

func (s *settlementOrdersStub) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	if s.order == nil || s.order.ID != id {
		return nil, store.ErrOrderNotFound
	}
	cp := *s.order
	return &cp, nil
}

func (s *settlementOrdersStub) MarkOrderPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) error {
	s.paidIDs = append(s.paidIDs, id)
	return nil
}

func (s *settlementOrdersStub) MarkOrderFailed(ctx context.Context, id uuid.UUID) error {
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

func newTestSettlement(orders SettlementOrderRepository, cart *CartService, subsRepo SubscriptionRepository) (*CheckoutSettlement, *publisherStub) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := &publisherStub{}
	subs := NewSubscriptionService(subsRepo, publisher, logger)
	return NewCheckoutSettlement(orders, cart, subs, publisher, logger), publisher
}

func pendingOrder(orderType string) *domain.Order {
	order := &domain.Order{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		OrderType: orderType,
		OrderName: "불고기 도시락 외 1건",
		Amount:    30300,
		Status:    domain.OrderPending,
	}
	if orderType == domain.OrderTypeSubscription {
		order.PlanID = domain.PlanWeekly
		order.OrderName = "주간 구독"
		order.Amount = 65000
	}
	return order
}

func TestConfirmSuccessProductOrderClearsCart(t *testing.T) {
	order := pendingOrder(domain.OrderTypeProduct)
	orders := &settlementOrdersStub{order: order}
	cart := NewCartService()
	cart.AddItem(order.UserID, domain.CartItem{ProductID: "dosirak-1", UnitPrice: 8900, Quantity: 2})
	settlement, publisher := newTestSettlement(orders, cart, &subscriptionRepoStub{sub: activeSubscription()})

	settled, err := settlement.ConfirmSuccess(context.Background(), order.ID, 30300)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settled.Status != domain.OrderPaid {
		t.Errorf("expected paid status, got %q", settled.Status)
	}
	if len(orders.paidIDs) != 1 {
		t.Error("expected the order marked paid")
	}
	if items := cart.Items(order.UserID); len(items) != 0 {
		t.Error("expected the cart cleared after a product order settles")
	}
	if len(publisher.orderEvents) != 1 {
		t.Error("expected an order.completed event")
	}
}

func TestConfirmSuccessSubscriptionOrderActivatesWithoutClearingCart(t *testing.T) {
	order := pendingOrder(domain.OrderTypeSubscription)
	orders := &settlementOrdersStub{order: order}
	cart := NewCartService()
	// Products left in the cart must survive a subscription checkout.
	cart.AddItem(order.UserID, domain.CartItem{ProductID: "dosirak-1", UnitPrice: 8900, Quantity: 1})
	weekly, _ := domain.FindPlan(domain.PlanWeekly)
	cart.SelectSubscription(order.UserID, weekly)

	subsRepo := &subscriptionRepoStub{sub: activeSubscription()}
	settlement, publisher := newTestSettlement(orders, cart, subsRepo)

	if _, err := settlement.ConfirmSuccess(context.Background(), order.ID, 65000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if subsRepo.updated == nil || subsRepo.updated.Status != domain.SubscriptionActive {
		t.Error("expected a subscription record seeded from the order")
	}
	if items := cart.Items(order.UserID); len(items) != 1 {
		t.Error("expected product cart untouched by a subscription checkout")
	}
	if _, ok := cart.Selection(order.UserID); ok {
		t.Error("expected the plan selection consumed")
	}
	if len(publisher.orderEvents) != 1 {
		t.Error("expected an order.completed event")
	}
}

func TestConfirmSuccessAmountMismatch(t *testing.T) {
	order := pendingOrder(domain.OrderTypeProduct)
	orders := &settlementOrdersStub{order: order}
	settlement, _ := newTestSettlement(orders, NewCartService(), &subscriptionRepoStub{sub: activeSubscription()})

	if _, err := settlement.ConfirmSuccess(context.Background(), order.ID, 1); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
	if len(orders.paidIDs) != 0 {
		t.Error("expected the order untouched on amount mismatch")
	}
}

func TestConfirmSuccessRejectsSettledOrder(t *testing.T) {
	order := pendingOrder(domain.OrderTypeProduct)
	order.Status = domain.OrderPaid
	orders := &settlementOrdersStub{order: order}
	settlement, _ := newTestSettlement(orders, NewCartService(), &subscriptionRepoStub{sub: activeSubscription()})

	if _, err := settlement.ConfirmSuccess(context.Background(), order.ID, order.Amount); !errors.Is(err, ErrOrderNotPending) {
		t.Errorf("expected ErrOrderNotPending, got %v", err)
	}
}

func TestConfirmSuccessUnknownOrder(t *testing.T) {
	settlement, _ := newTestSettlement(&settlementOrdersStub{}, NewCartService(), &subscriptionRepoStub{sub: activeSubscription()})

	if _, err := settlement.ConfirmSuccess(context.Background(), uuid.New(), 1000); !errors.Is(err, store.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestRecordFailureMarksPendingOrder(t *testing.T) {
	order := pendingOrder(domain.OrderTypeProduct)
	orders := &settlementOrdersStub{order: order}
	settlement, _ := newTestSettlement(orders, NewCartService(), &subscriptionRepoStub{sub: activeSubscription()})

	if err := settlement.RecordFailure(context.Background(), order.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders.failedIDs) != 1 {
		t.Error("expected the order marked failed")
	}
}

func TestRecordFailureIgnoresSettledOrder(t *testing.T) {
	order := pendingOrder(domain.OrderTypeProduct)
	order.Status = domain.OrderPaid
	orders := &settlementOrdersStub{order: order}
	settlement, _ := newTestSettlement(orders, NewCartService(), &subscriptionRepoStub{sub: activeSubscription()})

	if err := settlement.RecordFailure(context.Background(), order.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders.failedIDs) != 0 {
		t.Error("expected a settled order left alone")
	}
}
