package app

import (
	"testing"

	"github.com/google/uuid"

	"github.com/oz-TeamWizard/MealStack/internal/domain"
)

func TestAddItemMergesQuantities(t *testing.T) {
	cart := NewCartService()
	userID := uuid.New()

	cart.AddItem(userID, domain.CartItem{ProductID: "dosirak-1", Name: "불고기 도시락", UnitPrice: 8900, Quantity: 2})
	cart.AddItem(userID, domain.CartItem{ProductID: "dosirak-1", Name: "불고기 도시락", UnitPrice: 8900, Quantity: 3})

	items := cart.Items(userID)
	if len(items) != 1 {
		t.Fatalf("expected one merged line, got %d", len(items))
	}
	if items[0].Quantity != 5 {
		t.Errorf("expected merged quantity 5, got %d", items[0].Quantity)
	}
}

func TestAddItemClampsQuantity(t *testing.T) {
	cart := NewCartService()
	userID := uuid.New()

	cart.AddItem(userID, domain.CartItem{ProductID: "dosirak-1", UnitPrice: 8900, Quantity: 80})
	cart.AddItem(userID, domain.CartItem{ProductID: "dosirak-1", UnitPrice: 8900, Quantity: 80})

	items := cart.Items(userID)
	if items[0].Quantity != domain.MaxCartQuantity {
		t.Errorf("expected quantity clamped to %d, got %d", domain.MaxCartQuantity, items[0].Quantity)
	}
}

func TestUpdateQuantityZeroOrNegativeRemovesItem(t *testing.T) {
	tests := []struct {
		name string
		qty  int
	}{
		{name: "zero", qty: 0},
		{name: "negative", qty: -1},
		{name: "large negative", qty: -99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cart := NewCartService()
			userID := uuid.New()

			cart.AddItem(userID, domain.CartItem{ProductID: "dosirak-1", UnitPrice: 8900, Quantity: 2})
			cart.UpdateQuantity(userID, "dosirak-1", tt.qty)

			if items := cart.Items(userID); len(items) != 0 {
				t.Errorf("expected empty cart after update to %d, got %d items", tt.qty, len(items))
			}
		})
	}
}

func TestTotalSumsLines(t *testing.T) {
	cart := NewCartService()
	userID := uuid.New()

	cart.AddItem(userID, domain.CartItem{ProductID: "dosirak-1", UnitPrice: 8900, Quantity: 2})
	cart.AddItem(userID, domain.CartItem{ProductID: "dosirak-2", UnitPrice: 12500, Quantity: 1})

	if got := cart.Total(userID); got != 30300 {
		t.Errorf("expected total 30300, got %d", got)
	}
}

func TestSelectSubscriptionReplacesSelection(t *testing.T) {
	cart := NewCartService()
	userID := uuid.New()

	weekly, _ := domain.FindPlan(domain.PlanWeekly)
	monthly, _ := domain.FindPlan(domain.PlanMonthly)

	cart.SelectSubscription(userID, weekly)
	cart.SelectSubscription(userID, monthly)

	sel, ok := cart.Selection(userID)
	if !ok {
		t.Fatal("expected a selection")
	}
	if sel.PlanID != domain.PlanMonthly {
		t.Errorf("expected selection replaced with %q, got %q", domain.PlanMonthly, sel.PlanID)
	}
	if sel.UnitPrice != 289000 {
		t.Errorf("expected monthly price 289000, got %d", sel.UnitPrice)
	}
}

func TestClearSubscription(t *testing.T) {
	cart := NewCartService()
	userID := uuid.New()

	weekly, _ := domain.FindPlan(domain.PlanWeekly)
	cart.SelectSubscription(userID, weekly)
	cart.ClearSubscription(userID)

	if _, ok := cart.Selection(userID); ok {
		t.Error("expected no selection after clear")
	}
}

func TestCartsAreIsolatedPerUser(t *testing.T) {
	cart := NewCartService()
	alice := uuid.New()
	bob := uuid.New()

	cart.AddItem(alice, domain.CartItem{ProductID: "dosirak-1", UnitPrice: 8900, Quantity: 1})

	if items := cart.Items(bob); len(items) != 0 {
		t.Errorf("expected bob's cart empty, got %d items", len(items))
	}
}
