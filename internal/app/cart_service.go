/**
 * @description
 * This file implements the cart and plan-selection service. Carts are
 * pre-checkout scratch state, so they live in process memory keyed by user;
 * the service is a plain value container injected where it is needed, so
 * tests can build isolated instances.
 *
 * @notes
 * - Adding a product already in the cart merges quantities into one line;
 *   two lines never exist for the same product.
 * - The plan selection is a single slot: selecting replaces, never stacks.
 */
package app

import (
	"sync"

	"github.com/google/uuid"

	"github.com/oz-TeamWizard/MealStack/internal/domain"
)

// CartService holds per-user carts and subscription plan selections.
type CartService struct {
	mu         sync.RWMutex
	items      map[uuid.UUID][]domain.CartItem
	selections map[uuid.UUID]domain.PlanSelection
}

// NewCartService creates an empty cart service.
func NewCartService() *CartService {
	return &CartService{
		items:      make(map[uuid.UUID][]domain.CartItem),
		selections: make(map[uuid.UUID]domain.PlanSelection),
	}
}

func clampQuantity(qty int) int {
	if qty < domain.MinCartQuantity {
		return domain.MinCartQuantity
	}
	if qty > domain.MaxCartQuantity {
		return domain.MaxCartQuantity
	}
	return qty
}

// AddItem merges the product into the user's cart, summing quantities for an
// existing line. The resulting quantity is clamped to the cart bounds.
func (s *CartService) AddItem(userID uuid.UUID, product domain.CartItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.Quantity = clampQuantity(product.Quantity)

	lines := s.items[userID]
	for i, line := range lines {
		if line.ProductID == product.ProductID {
			lines[i].Quantity = clampQuantity(line.Quantity + product.Quantity)
			return
		}
	}
	s.items[userID] = append(lines, product)
}

// UpdateQuantity replaces a line's quantity. A quantity of zero or less
// removes the line.
func (s *CartService) UpdateQuantity(userID uuid.UUID, productID string, qty int) {
	if qty <= 0 {
		s.RemoveItem(userID, productID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.items[userID]
	for i, line := range lines {
		if line.ProductID == productID {
			lines[i].Quantity = clampQuantity(qty)
			return
		}
	}
}

// RemoveItem deletes a line from the cart.
func (s *CartService) RemoveItem(userID uuid.UUID, productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.items[userID]
	for i, line := range lines {
		if line.ProductID == productID {
			s.items[userID] = append(lines[:i], lines[i+1:]...)
			return
		}
	}
}

// ClearCart empties the user's cart.
func (s *CartService) ClearCart(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, userID)
}

// Items returns a copy of the user's cart lines.
func (s *CartService) Items(userID uuid.UUID) []domain.CartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := s.items[userID]
	out := make([]domain.CartItem, len(lines))
	copy(out, lines)
	return out
}

// Total derives the payable cart total. Pure; no side effects.
func (s *CartService) Total(userID uuid.UUID) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, line := range s.items[userID] {
		total += line.Subtotal()
	}
	return total
}

// SelectSubscription sets the user's plan selection, replacing any previous
// one.
func (s *CartService) SelectSubscription(userID uuid.UUID, plan domain.PlanSelection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selections[userID] = plan
}

// ClearSubscription drops the user's plan selection.
func (s *CartService) ClearSubscription(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.selections, userID)
}

// Selection returns the user's current plan selection, if any.
func (s *CartService) Selection(userID uuid.UUID) (domain.PlanSelection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sel, ok := s.selections[userID]
	return sel, ok
}
