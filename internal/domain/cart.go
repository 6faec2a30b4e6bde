/**
 * @description
 * This file defines the cart and pre-purchase plan-selection domain models.
 * Amounts are `int64` KRW (the smallest currency unit) to avoid
 * floating-point inaccuracies with money.
 */
package domain

// Quantity bounds enforced on every cart line.
const (
	MinCartQuantity = 1
	MaxCartQuantity = 99
)

// CartItem is one line of a user's cart. Adding the same product twice
// merges into one line by summing quantities.
type CartItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"` // KRW
	Quantity  int    `json:"quantity"`
}

// Subtotal returns the line total for this item.
func (i CartItem) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// PlanSelection is the ephemeral, pre-purchase subscription choice.
// At most one selection exists per user; selecting a new plan replaces it.
type PlanSelection struct {
	PlanID    string `json:"plan_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"` // KRW per period
	Period    string `json:"period"`     // 'week' or 'month'
}
