/**
 * @description
 * Order queries for the PostgreSQL repository. One row per payment attempt;
 * the row is created pending when payment is requested and settled by the
 * success-redirect handler.
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

// CreateOrder inserts a pending order row.
func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) error {
	query := `
        INSERT INTO orders (
            id, user_id, order_type, order_name, amount, status, plan_id,
            delivery_name, delivery_phone, delivery_address, delivery_detail_address, delivery_memo,
            created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
    `
	_, err := r.db.Exec(ctx, query,
		order.ID,
		order.UserID,
		order.OrderType,
		order.OrderName,
		order.Amount,
		order.Status,
		order.PlanID,
		order.Delivery.Name,
		order.Delivery.Phone,
		order.Delivery.Address,
		order.Delivery.DetailAddress,
		order.Delivery.Memo,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// GetOrder retrieves an order by ID.
func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var o domain.Order
	query := `
        SELECT id, user_id, order_type, order_name, amount, status, COALESCE(plan_id, ''),
               delivery_name, delivery_phone, delivery_address,
               COALESCE(delivery_detail_address, ''), COALESCE(delivery_memo, ''),
               created_at, paid_at
        FROM orders
        WHERE id = $1
    `
	err := r.db.QueryRow(ctx, query, id).Scan(
		&o.ID,
		&o.UserID,
		&o.OrderType,
		&o.OrderName,
		&o.Amount,
		&o.Status,
		&o.PlanID,
		&o.Delivery.Name,
		&o.Delivery.Phone,
		&o.Delivery.Address,
		&o.Delivery.DetailAddress,
		&o.Delivery.Memo,
		&o.CreatedAt,
		&o.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	return &o, nil
}

// ListOrdersByUser returns a user's orders, newest first.
func (r *Repository) ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	query := `
        SELECT id, user_id, order_type, order_name, amount, status, COALESCE(plan_id, ''),
               delivery_name, delivery_phone, delivery_address,
               COALESCE(delivery_detail_address, ''), COALESCE(delivery_memo, ''),
               created_at, paid_at
        FROM orders
        WHERE user_id = $1
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(
			&o.ID,
			&o.UserID,
			&o.OrderType,
			&o.OrderName,
			&o.Amount,
			&o.Status,
			&o.PlanID,
			&o.Delivery.Name,
			&o.Delivery.Phone,
			&o.Delivery.Address,
			&o.Delivery.DetailAddress,
			&o.Delivery.Memo,
			&o.CreatedAt,
			&o.PaidAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// MarkOrderPaid settles a pending order.
func (r *Repository) MarkOrderPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders SET status = $2, paid_at = $3 WHERE id = $1 AND status = $4`,
		id, domain.OrderPaid, paidAt, domain.OrderPending)
	if err != nil {
		return fmt.Errorf("failed to mark order paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// MarkOrderFailed records a failed payment attempt.
func (r *Repository) MarkOrderFailed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1 AND status = $3`,
		id, domain.OrderFailed, domain.OrderPending)
	if err != nil {
		return fmt.Errorf("failed to mark order failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}
