package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"registration-service/internal/models"

	"github.com/lib/pq"
)

// ErrDuplicateOrderNo is returned when an insert hits the unique
// constraint on order_no. Order numbers are time-plus-random so this is
// practically impossible, but correctness never relies on freshness.
var ErrDuplicateOrderNo = errors.New("duplicate order number")

// ErrOrderNotFound is returned when no order exists for an order number.
var ErrOrderNotFound = errors.New("order not found")

// CreateOrder persists a new payment order in PENDING state.
func (s *Store) CreateOrder(ctx context.Context, order *models.PaymentOrder) error {
	query := `
		INSERT INTO payment_orders (order_no, batch_id, open_id, fee_fen, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := s.db.GetContext(ctx, order, query,
		order.OrderNo, order.BatchID, order.OpenID, order.FeeFen, order.Status)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("order %s: %w", order.OrderNo, ErrDuplicateOrderNo)
		}
		return err
	}
	return nil
}

// GetOrderByOrderNo retrieves an order by its order number.
func (s *Store) GetOrderByOrderNo(ctx context.Context, orderNo string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM payment_orders WHERE order_no = $1", orderNo)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", orderNo, ErrOrderNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkOrderPaid transitions an order PENDING -> PAID. The update is
// status-guarded: it succeeds only if the order is still PENDING, so two
// concurrent deliveries of the same notification race on the database row
// and exactly one wins. Returns false when zero rows matched, which the
// caller treats as already handled.
func (s *Store) MarkOrderPaid(ctx context.Context, orderNo, transactionID string, paidAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE payment_orders SET status = $1, transaction_id = $2, paid_at = $3 WHERE order_no = $4 AND status = $5",
		models.OrderStatusPaid, transactionID, paidAt, orderNo, models.OrderStatusPending)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// MarkOrderFailed transitions an order PENDING -> FAILED. Guarded the same
// way as MarkOrderPaid; a terminal order is never touched.
func (s *Store) MarkOrderFailed(ctx context.Context, orderNo string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE payment_orders SET status = $1 WHERE order_no = $2 AND status = $3",
		models.OrderStatusFailed, orderNo, models.OrderStatusPending)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// GetOrdersByOpenID retrieves orders for a payer identity
func (s *Store) GetOrdersByOpenID(ctx context.Context, openID string) ([]models.PaymentOrder, error) {
	var orders []models.PaymentOrder
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM payment_orders WHERE open_id = $1 ORDER BY created_at DESC", openID)
	return orders, err
}
