package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/merchshop/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (
			full_name, phone_number, telegram_username, payment_method, comment,
			promo_id, subtotal, discount_total, total, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	getOrderSQL = `SELECT o.id, o.full_name, o.phone_number,
			COALESCE(o.telegram_username, ''), o.payment_method, COALESCE(o.comment, ''),
			o.promo_id, COALESCE(p.code, ''),
			o.subtotal, o.discount_total, o.total, o.status, o.created_at, o.updated_at
		FROM orders o
		LEFT JOIN promo_codes p ON p.id = o.promo_id
		WHERE o.id = $1`

	getOrderItemsSQL = `SELECT id, order_id, product_id, name_snapshot, price_snapshot, qty, line_total
		FROM order_items WHERE order_id = $1 ORDER BY id`

	updateOrderStatusSQL = `UPDATE orders o SET status = $2, updated_at = now()
		FROM (SELECT id, status FROM orders WHERE id = $1 FOR UPDATE) prev
		WHERE o.id = prev.id
		RETURNING prev.status`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`
)

var orderItemColumns = []string{"order_id", "product_id", "name_snapshot", "price_snapshot", "qty", "line_total"}

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts the order header and fills ID, CreatedAt and UpdatedAt.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := conn(ctx, r.pool).QueryRow(ctx, createOrderSQL,
		o.FullName,
		o.PhoneNumber,
		nullString(o.TelegramUsername),
		string(o.PaymentMethod),
		nullString(o.Comment),
		o.PromoID,
		o.Subtotal,
		o.DiscountTotal,
		o.Total,
		string(o.Status),
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}
	return nil
}

// CreateItems bulk-inserts the order lines with COPY.
func (r *OrderRepository) CreateItems(ctx context.Context, orderID int64, items []order.Item) error {
	if len(items) == 0 {
		return nil
	}

	n, err := conn(ctx, r.pool).CopyFrom(ctx,
		pgx.Identifier{"order_items"},
		orderItemColumns,
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			it := items[i]
			return []any{orderID, it.ProductID, it.NameSnapshot, it.PriceSnapshot, it.Qty, it.LineTotal}, nil
		}),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("inserting items of order %d: %w", orderID, order.ErrNotFound)
		}
		return fmt.Errorf("inserting items of order %d: %w", orderID, err)
	}
	if n != int64(len(items)) {
		return errors.Errorf("inserted %d of %d items", n, len(items))
	}
	return nil
}

// Get returns the order and its items in insertion order.
func (r *OrderRepository) Get(ctx context.Context, id int64) (*order.Order, error) {
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	rows, err = q.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %d: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %d: %w", id, err)
	}
	return &o, nil
}

// UpdateStatus sets the order status and returns the previous one.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status order.Status) (order.Status, error) {
	var prev string
	err := conn(ctx, r.pool).QueryRow(ctx, updateOrderStatusSQL, id, string(status)).Scan(&prev)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", order.ErrNotFound
		}
		return "", fmt.Errorf("updating status of order %d: %w", id, err)
	}
	return order.Status(prev), nil
}

// Delete removes the order. Items and notifications cascade.
func (r *OrderRepository) Delete(ctx context.Context, id int64) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o       order.Order
		payment string
		status  string
	)
	err := row.Scan(
		&o.ID, &o.FullName, &o.PhoneNumber,
		&o.TelegramUsername, &payment, &o.Comment,
		&o.PromoID, &o.PromoCode,
		&o.Subtotal, &o.DiscountTotal, &o.Total, &status, &o.CreatedAt, &o.UpdatedAt,
	)
	o.PaymentMethod = order.PaymentMethod(payment)
	o.Status = order.Status(status)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.NameSnapshot, &it.PriceSnapshot, &it.Qty, &it.LineTotal)
	return it, err
}
