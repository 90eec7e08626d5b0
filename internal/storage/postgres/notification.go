package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/merchshop/internal/domain/notification"
	"github.com/xenking/merchshop/internal/domain/order"
)

const (
	createNotificationSQL = `INSERT INTO group_notifications (order_id, status)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`

	finalizeNotificationSQL = `UPDATE group_notifications
		SET status = $2, message_id = $3, error_message = $4, updated_at = now()
		WHERE id = $1 AND status = 'pending'`

	listNotificationsSQL = `SELECT id, order_id, status, COALESCE(message_id, ''),
			COALESCE(error_message, ''), created_at, updated_at
		FROM group_notifications WHERE order_id = $1 ORDER BY id`

	notificationStatsSQL = `SELECT
			count(*),
			count(*) FILTER (WHERE status = 'sent'),
			count(*) FILTER (WHERE status = 'failed')
		FROM group_notifications`
)

var _ notification.Repository = (*NotificationRepository)(nil)

// NotificationRepository implements notification.Repository backed by
// PostgreSQL.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository returns a NotificationRepository that uses the
// given pool.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) Create(ctx context.Context, n *notification.GroupNotification) error {
	n.Status = notification.StatusPending
	err := conn(ctx, r.pool).QueryRow(ctx, createNotificationSQL, n.OrderID, string(n.Status)).
		Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("notification for order %d: %w", n.OrderID, order.ErrNotFound)
		}
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

func (r *NotificationRepository) MarkSent(ctx context.Context, id int64, messageID string) error {
	return r.finalize(ctx, id, notification.StatusSent, nullString(messageID), nil)
}

func (r *NotificationRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	return r.finalize(ctx, id, notification.StatusFailed, nil, nullString(reason))
}

func (r *NotificationRepository) finalize(ctx context.Context, id int64, status notification.Status, messageID, reason *string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, finalizeNotificationSQL, id, string(status), messageID, reason)
	if err != nil {
		return fmt.Errorf("marking notification %d %s: %w", id, status, err)
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrAlreadyFinal
	}
	return nil
}

func (r *NotificationRepository) ListByOrder(ctx context.Context, orderID int64) ([]notification.GroupNotification, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listNotificationsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing notifications of order %d: %w", orderID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (notification.GroupNotification, error) {
		var (
			n      notification.GroupNotification
			status string
		)
		err := row.Scan(&n.ID, &n.OrderID, &status, &n.MessageID, &n.ErrorMessage, &n.CreatedAt, &n.UpdatedAt)
		n.Status = notification.Status(status)
		return n, err
	})
}

func (r *NotificationRepository) Stats(ctx context.Context) (notification.Stats, error) {
	var s notification.Stats
	err := conn(ctx, r.pool).QueryRow(ctx, notificationStatsSQL).Scan(&s.Total, &s.Sent, &s.Failed)
	if err != nil {
		return s, fmt.Errorf("notification stats: %w", err)
	}
	return s, nil
}
