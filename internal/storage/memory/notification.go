package memory

import (
	"context"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/merchshop/internal/domain/notification"
	"github.com/xenking/merchshop/internal/domain/order"
)

var _ notification.Repository = (*NotificationRepository)(nil)

// NotificationRepository is the in-memory group_notifications table.
type NotificationRepository struct {
	s *Store
}

// Create stores n as pending.
func (r *NotificationRepository) Create(ctx context.Context, n *notification.GroupNotification) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.orders[n.OrderID]; !ok {
		return errors.Wrapf(order.ErrNotFound, "order %d", n.OrderID)
	}
	r.s.nextNotificationID++
	now := r.s.now()
	n.ID = r.s.nextNotificationID
	n.Status = notification.StatusPending
	n.CreatedAt = now
	n.UpdatedAt = now
	r.s.notifications[n.ID] = *n
	return nil
}

// MarkSent moves a pending notification to sent.
func (r *NotificationRepository) MarkSent(ctx context.Context, id int64, messageID string) error {
	return r.finalize(ctx, id, func(n *notification.GroupNotification) {
		n.Status = notification.StatusSent
		n.MessageID = messageID
	})
}

// MarkFailed moves a pending notification to failed.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	return r.finalize(ctx, id, func(n *notification.GroupNotification) {
		n.Status = notification.StatusFailed
		n.ErrorMessage = reason
	})
}

func (r *NotificationRepository) finalize(ctx context.Context, id int64, apply func(n *notification.GroupNotification)) error {
	defer r.s.lock(ctx)()

	n, ok := r.s.notifications[id]
	if !ok {
		return errors.Errorf("notification %d not found", id)
	}
	if n.Status != notification.StatusPending {
		return notification.ErrAlreadyFinal
	}
	apply(&n)
	n.UpdatedAt = r.s.now()
	r.s.notifications[id] = n
	return nil
}

// ListByOrder returns the notifications of an order, oldest first.
func (r *NotificationRepository) ListByOrder(ctx context.Context, orderID int64) ([]notification.GroupNotification, error) {
	defer r.s.lock(ctx)()

	var out []notification.GroupNotification
	for _, n := range r.s.notifications {
		if n.OrderID == orderID {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b notification.GroupNotification) int {
		return int(a.ID - b.ID)
	})
	return out, nil
}

// Stats counts notifications by outcome.
func (r *NotificationRepository) Stats(ctx context.Context) (notification.Stats, error) {
	defer r.s.lock(ctx)()

	var st notification.Stats
	for _, n := range r.s.notifications {
		st.Total++
		switch n.Status {
		case notification.StatusSent:
			st.Sent++
		case notification.StatusFailed:
			st.Failed++
		}
	}
	return st, nil
}
