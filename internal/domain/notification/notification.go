// Package notification records delivery attempts of staff group messages.
package notification

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Status is the delivery state of a group notification.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// ErrAlreadyFinal is returned when a notification that already reached sent
// or failed is updated again.
var ErrAlreadyFinal = errors.New("notification already finalized")

// GroupNotification is one attempt to notify the staff group about an order.
// It is created pending and moves to sent or failed exactly once.
type GroupNotification struct {
	ID           int64
	OrderID      int64
	Status       Status
	MessageID    string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Stats aggregates notification outcomes.
type Stats struct {
	Total  int
	Sent   int
	Failed int
}

// Repository persists group notifications.
type Repository interface {
	// Create stores n as pending and assigns its ID.
	Create(ctx context.Context, n *GroupNotification) error
	// MarkSent moves a pending notification to sent.
	MarkSent(ctx context.Context, id int64, messageID string) error
	// MarkFailed moves a pending notification to failed.
	MarkFailed(ctx context.Context, id int64, reason string) error
	// ListByOrder returns the notifications of an order, oldest first.
	ListByOrder(ctx context.Context, orderID int64) ([]GroupNotification, error)
	Stats(ctx context.Context) (Stats, error)
}
