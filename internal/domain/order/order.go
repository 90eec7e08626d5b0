package order

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/merchshop/internal/money"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusConfirmed Status = "confirmed"
	StatusCanceled  Status = "canceled"
	StatusDelivered Status = "delivered"
)

var statuses = []Status{StatusNew, StatusContacted, StatusConfirmed, StatusCanceled, StatusDelivered}

// Statuses returns every known status in display order.
func Statuses() []Status {
	return slices.Clone(statuses)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return slices.Contains(statuses, s)
}

// Label is the human-readable form used in staff messages.
func (s Status) Label() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusContacted:
		return "Contacted"
	case StatusConfirmed:
		return "Confirmed"
	case StatusCanceled:
		return "Canceled"
	case StatusDelivered:
		return "Delivered"
	default:
		return string(s)
	}
}

// PaymentMethod is how the customer intends to pay.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentCard
}

// Label is the human-readable form used in staff messages.
func (m PaymentMethod) Label() string {
	switch m {
	case PaymentCash:
		return "Cash"
	case PaymentCard:
		return "Card"
	default:
		return string(m)
	}
}

// Order is a placed customer order. Monetary fields are fixed at creation.
type Order struct {
	ID               int64
	FullName         string
	PhoneNumber      string
	TelegramUsername string
	PaymentMethod    PaymentMethod
	Comment          string
	// PromoID is nil when no promo was applied or the promo was deleted.
	PromoID *int64
	// PromoCode is the code of the referenced promo, empty when PromoID is nil.
	PromoCode     string
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	Total         decimal.Decimal
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Items         []Item
}

// Item is an immutable line of an order with name and price snapshots taken
// at order time.
type Item struct {
	ID            int64
	OrderID       int64
	ProductID     int64
	NameSnapshot  string
	PriceSnapshot decimal.Decimal
	Qty           int
	LineTotal     decimal.Decimal
}

// ErrInvariant is wrapped by every monetary consistency violation.
var ErrInvariant = errors.New("order invariant violated")

// Validate checks the monetary invariants that must hold before an order is
// written.
func (o *Order) Validate() error {
	if o.Subtotal.IsNegative() || o.DiscountTotal.IsNegative() || o.Total.IsNegative() {
		return errors.Wrap(ErrInvariant, "negative amount")
	}
	if !o.Total.Equal(o.Subtotal.Sub(o.DiscountTotal)) {
		return errors.Wrapf(ErrInvariant, "total %s != subtotal %s - discount %s",
			o.Total, o.Subtotal, o.DiscountTotal)
	}
	if len(o.Items) == 0 {
		return errors.Wrap(ErrInvariant, "order has no items")
	}
	for _, it := range o.Items {
		if it.Qty <= 0 {
			return errors.Wrapf(ErrInvariant, "product %d: qty %d", it.ProductID, it.Qty)
		}
		if !it.LineTotal.Equal(money.LineTotal(it.PriceSnapshot, it.Qty)) {
			return errors.Wrapf(ErrInvariant, "product %d: line total %s != %s x %d",
				it.ProductID, it.LineTotal, it.PriceSnapshot, it.Qty)
		}
	}
	return nil
}

// Repository defines persistence operations for orders. Implementations run
// inside the transaction carried by ctx when there is one.
type Repository interface {
	// Create inserts the order header and assigns ID and timestamps.
	Create(ctx context.Context, o *Order) error
	// CreateItems bulk-inserts the lines of a created order.
	CreateItems(ctx context.Context, orderID int64, items []Item) error
	// Get returns the order with its items, or ErrNotFound.
	Get(ctx context.Context, id int64) (*Order, error)
	// UpdateStatus sets the status and returns the previous one.
	UpdateStatus(ctx context.Context, id int64, status Status) (Status, error)
	// Delete removes the order and its items.
	Delete(ctx context.Context, id int64) error
}

// Transactor runs fn inside a single atomic transaction. If fn returns an
// error, nothing fn wrote is kept.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
