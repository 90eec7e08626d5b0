package order

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/merchshop/internal/domain/promo"
)

// CommitHook is called once for every order whose creation transaction has
// committed. Hooks run on the caller's goroutine and must not block.
type CommitHook func(ctx context.Context, o *Order)

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Lines            []Line
	FullName         string
	PhoneNumber      string
	TelegramUsername string
	PaymentMethod    PaymentMethod
	PromoCode        string
	Comment          string
}

// Preview is the result of checking a promo code against a cart. When Valid
// is false, Err holds the promo error and the totals are those of the cart
// without a discount.
type Preview struct {
	Valid    bool
	Promo    *promo.Code
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
	Err      error
}

// Service encapsulates order placement and the order state transitions.
type Service struct {
	pricer *Pricer
	orders Repository
	tx     Transactor
	now    func() time.Time

	mu    sync.RWMutex
	hooks []CommitHook
}

// NewService creates an order Service with the required domain dependencies.
func NewService(pricer *Pricer, orders Repository, tx Transactor) *Service {
	return &Service{
		pricer: pricer,
		orders: orders,
		tx:     tx,
		now:    time.Now,
	}
}

// OnCommit subscribes h to committed order creations.
func (s *Service) OnCommit(h CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

func (s *Service) publish(ctx context.Context, o *Order) {
	s.mu.RLock()
	hooks := s.hooks
	s.mu.RUnlock()

	for _, h := range hooks {
		h(ctx, o)
	}
}

// PlaceOrder prices the cart and persists the order with its items in one
// transaction. Commit hooks are notified only after the commit succeeded.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if !req.PaymentMethod.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	var created *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		q, err := s.pricer.Quote(ctx, req.Lines, req.PromoCode)
		if err != nil {
			return err
		}

		o := s.newOrder(req, q)
		if err := o.Validate(); err != nil {
			return err
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		for i := range o.Items {
			o.Items[i].OrderID = o.ID
		}
		if err := s.orders.CreateItems(ctx, o.ID, o.Items); err != nil {
			return errors.Wrap(err, "create order items")
		}

		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, created)
	return created, nil
}

func (s *Service) newOrder(req PlaceOrderRequest, q *Quote) *Order {
	now := s.now()
	o := &Order{
		FullName:         strings.TrimSpace(req.FullName),
		PhoneNumber:      strings.TrimSpace(req.PhoneNumber),
		TelegramUsername: strings.TrimPrefix(strings.TrimSpace(req.TelegramUsername), "@"),
		PaymentMethod:    req.PaymentMethod,
		Comment:          strings.TrimSpace(req.Comment),
		Subtotal:         q.Subtotal,
		DiscountTotal:    q.DiscountTotal,
		Total:            q.Total,
		Status:           StatusNew,
		CreatedAt:        now,
		UpdatedAt:        now,
		Items:            make([]Item, len(q.Lines)),
	}
	if q.Promo != nil {
		id := q.Promo.ID
		o.PromoID = &id
		o.PromoCode = q.Promo.Code
	}
	for i, l := range q.Lines {
		o.Items[i] = Item{
			ProductID:     l.Product.ID,
			NameSnapshot:  l.Product.Name,
			PriceSnapshot: l.Price(),
			Qty:           l.Qty,
			LineTotal:     l.Total(),
		}
	}
	return o
}

// PreviewPromo prices the cart and tries code on it. Cart errors are
// returned as errors; promo errors are reported through Preview.
func (s *Service) PreviewPromo(ctx context.Context, code string, lines []Line) (*Preview, error) {
	q, err := s.pricer.Subtotal(ctx, lines)
	if err != nil {
		return nil, err
	}

	err = s.pricer.ApplyPromo(ctx, q, code)
	switch {
	case err == nil:
		return &Preview{
			Valid:    true,
			Promo:    q.Promo,
			Subtotal: q.Subtotal,
			Discount: q.DiscountTotal,
			Total:    q.Total,
		}, nil
	case errors.Is(err, promo.ErrNotFound), errors.Is(err, promo.ErrInactive), errors.Is(err, promo.ErrExpired):
		return &Preview{
			Subtotal: q.Subtotal,
			Discount: decimal.Zero,
			Total:    q.Subtotal,
			Err:      err,
		}, nil
	default:
		return nil, err
	}
}

// Get returns the order with its items.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// UpdateStatus sets the status of an order and returns the previous one.
// Concurrent writers are not coordinated: the last write wins.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status Status) (Status, error) {
	if !status.Valid() {
		return "", &InvalidStatusError{Value: string(status)}
	}
	old, err := s.orders.UpdateStatus(ctx, id, status)
	if err != nil {
		return "", err
	}
	return old, nil
}

// Confirm re-reads the order and marks it confirmed. Confirming an already
// confirmed order applies the same status again.
func (s *Service) Confirm(ctx context.Context, id int64) (*Order, error) {
	var confirmed *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.Get(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.orders.UpdateStatus(ctx, id, StatusConfirmed); err != nil {
			return err
		}
		o.Status = StatusConfirmed
		o.UpdatedAt = s.now()
		confirmed = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

// Cancel deletes the order together with its items and returns the order as
// it was right before deletion.
func (s *Service) Cancel(ctx context.Context, id int64) (*Order, error) {
	var snapshot *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.orders.Delete(ctx, id); err != nil {
			return err
		}
		snapshot = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}
