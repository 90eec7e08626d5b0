package memory

import (
	"context"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/merchshop/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository is the in-memory orders and order_items tables.
type OrderRepository struct {
	s *Store
}

// Create stores the order header and assigns ID and timestamps.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	defer r.s.lock(ctx)()

	r.s.nextOrderID++
	o.ID = r.s.nextOrderID
	now := r.s.now()
	o.CreatedAt = now
	o.UpdatedAt = now

	stored := *o
	stored.Items = nil
	r.s.orders[o.ID] = stored
	return nil
}

// CreateItems stores the lines of an existing order.
func (r *OrderRepository) CreateItems(ctx context.Context, orderID int64, items []order.Item) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.orders[orderID]; !ok {
		return errors.Wrapf(order.ErrNotFound, "order %d", orderID)
	}
	for _, it := range items {
		if _, ok := r.s.products[it.ProductID]; !ok {
			return errors.Errorf("product %d does not exist", it.ProductID)
		}
	}

	stored := make([]order.Item, len(items))
	for i, it := range items {
		r.s.nextItemID++
		it.ID = r.s.nextItemID
		it.OrderID = orderID
		items[i].ID = it.ID
		stored[i] = it
	}
	r.s.items[orderID] = append(r.s.items[orderID], stored...)
	return nil
}

// Get returns a copy of the order with its items.
func (r *OrderRepository) Get(ctx context.Context, id int64) (*order.Order, error) {
	defer r.s.lock(ctx)()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if o.PromoID != nil {
		o.PromoCode = r.s.Promos().codeByID(*o.PromoID)
	}
	o.Items = slices.Clone(r.s.items[id])
	return &o, nil
}

// UpdateStatus sets the status and returns the previous one.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status order.Status) (order.Status, error) {
	defer r.s.lock(ctx)()

	o, ok := r.s.orders[id]
	if !ok {
		return "", order.ErrNotFound
	}
	old := o.Status
	o.Status = status
	o.UpdatedAt = r.s.now()
	r.s.orders[id] = o
	return old, nil
}

// Delete removes the order, its items and its notifications.
func (r *OrderRepository) Delete(ctx context.Context, id int64) error {
	defer r.s.lock(ctx)()

	if _, ok := r.s.orders[id]; !ok {
		return order.ErrNotFound
	}
	delete(r.s.orders, id)
	delete(r.s.items, id)
	for nid, n := range r.s.notifications {
		if n.OrderID == id {
			delete(r.s.notifications, nid)
		}
	}
	return nil
}

// Count returns the number of stored orders and order items.
func (r *OrderRepository) Count(ctx context.Context) (orders, items int) {
	defer r.s.lock(ctx)()
	for _, it := range r.s.items {
		items += len(it)
	}
	return len(r.s.orders), items
}
