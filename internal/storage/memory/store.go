// Package memory provides an in-memory Store for tests and local development
// without PostgreSQL.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/xenking/merchshop/internal/domain/notification"
	"github.com/xenking/merchshop/internal/domain/order"
	"github.com/xenking/merchshop/internal/domain/product"
	"github.com/xenking/merchshop/internal/domain/promo"
)

var _ order.Transactor = (*Store)(nil)

type txKey struct{}

// Store keeps every table in maps guarded by a single mutex. A transaction
// holds the mutex for its whole duration, so operations are serializable.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	products      map[int64]product.Product
	promos        map[string]promo.Code
	orders        map[int64]order.Order
	items         map[int64][]order.Item
	notifications map[int64]notification.GroupNotification

	nextPromoID        int64
	nextOrderID        int64
	nextItemID         int64
	nextNotificationID int64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		now:           time.Now,
		products:      make(map[int64]product.Product),
		promos:        make(map[string]promo.Code),
		orders:        make(map[int64]order.Order),
		items:         make(map[int64][]order.Item),
		notifications: make(map[int64]notification.GroupNotification),
	}
}

type snapshot struct {
	products      map[int64]product.Product
	promos        map[string]promo.Code
	orders        map[int64]order.Order
	items         map[int64][]order.Item
	notifications map[int64]notification.GroupNotification

	nextPromoID, nextOrderID, nextItemID, nextNotificationID int64
}

func (s *Store) snapshot() snapshot {
	items := make(map[int64][]order.Item, len(s.items))
	for id, it := range s.items {
		items[id] = slices.Clone(it)
	}
	return snapshot{
		products:           maps.Clone(s.products),
		promos:             maps.Clone(s.promos),
		orders:             maps.Clone(s.orders),
		items:              items,
		notifications:      maps.Clone(s.notifications),
		nextPromoID:        s.nextPromoID,
		nextOrderID:        s.nextOrderID,
		nextItemID:         s.nextItemID,
		nextNotificationID: s.nextNotificationID,
	}
}

func (s *Store) restore(snap snapshot) {
	s.products = snap.products
	s.promos = snap.promos
	s.orders = snap.orders
	s.items = snap.items
	s.notifications = snap.notifications
	s.nextPromoID = snap.nextPromoID
	s.nextOrderID = snap.nextOrderID
	s.nextItemID = snap.nextItemID
	s.nextNotificationID = snap.nextNotificationID
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock acquires the store unless ctx already runs inside one of its
// transactions. The returned func releases it.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// InTx runs fn atomically. Nested calls join the outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// Products returns the catalog repository view.
func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }

// Promos returns the promo code repository view.
func (s *Store) Promos() *PromoRepository { return &PromoRepository{s: s} }

// Orders returns the order repository view.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

// Notifications returns the group notification repository view.
func (s *Store) Notifications() *NotificationRepository { return &NotificationRepository{s: s} }

// PutProduct stores p; used when seeding a development store.
func (s *Store) PutProduct(ctx context.Context, p product.Product) error {
	s.Products().Put(ctx, p)
	return nil
}

// PutPromo stores c; used when seeding a development store.
func (s *Store) PutPromo(ctx context.Context, c promo.Code) error {
	s.Promos().Put(ctx, c)
	return nil
}
