package order

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/merchshop/internal/domain/product"
	"github.com/xenking/merchshop/internal/domain/promo"
)

type mockProductRepo struct {
	byID   map[int64]product.Product
	getErr error
	calls  int
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[int64]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{byID: byID}
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	m.calls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockPromoValidator struct {
	codes map[string]*promo.Code
	err   error
}

func (m *mockPromoValidator) Validate(_ context.Context, code string) (*promo.Code, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.codes[promo.Normalize(code)]
	if !ok {
		return nil, promo.ErrNotFound
	}
	return c, nil
}

type fakeOrderRepo struct {
	orders         map[int64]*Order
	nextID         int64
	createErr      error
	createItemsErr error
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[int64]*Order)}
}

func (f *fakeOrderRepo) Create(_ context.Context, o *Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	o.ID = f.nextID
	stored := *o
	stored.Items = nil
	f.orders[o.ID] = &stored
	return nil
}

func (f *fakeOrderRepo) CreateItems(_ context.Context, orderID int64, items []Item) error {
	if f.createItemsErr != nil {
		return f.createItemsErr
	}
	f.orders[orderID].Items = slices.Clone(items)
	return nil
}

func (f *fakeOrderRepo) Get(_ context.Context, id int64) (*Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.Items = slices.Clone(o.Items)
	return &cp, nil
}

func (f *fakeOrderRepo) UpdateStatus(_ context.Context, id int64, status Status) (Status, error) {
	o, ok := f.orders[id]
	if !ok {
		return "", ErrNotFound
	}
	old := o.Status
	o.Status = status
	o.UpdatedAt = time.Now()
	return old, nil
}

func (f *fakeOrderRepo) Delete(_ context.Context, id int64) error {
	if _, ok := f.orders[id]; !ok {
		return ErrNotFound
	}
	delete(f.orders, id)
	return nil
}

// fakeTx restores the repository snapshot when fn fails.
type fakeTx struct {
	repo      *fakeOrderRepo
	commits   int
	rollbacks int
}

func (f *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	saved := make(map[int64]*Order, len(f.repo.orders))
	for id, o := range f.repo.orders {
		cp := *o
		saved[id] = &cp
	}
	nextID := f.repo.nextID

	if err := fn(ctx); err != nil {
		f.repo.orders = saved
		f.repo.nextID = nextID
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

func (f *fakeOrderRepo) ids() []int64 {
	return slices.Sorted(maps.Keys(f.orders))
}

func newTestProduct(id int64, name, price string, active bool) product.Product {
	return product.Product{
		ID:       id,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		IsActive: active,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
