package memory

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/merchshop/internal/domain/product"
	"github.com/xenking/merchshop/internal/domain/promo"
)

// ErrProductInUse is returned when deleting a product that order items
// still reference.
var ErrProductInUse = errors.New("product is referenced by order items")

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ promo.Repository   = (*PromoRepository)(nil)
)

// ProductRepository is the in-memory catalog.
type ProductRepository struct {
	s *Store
}

// Put inserts or replaces p.
func (r *ProductRepository) Put(ctx context.Context, p product.Product) {
	defer r.s.lock(ctx)()
	r.s.products[p.ID] = p
}

// Delete removes a product unless an order item references it.
func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	defer r.s.lock(ctx)()
	for _, items := range r.s.items {
		for _, it := range items {
			if it.ProductID == id {
				return ErrProductInUse
			}
		}
	}
	delete(r.s.products, id)
	return nil
}

// GetByIDs returns the products matching any of ids.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	defer r.s.lock(ctx)()
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// PromoRepository is the in-memory promo code table.
type PromoRepository struct {
	s *Store
}

// Put inserts or replaces c, keyed by its normalized code. A zero ID is
// assigned a fresh one.
func (r *PromoRepository) Put(ctx context.Context, c promo.Code) promo.Code {
	defer r.s.lock(ctx)()
	c.Code = promo.Normalize(c.Code)
	if existing, ok := r.s.promos[c.Code]; ok && c.ID == 0 {
		c.ID = existing.ID
	}
	if c.ID == 0 {
		r.s.nextPromoID++
		c.ID = r.s.nextPromoID
	}
	r.s.promos[c.Code] = c
	return c
}

// Delete removes a promo code and detaches it from orders.
func (r *PromoRepository) Delete(ctx context.Context, code string) {
	defer r.s.lock(ctx)()
	c, ok := r.s.promos[promo.Normalize(code)]
	if !ok {
		return
	}
	delete(r.s.promos, c.Code)
	for id, o := range r.s.orders {
		if o.PromoID != nil && *o.PromoID == c.ID {
			o.PromoID = nil
			o.PromoCode = ""
			r.s.orders[id] = o
		}
	}
}

// FindByCode looks up a code case-insensitively.
func (r *PromoRepository) FindByCode(ctx context.Context, code string) (*promo.Code, error) {
	defer r.s.lock(ctx)()
	c, ok := r.s.promos[promo.Normalize(code)]
	if !ok {
		return nil, promo.ErrNotFound
	}
	return &c, nil
}

func (r *PromoRepository) codeByID(id int64) string {
	for _, c := range r.s.promos {
		if c.ID == id {
			return c.Code
		}
	}
	return ""
}
