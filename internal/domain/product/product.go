package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is the catalog view consumed by order pricing.
type Product struct {
	ID            int64
	Name          string
	Price         decimal.Decimal
	DiscountPrice *decimal.Decimal
	IsActive      bool
}

// EffectivePrice returns the discount price when it is set and lower than the
// base price, otherwise the base price.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice != nil && p.DiscountPrice.LessThan(p.Price) {
		return *p.DiscountPrice
	}
	return p.Price
}

// Repository defines read operations for the product catalog.
type Repository interface {
	// GetByIDs returns the products matching any of ids. Missing ids are
	// simply absent from the result.
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
}
