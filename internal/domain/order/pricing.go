package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/merchshop/internal/domain/product"
	"github.com/xenking/merchshop/internal/domain/promo"
	"github.com/xenking/merchshop/internal/money"
)

// MaxQty bounds the quantity of one product in a cart.
const MaxQty = 10000

// Line is a requested cart line.
type Line struct {
	ProductID int64
	Qty       int
}

// PricedLine is a deduplicated cart line resolved against the catalog.
type PricedLine struct {
	Product product.Product
	Qty     int
}

// Price is the effective unit price captured for the line.
func (l PricedLine) Price() decimal.Decimal {
	return l.Product.EffectivePrice()
}

// Total is the line value rounded to cents.
func (l PricedLine) Total() decimal.Decimal {
	return money.LineTotal(l.Price(), l.Qty)
}

// Quote is the result of pricing a cart. It has no side effects and can be
// recomputed at will.
type Quote struct {
	Lines         []PricedLine
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	Total         decimal.Decimal
	// Promo is the applied promo code, nil if none.
	Promo *promo.Code
}

// PromoValidator resolves a promo code that can be applied now.
type PromoValidator interface {
	Validate(ctx context.Context, code string) (*promo.Code, error)
}

// Pricer computes cart totals from the catalog and promo codes.
type Pricer struct {
	products product.Repository
	promos   PromoValidator
}

// NewPricer creates a Pricer.
func NewPricer(products product.Repository, promos PromoValidator) *Pricer {
	return &Pricer{products: products, promos: promos}
}

// Dedupe merges lines with the same product, summing quantities. The result
// keeps the order in which each product first appeared.
func Dedupe(lines []Line) []Line {
	idx := make(map[int64]int, len(lines))
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if i, ok := idx[l.ProductID]; ok {
			out[i].Qty += l.Qty
			continue
		}
		idx[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}

// Quote prices lines and applies code when it is not blank.
func (p *Pricer) Quote(ctx context.Context, lines []Line, code string) (*Quote, error) {
	q, err := p.Subtotal(ctx, lines)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return q, nil
	}
	if err := p.ApplyPromo(ctx, q, code); err != nil {
		return nil, err
	}
	return q, nil
}

// Subtotal dedupes and validates lines against the catalog and returns a
// quote without any discount. Validation stops at the first offending line.
func (p *Pricer) Subtotal(ctx context.Context, lines []Line) (*Quote, error) {
	for _, l := range lines {
		if l.Qty <= 0 || l.Qty > MaxQty {
			return nil, &InvalidQuantityError{ProductID: l.ProductID, Qty: l.Qty}
		}
	}

	lines = Dedupe(lines)
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	for _, l := range lines {
		if l.Qty > MaxQty {
			return nil, &InvalidQuantityError{ProductID: l.ProductID, Qty: l.Qty}
		}
	}

	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}

	// Batch fetch all products in a single query.
	fetched, err := p.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}

	productMap := make(map[int64]product.Product, len(fetched))
	for _, pr := range fetched {
		productMap[pr.ID] = pr
	}

	q := &Quote{Lines: make([]PricedLine, 0, len(lines))}
	sum := decimal.Zero
	for _, l := range lines {
		pr, ok := productMap[l.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: l.ProductID}
		}
		if !pr.IsActive {
			return nil, &ProductInactiveError{ProductID: l.ProductID}
		}
		pl := PricedLine{Product: pr, Qty: l.Qty}
		q.Lines = append(q.Lines, pl)
		sum = sum.Add(pl.Price().Mul(decimal.NewFromInt(int64(l.Qty))))
	}

	// Rounded once over the aggregate, not per line.
	q.Subtotal = money.Round(sum)
	if q.Subtotal.GreaterThan(money.MaxAmount) {
		return nil, ErrAmountTooLarge
	}
	q.DiscountTotal = decimal.Zero
	q.Total = q.Subtotal
	return q, nil
}

// ApplyPromo validates code and sets the discount on q. On error q is left
// without a discount.
func (p *Pricer) ApplyPromo(ctx context.Context, q *Quote, code string) error {
	c, err := p.promos.Validate(ctx, code)
	if err != nil {
		return err
	}
	q.Promo = c
	q.DiscountTotal = c.Discount(q.Subtotal)
	q.Total = q.Subtotal.Sub(q.DiscountTotal)
	return nil
}
