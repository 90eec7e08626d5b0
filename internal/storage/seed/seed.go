// Package seed holds the starter catalog and promo codes loaded by seed-db
// and by the in-memory development store.
package seed

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/merchshop/internal/domain/product"
	"github.com/xenking/merchshop/internal/domain/promo"
)

// Promos are the promo codes every new installation starts with.
func Promos() []promo.Code {
	return []promo.Code{
		{Code: "WELCOME10", Percent: decimal.NewFromInt(10), IsActive: true},
		{Code: "STUDENT15", Percent: decimal.NewFromInt(15), IsActive: true},
		{Code: "ALUMNI20", Percent: decimal.NewFromInt(20), IsActive: false},
	}
}

// Catalog receives seeded rows.
type Catalog interface {
	PutProduct(ctx context.Context, p product.Product) error
	PutPromo(ctx context.Context, c promo.Code) error
}

// Load stores products and then promos into c.
func Load(ctx context.Context, c Catalog, products []product.Product, promos []promo.Code) error {
	for _, p := range products {
		if err := c.PutProduct(ctx, p); err != nil {
			return errors.Wrapf(err, "product %d", p.ID)
		}
	}
	for _, code := range promos {
		if err := code.Validate(); err != nil {
			return errors.Wrapf(err, "promo %s", code.Code)
		}
		if err := c.PutPromo(ctx, code); err != nil {
			return errors.Wrapf(err, "promo %s", code.Code)
		}
	}
	return nil
}

// Products decodes a JSON array of
// {id, name, price, discount_price?, is_active?} objects.
func Products(data []byte) ([]product.Product, error) {
	var out []product.Product
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		p := product.Product{IsActive: true}
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			switch string(key) {
			case "id":
				v, err := d.Int64()
				p.ID = v
				return err
			case "name":
				v, err := d.Str()
				p.Name = v
				return err
			case "price":
				v, err := decodeDecimal(d)
				if err != nil {
					return err
				}
				if v == nil {
					return errors.New("price is required")
				}
				p.Price = *v
				return nil
			case "discount_price":
				v, err := decodeDecimal(d)
				p.DiscountPrice = v
				return err
			case "is_active":
				v, err := d.Bool()
				p.IsActive = v
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			return errors.Wrapf(err, "product #%d", len(out)+1)
		}

		switch {
		case p.ID <= 0:
			return errors.Errorf("product #%d: id must be positive", len(out)+1)
		case p.Name == "":
			return errors.Errorf("product %d: name is required", p.ID)
		case p.Price.IsNegative():
			return errors.Errorf("product %d: negative price", p.ID)
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// decodeDecimal accepts a JSON string or number, or null.
func decodeDecimal(d *jx.Decoder) (*decimal.Decimal, error) {
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		return &v, nil
	default:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		v, err := decimal.NewFromString(n.String())
		if err != nil {
			return nil, err
		}
		return &v, nil
	}
}
