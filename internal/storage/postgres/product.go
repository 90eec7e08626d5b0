package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/merchshop/internal/domain/product"
)

const (
	getProductsByIDsSQL = `SELECT id, name, price, discount_price, is_active
		FROM products WHERE id = ANY($1)`

	upsertProductSQL = `INSERT INTO products (id, name, price, discount_price, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			discount_price = EXCLUDED.discount_price,
			is_active = EXCLUDED.is_active,
			updated_at = now()`

	// Keeps BIGSERIAL ahead of explicitly seeded ids.
	syncProductSeqSQL = `SELECT setval(pg_get_serial_sequence('products', 'id'),
		GREATEST((SELECT COALESCE(MAX(id), 0) FROM products), 1))`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert inserts p or replaces the product with the same ID.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	q := conn(ctx, r.pool)
	if _, err := q.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.DiscountPrice, p.IsActive); err != nil {
		return fmt.Errorf("upserting product %d: %w", p.ID, err)
	}
	if _, err := q.Exec(ctx, syncProductSeqSQL); err != nil {
		return fmt.Errorf("syncing product sequence: %w", err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.DiscountPrice, &p.IsActive)
	return p, err
}
