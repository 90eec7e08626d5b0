package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/merchshop/internal/domain/promo"
)

const (
	getPromoByCodeSQL = `SELECT id, code, percent, is_active, has_date_window, active_from, active_to
		FROM promo_codes WHERE code = UPPER($1)`

	upsertPromoSQL = `INSERT INTO promo_codes (code, percent, is_active, has_date_window, active_from, active_to)
		VALUES (UPPER($1), $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO UPDATE SET
			percent = EXCLUDED.percent,
			is_active = EXCLUDED.is_active,
			has_date_window = EXCLUDED.has_date_window,
			active_from = EXCLUDED.active_from,
			active_to = EXCLUDED.active_to,
			updated_at = now()
		RETURNING id`

	deletePromoSQL = `DELETE FROM promo_codes WHERE code = UPPER($1)`
)

var _ promo.Repository = (*PromoRepository)(nil)

// PromoRepository implements promo.Repository backed by PostgreSQL.
type PromoRepository struct {
	pool *pgxpool.Pool
}

// NewPromoRepository returns a PromoRepository that uses the given pool.
func NewPromoRepository(pool *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{pool: pool}
}

// FindByCode looks up a promo code case-insensitively. Returns
// promo.ErrNotFound when no row matches.
func (r *PromoRepository) FindByCode(ctx context.Context, code string) (*promo.Code, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getPromoByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding promo by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanPromo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("finding promo by code %q: %w", code, err)
	}
	return &c, nil
}

// Upsert inserts c or updates the row with the same code, and sets c.ID.
func (r *PromoRepository) Upsert(ctx context.Context, c *promo.Code) error {
	err := conn(ctx, r.pool).QueryRow(ctx, upsertPromoSQL,
		c.Code, c.Percent, c.IsActive, c.HasDateWindow, c.ActiveFrom, c.ActiveTo,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("upserting promo %q: %w", c.Code, err)
	}
	return nil
}

// UpsertMany upserts codes in a single batch round trip.
func (r *PromoRepository) UpsertMany(ctx context.Context, codes []promo.Code) error {
	if len(codes) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range codes {
		batch.Queue(upsertPromoSQL, c.Code, c.Percent, c.IsActive, c.HasDateWindow, c.ActiveFrom, c.ActiveTo)
	}

	br := conn(ctx, r.pool).SendBatch(ctx, batch)
	for _, c := range codes {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("upserting promo %q: %w", c.Code, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing promo batch: %w", err)
	}
	return nil
}

// Delete removes a promo code. Orders referencing it keep their amounts and
// lose the reference.
func (r *PromoRepository) Delete(ctx context.Context, code string) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, deletePromoSQL, code); err != nil {
		return fmt.Errorf("deleting promo %q: %w", code, err)
	}
	return nil
}

func scanPromo(row pgx.CollectableRow) (promo.Code, error) {
	var c promo.Code
	err := row.Scan(&c.ID, &c.Code, &c.Percent, &c.IsActive, &c.HasDateWindow, &c.ActiveFrom, &c.ActiveTo)
	return c, err
}
