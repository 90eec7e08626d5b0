// Command seed-db loads catalog products and the default promo codes.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/merchshop/internal/domain/product"
	"github.com/xenking/merchshop/internal/domain/promo"
	"github.com/xenking/merchshop/internal/storage/postgres"
	"github.com/xenking/merchshop/internal/storage/seed"
)

func main() {
	var (
		databaseURL  string
		productsFile string
		skipPromos   bool
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.BoolVar(&skipPromos, "skip-promos", false, "do not seed the default promo codes")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, productsFile, skipPromos); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

// catalog adapts the PostgreSQL repositories to seed.Catalog.
type catalog struct {
	products *postgres.ProductRepository
	promos   *postgres.PromoRepository
	lg       *zap.Logger
}

func (c catalog) PutProduct(ctx context.Context, p product.Product) error {
	if err := c.products.Upsert(ctx, p); err != nil {
		return err
	}
	c.lg.Info("Upserted product", zap.Int64("id", p.ID), zap.String("name", p.Name))
	return nil
}

func (c catalog) PutPromo(ctx context.Context, code promo.Code) error {
	if err := c.promos.Upsert(ctx, &code); err != nil {
		return err
	}
	c.lg.Info("Upserted promo code", zap.String("code", code.Code), zap.Bool("active", code.IsActive))
	return nil
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, productsFile string, skipPromos bool) error {
	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}
	products, err := seed.Products(data)
	if err != nil {
		return errors.Wrapf(err, "parse %s", productsFile)
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	var promos []promo.Code
	if !skipPromos {
		promos = seed.Promos()
	}
	return seed.Load(ctx, catalog{
		products: postgres.NewProductRepository(pool),
		promos:   postgres.NewPromoRepository(pool),
		lg:       lg,
	}, products, promos)
}
