// Command promo-import bulk loads promo codes from gzip compressed CSV
// files with lines of CODE,percent[,active_from,active_to].
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/merchshop/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		opts        Options
	)
	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.csv.gz promo files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&opts.ExpectedCodes, "expected-codes", 1_000_000, "bloom filter capacity")
	flag.Float64Var(&opts.FalsePositiveRate, "fpr", 0.001, "bloom filter false positive rate")
	flag.IntVar(&opts.BatchSize, "batch-size", 500, "codes per database batch")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()
	opts.Logger = lg

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, dataDir, databaseURL, opts); err != nil {
		lg.Fatal("Promo import failed", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, dataDir, databaseURL string, opts Options) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
	if err != nil {
		return errors.Wrap(err, "list files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.csv.gz files in %s", dataDir)
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	stats, err := NewImporter(postgres.NewPromoRepository(pool), opts).Import(ctx, files)
	if err != nil {
		return err
	}
	lg.Info("Promo import completed",
		zap.Int("files", len(files)),
		zap.Int("imported", stats.Imported),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("invalid", stats.Invalid),
	)
	return nil
}
