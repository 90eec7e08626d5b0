package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/merchshop/internal/domain/promo"
)

const maxCodeLen = 50

// Store is where imported codes go.
type Store interface {
	UpsertMany(ctx context.Context, codes []promo.Code) error
	FindByCode(ctx context.Context, code string) (*promo.Code, error)
}

// Options tunes an Importer.
type Options struct {
	ExpectedCodes     uint
	FalsePositiveRate float64
	BatchSize         int
	Logger            *zap.Logger
}

// Stats summarizes an import.
type Stats struct {
	Imported   int
	Duplicates int
	Invalid    int
}

// Importer streams promo files concurrently into a Store. Each code is
// written once; the others are counted as duplicates. Files are read in
// parallel, so which of several differing lines wins is unspecified.
type Importer struct {
	store Store
	opts  Options
}

// NewImporter returns an Importer writing to store.
func NewImporter(store Store, opts Options) *Importer {
	if opts.ExpectedCodes == 0 {
		opts.ExpectedCodes = 1_000_000
	}
	if opts.FalsePositiveRate <= 0 {
		opts.FalsePositiveRate = 0.001
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Importer{store: store, opts: opts}
}

type row struct {
	code promo.Code
	file string
	line int
}

// Import reads all files and writes their codes.
//
// Readers run one per file. A single writer owns the bloom filter: a code
// the filter has not seen is new and is batched for writing; a code it may
// have seen is held back. Held back codes that turn out to be absent from
// the store after all batches are written were filter false positives and
// are written then.
func (im *Importer) Import(ctx context.Context, files []string) (Stats, error) {
	var (
		stats    Stats
		suspects []row
		rows     = make(chan row, 1024)
		invalid  = make(chan struct{}, 1024)
	)
	lg := im.opts.Logger

	g, ctx := errgroup.WithContext(ctx)
	readers, readCtx := errgroup.WithContext(ctx)
	for _, f := range files {
		readers.Go(func() error {
			return im.readFile(readCtx, f, rows, invalid)
		})
	}
	g.Go(func() error {
		defer close(rows)
		defer close(invalid)
		return readers.Wait()
	})
	g.Go(func() error {
		for range invalid {
			stats.Invalid++
		}
		return nil
	})

	var written int
	g.Go(func() error {
		filter := bloom.NewWithEstimates(im.opts.ExpectedCodes, im.opts.FalsePositiveRate)
		batch := make([]promo.Code, 0, im.opts.BatchSize)
		for r := range rows {
			if filter.TestOrAddString(r.code.Code) {
				suspects = append(suspects, r)
				continue
			}
			batch = append(batch, r.code)
			if len(batch) == cap(batch) {
				if err := im.store.UpsertMany(ctx, batch); err != nil {
					return errors.Wrap(err, "write batch")
				}
				written += len(batch)
				lg.Debug("Batch written", zap.Int("total", written))
				batch = batch[:0]
			}
		}
		if len(batch) > 0 {
			if err := im.store.UpsertMany(ctx, batch); err != nil {
				return errors.Wrap(err, "write batch")
			}
			written += len(batch)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return stats, err
	}
	stats.Imported = written

	missed, err := im.resolve(ctx, suspects)
	if err != nil {
		return stats, err
	}
	if len(missed) > 0 {
		if err := im.store.UpsertMany(ctx, missed); err != nil {
			return stats, errors.Wrap(err, "write false positives")
		}
	}
	stats.Imported += len(missed)
	stats.Duplicates = len(suspects) - len(missed)
	return stats, nil
}

// resolve returns the held back codes that are not stored yet, each once.
func (im *Importer) resolve(ctx context.Context, suspects []row) ([]promo.Code, error) {
	var missed []promo.Code
	taken := make(map[string]struct{})
	for _, r := range suspects {
		if _, ok := taken[r.code.Code]; ok {
			continue
		}
		_, err := im.store.FindByCode(ctx, r.code.Code)
		switch {
		case err == nil:
			im.opts.Logger.Debug("Duplicate code skipped",
				zap.String("code", r.code.Code),
				zap.String("file", r.file),
				zap.Int("line", r.line),
			)
		case errors.Is(err, promo.ErrNotFound):
			taken[r.code.Code] = struct{}{}
			missed = append(missed, r.code)
		default:
			return nil, errors.Wrapf(err, "check %s", r.code.Code)
		}
	}
	return missed, nil
}

func (im *Importer) readFile(ctx context.Context, path string, rows chan<- row, invalid chan<- struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comment = '#'

	lg := im.opts.Logger.With(zap.String("file", path))
	for line := 1; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}

		code, err := parseRecord(rec)
		if err != nil {
			if line > 1 || !isHeader(rec) {
				lg.Warn("Skipping invalid line", zap.Int("line", line), zap.Error(err))
				select {
				case invalid <- struct{}{}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			continue
		}

		select {
		case rows <- row{code: code, file: path, line: line}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func isHeader(rec []string) bool {
	return len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "code")
}

// parseRecord turns CODE,percent[,from,to] into a validated promo code.
// Dates are RFC 3339 or YYYY-MM-DD (midnight UTC).
func parseRecord(rec []string) (promo.Code, error) {
	if len(rec) != 2 && len(rec) != 4 {
		return promo.Code{}, errors.Errorf("want 2 or 4 fields, got %d", len(rec))
	}
	percent, err := decimal.NewFromString(strings.TrimSpace(rec[1]))
	if err != nil {
		return promo.Code{}, errors.Wrap(err, "percent")
	}
	code := promo.Normalize(rec[0])
	if len(code) > maxCodeLen {
		return promo.Code{}, errors.Errorf("code longer than %d characters", maxCodeLen)
	}
	c := promo.Code{
		Code:     code,
		Percent:  percent,
		IsActive: true,
	}
	if len(rec) == 4 {
		from, err := parseTime(rec[2])
		if err != nil {
			return promo.Code{}, errors.Wrap(err, "active_from")
		}
		to, err := parseTime(rec[3])
		if err != nil {
			return promo.Code{}, errors.Wrap(err, "active_to")
		}
		c.HasDateWindow = true
		c.ActiveFrom, c.ActiveTo = &from, &to
	}
	if err := c.Validate(); err != nil {
		return promo.Code{}, err
	}
	return c, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}
