package main

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/merchshop/internal/domain/promo"
)

type memStore struct {
	mu      sync.Mutex
	codes   map[string]promo.Code
	batches int
	failOn  int
}

func newMemStore() *memStore {
	return &memStore{codes: make(map[string]promo.Code)}
}

func (s *memStore) UpsertMany(_ context.Context, codes []promo.Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	if s.failOn > 0 && s.batches == s.failOn {
		return errors.New("connection reset")
	}
	for _, c := range codes {
		s.codes[c.Code] = c
	}
	return nil
}

func (s *memStore) FindByCode(_ context.Context, code string) (*promo.Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[code]
	if !ok {
		return nil, promo.ErrNotFound
	}
	return &c, nil
}

func (s *memStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.codes))
	for k := range s.codes {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestImporter(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.csv.gz",
			"code,percent",
			"welcome10,10",
			"SPRING25,25,2026-03-01,2026-06-01",
			"BROKEN,abc",
			"# comment",
		),
		writeGz(t, dir, "b.csv.gz",
			"WELCOME10,50",
			"FREE,100",
			"TOOMUCH,150",
			"spring25,25,2026-03-01,2026-06-01",
		),
	}

	for _, tt := range []struct {
		name string
		opts Options
	}{
		{"Default", Options{}},
		// A saturated filter reports everything as seen; every code must
		// still be imported exactly once.
		{"FalsePositives", Options{ExpectedCodes: 1, FalsePositiveRate: 0.9, BatchSize: 1}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			stats, err := NewImporter(store, tt.opts).Import(context.Background(), files)
			require.NoError(t, err)

			assert.Equal(t, []string{"FREE", "SPRING25", "WELCOME10"}, store.keys())
			assert.Equal(t, Stats{Imported: 3, Duplicates: 2, Invalid: 2}, stats)

			spring := store.codes["SPRING25"]
			assert.True(t, spring.HasDateWindow)
			require.NotNil(t, spring.ActiveTo)
			assert.Equal(t, "2026-06-01", spring.ActiveTo.Format("2006-01-02"))
		})
	}
}

func TestImporter_WriteError(t *testing.T) {
	dir := t.TempDir()
	lines := make([]string, 0, 50)
	for i := range 50 {
		lines = append(lines, "CODE"+strings.Repeat("X", i)+",5")
	}
	file := writeGz(t, dir, "a.csv.gz", lines...)

	store := newMemStore()
	store.failOn = 2
	_, err := NewImporter(store, Options{BatchSize: 10}).Import(context.Background(), []string{file})
	assert.ErrorContains(t, err, "connection reset")
}

func TestImporter_MissingFile(t *testing.T) {
	_, err := NewImporter(newMemStore(), Options{}).Import(context.Background(), []string{"nope.csv.gz"})
	assert.Error(t, err)
}

func TestParseRecord(t *testing.T) {
	for _, tt := range []struct {
		name string
		rec  []string
		err  string
	}{
		{"Plain", []string{" sale ", "12.5"}, ""},
		{"Window", []string{"X", "5", "2026-01-01T00:00:00Z", "2026-02-01"}, ""},
		{"FieldCount", []string{"X", "5", "2026-01-01"}, "want 2 or 4 fields"},
		{"Percent", []string{"X", "0"}, "percent"},
		{"Reversed", []string{"X", "5", "2026-02-01", "2026-01-01"}, "before"},
		{"BadDate", []string{"X", "5", "soon", "2026-01-01"}, "active_from"},
		{"Long", []string{strings.Repeat("A", 51), "5"}, "longer than 50"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			c, err := parseRecord(tt.rec)
			if tt.err != "" {
				assert.ErrorContains(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, strings.ToUpper(strings.TrimSpace(tt.rec[0])), c.Code)
		})
	}
}
