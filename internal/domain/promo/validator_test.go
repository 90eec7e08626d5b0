package promo

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPromoRepo struct {
	codes    map[string]*Code
	err      error
	lastCode string
}

func (m *mockPromoRepo) FindByCode(_ context.Context, code string) (*Code, error) {
	m.lastCode = code
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func TestValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	past := fixedNow.Add(-48 * time.Hour)
	yesterday := fixedNow.Add(-24 * time.Hour)
	tomorrow := fixedNow.Add(24 * time.Hour)

	repo := &mockPromoRepo{codes: map[string]*Code{
		"SALE10":   {ID: 1, Code: "SALE10", Percent: decimal.NewFromInt(10), IsActive: true},
		"OFF":      {ID: 2, Code: "OFF", Percent: decimal.NewFromInt(5), IsActive: false},
		"OLD":      {ID: 3, Code: "OLD", Percent: decimal.NewFromInt(5), IsActive: true, HasDateWindow: true, ActiveFrom: &past, ActiveTo: &yesterday},
		"SOON":     {ID: 4, Code: "SOON", Percent: decimal.NewFromInt(5), IsActive: true, HasDateWindow: true, ActiveFrom: &tomorrow, ActiveTo: &tomorrow},
		"WINDOW":   {ID: 5, Code: "WINDOW", Percent: decimal.NewFromInt(15), IsActive: true, HasDateWindow: true, ActiveFrom: &yesterday, ActiveTo: &tomorrow},
		"EDGE":     {ID: 6, Code: "EDGE", Percent: decimal.NewFromInt(15), IsActive: true, HasDateWindow: true, ActiveFrom: &past, ActiveTo: &fixedNow},
		"OFFSTALE": {ID: 7, Code: "OFFSTALE", Percent: decimal.NewFromInt(5), IsActive: false, HasDateWindow: true, ActiveFrom: &past, ActiveTo: &yesterday},
	}}

	tests := []struct {
		name    string
		code    string
		wantID  int64
		wantErr error
	}{
		{name: "valid code", code: "SALE10", wantID: 1},
		{name: "lower case resolves", code: "sale10", wantID: 1},
		{name: "surrounding spaces trimmed", code: "  Sale10 ", wantID: 1},
		{name: "unknown", code: "NOPE", wantErr: ErrNotFound},
		{name: "inactive", code: "OFF", wantErr: ErrInactive},
		{name: "window ended", code: "OLD", wantErr: ErrExpired},
		{name: "window not started", code: "SOON", wantErr: ErrExpired},
		{name: "inside window", code: "WINDOW", wantID: 5},
		{name: "window end is inclusive", code: "EDGE", wantID: 6},
		{name: "inactive wins over expired", code: "OFFSTALE", wantErr: ErrInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(repo)
			v.now = func() time.Time { return fixedNow }

			got, err := v.Validate(context.Background(), tt.code)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestValidator_RepositoryError(t *testing.T) {
	v := NewValidator(&mockPromoRepo{err: errors.New("connection reset")})

	_, err := v.Validate(context.Background(), "SALE10")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "lookup promo code")
}

func TestCode_Discount(t *testing.T) {
	c := &Code{Code: "SALE10", Percent: decimal.NewFromInt(10), IsActive: true}
	assert.Equal(t, "20.00", c.Discount(decimal.RequireFromString("200.00")).StringFixed(2))

	c.Percent = decimal.RequireFromString("33.33")
	assert.Equal(t, "33.33", c.Discount(decimal.RequireFromString("100.00")).StringFixed(2))
	assert.Equal(t, "0.17", c.Discount(decimal.RequireFromString("0.50")).StringFixed(2))
}

func TestCode_Validate(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	tests := []struct {
		name    string
		code    Code
		wantErr bool
	}{
		{"ok", Code{Code: "A", Percent: decimal.NewFromInt(10)}, false},
		{"hundred percent", Code{Code: "A", Percent: decimal.NewFromInt(100)}, false},
		{"empty code", Code{Percent: decimal.NewFromInt(10)}, true},
		{"zero percent", Code{Code: "A", Percent: decimal.Zero}, true},
		{"over hundred", Code{Code: "A", Percent: decimal.RequireFromString("100.01")}, true},
		{"window without bounds", Code{Code: "A", Percent: decimal.NewFromInt(1), HasDateWindow: true}, true},
		{"reversed window", Code{Code: "A", Percent: decimal.NewFromInt(1), HasDateWindow: true, ActiveFrom: &to, ActiveTo: &from}, true},
		{"window", Code{Code: "A", Percent: decimal.NewFromInt(1), HasDateWindow: true, ActiveFrom: &from, ActiveTo: &to}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.code.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
