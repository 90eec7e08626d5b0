// Package promo models percentage promo codes and their validity rules.
package promo

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/merchshop/internal/money"
)

var (
	// ErrNotFound is returned when no promo code matches the requested code.
	ErrNotFound = errors.New("promo code not found")
	// ErrInactive is returned for a promo code that has been switched off.
	ErrInactive = errors.New("promo code is not active")
	// ErrExpired is returned when now falls outside the code's date window.
	ErrExpired = errors.New("promo code has expired")
)

var maxPercent = decimal.NewFromInt(100)

// Code is a percentage discount code. Code strings are stored upper-case and
// matched case-insensitively.
type Code struct {
	ID            int64
	Code          string
	Percent       decimal.Decimal
	IsActive      bool
	HasDateWindow bool
	ActiveFrom    *time.Time
	ActiveTo      *time.Time
}

// Normalize returns the canonical form of a user-supplied code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks the static constraints of a code before it is stored.
func (c *Code) Validate() error {
	if c.Code == "" {
		return errors.New("code is required")
	}
	if !c.Percent.IsPositive() || c.Percent.GreaterThan(maxPercent) {
		return errors.Errorf("percent %s must be in (0, 100]", c.Percent)
	}
	if c.HasDateWindow {
		if c.ActiveFrom == nil || c.ActiveTo == nil {
			return errors.New("active_from and active_to are required for a date window")
		}
		if !c.ActiveFrom.Before(*c.ActiveTo) {
			return errors.New("active_from must be before active_to")
		}
	}
	return nil
}

// CheckAt reports whether the code can be applied at now. Both window bounds
// are inclusive.
func (c *Code) CheckAt(now time.Time) error {
	if !c.IsActive {
		return ErrInactive
	}
	if c.HasDateWindow {
		if c.ActiveFrom == nil || c.ActiveTo == nil {
			return ErrExpired
		}
		if now.Before(*c.ActiveFrom) || now.After(*c.ActiveTo) {
			return ErrExpired
		}
	}
	return nil
}

// Discount returns the discount granted on subtotal, rounded half-up to cents.
func (c *Code) Discount(subtotal decimal.Decimal) decimal.Decimal {
	return money.Percent(subtotal, c.Percent)
}

// Repository provides lookup of promo codes.
type Repository interface {
	// FindByCode returns the code matching code case-insensitively, or
	// ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Code, error)
}
