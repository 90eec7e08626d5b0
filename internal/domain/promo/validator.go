package promo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Validator resolves a code through a Repository and checks it against the
// current time.
type Validator struct {
	repo Repository
	now  func() time.Time
}

// NewValidator creates a Validator backed by the given Repository.
func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo, now: time.Now}
}

// Validate returns the promo code if it exists, is active and is inside its
// date window. The checks run in that order so the first failing rule decides
// the error.
func (v *Validator) Validate(ctx context.Context, code string) (*Code, error) {
	c, err := v.repo.FindByCode(ctx, Normalize(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup promo code")
	}
	if err := c.CheckAt(v.now()); err != nil {
		return nil, err
	}
	return c, nil
}
