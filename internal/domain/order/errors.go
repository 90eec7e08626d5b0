package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/merchshop/internal/domain/promo"
)

// Sentinel errors for order placement and lookup.
var (
	ErrEmptyCart            = errors.New("cart cannot be empty")
	ErrNotFound             = errors.New("order not found")
	ErrInvalidPaymentMethod = errors.New("payment method must be cash or card")
	ErrAmountTooLarge       = errors.New("order total exceeds the maximum amount")
)

// ProductNotFoundError indicates a cart line references an unknown product.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product with ID %d not found", e.ProductID)
}

// ProductInactiveError indicates a cart line references a product that is
// no longer sold.
type ProductInactiveError struct {
	ProductID int64
}

func (e *ProductInactiveError) Error() string {
	return fmt.Sprintf("product with ID %d is not active", e.ProductID)
}

// InvalidQuantityError indicates a cart line quantity outside 1..MaxQty,
// either as sent or after merging duplicate lines.
type InvalidQuantityError struct {
	ProductID int64
	Qty       int
}

func (e *InvalidQuantityError) Error() string {
	if e.Qty > MaxQty {
		return fmt.Sprintf("quantity must not exceed %d for product %d", MaxQty, e.ProductID)
	}
	return fmt.Sprintf("quantity must be greater than 0 for product %d", e.ProductID)
}

// InvalidStatusError is returned by status updates with an unknown value.
type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	allowed := make([]string, len(statuses))
	for i, s := range statuses {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("invalid status %q, allowed: %s", e.Value, strings.Join(allowed, ", "))
}

// Allowed lists the values accepted instead.
func (e *InvalidStatusError) Allowed() []Status {
	return Statuses()
}

// Wire codes of business errors.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeEmptyCart       = "EMPTY_CART"
	CodeProductNotFound = "PRODUCT_NOT_FOUND"
	CodeProductInactive = "PRODUCT_INACTIVE"
	CodePromoNotFound   = "PROMO_NOT_FOUND"
	CodePromoInactive   = "PROMO_INACTIVE"
	CodePromoExpired    = "PROMO_EXPIRED"
	CodeOrderNotFound   = "ORDER_NOT_FOUND"
	CodeInvalidStatus   = "INVALID_STATUS"
)

// ErrorCode maps a business error to its wire code and returns the
// innermost error that describes it. It returns "" and nil for unexpected
// errors.
func ErrorCode(err error) (string, error) {
	var (
		notFound *ProductNotFoundError
		inactive *ProductInactiveError
		qty      *InvalidQuantityError
		status   *InvalidStatusError
	)
	switch {
	case errors.As(err, &notFound):
		return CodeProductNotFound, notFound
	case errors.As(err, &inactive):
		return CodeProductInactive, inactive
	case errors.As(err, &qty):
		return CodeValidation, qty
	case errors.As(err, &status):
		return CodeInvalidStatus, status
	}

	for _, e := range []struct {
		target error
		code   string
	}{
		{ErrEmptyCart, CodeEmptyCart},
		{ErrInvalidPaymentMethod, CodeValidation},
		{ErrAmountTooLarge, CodeValidation},
		{ErrNotFound, CodeOrderNotFound},
		{promo.ErrNotFound, CodePromoNotFound},
		{promo.ErrInactive, CodePromoInactive},
		{promo.ErrExpired, CodePromoExpired},
	} {
		if errors.Is(err, e.target) {
			return e.code, e.target
		}
	}
	return "", nil
}
