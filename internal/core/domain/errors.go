package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStockInsufficient       = errors.New("stock insufficient")
	ErrEmptyCart               = errors.New("cart is empty")
	ErrMissingCustomerInfo     = errors.New("missing customer info")
	ErrProductNotFound         = errors.New("product not found")
	ErrConcurrentStockConflict = errors.New("concurrent stock conflict")
	ErrNotInCart               = errors.New("product not in cart")
	ErrDuplicateRequest        = errors.New("duplicate request")
	ErrInvalidSession          = errors.New("invalid session")
)

// StockError reports a quantity that the available stock cannot cover.
// Err is ErrStockInsufficient for cart mutations and
// ErrConcurrentStockConflict when a settlement lost the race.
type StockError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
	Err       error
}

func (e *StockError) Error() string {
	name := e.Name
	if name == "" {
		name = fmt.Sprintf("product %d", e.ProductID)
	}
	return fmt.Sprintf("%s: %s (requested %d, available %d)", e.Err, name, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return e.Err
}

type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingCustomerInfo, strings.Join(e.Fields, ", "))
}

func (e *MissingFieldsError) Unwrap() error {
	return ErrMissingCustomerInfo
}

// SettlementError carries the cart corrections applied before a settlement
// failed, so the caller can re-render the checkout with them.
type SettlementError struct {
	Err         error
	Adjustments []Adjustment
}

func (e *SettlementError) Error() string {
	if len(e.Adjustments) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s (%d cart adjustments)", e.Err, len(e.Adjustments))
}

func (e *SettlementError) Unwrap() error {
	return e.Err
}

// Code maps an error to a stable machine-readable code for transports and
// metrics labels.
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConcurrentStockConflict):
		return "concurrent_stock_conflict"
	case errors.Is(err, ErrStockInsufficient):
		return "stock_insufficient"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrMissingCustomerInfo):
		return "missing_customer_info"
	case errors.Is(err, ErrProductNotFound):
		return "not_found"
	case errors.Is(err, ErrNotInCart):
		return "not_in_cart"
	case errors.Is(err, ErrDuplicateRequest):
		return "duplicate_request"
	case errors.Is(err, ErrInvalidSession):
		return "invalid_session"
	default:
		return "internal"
	}
}
