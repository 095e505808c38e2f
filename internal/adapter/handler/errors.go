package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rl1809/storefront/internal/core/domain"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrProductNotFound), errors.Is(err, domain.ErrNotInCart):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConcurrentStockConflict), errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStockInsufficient):
		return http.StatusGone
	case errors.Is(err, domain.ErrEmptyCart), errors.Is(err, domain.ErrMissingCustomerInfo):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidSession):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns a message safe to show the visitor. Infrastructure
// errors are not leaked.
func messageFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrConcurrentStockConflict):
		return "stock changed while placing the order, please review your cart"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate request"
	case errors.Is(err, domain.ErrStockInsufficient),
		errors.Is(err, domain.ErrMissingCustomerInfo),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrNotInCart):
		return err.Error()
	case errors.Is(err, domain.ErrEmptyCart):
		return "cart is empty"
	case errors.Is(err, domain.ErrInvalidSession):
		return "missing visitor session"
	default:
		return "internal error"
	}
}

func adjustmentsOf(err error) []domain.Adjustment {
	var settleErr *domain.SettlementError
	if errors.As(err, &settleErr) {
		return settleErr.Adjustments
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), ErrorResponse{
		Error:       domain.Code(err),
		Message:     messageFor(err),
		Adjustments: mapAdjustments(adjustmentsOf(err)),
	})
}
