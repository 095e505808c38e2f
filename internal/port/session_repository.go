package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

// SessionRepository holds visitor-scoped state. Nothing stored here outlives
// the visitor session.
type SessionRepository interface {
	// LoadCart returns an empty cart when the visitor has none
	LoadCart(ctx context.Context, visitorID string) (domain.Cart, error)

	// SaveCart replaces the stored cart; an empty cart deletes it
	SaveCart(ctx context.Context, visitorID string, cart domain.Cart) error

	LoadCustomer(ctx context.Context, visitorID string) (domain.CustomerInfo, bool, error)

	SaveCustomer(ctx context.Context, visitorID string, info domain.CustomerInfo) error

	// ClearCheckout drops both the cart and the customer info
	ClearCheckout(ctx context.Context, visitorID string) error

	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a key so the request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}

// StockCache keeps last-known stock figures for cart mutations. Settlement
// never reads it.
type StockCache interface {
	GetStock(ctx context.Context, productID int64) (stock int, ok bool, err error)

	SetStock(ctx context.Context, productID int64, stock int) error

	InvalidateStock(ctx context.Context, productIDs ...int64) error
}
