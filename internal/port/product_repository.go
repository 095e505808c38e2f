package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type ProductRepository interface {
	// GetProduct returns domain.ErrProductNotFound when the id does not resolve
	GetProduct(ctx context.Context, id int64) (domain.Product, error)

	// GetProducts reads current stock for many ids at once; ids that do not resolve are absent from the map
	GetProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error)

	// ListAvailable returns products with stock left, newest first
	ListAvailable(ctx context.Context) ([]domain.Product, error)

	// CommitOrder debits stock for every line and records the order in a single
	// all-or-nothing transaction. A line the stock cannot cover fails the whole
	// order with a *domain.StockError wrapping domain.ErrConcurrentStockConflict.
	CommitOrder(ctx context.Context, order domain.OrderSummary) error
}

// ProductSeeder loads catalog rows, used for bootstrap and tests.
type ProductSeeder interface {
	// UpsertProduct overwrites an existing row, stock included
	UpsertProduct(ctx context.Context, product domain.Product) error

	// InsertProduct adds the row only when its id is free; an existing row is left untouched
	InsertProduct(ctx context.Context, product domain.Product) (inserted bool, err error)
}
