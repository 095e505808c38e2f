package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type OrderNotifier interface {
	// Notify hands a settled order to an outbound channel; delivery is best effort
	Notify(ctx context.Context, order domain.OrderSummary) error
}
