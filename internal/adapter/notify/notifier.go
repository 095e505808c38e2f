package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// LogNotifier writes settled orders to the log. It is the fallback when no
// broker is configured.
type LogNotifier struct {
	logger   *zap.Logger
	whatsApp WhatsApp
}

func NewLogNotifier(logger *zap.Logger, whatsApp WhatsApp) *LogNotifier {
	return &LogNotifier{logger: logger, whatsApp: whatsApp}
}

func (n *LogNotifier) Notify(ctx context.Context, order domain.OrderSummary) error {
	fields := []zap.Field{
		zap.String("order_id", order.ID),
		zap.Int("lines", len(order.Lines)),
		zap.Int("units", order.TotalQuantity()),
		zap.String("grand_total", FormatRupiah(order.GrandTotal)),
	}
	if link := n.whatsApp.Link(order); link != "" {
		fields = append(fields, zap.String("whatsapp_link", link))
	}
	n.logger.Info("order placed", fields...)
	return nil
}

// Multi delivers to every notifier and reports all failures together.
type Multi []port.OrderNotifier

func (m Multi) Notify(ctx context.Context, order domain.OrderSummary) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, order); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
