package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

// InventoryValidator bounds cart quantities to live stock. It only reads
// from the product repository.
type InventoryValidator struct {
	products port.ProductRepository
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewInventoryValidator(products port.ProductRepository, logger *zap.Logger, m *metrics.Metrics) *InventoryValidator {
	return &InventoryValidator{
		products: products,
		logger:   logger,
		metrics:  m,
	}
}

// Reconciliation is the result of checking one cart against live stock.
// Products holds the rows read, keyed by id, for pricing.
type Reconciliation struct {
	Cart        domain.Cart
	Adjustments []domain.Adjustment
	Products    map[int64]domain.Product
}

func (r Reconciliation) Changed() bool {
	return len(r.Adjustments) > 0
}

// Reconcile returns a copy of cart with every line bounded by current stock
// and the adjustments that produced it. Reconciling an already reconciled
// cart yields no adjustments.
func (v *InventoryValidator) Reconcile(ctx context.Context, cart domain.Cart) (domain.Cart, []domain.Adjustment, error) {
	rec, err := v.reconcile(ctx, cart)
	if err != nil {
		return nil, nil, err
	}
	return rec.Cart, rec.Adjustments, nil
}

func (v *InventoryValidator) reconcile(ctx context.Context, cart domain.Cart) (Reconciliation, error) {
	rec := Reconciliation{
		Cart:     domain.NewCart(),
		Products: map[int64]domain.Product{},
	}
	if cart.IsEmpty() {
		return rec, nil
	}

	products, err := v.products.GetProducts(ctx, cart.ProductIDs())
	if err != nil {
		return Reconciliation{}, fmt.Errorf("read stock: %w", err)
	}
	rec.Products = products

	for _, line := range cart.Lines() {
		p, ok := products[line.ProductID]
		switch {
		case !ok:
			rec.Adjustments = append(rec.Adjustments, domain.Adjustment{
				ProductID:   line.ProductID,
				Kind:        domain.AdjustmentRemoved,
				Reason:      domain.ReasonNotFound,
				OldQuantity: line.Quantity,
			})
		case p.Stock <= 0:
			rec.Adjustments = append(rec.Adjustments, domain.Adjustment{
				ProductID:   line.ProductID,
				Name:        p.Name,
				Kind:        domain.AdjustmentRemoved,
				Reason:      domain.ReasonOutOfStock,
				OldQuantity: line.Quantity,
			})
		case line.Quantity > p.Stock:
			rec.Cart[line.ProductID] = p.Stock
			rec.Adjustments = append(rec.Adjustments, domain.Adjustment{
				ProductID:   line.ProductID,
				Name:        p.Name,
				Kind:        domain.AdjustmentClamped,
				OldQuantity: line.Quantity,
				NewQuantity: p.Stock,
			})
		default:
			rec.Cart[line.ProductID] = line.Quantity
		}
	}

	v.metrics.ObserveAdjustments(rec.Adjustments)
	return rec, nil
}

// refresh reconciles the visitor's stored cart and writes the corrected cart
// back when reconciliation changed it.
func (v *InventoryValidator) refresh(ctx context.Context, sessions port.SessionRepository, sess domain.Session, cart domain.Cart) (Reconciliation, error) {
	rec, err := v.reconcile(ctx, cart)
	if err != nil {
		return Reconciliation{}, err
	}
	if !rec.Changed() {
		return rec, nil
	}

	if err := sessions.SaveCart(ctx, sess.VisitorID, rec.Cart); err != nil {
		return Reconciliation{}, fmt.Errorf("save reconciled cart: %w", err)
	}
	for _, a := range rec.Adjustments {
		v.logger.Info("cart line adjusted",
			zap.String("visitor_id", sess.VisitorID),
			zap.Int64("product_id", a.ProductID),
			zap.String("kind", string(a.Kind)),
			zap.String("reason", string(a.Reason)),
			zap.Int("old_quantity", a.OldQuantity),
			zap.Int("new_quantity", a.NewQuantity),
		)
	}
	return rec, nil
}
