package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

// CartService applies visitor cart mutations. Add and Increment are checked
// against a last-known stock figure only; the binding check happens at
// settlement.
type CartService struct {
	products  port.ProductRepository
	sessions  port.SessionRepository
	stock     port.StockCache // optional
	validator *InventoryValidator
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewCartService(
	products port.ProductRepository,
	sessions port.SessionRepository,
	stock port.StockCache,
	validator *InventoryValidator,
	logger *zap.Logger,
	m *metrics.Metrics,
) *CartService {
	return &CartService{
		products:  products,
		sessions:  sessions,
		stock:     stock,
		validator: validator,
		logger:    logger,
		metrics:   m,
	}
}

type ViewLine struct {
	domain.OrderLine
	Stock int
}

// CartView is a reconciled, priced cart for display.
type CartView struct {
	Lines         []ViewLine
	Subtotal      int64
	TotalQuantity int
	Adjustments   []domain.Adjustment
}

func (s *CartService) Add(ctx context.Context, sess domain.Session, productID int64) (domain.Cart, error) {
	return s.mutate(ctx, sess, "add", func(cart domain.Cart) error {
		stock, name, err := s.lastKnownStock(ctx, productID)
		if err != nil {
			return err
		}
		return withName(cart.Add(productID, stock), name)
	})
}

func (s *CartService) Increment(ctx context.Context, sess domain.Session, productID int64) (domain.Cart, error) {
	return s.mutate(ctx, sess, "increment", func(cart domain.Cart) error {
		if _, ok := cart[productID]; !ok {
			return domain.ErrNotInCart
		}
		stock, name, err := s.lastKnownStock(ctx, productID)
		if err != nil {
			return err
		}
		return withName(cart.Increment(productID, stock), name)
	})
}

func (s *CartService) Decrement(ctx context.Context, sess domain.Session, productID int64) (domain.Cart, error) {
	return s.mutate(ctx, sess, "decrement", func(cart domain.Cart) error {
		cart.Decrement(productID)
		return nil
	})
}

func (s *CartService) Remove(ctx context.Context, sess domain.Session, productID int64) (domain.Cart, error) {
	return s.mutate(ctx, sess, "remove", func(cart domain.Cart) error {
		cart.Remove(productID)
		return nil
	})
}

func (s *CartService) Clear(ctx context.Context, sess domain.Session) error {
	_, err := s.mutate(ctx, sess, "clear", func(cart domain.Cart) error {
		clear(cart)
		return nil
	})
	return err
}

func (s *CartService) Snapshot(ctx context.Context, sess domain.Session) (domain.Cart, error) {
	if !sess.Valid() {
		return nil, domain.ErrInvalidSession
	}
	cart, err := s.sessions.LoadCart(ctx, sess.VisitorID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return cart.Clone(), nil
}

// Count returns the number of units in the cart.
func (s *CartService) Count(ctx context.Context, sess domain.Session) (int, error) {
	cart, err := s.Snapshot(ctx, sess)
	if err != nil {
		return 0, err
	}
	return cart.TotalQuantity(), nil
}

// View reconciles the cart against live stock, persists any correction and
// prices the result.
func (s *CartService) View(ctx context.Context, sess domain.Session) (CartView, error) {
	cart, err := s.Snapshot(ctx, sess)
	if err != nil {
		return CartView{}, err
	}

	rec, err := s.validator.refresh(ctx, s.sessions, sess, cart)
	if err != nil {
		return CartView{}, err
	}

	lines, subtotal := domain.PriceLines(rec.Cart, rec.Products)
	view := CartView{
		Lines:         make([]ViewLine, 0, len(lines)),
		Subtotal:      subtotal,
		TotalQuantity: rec.Cart.TotalQuantity(),
		Adjustments:   rec.Adjustments,
	}
	for _, l := range lines {
		view.Lines = append(view.Lines, ViewLine{OrderLine: l, Stock: rec.Products[l.ProductID].Stock})
	}
	return view, nil
}

func (s *CartService) mutate(ctx context.Context, sess domain.Session, op string, apply func(domain.Cart) error) (cart domain.Cart, err error) {
	defer func() { s.metrics.ObserveCartMutation(op, err) }()

	if !sess.Valid() {
		return nil, domain.ErrInvalidSession
	}

	cart, err = s.sessions.LoadCart(ctx, sess.VisitorID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if err := apply(cart); err != nil {
		return nil, err
	}
	if err := s.sessions.SaveCart(ctx, sess.VisitorID, cart); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	return cart.Clone(), nil
}

// lastKnownStock reads the cached figure when there is one, else the
// repository, refreshing the cache on the way.
func (s *CartService) lastKnownStock(ctx context.Context, productID int64) (int, string, error) {
	if s.stock != nil {
		stock, ok, err := s.stock.GetStock(ctx, productID)
		if err != nil {
			s.logger.Warn("stock cache read failed", zap.Int64("product_id", productID), zap.Error(err))
		} else if ok {
			return stock, "", nil
		}
	}

	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return 0, "", err
		}
		return 0, "", fmt.Errorf("get product: %w", err)
	}

	if s.stock != nil {
		if err := s.stock.SetStock(ctx, productID, p.Stock); err != nil {
			s.logger.Warn("stock cache write failed", zap.Int64("product_id", productID), zap.Error(err))
		}
	}
	return p.Stock, p.Name, nil
}

func withName(err error, name string) error {
	var stockErr *domain.StockError
	if name != "" && errors.As(err, &stockErr) {
		stockErr.Name = name
	}
	return err
}
