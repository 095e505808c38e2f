package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

// CheckoutService turns a visitor's cart into a durable stock debit and an
// immutable order summary. Settled orders are queued for notification.
type CheckoutService struct {
	products  port.ProductRepository
	sessions  port.SessionRepository
	stock     port.StockCache // optional
	validator *InventoryValidator
	policy    domain.ShippingPolicy
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu         sync.RWMutex
	closed     bool
	orderQueue chan domain.OrderSummary

	commitTimeout time.Duration
	now           func() time.Time
}

func NewCheckoutService(
	products port.ProductRepository,
	sessions port.SessionRepository,
	stock port.StockCache,
	validator *InventoryValidator,
	policy domain.ShippingPolicy,
	queueSize int,
	logger *zap.Logger,
	m *metrics.Metrics,
) *CheckoutService {
	return &CheckoutService{
		products:   products,
		sessions:   sessions,
		stock:      stock,
		validator:  validator,
		policy:     policy,
		logger:     logger,
		metrics:    m,
		orderQueue: make(chan domain.OrderSummary, queueSize),
		now:        time.Now,
	}
}

// SetCommitTimeout bounds the stock debit transaction. A commit that runs
// out of time is reported as a stock conflict. Zero means no bound.
func (s *CheckoutService) SetCommitTimeout(d time.Duration) {
	s.commitTimeout = d
}

// CheckoutPreview is what the checkout form shows before settlement.
type CheckoutPreview struct {
	Lines         []domain.OrderLine
	Subtotal      int64
	Shipping      int64
	GrandTotal    int64
	TotalQuantity int
	Customer      domain.CustomerInfo
	Adjustments   []domain.Adjustment
}

// SaveCustomer validates and stores the customer details for a later
// SettleStored call.
func (s *CheckoutService) SaveCustomer(ctx context.Context, sess domain.Session, info domain.CustomerInfo) error {
	if !sess.Valid() {
		return domain.ErrInvalidSession
	}
	info = info.Normalize()
	if err := info.Validate(); err != nil {
		return err
	}
	if err := s.sessions.SaveCustomer(ctx, sess.VisitorID, info); err != nil {
		return fmt.Errorf("save customer: %w", err)
	}
	return nil
}

func (s *CheckoutService) Preview(ctx context.Context, sess domain.Session) (CheckoutPreview, error) {
	if !sess.Valid() {
		return CheckoutPreview{}, domain.ErrInvalidSession
	}
	cart, err := s.sessions.LoadCart(ctx, sess.VisitorID)
	if err != nil {
		return CheckoutPreview{}, fmt.Errorf("load cart: %w", err)
	}
	if cart.IsEmpty() {
		return CheckoutPreview{}, domain.ErrEmptyCart
	}

	rec, err := s.validator.refresh(ctx, s.sessions, sess, cart)
	if err != nil {
		return CheckoutPreview{}, err
	}
	if rec.Cart.IsEmpty() {
		return CheckoutPreview{}, &domain.SettlementError{Err: domain.ErrEmptyCart, Adjustments: rec.Adjustments}
	}

	customer, _, err := s.sessions.LoadCustomer(ctx, sess.VisitorID)
	if err != nil {
		return CheckoutPreview{}, fmt.Errorf("load customer: %w", err)
	}

	lines, subtotal := domain.PriceLines(rec.Cart, rec.Products)
	shipping, grandTotal := s.policy.Quote(subtotal)
	return CheckoutPreview{
		Lines:         lines,
		Subtotal:      subtotal,
		Shipping:      shipping,
		GrandTotal:    grandTotal,
		TotalQuantity: rec.Cart.TotalQuantity(),
		Customer:      customer,
		Adjustments:   rec.Adjustments,
	}, nil
}

// SettleStored settles with the customer details saved by SaveCustomer.
func (s *CheckoutService) SettleStored(ctx context.Context, sess domain.Session, idempotencyKey string) (domain.OrderSummary, error) {
	if !sess.Valid() {
		return domain.OrderSummary{}, domain.ErrInvalidSession
	}
	customer, _, err := s.sessions.LoadCustomer(ctx, sess.VisitorID)
	if err != nil {
		return domain.OrderSummary{}, fmt.Errorf("load customer: %w", err)
	}
	return s.SettleOnce(ctx, sess, customer, idempotencyKey)
}

// SettleOnce is Settle guarded by an idempotency key. An empty key skips the
// guard. The key is released again when settlement fails so the visitor can
// retry.
func (s *CheckoutService) SettleOnce(ctx context.Context, sess domain.Session, customer domain.CustomerInfo, idempotencyKey string) (domain.OrderSummary, error) {
	if idempotencyKey == "" {
		return s.Settle(ctx, sess, customer)
	}

	key := fmt.Sprintf("checkout:%s:%s", sess.VisitorID, idempotencyKey)
	ok, err := s.sessions.SetIdempotency(ctx, key)
	if err != nil {
		return domain.OrderSummary{}, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return domain.OrderSummary{}, domain.ErrDuplicateRequest
	}

	order, err := s.Settle(ctx, sess, customer)
	if err != nil {
		if releaseErr := s.sessions.ReleaseIdempotency(context.WithoutCancel(ctx), key); releaseErr != nil {
			s.logger.Warn("release idempotency key failed", zap.String("key", key), zap.Error(releaseErr))
		}
		return domain.OrderSummary{}, err
	}
	return order, nil
}

// Settle reconciles the visitor's cart, debits stock for every line in one
// transaction and returns the order summary. Nothing is debited unless every
// line is.
func (s *CheckoutService) Settle(ctx context.Context, sess domain.Session, customer domain.CustomerInfo) (order domain.OrderSummary, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSettlement(err, time.Since(start)) }()

	if !sess.Valid() {
		return domain.OrderSummary{}, domain.ErrInvalidSession
	}

	cart, err := s.sessions.LoadCart(ctx, sess.VisitorID)
	if err != nil {
		return domain.OrderSummary{}, fmt.Errorf("load cart: %w", err)
	}
	if cart.IsEmpty() {
		return domain.OrderSummary{}, domain.ErrEmptyCart
	}

	customer = customer.Normalize()
	if err := customer.Validate(); err != nil {
		return domain.OrderSummary{}, err
	}

	// the corrected cart is the binding request from here on
	rec, err := s.validator.refresh(ctx, s.sessions, sess, cart)
	if err != nil {
		return domain.OrderSummary{}, err
	}
	if rec.Cart.IsEmpty() {
		return domain.OrderSummary{}, &domain.SettlementError{Err: domain.ErrEmptyCart, Adjustments: rec.Adjustments}
	}

	lines, subtotal := domain.PriceLines(rec.Cart, rec.Products)
	shipping, grandTotal := s.policy.Quote(subtotal)
	order = domain.OrderSummary{
		ID:         uuid.NewString(),
		Lines:      lines,
		Subtotal:   subtotal,
		Shipping:   shipping,
		GrandTotal: grandTotal,
		Customer:   customer,
		CreatedAt:  s.now().UTC(),
	}

	if err := s.commit(ctx, order); err != nil {
		err = classifyCommitError(err)
		s.logger.Info("settlement aborted",
			zap.String("visitor_id", sess.VisitorID),
			zap.String("order_id", order.ID),
			zap.String("code", domain.Code(err)),
			zap.Error(err),
		)
		return domain.OrderSummary{}, &domain.SettlementError{Err: err, Adjustments: rec.Adjustments}
	}

	// the order is durable now; session cleanup failures are logged only
	cleanupCtx := context.WithoutCancel(ctx)
	if err := s.sessions.ClearCheckout(cleanupCtx, sess.VisitorID); err != nil {
		s.logger.Error("clear checkout after settlement failed",
			zap.String("visitor_id", sess.VisitorID),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
	s.invalidateStock(cleanupCtx, order)

	s.logger.Info("order settled",
		zap.String("visitor_id", sess.VisitorID),
		zap.String("order_id", order.ID),
		zap.Int("lines", len(order.Lines)),
		zap.Int64("grand_total", order.GrandTotal),
	)
	s.enqueue(order.Clone())

	return order.Clone(), nil
}

func (s *CheckoutService) commit(ctx context.Context, order domain.OrderSummary) error {
	if s.commitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.commitTimeout)
		defer cancel()
	}
	return s.products.CommitOrder(ctx, order)
}

// GetOrderQueue exposes settled orders to the notification workers.
func (s *CheckoutService) GetOrderQueue() <-chan domain.OrderSummary {
	return s.orderQueue
}

func (s *CheckoutService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.orderQueue)
}

func (s *CheckoutService) enqueue(order domain.OrderSummary) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.orderQueue <- order:
	default:
		s.logger.Warn("notification queue full, order not notified", zap.String("order_id", order.ID))
	}
}

func (s *CheckoutService) invalidateStock(ctx context.Context, order domain.OrderSummary) {
	if s.stock == nil {
		return
	}
	ids := make([]int64, 0, len(order.Lines))
	for _, l := range order.Lines {
		ids = append(ids, l.ProductID)
	}
	if err := s.stock.InvalidateStock(ctx, ids...); err != nil {
		s.logger.Warn("stock cache invalidation failed", zap.String("order_id", order.ID), zap.Error(err))
	}
}

// classifyCommitError treats a timed out or cancelled commit like a lost
// race: the caller may retry, and must not assume the debit happened.
func classifyCommitError(err error) error {
	switch {
	case errors.Is(err, domain.ErrConcurrentStockConflict), errors.Is(err, domain.ErrProductNotFound):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", domain.ErrConcurrentStockConflict, err)
	default:
		return fmt.Errorf("commit order: %w", err)
	}
}
