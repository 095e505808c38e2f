package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
)

func TestSettle_EmptyCart(t *testing.T) {
	f := newFixture(t, domain.Product{ID: 1, Stock: 5})
	sess := domain.Session{VisitorID: "v1"}

	_, err := f.checkout.Settle(context.Background(), sess, testCustomer)
	require.ErrorIs(t, err, domain.ErrEmptyCart)

	var settleErr *domain.SettlementError
	assert.False(t, errors.As(err, &settleErr), "an initially empty cart has nothing to adjust")
	assert.Equal(t, 5, f.stock(t, 1))
	assert.Zero(t, f.store.OrderCount())
}

func TestSettle_MissingCustomerInfo(t *testing.T) {
	f := newFixture(t, domain.Product{ID: 1, Stock: 5})
	ctx := context.Background()
	sess := domain.Session{VisitorID: "v1"}
	f.fill(t, sess, 1, 2)

	_, err := f.checkout.Settle(ctx, sess, domain.CustomerInfo{Name: "Budi", Address: "   "})
	require.ErrorIs(t, err, domain.ErrMissingCustomerInfo)

	var fieldsErr *domain.MissingFieldsError
	require.True(t, errors.As(err, &fieldsErr))
	assert.Equal(t, []string{"address", "phone"}, fieldsErr.Fields)

	assert.Equal(t, 5, f.stock(t, 1))
	cart, err := f.carts.Snapshot(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, domain.Cart{1: 2}, cart)
}

func TestSettle_Success(t *testing.T) {
	f := newFixture(t,
		domain.Product{ID: 1, Name: "Sepatu Sneakers", UnitPrice: 350000, Stock: 25},
		domain.Product{ID: 2, Name: "T-Shirt Casual", UnitPrice: 150000, Stock: 50},
	)
	ctx := context.Background()
	sess := domain.Session{VisitorID: "v1"}
	f.fill(t, sess, 1, 1)
	f.fill(t, sess, 2, 2)

	info := testCustomer
	info.Note = "  antar sore  "
	require.NoError(t, f.checkout.SaveCustomer(ctx, sess, info))

	order, err := f.checkout.SettleStored(ctx, sess, "")
	require.NoError(t, err)

	assert.NotEmpty(t, order.ID)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, int64(650000), order.Subtotal)
	assert.Zero(t, order.Shipping)
	assert.Equal(t, int64(650000), order.GrandTotal)
	assert.Equal(t, "antar sore", order.Customer.Note)

	assert.Equal(t, 24, f.stock(t, 1))
	assert.Equal(t, 48, f.stock(t, 2))

	recorded, ok := f.store.Order(order.ID)
	require.True(t, ok)
	assert.Equal(t, order.GrandTotal, recorded.GrandTotal)

	cart, err := f.carts.Snapshot(ctx, sess)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
	_, stored, err := f.sessions.LoadCustomer(ctx, sess.VisitorID)
	require.NoError(t, err)
	assert.False(t, stored)

	select {
	case queued := <-f.checkout.GetOrderQueue():
		assert.Equal(t, order.ID, queued.ID)
		queued.Lines[0].Quantity = 99
		assert.Equal(t, 1, order.Lines[0].Quantity, "queued copy must not alias the returned summary")
	default:
		t.Fatal("settled order was not queued for notification")
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Settlements.WithLabelValues("ok")))
}

func TestSettle_ShippingQuote(t *testing.T) {
	tests := []struct {
		name      string
		unitPrice int64
		qty       int
		shipping  int64
		total     int64
	}{
		{name: "above threshold ships free", unitPrice: 300000, qty: 2, shipping: 0, total: 600000},
		{name: "exactly at threshold ships free", unitPrice: 250000, qty: 2, shipping: 0, total: 500000},
		{name: "below threshold pays flat fee", unitPrice: 100000, qty: 1, shipping: 15000, total: 115000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, domain.Product{ID: 1, UnitPrice: tt.unitPrice, Stock: 10})
			sess := domain.Session{VisitorID: "v1"}
			f.fill(t, sess, 1, tt.qty)

			order, err := f.checkout.Settle(context.Background(), sess, testCustomer)
			require.NoError(t, err)
			assert.Equal(t, tt.shipping, order.Shipping)
			assert.Equal(t, tt.total, order.GrandTotal)
		})
	}
}

func TestSettle_ClampsBeforeDebit(t *testing.T) {
	f := newFixture(t, domain.Product{ID: 1, Name: "Laptop Gaming", UnitPrice: 100, Stock: 10})
	ctx := context.Background()
	sess := domain.Session{VisitorID: "v1"}
	f.fill(t, sess, 1, 10)
	f.setStock(t, 1, 4)

	order, err := f.checkout.Settle(ctx, sess, testCustomer)
	require.NoError(t, err)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, 4, order.Lines[0].Quantity)
	assert.Zero(t, f.stock(t, 1))
}

func TestSettle_EverythingSoldOut(t *testing.T) {
	f := newFixture(t,
		domain.Product{ID: 1, Stock: 3},
		domain.Product{ID: 2, Stock: 3},
	)
	ctx := context.Background()
	sess := domain.Session{VisitorID: "v1"}
	f.fill(t, sess, 1, 2)
	f.fill(t, sess, 2, 1)
	f.setStock(t, 1, 0)
	f.setStock(t, 2, 0)

	_, err := f.checkout.Settle(ctx, sess, testCustomer)
	require.ErrorIs(t, err, domain.ErrEmptyCart)

	var settleErr *domain.SettlementError
	require.True(t, errors.As(err, &settleErr))
	require.Len(t, settleErr.Adjustments, 2)
	for _, a := range settleErr.Adjustments {
		assert.Equal(t, domain.AdjustmentRemoved, a.Kind)
		assert.Equal(t, domain.ReasonOutOfStock, a.Reason)
	}

	cart, err := f.carts.Snapshot(ctx, sess)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty(), "corrected cart is persisted")
	assert.Zero(t, f.store.OrderCount())
}

func TestSettle_ConcurrentLastUnits(t *testing.T) {
	base := storage.NewMemoryProductStore(domain.Product{ID: 1, Name: "Smartphone", UnitPrice: 5000000, Stock: 5})
	gate := newGatedStore(base, 2)
	f := newFixtureWith(t, base, gate, nil)

	alice := domain.Session{VisitorID: "alice"}
	bob := domain.Session{VisitorID: "bob"}
	f.fill(t, alice, 1, 3)
	f.fill(t, bob, 1, 3)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, sess := range []domain.Session{alice, bob} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.checkout.Settle(context.Background(), sess, testCustomer)
		}()
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrConcurrentStockConflict):
			conflicted++
			var stockErr *domain.StockError
			require.True(t, errors.As(err, &stockErr))
			assert.Equal(t, 2, stockErr.Available)
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)
	assert.Equal(t, 2, f.stock(t, 1))
	assert.Equal(t, 1, base.OrderCount())
}

func TestSettle_NeverOversells(t *testing.T) {
	const buyers = 5
	base := storage.NewMemoryProductStore(domain.Product{ID: 1, UnitPrice: 1000, Stock: 7})
	gate := newGatedStore(base, buyers)
	f := newFixtureWith(t, base, gate, nil)

	sessions := make([]domain.Session, buyers)
	for i := range sessions {
		sessions[i] = domain.Session{VisitorID: string(rune('a' + i))}
		f.fill(t, sessions[i], 1, 2)
	}

	var wg sync.WaitGroup
	var succeeded, conflicted atomic.Int32
	for _, sess := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.checkout.Settle(context.Background(), sess, testCustomer)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrConcurrentStockConflict):
				conflicted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), succeeded.Load())
	assert.Equal(t, int32(2), conflicted.Load())
	assert.Equal(t, 1, f.stock(t, 1))
}

func TestSettle_CommitTimeoutIsConflict(t *testing.T) {
	base := storage.NewMemoryProductStore(domain.Product{ID: 1, Stock: 5})
	f := newFixtureWith(t, base, &failingCommitStore{MemoryProductStore: base, err: context.DeadlineExceeded}, nil)
	ctx := context.Background()
	sess := domain.Session{VisitorID: "v1"}
	f.fill(t, sess, 1, 2)

	_, err := f.checkout.Settle(ctx, sess, testCustomer)
	require.ErrorIs(t, err, domain.ErrConcurrentStockConflict)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, 5, f.stock(t, 1))
	cart, err := f.carts.Snapshot(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, domain.Cart{1: 2}, cart, "cart survives a failed settlement")
}

type stalledStore struct {
	*storage.MemoryProductStore
}

func (s stalledStore) CommitOrder(ctx context.Context, order domain.OrderSummary) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestSettle_CommitTimeout(t *testing.T) {
	base := storage.NewMemoryProductStore(domain.Product{ID: 1, Stock: 5})
	f := newFixtureWith(t, base, stalledStore{base}, nil)
	f.checkout.SetCommitTimeout(10 * time.Millisecond)
	sess := domain.Session{VisitorID: "v1"}
	f.fill(t, sess, 1, 1)

	_, err := f.checkout.Settle(context.Background(), sess, testCustomer)
	assert.ErrorIs(t, err, domain.ErrConcurrentStockConflict)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 5, f.stock(t, 1))
}

func TestSettle_ProductDeletedBeforeCommit(t *testing.T) {
	base := storage.NewMemoryProductStore(domain.Product{ID: 1, Stock: 5})
	failing := &failingCommitStore{MemoryProductStore: base, err: domain.ErrProductNotFound}
	f := newFixtureWith(t, base, failing, nil)
	sess := domain.Session{VisitorID: "v1"}
	f.fill(t, sess, 1, 1)

	_, err := f.checkout.Settle(context.Background(), sess, testCustomer)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.NotErrorIs(t, err, domain.ErrConcurrentStockConflict)
}

func TestSettleOnce_Idempotency(t *testing.T) {
	f := newFixture(t, domain.Product{ID: 1, UnitPrice: 1000, Stock: 5})
	ctx := context.Background()
	sess := domain.Session{VisitorID: "v1"}

	// a failed attempt releases the key
	_, err := f.checkout.SettleOnce(ctx, sess, testCustomer, "k1")
	require.ErrorIs(t, err, domain.ErrEmptyCart)

	f.fill(t, sess, 1, 2)
	_, err = f.checkout.SettleOnce(ctx, sess, testCustomer, "k1")
	require.NoError(t, err)

	f.fill(t, sess, 1, 1)
	_, err = f.checkout.SettleOnce(ctx, sess, testCustomer, "k1")
	require.ErrorIs(t, err, domain.ErrDuplicateRequest)
	assert.Equal(t, 3, f.stock(t, 1))

	// keys are scoped per visitor
	other := domain.Session{VisitorID: "v2"}
	f.fill(t, other, 1, 1)
	_, err = f.checkout.SettleOnce(ctx, other, testCustomer, "k1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.stock(t, 1))
}

func TestSettle_InvalidatesStockCache(t *testing.T) {
	base := storage.NewMemoryProductStore(
		domain.Product{ID: 1, UnitPrice: 1000, Stock: 5},
		domain.Product{ID: 2, UnitPrice: 1000, Stock: 5},
	)
	cache := newFakeStockCache()
	f := newFixtureWith(t, base, base, cache)
	sess := domain.Session{VisitorID: "v1"}
	f.fill(t, sess, 1, 1)
	f.fill(t, sess, 2, 1)

	_, err := f.checkout.Settle(context.Background(), sess, testCustomer)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int64{1, 2}, cache.invalidated)
	_, ok, _ := cache.GetStock(context.Background(), 1)
	assert.False(t, ok)
}

func TestPreview(t *testing.T) {
	f := newFixture(t, domain.Product{ID: 1, Name: "T-Shirt Casual", UnitPrice: 150000, Stock: 50})
	ctx := context.Background()
	sess := domain.Session{VisitorID: "v1"}

	_, err := f.checkout.Preview(ctx, sess)
	require.ErrorIs(t, err, domain.ErrEmptyCart)

	f.fill(t, sess, 1, 2)
	require.NoError(t, f.checkout.SaveCustomer(ctx, sess, testCustomer))

	preview, err := f.checkout.Preview(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, int64(300000), preview.Subtotal)
	assert.Equal(t, int64(15000), preview.Shipping)
	assert.Equal(t, int64(315000), preview.GrandTotal)
	assert.Equal(t, 2, preview.TotalQuantity)
	assert.Equal(t, testCustomer.Name, preview.Customer.Name)
	assert.Equal(t, 50, f.stock(t, 1), "preview never debits")
}

func TestSaveCustomer_Rejects(t *testing.T) {
	f := newFixture(t)
	err := f.checkout.SaveCustomer(context.Background(), domain.Session{VisitorID: "v1"}, domain.CustomerInfo{Name: "Budi"})
	assert.ErrorIs(t, err, domain.ErrMissingCustomerInfo)

	err = f.checkout.SaveCustomer(context.Background(), domain.Session{}, testCustomer)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
}

func TestClose_StopsQueue(t *testing.T) {
	f := newFixture(t, domain.Product{ID: 1, UnitPrice: 1000, Stock: 5})
	sess := domain.Session{VisitorID: "v1"}
	f.fill(t, sess, 1, 1)

	f.checkout.Close()
	f.checkout.Close()

	_, err := f.checkout.Settle(context.Background(), sess, testCustomer)
	require.NoError(t, err, "settlement does not depend on notification")

	_, open := <-f.checkout.GetOrderQueue()
	assert.False(t, open)
}
