package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/storefront/internal/adapter/notify"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

var testPolicy = domain.ShippingPolicy{FreeShippingThreshold: 500000, FlatShippingFee: 15000}

type testEnv struct {
	store     *storage.MemoryProductStore
	carts     *service.CartService
	validator *service.InventoryValidator
	checkout  *service.CheckoutService
	http      http.Handler
	grpc      *GRPCHandler
}

func sampleProducts() []domain.Product {
	return []domain.Product{
		{ID: 1, Name: "Laptop Gaming", UnitPrice: 12000000, Stock: 10},
		{ID: 2, Name: "Smartphone", UnitPrice: 5000000, Stock: 0},
		{ID: 3, Name: "T-Shirt Casual", UnitPrice: 150000, Stock: 50},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	store := storage.NewMemoryProductStore(sampleProducts()...)
	return newTestEnvWith(t, store, store)
}

func newTestEnvWith(t *testing.T, store *storage.MemoryProductStore, repo port.ProductRepository) *testEnv {
	logger := zaptest.NewLogger(t)
	m := metrics.New()
	sessions := storage.NewMemorySessionStore()
	validator := service.NewInventoryValidator(repo, logger, m)
	carts := service.NewCartService(repo, sessions, nil, validator, logger, m)
	checkout := service.NewCheckoutService(repo, sessions, nil, validator, testPolicy, 8, logger, m)
	t.Cleanup(checkout.Close)

	wa := notify.WhatsApp{Number: "6285259805247"}
	return &testEnv{
		store:     store,
		carts:     carts,
		validator: validator,
		checkout:  checkout,
		http:      NewHTTPHandler(repo, carts, checkout, wa, time.Hour, logger, m).Routes(),
		grpc:      NewGRPCHandler(carts, validator, checkout, wa, logger),
	}
}

func (e *testEnv) do(t *testing.T, method, path, visitor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if visitor != "" {
		req.Header.Set(VisitorHeader, visitor)
	}
	rec := httptest.NewRecorder()
	e.http.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) fill(t *testing.T, visitor string, id int64, qty int) {
	t.Helper()
	for i := 0; i < qty; i++ {
		_, err := e.carts.Add(context.Background(), domain.Session{VisitorID: visitor}, id)
		require.NoError(t, err)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type conflictingStore struct {
	*storage.MemoryProductStore
}

func (c conflictingStore) CommitOrder(ctx context.Context, order domain.OrderSummary) error {
	return &domain.StockError{
		ProductID: order.Lines[0].ProductID,
		Requested: order.Lines[0].Quantity,
		Err:       domain.ErrConcurrentStockConflict,
	}
}
