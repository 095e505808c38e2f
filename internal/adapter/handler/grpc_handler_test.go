package handler

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/storefront/internal/adapter/storage"
)

func startGRPC(t *testing.T, env *testEnv) (*StorefrontClient, *grpc.ClientConn) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	srv := grpc.NewServer()
	RegisterStorefrontServer(srv, env.grpc)
	healthpb.RegisterHealthServer(srv, health.NewServer())
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
	})
	return NewStorefrontClient(conn), conn
}

func TestGRPCHealth(t *testing.T) {
	_, conn := startGRPC(t, newTestEnv(t))

	resp, err := healthpb.NewHealthClient(conn).Check(t.Context(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestGRPCGetCart(t *testing.T) {
	env := newTestEnv(t)
	client, _ := startGRPC(t, env)
	env.fill(t, "visitor-1", 3, 2)

	reply, err := client.GetCart(t.Context(), &GetCartRequest{VisitorID: "visitor-1"})
	require.NoError(t, err)
	require.True(t, reply.Success)
	assert.Equal(t, 2, reply.Cart.TotalQuantity)
	assert.Equal(t, int64(300000), reply.Cart.Subtotal)

	reply, err = client.GetCart(t.Context(), &GetCartRequest{})
	require.NoError(t, err)
	assert.False(t, reply.Success)
	assert.Equal(t, "invalid_session", reply.Code)
}

func TestGRPCReconcile(t *testing.T) {
	env := newTestEnv(t)
	client, _ := startGRPC(t, env)

	reply, err := client.Reconcile(t.Context(), &ReconcileRequest{Items: map[string]int{"1": 12, "2": 1, "99": 1, "3": 2}})
	require.NoError(t, err)
	require.True(t, reply.Success)
	assert.Equal(t, map[string]int{"1": 10, "3": 2}, reply.Items)
	require.Len(t, reply.Adjustments, 3)
	assert.Equal(t, "clamped", reply.Adjustments[0].Kind)
	assert.Equal(t, "out_of_stock", reply.Adjustments[1].Reason)
	assert.Equal(t, "not_found", reply.Adjustments[2].Reason)

	reply, err = client.Reconcile(t.Context(), &ReconcileRequest{Items: map[string]int{"x": 1}})
	require.NoError(t, err)
	assert.False(t, reply.Success)
	assert.Equal(t, "invalid_cart", reply.Code)
}

func TestGRPCSettle(t *testing.T) {
	env := newTestEnv(t)
	client, _ := startGRPC(t, env)
	env.fill(t, "visitor-1", 1, 1)

	reply, err := client.Settle(t.Context(), &SettleRequest{VisitorID: "visitor-1"})
	require.NoError(t, err)
	assert.False(t, reply.Success)
	assert.Equal(t, "missing_customer_info", reply.Code)

	c := customer
	reply, err = client.Settle(t.Context(), &SettleRequest{VisitorID: "visitor-1", Customer: &c, IdempotencyKey: "k"})
	require.NoError(t, err)
	require.True(t, reply.Success, reply.Message)
	require.NotNil(t, reply.Order)
	assert.Zero(t, reply.Order.Shipping)
	assert.Equal(t, int64(12000000), reply.Order.GrandTotal)

	p, _ := env.store.GetProduct(t.Context(), 1)
	assert.Equal(t, 9, p.Stock)
}

func TestGRPCSettleConflict(t *testing.T) {
	store := storage.NewMemoryProductStore(sampleProducts()...)
	env := newTestEnvWith(t, store, conflictingStore{store})
	client, _ := startGRPC(t, env)
	env.fill(t, "visitor-1", 3, 1)

	c := customer
	reply, err := client.Settle(t.Context(), &SettleRequest{VisitorID: "visitor-1", Customer: &c})
	require.NoError(t, err)
	assert.False(t, reply.Success)
	assert.Equal(t, "concurrent_stock_conflict", reply.Code)
}
