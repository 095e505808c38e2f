package handler

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront/internal/adapter/notify"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

const serviceName = "storefront.v1.Storefront"

// StorefrontServer is the server API for the storefront gRPC service.
type StorefrontServer interface {
	GetCart(context.Context, *GetCartRequest) (*CartReply, error)
	Reconcile(context.Context, *ReconcileRequest) (*ReconcileReply, error)
	Settle(context.Context, *SettleRequest) (*SettleReply, error)
}

// GRPCHandler reports domain failures in the reply body and keeps gRPC
// status errors for transport problems.
type GRPCHandler struct {
	carts     *service.CartService
	validator *service.InventoryValidator
	checkout  *service.CheckoutService
	whatsApp  notify.WhatsApp
	logger    *zap.Logger
}

func NewGRPCHandler(
	carts *service.CartService,
	validator *service.InventoryValidator,
	checkout *service.CheckoutService,
	whatsApp notify.WhatsApp,
	logger *zap.Logger,
) *GRPCHandler {
	return &GRPCHandler{
		carts:     carts,
		validator: validator,
		checkout:  checkout,
		whatsApp:  whatsApp,
		logger:    logger,
	}
}

func (h *GRPCHandler) GetCart(ctx context.Context, req *GetCartRequest) (*CartReply, error) {
	view, err := h.carts.View(ctx, domain.Session{VisitorID: req.VisitorID})
	if err != nil {
		h.logFailure("GetCart", err)
		return &CartReply{Success: false, Message: messageFor(err), Code: domain.Code(err)}, nil
	}
	return &CartReply{Success: true, Message: "ok", Code: domain.Code(nil), Cart: mapCartView(view)}, nil
}

func (h *GRPCHandler) Reconcile(ctx context.Context, req *ReconcileRequest) (*ReconcileReply, error) {
	cart := domain.NewCart()
	for key, qty := range req.Items {
		id, err := domain.ParseCartEntry(key, qty)
		if err != nil {
			return &ReconcileReply{Success: false, Message: err.Error(), Code: "invalid_cart"}, nil
		}
		cart[id] = qty
	}

	corrected, adjustments, err := h.validator.Reconcile(ctx, cart)
	if err != nil {
		h.logFailure("Reconcile", err)
		return &ReconcileReply{Success: false, Message: messageFor(err), Code: domain.Code(err)}, nil
	}

	items := make(map[string]int, len(corrected))
	for id, qty := range corrected {
		items[strconv.FormatInt(id, 10)] = qty
	}
	return &ReconcileReply{
		Success:     true,
		Message:     "ok",
		Code:        domain.Code(nil),
		Items:       items,
		Adjustments: mapAdjustments(adjustments),
	}, nil
}

func (h *GRPCHandler) Settle(ctx context.Context, req *SettleRequest) (*SettleReply, error) {
	sess := domain.Session{VisitorID: req.VisitorID}

	var (
		order domain.OrderSummary
		err   error
	)
	if req.Customer != nil {
		order, err = h.checkout.SettleOnce(ctx, sess, req.Customer.toDomain(), req.IdempotencyKey)
	} else {
		order, err = h.checkout.SettleStored(ctx, sess, req.IdempotencyKey)
	}
	if err != nil {
		h.logFailure("Settle", err)
		return &SettleReply{
			Success:     false,
			Message:     messageFor(err),
			Code:        domain.Code(err),
			Adjustments: mapAdjustments(adjustmentsOf(err)),
		}, nil
	}

	return &SettleReply{
		Success: true,
		Message: "order placed successfully",
		Code:    domain.Code(nil),
		Order: &OrderResponse{
			ID:          order.ID,
			Lines:       mapLines(order.Lines),
			Subtotal:    order.Subtotal,
			Shipping:    order.Shipping,
			GrandTotal:  order.GrandTotal,
			Customer:    mapCustomer(order.Customer),
			CreatedAt:   order.CreatedAt,
			Transcript:  notify.Render(order),
			WhatsAppURL: h.whatsApp.Link(order),
		},
	}, nil
}

func (h *GRPCHandler) logFailure(method string, err error) {
	if statusFor(err) == http.StatusInternalServerError {
		h.logger.Error("grpc call failed", zap.String("method", method), zap.Error(err))
	}
}

func RegisterStorefrontServer(s grpc.ServiceRegistrar, srv StorefrontServer) {
	s.RegisterService(&storefrontServiceDesc, srv)
}

var storefrontServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*StorefrontServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetCart", Handler: getCartHandler},
		{MethodName: "Reconcile", Handler: reconcileHandler},
		{MethodName: "Settle", Handler: settleHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/v1/storefront.json",
}

func getCartHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetCartRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StorefrontServer).GetCart(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetCart"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StorefrontServer).GetCart(ctx, req.(*GetCartRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func reconcileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReconcileRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StorefrontServer).Reconcile(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Reconcile"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StorefrontServer).Reconcile(ctx, req.(*ReconcileRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func settleHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SettleRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StorefrontServer).Settle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Settle"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StorefrontServer).Settle(ctx, req.(*SettleRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// StorefrontClient calls the storefront service over a connection that
// speaks the JSON codec.
type StorefrontClient struct {
	cc grpc.ClientConnInterface
}

func NewStorefrontClient(cc grpc.ClientConnInterface) *StorefrontClient {
	return &StorefrontClient{cc: cc}
}

func (c *StorefrontClient) GetCart(ctx context.Context, in *GetCartRequest, opts ...grpc.CallOption) (*CartReply, error) {
	out := new(CartReply)
	if err := c.invoke(ctx, "GetCart", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StorefrontClient) Reconcile(ctx context.Context, in *ReconcileRequest, opts ...grpc.CallOption) (*ReconcileReply, error) {
	out := new(ReconcileReply)
	if err := c.invoke(ctx, "Reconcile", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StorefrontClient) Settle(ctx context.Context, in *SettleRequest, opts ...grpc.CallOption) (*SettleReply, error) {
	out := new(SettleReply)
	if err := c.invoke(ctx, "Settle", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *StorefrontClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...)
}
