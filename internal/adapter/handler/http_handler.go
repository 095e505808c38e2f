package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/adapter/notify"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

const IdempotencyHeader = "Idempotency-Key"

type HTTPHandler struct {
	products  port.ProductRepository
	carts     *service.CartService
	checkout  *service.CheckoutService
	whatsApp  notify.WhatsApp
	logger    *zap.Logger
	metrics   *metrics.Metrics
	cookieTTL time.Duration
}

func NewHTTPHandler(
	products port.ProductRepository,
	carts *service.CartService,
	checkout *service.CheckoutService,
	whatsApp notify.WhatsApp,
	cookieTTL time.Duration,
	logger *zap.Logger,
	m *metrics.Metrics,
) *HTTPHandler {
	return &HTTPHandler{
		products:  products,
		carts:     carts,
		checkout:  checkout,
		whatsApp:  whatsApp,
		logger:    logger,
		metrics:   m,
		cookieTTL: cookieTTL,
	}
}

func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observe(h.logger, h.metrics))

	r.Get("/health", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(withVisitor(h.cookieTTL))

			r.Get("/cart", h.ViewCart)
			r.Delete("/cart", h.ClearCart)
			r.Post("/cart/items/{id}", h.AddItem)
			r.Post("/cart/items/{id}/increment", h.IncrementItem)
			r.Post("/cart/items/{id}/decrement", h.DecrementItem)
			r.Delete("/cart/items/{id}", h.RemoveItem)

			r.Get("/checkout", h.PreviewCheckout)
			r.Put("/checkout/customer", h.SaveCustomer)
			r.Post("/checkout", h.Checkout)
		})
	})
	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.ListAvailable(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]ProductResponse, len(products))
	for i, p := range products {
		out[i] = mapProduct(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	p, err := h.products.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapProduct(p))
}

func (h *HTTPHandler) ViewCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.View(r.Context(), sessionFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCartView(view))
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), sessionFrom(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CartResponse{Items: domain.NewCart()})
}

func (h *HTTPHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	h.mutateCart(w, r, h.carts.Add)
}

// IncrementItem answers 404 not_in_cart for a line the cart does not hold.
// Decrement and remove treat such a line as a no-op.
func (h *HTTPHandler) IncrementItem(w http.ResponseWriter, r *http.Request) {
	h.mutateCart(w, r, h.carts.Increment)
}

func (h *HTTPHandler) DecrementItem(w http.ResponseWriter, r *http.Request) {
	h.mutateCart(w, r, h.carts.Decrement)
}

func (h *HTTPHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.mutateCart(w, r, h.carts.Remove)
}

type cartMutation func(ctx context.Context, sess domain.Session, productID int64) (domain.Cart, error)

func (h *HTTPHandler) mutateCart(w http.ResponseWriter, r *http.Request, op cartMutation) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	cart, err := op(r.Context(), sessionFrom(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CartResponse{Items: cart, Count: cart.TotalQuantity()})
}

func (h *HTTPHandler) PreviewCheckout(w http.ResponseWriter, r *http.Request) {
	preview, err := h.checkout.Preview(r.Context(), sessionFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := CheckoutPreviewResponse{
		Lines:         mapLines(preview.Lines),
		Subtotal:      preview.Subtotal,
		Shipping:      preview.Shipping,
		GrandTotal:    preview.GrandTotal,
		TotalQuantity: preview.TotalQuantity,
		Adjustments:   mapAdjustments(preview.Adjustments),
	}
	if !preview.Customer.IsZero() {
		c := mapCustomer(preview.Customer)
		resp.Customer = &c
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) SaveCustomer(w http.ResponseWriter, r *http.Request) {
	var req CustomerPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if err := h.checkout.SaveCustomer(r.Context(), sessionFrom(r), req.toDomain()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout settles the cart. The customer comes from the body when one is
// sent, else from the details saved earlier in the session.
func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	key := r.Header.Get(IdempotencyHeader)

	var req CustomerPayload
	hasBody := true
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
		hasBody = false
	}

	var (
		order domain.OrderSummary
		err   error
	)
	if hasBody {
		order, err = h.checkout.SettleOnce(r.Context(), sess, req.toDomain(), key)
	} else {
		order, err = h.checkout.SettleStored(r.Context(), sess, key)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, OrderResponse{
		ID:          order.ID,
		Lines:       mapLines(order.Lines),
		Subtotal:    order.Subtotal,
		Shipping:    order.Shipping,
		GrandTotal:  order.GrandTotal,
		Customer:    mapCustomer(order.Customer),
		CreatedAt:   order.CreatedAt,
		Transcript:  notify.Render(order),
		WhatsAppURL: h.whatsApp.Link(order),
	})
}

func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if statusFor(err) == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeDomainError(w, err)
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_product_id", "product id must be a positive integer")
		return 0, false
	}
	return id, true
}
