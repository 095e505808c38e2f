package handler

import (
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

type ErrorResponse struct {
	Error       string               `json:"error"`
	Message     string               `json:"message"`
	Adjustments []AdjustmentResponse `json:"adjustments,omitempty"`
}

type ProductResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	UnitPrice   int64  `json:"unit_price"`
	Stock       int    `json:"stock"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

type AdjustmentResponse struct {
	ProductID   int64  `json:"product_id"`
	Name        string `json:"name,omitempty"`
	Kind        string `json:"kind"`
	Reason      string `json:"reason,omitempty"`
	OldQuantity int    `json:"old_quantity"`
	NewQuantity int    `json:"new_quantity"`
}

type LineResponse struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
	Stock     *int   `json:"stock,omitempty"`
}

// CartResponse is returned by cart mutations.
type CartResponse struct {
	Items domain.Cart `json:"items"`
	Count int         `json:"count"`
}

type CartViewResponse struct {
	Lines         []LineResponse       `json:"lines"`
	Subtotal      int64                `json:"subtotal"`
	TotalQuantity int                  `json:"total_quantity"`
	Adjustments   []AdjustmentResponse `json:"adjustments"`
}

type CustomerPayload struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Note    string `json:"note,omitempty"`
}

type CheckoutPreviewResponse struct {
	Lines         []LineResponse       `json:"lines"`
	Subtotal      int64                `json:"subtotal"`
	Shipping      int64                `json:"shipping"`
	GrandTotal    int64                `json:"grand_total"`
	TotalQuantity int                  `json:"total_quantity"`
	Customer      *CustomerPayload     `json:"customer,omitempty"`
	Adjustments   []AdjustmentResponse `json:"adjustments"`
}

type OrderResponse struct {
	ID          string          `json:"id"`
	Lines       []LineResponse  `json:"lines"`
	Subtotal    int64           `json:"subtotal"`
	Shipping    int64           `json:"shipping"`
	GrandTotal  int64           `json:"grand_total"`
	Customer    CustomerPayload `json:"customer"`
	CreatedAt   time.Time       `json:"created_at"`
	Transcript  string          `json:"transcript"`
	WhatsAppURL string          `json:"whatsapp_url,omitempty"`
}

func (p CustomerPayload) toDomain() domain.CustomerInfo {
	return domain.CustomerInfo{Name: p.Name, Address: p.Address, Phone: p.Phone, Note: p.Note}
}

func mapCustomer(c domain.CustomerInfo) CustomerPayload {
	return CustomerPayload{Name: c.Name, Address: c.Address, Phone: c.Phone, Note: c.Note}
}

func mapProduct(p domain.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		UnitPrice:   p.UnitPrice,
		Stock:       p.Stock,
		Description: p.Description,
		Category:    p.Category,
	}
}

func mapAdjustments(adjustments []domain.Adjustment) []AdjustmentResponse {
	out := make([]AdjustmentResponse, len(adjustments))
	for i, a := range adjustments {
		out[i] = AdjustmentResponse{
			ProductID:   a.ProductID,
			Name:        a.Name,
			Kind:        string(a.Kind),
			Reason:      string(a.Reason),
			OldQuantity: a.OldQuantity,
			NewQuantity: a.NewQuantity,
		}
	}
	return out
}

func mapLines(lines []domain.OrderLine) []LineResponse {
	out := make([]LineResponse, len(lines))
	for i, l := range lines {
		out[i] = LineResponse{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			Subtotal:  l.Subtotal,
		}
	}
	return out
}

func mapCartView(view service.CartView) CartViewResponse {
	lines := make([]LineResponse, len(view.Lines))
	for i, l := range view.Lines {
		stock := l.Stock
		lines[i] = LineResponse{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			Subtotal:  l.Subtotal,
			Stock:     &stock,
		}
	}
	return CartViewResponse{
		Lines:         lines,
		Subtotal:      view.Subtotal,
		TotalQuantity: view.TotalQuantity,
		Adjustments:   mapAdjustments(view.Adjustments),
	}
}
