package domain

import (
	"slices"
	"strings"
	"time"
)

type CustomerInfo struct {
	Name    string
	Address string
	Phone   string
	Note    string
}

// Normalize trims surrounding whitespace from every field.
func (c CustomerInfo) Normalize() CustomerInfo {
	return CustomerInfo{
		Name:    strings.TrimSpace(c.Name),
		Address: strings.TrimSpace(c.Address),
		Phone:   strings.TrimSpace(c.Phone),
		Note:    strings.TrimSpace(c.Note),
	}
}

func (c CustomerInfo) Validate() error {
	n := c.Normalize()
	var missing []string
	if n.Name == "" {
		missing = append(missing, "name")
	}
	if n.Address == "" {
		missing = append(missing, "address")
	}
	if n.Phone == "" {
		missing = append(missing, "phone")
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}

func (c CustomerInfo) IsZero() bool {
	return c == CustomerInfo{}
}

type OrderLine struct {
	ProductID int64
	Name      string
	UnitPrice int64
	Quantity  int
	Subtotal  int64
}

// OrderSummary is the record a successful settlement produces. It is passed
// by value; Clone gives callers their own copy of Lines.
type OrderSummary struct {
	ID         string
	Lines      []OrderLine
	Subtotal   int64
	Shipping   int64
	GrandTotal int64
	Customer   CustomerInfo
	CreatedAt  time.Time
}

func (o OrderSummary) Clone() OrderSummary {
	o.Lines = slices.Clone(o.Lines)
	return o
}

func (o OrderSummary) TotalQuantity() int {
	total := 0
	for _, l := range o.Lines {
		total += l.Quantity
	}
	return total
}

// PriceLines builds order lines for the cart from the given products,
// skipping ids with no product. Lines are ordered by product id.
func PriceLines(cart Cart, products map[int64]Product) ([]OrderLine, int64) {
	lines := make([]OrderLine, 0, len(cart))
	var subtotal int64
	for _, cl := range cart.Lines() {
		p, ok := products[cl.ProductID]
		if !ok {
			continue
		}
		line := OrderLine{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.UnitPrice,
			Quantity:  cl.Quantity,
			Subtotal:  p.UnitPrice * int64(cl.Quantity),
		}
		subtotal += line.Subtotal
		lines = append(lines, line)
	}
	return lines, subtotal
}

type ShippingPolicy struct {
	FreeShippingThreshold int64
	FlatShippingFee       int64
}

// Quote returns the shipping fee and grand total for a subtotal.
func (p ShippingPolicy) Quote(subtotal int64) (shipping, grandTotal int64) {
	if subtotal >= p.FreeShippingThreshold {
		return 0, subtotal
	}
	return p.FlatShippingFee, subtotal + p.FlatShippingFee
}
