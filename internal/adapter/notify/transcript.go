package notify

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rl1809/storefront/internal/core/domain"
)

var printer = message.NewPrinter(language.Indonesian)

// FormatRupiah renders an amount in the smallest currency unit, e.g. Rp 1.200.000.
func FormatRupiah(amount int64) string {
	return printer.Sprintf("Rp %d", amount)
}

// Render builds the human readable order transcript sent to the shop.
func Render(order domain.OrderSummary) string {
	var b strings.Builder

	b.WriteString("Hello! I would like to order:\n\n")
	b.WriteString("*ORDER DETAILS:*\n")
	for _, l := range order.Lines {
		fmt.Fprintf(&b, "- %s (%s) x%d = %s\n", l.Name, FormatRupiah(l.UnitPrice), l.Quantity, FormatRupiah(l.Subtotal))
	}

	b.WriteString("\n*SUMMARY:*\n")
	fmt.Fprintf(&b, "Subtotal: %s\n", FormatRupiah(order.Subtotal))
	shipping := "FREE"
	if order.Shipping > 0 {
		shipping = FormatRupiah(order.Shipping)
	}
	fmt.Fprintf(&b, "Shipping: %s\n", shipping)
	fmt.Fprintf(&b, "*TOTAL: %s*\n", FormatRupiah(order.GrandTotal))

	b.WriteString("\n*CUSTOMER:*\n")
	fmt.Fprintf(&b, "Name: %s\n", order.Customer.Name)
	fmt.Fprintf(&b, "Address: %s\n", order.Customer.Address)
	fmt.Fprintf(&b, "Phone: %s", order.Customer.Phone)
	if order.Customer.Note != "" {
		fmt.Fprintf(&b, "\nNote: %s", order.Customer.Note)
	}

	fmt.Fprintf(&b, "\n\nOrder ref: %s", order.ID)
	return b.String()
}
