package notify

import (
	"net/url"
	"strings"

	"github.com/rl1809/storefront/internal/core/domain"
)

// WhatsApp builds click-to-chat links that hand the transcript to the shop's number.
type WhatsApp struct {
	Number string
}

func (w WhatsApp) Link(order domain.OrderSummary) string {
	if w.Number == "" {
		return ""
	}
	text := strings.ReplaceAll(url.QueryEscape(Render(order)), "+", "%20")
	return "https://wa.me/" + w.Number + "?text=" + text
}
