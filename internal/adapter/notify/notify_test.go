package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rl1809/storefront/internal/core/domain"
)

func sampleOrder() domain.OrderSummary {
	return domain.OrderSummary{
		ID: "ord-1",
		Lines: []domain.OrderLine{
			{ProductID: 1, Name: "Laptop Gaming", UnitPrice: 12000000, Quantity: 1, Subtotal: 12000000},
			{ProductID: 3, Name: "T-Shirt Casual", UnitPrice: 150000, Quantity: 2, Subtotal: 300000},
		},
		Subtotal:   12300000,
		Shipping:   0,
		GrandTotal: 12300000,
		Customer:   domain.CustomerInfo{Name: "Budi", Address: "Jl. Merdeka 1", Phone: "081234567890"},
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestFormatRupiah(t *testing.T) {
	assert.Equal(t, "Rp 1.200.000", FormatRupiah(1200000))
	assert.Equal(t, "Rp 15.000", FormatRupiah(15000))
	assert.Equal(t, "Rp 0", FormatRupiah(0))
}

func TestRender(t *testing.T) {
	order := sampleOrder()
	text := Render(order)

	assert.Contains(t, text, "- Laptop Gaming (Rp 12.000.000) x1 = Rp 12.000.000")
	assert.Contains(t, text, "- T-Shirt Casual (Rp 150.000) x2 = Rp 300.000")
	assert.Contains(t, text, "Shipping: FREE")
	assert.Contains(t, text, "*TOTAL: Rp 12.300.000*")
	assert.Contains(t, text, "Phone: 081234567890")
	assert.NotContains(t, text, "Note:")

	order.Shipping = 15000
	order.Customer.Note = "leave at the gate"
	text = Render(order)
	assert.Contains(t, text, "Shipping: Rp 15.000")
	assert.Contains(t, text, "Note: leave at the gate")
}

func TestWhatsAppLink(t *testing.T) {
	order := sampleOrder()

	assert.Empty(t, WhatsApp{}.Link(order))

	link := WhatsApp{Number: "6285259805247"}.Link(order)
	require.True(t, strings.HasPrefix(link, "https://wa.me/6285259805247?text="))
	assert.NotContains(t, link, "+")
	assert.NotContains(t, link, " ")

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, Render(order), u.Query().Get("text"))
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	require.NoError(t, p.Notify(context.Background(), sampleOrder()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "ord-1", string(w.msgs[0].Key))

	var ev orderPlacedEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, EventOrderPlaced, ev.Type)
	assert.Equal(t, int64(12300000), ev.GrandTotal)
	require.Len(t, ev.Lines, 2)
	assert.Equal(t, 2, ev.Lines[1].Quantity)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherError(t *testing.T) {
	boom := errors.New("broker down")
	p := &KafkaPublisher{writer: &fakeWriter{err: boom}}

	err := p.Notify(context.Background(), sampleOrder())
	assert.ErrorIs(t, err, boom)
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, ParseBrokers(""))
}

type failingNotifier struct{ err error }

func (f failingNotifier) Notify(ctx context.Context, order domain.OrderSummary) error { return f.err }

func TestMultiAndLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	boom := errors.New("boom")

	m := Multi{
		failingNotifier{err: boom},
		NewLogNotifier(zap.New(core), WhatsApp{Number: "62811"}),
	}
	err := m.Notify(context.Background(), sampleOrder())
	assert.ErrorIs(t, err, boom)

	entries := logs.FilterMessage("order placed").All()
	require.Len(t, entries, 1, "one failing notifier must not stop the others")
	fields := entries[0].ContextMap()
	assert.Equal(t, "ord-1", fields["order_id"])
	assert.Equal(t, "Rp 12.300.000", fields["grand_total"])
	assert.Contains(t, fields["whatsapp_link"], "https://wa.me/62811")
}
