package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rl1809/storefront/internal/core/domain"
)

const EventOrderPlaced = "order.placed"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher emits an order.placed event per settled order, keyed by
// order id so every event of one order lands on the same partition.
type KafkaPublisher struct {
	writer messageWriter
}

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

type orderLineEvent struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

type orderPlacedEvent struct {
	Type       string           `json:"type"`
	OrderID    string           `json:"order_id"`
	Lines      []orderLineEvent `json:"lines"`
	Subtotal   int64            `json:"subtotal"`
	Shipping   int64            `json:"shipping"`
	GrandTotal int64            `json:"grand_total"`
	Customer   string           `json:"customer"`
	CreatedAt  time.Time        `json:"created_at"`
}

func newOrderPlacedEvent(order domain.OrderSummary) orderPlacedEvent {
	ev := orderPlacedEvent{
		Type:       EventOrderPlaced,
		OrderID:    order.ID,
		Lines:      make([]orderLineEvent, 0, len(order.Lines)),
		Subtotal:   order.Subtotal,
		Shipping:   order.Shipping,
		GrandTotal: order.GrandTotal,
		Customer:   order.Customer.Name,
		CreatedAt:  order.CreatedAt,
	}
	for _, l := range order.Lines {
		ev.Lines = append(ev.Lines, orderLineEvent{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			Subtotal:  l.Subtotal,
		})
	}
	return ev
}

func (p *KafkaPublisher) Notify(ctx context.Context, order domain.OrderSummary) error {
	data, err := json.Marshal(newOrderPlacedEvent(order))
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(order.ID),
		Value: data,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventOrderPlaced)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish order %s: %w", order.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
