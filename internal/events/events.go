// Package events publishes order lifecycle events to NATS so downstream
// consumers (kitchen display, notifications) can react without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"

	"github.com/xhaelri/qitchen/internal/domain"
)

// Subjects.
const (
	SubjectOrderCreated   = "orders.created"
	SubjectOrderPaid      = "orders.paid"
	SubjectOrderFailed    = "orders.failed"
	SubjectOrderCancelled = "orders.cancelled"
	SubjectOrderRefunded  = "orders.refunded"
	SubjectOrderStatus    = "orders.status"
)

// OrderEvent is the payload of every order subject.
type OrderEvent struct {
	OrderID       uuid.UUID            `json:"orderId"`
	UserID        uuid.UUID            `json:"userId"`
	PaymentMethod string               `json:"paymentMethod"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
	OrderStatus   domain.OrderStatus   `json:"orderStatus"`
	PlaceType     domain.PlaceType     `json:"placeType"`
	TotalPrice    decimal.Decimal      `json:"totalPrice"`
	Currency      string               `json:"currency"`
	Reason        string               `json:"reason,omitempty"`
	OccurredAt    time.Time            `json:"occurredAt"`
}

// NewOrderEvent snapshots an order into an event.
func NewOrderEvent(o *domain.Order, reason string) OrderEvent {
	return OrderEvent{
		OrderID:       o.ID,
		UserID:        o.UserID,
		PaymentMethod: string(o.PaymentMethod),
		PaymentStatus: o.PaymentStatus,
		OrderStatus:   o.OrderStatus,
		PlaceType:     o.PlaceType,
		TotalPrice:    o.TotalPrice,
		Currency:      o.Currency,
		Reason:        reason,
		OccurredAt:    time.Now().UTC(),
	}
}

// Publisher sends order events. Publishing is best effort: order state is
// already committed when an event is sent.
type Publisher interface {
	Publish(ctx context.Context, subject string, event OrderEvent) error
}

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATS publishes events on a NATS connection.
type NATS struct {
	conn   conn
	prefix string
	logger *slog.Logger
}

// Connect dials the NATS server at url. prefix, if set, is prepended to
// every subject.
func Connect(url, prefix string, logger *slog.Logger) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("qitchen"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &NATS{conn: conn, prefix: prefix, logger: logger}, nil
}

// Publish marshals event and publishes it on subject.
func (n *NATS) Publish(ctx context.Context, subject string, event OrderEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject = n.subject(subject)
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	n.logger.Debug("event published", "subject", subject, "order_id", event.OrderID)
	return nil
}

func (n *NATS) subject(s string) string {
	if n.prefix == "" {
		return s
	}
	return n.prefix + "." + s
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}

// Nop discards events. Used when NATS_URL is not set.
type Nop struct{}

func (Nop) Publish(ctx context.Context, subject string, event OrderEvent) error { return nil }

// Recorder keeps published events in memory, for tests.
type Recorder struct {
	mu     sync.Mutex
	Events []Recorded
}

// Recorded is one published event.
type Recorded struct {
	Subject string
	Event   OrderEvent
}

func (r *Recorder) Publish(ctx context.Context, subject string, event OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Recorded{Subject: subject, Event: event})
	return nil
}

// Subjects returns the subjects published so far, in order.
func (r *Recorder) Subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Subject
	}
	return out
}

var (
	_ Publisher = (*NATS)(nil)
	_ Publisher = Nop{}
	_ Publisher = (*Recorder)(nil)
)
