// Package event carries domain notifications from the core to its sinks:
// websocket clients, Kafka, and cache invalidation.
package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	StockMoved      Type = "stock_moved"
	ProductCreated  Type = "product_created"
	ProductUpdated  Type = "product_updated"
	ProductRetired  Type = "product_retired"
	CategoryCreated Type = "category_created"
	CategoryUpdated Type = "category_updated"
	CategoryDeleted Type = "category_deleted"
	LowStockAlert   Type = "low_stock_alert"
	UserPresence    Type = "user_status_update"
)

// InvalidatesDashboard reports whether the event can change dashboard figures
func (t Type) InvalidatesDashboard() bool {
	switch t {
	case StockMoved, ProductCreated, ProductUpdated, ProductRetired,
		CategoryCreated, CategoryDeleted:
		return true
	}
	return false
}

type Actor struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

// Event is the envelope every sink receives
type Event struct {
	ID         uuid.UUID   `json:"id"`
	Type       Type        `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Actor      *Actor      `json:"user,omitempty"`
	Key        string      `json:"key,omitempty"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

func New(t Type, key string, at time.Time, data interface{}) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		OccurredAt: at,
		Key:        key,
		Data:       data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Nop drops every event
var Nop Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

type multi []Publisher

// Multi fans an event out to every non-nil publisher. All sinks are tried;
// their errors are joined.
func Multi(publishers ...Publisher) Publisher {
	out := make(multi, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (m multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
