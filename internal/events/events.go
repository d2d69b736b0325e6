// Package events carries change notifications out of the ledger after a
// transaction commits. Subscribers never take part in the transaction.
package events

import (
	"context"
	"log/slog"
	"time"
)

// Type names a ledger change.
type Type string

const (
	PaymentCreated       Type = "payment.created"
	PaymentDeleted       Type = "payment.deleted"
	PaymentStatusToggled Type = "payment.status_toggled"
	BudgetReloaded       Type = "budget.reloaded"
)

// Event is a committed ledger change.
type Event struct {
	Type       Type           `json:"type"`
	Subject    string         `json:"subject"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

//go:generate mockgen -source=events.go -destination=events_mock.go -package=events

// Publisher delivers events to interested parties.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Log writes every event to the default slog logger at debug level.
type Log struct{}

func (Log) Publish(ctx context.Context, e Event) error {
	slog.DebugContext(ctx, "ledger event", "type", e.Type, "subject", e.Subject)
	return nil
}
