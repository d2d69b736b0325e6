package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Budget is the singleton spending ceiling.
type Budget struct {
	Amount    decimal.Decimal
	UpdatedAt time.Time
	// Version is the optimistic-concurrency token. Zero means the row does not exist yet.
	Version int64
}

// Available returns what is left after spent. It can be negative.
func (b Budget) Available(spent decimal.Decimal) decimal.Decimal {
	return b.Amount.Sub(spent)
}

// Reload is an immutable audit entry for a budget increase.
type Reload struct {
	ID            uuid.UUID
	Amount        decimal.Decimal
	Notes         string
	PreviousTotal decimal.Decimal
	NewTotal      decimal.Decimal
	CreatedAt     time.Time
}

type ReloadResult struct {
	PreviousTotal decimal.Decimal
	NewTotal      decimal.Decimal
	Reload        *Reload
}

// BudgetView is the budget together with the current spend, for display.
type BudgetView struct {
	Amount         decimal.Decimal
	TotalSpent     decimal.Decimal
	Available      decimal.Decimal
	PendingCount   int64
	ProcessedCount int64
	UpdatedAt      time.Time
}
