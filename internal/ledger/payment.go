package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/farmabudget/internal/catalog"
)

// Status represents the processing state of a payment.
type Status string

const (
	StatusPending   Status = "pendiente"
	StatusProcessed Status = "procesado"
)

// Statuses lists the valid statuses in display order.
var Statuses = []Status{StatusPending, StatusProcessed}

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusProcessed
}

// Toggle returns the other status. Unknown values toggle to processed, the
// same as pending, since they are read back as pending.
func (s Status) Toggle() Status {
	if s == StatusProcessed {
		return StatusPending
	}

	return StatusProcessed
}

// Payment is a single pharmacy purchase recorded against the budget.
type Payment struct {
	ID          uuid.UUID
	Pharmacy    string
	PharmacyKey string
	Product     catalog.Product
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalAmount decimal.Decimal
	Date        time.Time
	Status      Status
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// NormalizeKey returns the lookup key used for exact pharmacy matching.
func NormalizeKey(pharmacy string) string {
	return strings.ToLower(strings.TrimSpace(pharmacy))
}

// DateOnly truncates t to its calendar day in UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
