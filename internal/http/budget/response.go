package budget

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/farmabudget/internal/ledger"
)

type budgetResponse struct {
	Amount         decimal.Decimal `json:"amount"`
	TotalSpent     decimal.Decimal `json:"total_spent"`
	Available      decimal.Decimal `json:"available"`
	PendingCount   int64           `json:"pending_count"`
	ProcessedCount int64           `json:"processed_count"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type reloadResponse struct {
	ID            uuid.UUID       `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Notes         string          `json:"notes,omitempty"`
	PreviousTotal decimal.Decimal `json:"previous_total"`
	NewTotal      decimal.Decimal `json:"new_total"`
	CreatedAt     time.Time       `json:"created_at"`
}

type reloadResultResponse struct {
	PreviousTotal decimal.Decimal `json:"previous_total"`
	NewTotal      decimal.Decimal `json:"new_total"`
	Reload        reloadResponse  `json:"reload"`
}

type statsResponse struct {
	TotalSpent     decimal.Decimal `json:"total_spent"`
	PendingCount   int64           `json:"pending_count"`
	ProcessedCount int64           `json:"processed_count"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Consistent     *bool           `json:"consistent,omitempty"`
}

func toBudgetResponse(v *ledger.BudgetView) budgetResponse {
	return budgetResponse{
		Amount:         v.Amount,
		TotalSpent:     v.TotalSpent,
		Available:      v.Available,
		PendingCount:   v.PendingCount,
		ProcessedCount: v.ProcessedCount,
		UpdatedAt:      v.UpdatedAt,
	}
}

func toReloadResponse(r *ledger.Reload) reloadResponse {
	return reloadResponse{
		ID:            r.ID,
		Amount:        r.Amount,
		Notes:         r.Notes,
		PreviousTotal: r.PreviousTotal,
		NewTotal:      r.NewTotal,
		CreatedAt:     r.CreatedAt,
	}
}
