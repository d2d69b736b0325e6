package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/farmabudget/internal/catalog"
	"github.com/MrJamesThe3rd/farmabudget/internal/ledger"
)

type paymentResponse struct {
	ID          uuid.UUID       `json:"id"`
	Pharmacy    string          `json:"pharmacy"`
	Product     catalog.Product `json:"product"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Date        string          `json:"date"`
	Status      ledger.Status   `json:"status"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   *time.Time      `json:"updated_at,omitempty"`
}

type paginationResponse struct {
	Total      int64  `json:"total"`
	PageSize   int    `json:"page_size"`
	HasNext    bool   `json:"has_next"`
	LastCursor string `json:"last_cursor,omitempty"`
}

type totalsResponse struct {
	TotalSpent     decimal.Decimal `json:"total_spent"`
	PendingCount   int64           `json:"pending_count"`
	ProcessedCount int64           `json:"processed_count"`
}

type pageResponse struct {
	Payments   []paymentResponse  `json:"payments"`
	Pagination paginationResponse `json:"pagination"`
	Totals     totalsResponse     `json:"totals"`
}

type statusResponse struct {
	ID     uuid.UUID     `json:"id"`
	Status ledger.Status `json:"status"`
}

type productResponse struct {
	Key   catalog.Product `json:"key"`
	Name  string          `json:"name"`
	Icon  string          `json:"icon"`
	Color string          `json:"color"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	Available string `json:"available,omitempty"`
	Requested string `json:"requested,omitempty"`
}

func toResponse(p *ledger.Payment) paymentResponse {
	return paymentResponse{
		ID:          p.ID,
		Pharmacy:    p.Pharmacy,
		Product:     p.Product,
		ProductName: p.Product.Name(),
		Quantity:    p.Quantity,
		UnitPrice:   p.UnitPrice,
		TotalAmount: p.TotalAmount,
		Date:        p.Date.Format(time.DateOnly),
		Status:      p.Status,
		Notes:       p.Notes,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toPageResponse(page *ledger.PaymentPage) pageResponse {
	payments := make([]paymentResponse, len(page.Payments))
	for i, p := range page.Payments {
		payments[i] = toResponse(p)
	}

	return pageResponse{
		Payments: payments,
		Pagination: paginationResponse{
			Total:      page.Pagination.Total,
			PageSize:   page.Pagination.PageSize,
			HasNext:    page.Pagination.HasNext,
			LastCursor: page.Pagination.LastCursor,
		},
		Totals: totalsResponse{
			TotalSpent:     page.Totals.TotalSpent,
			PendingCount:   page.Totals.PendingCount,
			ProcessedCount: page.Totals.ProcessedCount,
		},
	}
}

func toProductList(entries []catalog.Entry) []productResponse {
	resp := make([]productResponse, len(entries))
	for i, e := range entries {
		resp[i] = productResponse{Key: e.Key, Name: e.Name, Icon: e.Icon, Color: e.Color}
	}

	return resp
}
