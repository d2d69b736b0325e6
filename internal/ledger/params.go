package ledger

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/farmabudget/internal/catalog"
)

// CreateParams is the typed payload for Service.Create.
type CreateParams struct {
	Pharmacy  string
	Product   catalog.Product
	Quantity  int
	UnitPrice decimal.Decimal
	// TotalAmount is optional. When set it must equal Quantity * UnitPrice.
	TotalAmount *decimal.Decimal
	Date        time.Time
	Status      Status
	Notes       string
}

// PaymentInput is the raw payload collected by a form, before numeric coercion.
type PaymentInput struct {
	Pharmacy    string
	Product     string
	Quantity    string
	UnitPrice   string
	TotalAmount string
	Date        string
	Status      string
	Notes       string
}

// Params coerces the raw form values into CreateParams.
func (in PaymentInput) Params() (CreateParams, error) {
	params := CreateParams{
		Pharmacy: in.Pharmacy,
		Product:  catalog.Product(strings.TrimSpace(in.Product)),
		Status:   Status(strings.TrimSpace(in.Status)),
		Notes:    in.Notes,
	}

	qty, err := strconv.Atoi(strings.TrimSpace(in.Quantity))
	if err != nil {
		return CreateParams{}, invalid("quantity", "must be a whole number")
	}

	params.Quantity = qty

	price, err := decimal.NewFromString(strings.TrimSpace(in.UnitPrice))
	if err != nil {
		return CreateParams{}, invalid("unit_price", "must be numeric")
	}

	params.UnitPrice = price

	if s := strings.TrimSpace(in.TotalAmount); s != "" {
		total, err := decimal.NewFromString(s)
		if err != nil {
			return CreateParams{}, invalid("total_amount", "must be numeric")
		}

		params.TotalAmount = &total
	}

	date, err := time.Parse(time.DateOnly, strings.TrimSpace(in.Date))
	if err != nil {
		return CreateParams{}, invalid("date", "must be YYYY-MM-DD")
	}

	params.Date = date

	return params, nil
}

// payment validates the params and builds the record to insert.
// Id and timestamps are assigned later.
func (p CreateParams) payment() (*Payment, error) {
	pharmacy := strings.TrimSpace(p.Pharmacy)
	if pharmacy == "" {
		return nil, invalid("pharmacy", "is required")
	}

	if !p.Product.Valid() {
		return nil, invalid("product", "unknown product "+strconv.Quote(string(p.Product)))
	}

	if p.Quantity <= 0 {
		return nil, invalid("quantity", "must be positive")
	}

	if p.UnitPrice.IsNegative() {
		return nil, invalid("unit_price", "must not be negative")
	}

	if p.Date.IsZero() {
		return nil, invalid("date", "is required")
	}

	total := p.UnitPrice.Mul(decimal.NewFromInt(int64(p.Quantity)))
	if p.TotalAmount != nil && !p.TotalAmount.Equal(total) {
		return nil, invalid("total_amount", "does not match quantity * unit_price")
	}

	status := p.Status
	if !status.Valid() {
		status = StatusPending
	}

	return &Payment{
		Pharmacy:    pharmacy,
		PharmacyKey: NormalizeKey(pharmacy),
		Product:     p.Product,
		Quantity:    p.Quantity,
		UnitPrice:   p.UnitPrice,
		TotalAmount: total,
		Date:        DateOnly(p.Date),
		Status:      status,
		Notes:       strings.TrimSpace(p.Notes),
	}, nil
}

// ReloadParams is the payload for Service.ReloadBudget.
type ReloadParams struct {
	Amount decimal.Decimal
	Notes  string
}
