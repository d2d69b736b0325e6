package view

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const dbTimeout = 5 * time.Second

var printer = message.NewPrinter(language.MustParse("es-CO"))

// FormatMoney renders an amount in Colombian pesos, e.g. "$ 1.234.567" or
// "$ 12.345,50" when there are cents.
func FormatMoney(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}

	d = d.Round(2)
	whole := d.Truncate(0)
	out := sign + "$ " + printer.Sprintf("%d", whole.IntPart())

	if cents := d.Sub(whole).Shift(2).IntPart(); cents != 0 {
		out += "," + strings.TrimPrefix(decimal.NewFromInt(100+cents).String(), "1")
	}

	return out
}

// FormatDate formats a time.Time into YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}

// DbCtx returns a context with a standard timeout for database operations.
func DbCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), dbTimeout)
}
