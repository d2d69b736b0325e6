package view

import (
	"time"
)

// RecentMonths returns the n months ending with now's month, newest first,
// formatted as YYYY-MM.
func RecentMonths(now time.Time, n int) []string {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	months := make([]string, n)
	for i := range n {
		months[i] = first.AddDate(0, -i, 0).Format("2006-01")
	}

	return months
}

// MonthLabel renders a YYYY-MM value for display, or "Todos" when empty.
func MonthLabel(month string) string {
	if month == "" {
		return "Todos"
	}

	t, err := time.Parse("2006-01", month)
	if err != nil {
		return month
	}

	return monthNames[t.Month()-1] + " " + t.Format("2006")
}

var monthNames = []string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}
