package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Summary is the denormalized aggregate kept alongside the payments.
// It must always equal what Aggregate computes from a full rescan.
type Summary struct {
	TotalSpent     decimal.Decimal
	PendingCount   int64
	ProcessedCount int64
	UpdatedAt      time.Time
	// Version is the optimistic-concurrency token. Zero means the row does not exist yet.
	Version int64
}

// Count returns the number of live payments the summary accounts for.
func (s Summary) Count() int64 {
	return s.PendingCount + s.ProcessedCount
}

func (s *Summary) add(p *Payment) {
	s.TotalSpent = s.TotalSpent.Add(p.TotalAmount)
	s.bump(p.Status, 1)
}

func (s *Summary) remove(p *Payment) {
	s.TotalSpent = decimal.Max(s.TotalSpent.Sub(p.TotalAmount), decimal.Zero)
	s.bump(p.Status, -1)
}

func (s *Summary) move(from, to Status) {
	s.bump(from, -1)
	s.bump(to, 1)
}

// bump adjusts the counter for st, never below zero.
func (s *Summary) bump(st Status, delta int64) {
	switch st {
	case StatusProcessed:
		s.ProcessedCount = max(s.ProcessedCount+delta, 0)
	default:
		s.PendingCount = max(s.PendingCount+delta, 0)
	}
}

// Aggregate is the result of scanning the payments table.
type Aggregate struct {
	TotalAmount decimal.Decimal
	// LegacyAmount sums the pre-migration amount column.
	LegacyAmount decimal.Decimal
	Pending      int64
	Processed    int64
}

// Summary converts a scan into a fresh summary. Ledgers written before
// total_amount existed only carry the legacy amount, so a zero total falls
// back to it.
func (a Aggregate) Summary() Summary {
	total := a.TotalAmount
	if total.IsZero() {
		total = a.LegacyAmount
	}

	return Summary{
		TotalSpent:     total,
		PendingCount:   a.Pending,
		ProcessedCount: a.Processed,
	}
}

// Totals is the unconditional aggregate returned with every page.
type Totals struct {
	TotalSpent     decimal.Decimal
	PendingCount   int64
	ProcessedCount int64
}
