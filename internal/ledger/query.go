package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Get returns a single payment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

// Fetch returns one page of payments matching the filter, newest first,
// together with the filtered count and the global totals.
func (s *Service) Fetch(ctx context.Context, params FetchParams) (*PaymentPage, error) {
	size := params.PageSize
	if size <= 0 {
		size = s.pageSize
	}

	size = min(size, MaxPageSize)

	criteria, err := params.Filter.Criteria()
	if err != nil {
		return nil, err
	}

	var after *Cursor
	if params.Cursor != "" {
		if after, err = DecodeCursor(params.Cursor); err != nil {
			return nil, err
		}
	}

	var (
		rows  []*Payment
		total int64
		stats *Summary
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		// One extra row tells whether another page exists.
		rows, err = s.repo.ListPayments(gctx, PageQuery{Criteria: criteria, After: after, Limit: size + 1})
		if err != nil {
			return fmt.Errorf("listing payments: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		var err error

		total, err = s.repo.CountPayments(gctx, criteria)
		if err != nil {
			return fmt.Errorf("counting payments: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		var err error

		stats, err = s.EnsureStats(gctx)

		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	page := &PaymentPage{
		Pagination: Pagination{Total: total, PageSize: size},
		Totals: Totals{
			TotalSpent:     stats.TotalSpent,
			PendingCount:   stats.PendingCount,
			ProcessedCount: stats.ProcessedCount,
		},
	}

	if len(rows) > size {
		rows = rows[:size]
		page.Pagination.HasNext = true
	}

	if len(rows) > 0 {
		page.Pagination.LastCursor = CursorFor(rows[len(rows)-1]).Encode()
	}

	page.Payments = rows

	return page, nil
}
