package ledger

import (
	"context"
	"fmt"
)

// EnsureStats returns the aggregate summary, computing and persisting it
// from the ledger the first time. Once the row exists the call is read-only.
func (s *Service) EnsureStats(ctx context.Context) (*Summary, error) {
	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting stats: %w", err)
	}

	if stats != nil {
		return stats, nil
	}

	err = s.withTx(ctx, "bootstrap_stats", func(tx Tx) error {
		st, err := tx.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		// Another client won the race between our read and this transaction.
		if st != nil {
			stats = st
			return nil
		}

		agg, err := tx.Aggregate(ctx)
		if err != nil {
			return fmt.Errorf("aggregating payments: %w", err)
		}

		summary := agg.Summary()
		if err := tx.PutStats(ctx, &summary); err != nil {
			return fmt.Errorf("creating stats: %w", err)
		}

		stats = &summary

		return nil
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// Rescan computes the summary from the payments without touching the
// stored aggregate. It is the reference the stored summary must match.
func (s *Service) Rescan(ctx context.Context) (*Summary, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	agg, err := tx.Aggregate(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregating payments: %w", err)
	}

	summary := agg.Summary()

	return &summary, nil
}

// loadStats reads the summary inside tx. A missing summary is bootstrapped
// from the same snapshot, so the caller's write creates it atomically with
// the mutation.
func loadStats(ctx context.Context, tx Tx) (*Summary, error) {
	stats, err := tx.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting stats: %w", err)
	}

	if stats != nil {
		return stats, nil
	}

	agg, err := tx.Aggregate(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregating payments: %w", err)
	}

	summary := agg.Summary()

	return &summary, nil
}
