package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/MrJamesThe3rd/farmabudget/internal/metrics"
)

const retryBaseDelay = 5 * time.Millisecond

// withTx runs fn in a fresh transaction and commits it. When the store
// reports ErrConflict the whole unit is replayed, up to maxAttempts times.
// Any other error is returned as is.
func (s *Service) withTx(ctx context.Context, op string, fn func(tx Tx) error) error {
	var err error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if !errors.Is(err, ErrConflict) {
			return err
		}

		if attempt == s.maxAttempts {
			break
		}

		metrics.TxRetries.WithLabelValues(op).Inc()
		slog.DebugContext(ctx, "transaction conflict, retrying", "op", op, "attempt", attempt)

		if werr := sleep(ctx, backoff(attempt)); werr != nil {
			return werr
		}
	}

	metrics.TxExhausted.WithLabelValues(op).Inc()

	return fmt.Errorf("%s: gave up after %d attempts: %w", op, s.maxAttempts, err)
}

func (s *Service) runTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// backoff grows linearly with a random jitter so that racing writers
// spread out instead of colliding again.
func backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * retryBaseDelay
	return d + rand.N(d)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
