package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/farmabudget/internal/ledger"
)

// tx runs at SERIALIZABLE isolation. Postgres aborts whichever of two
// racing transactions would break serial order, and mapErr surfaces that
// as ErrConflict.
type tx struct {
	tx *sql.Tx
}

func (t *tx) Commit() error {
	return mapErr(t.tx.Commit())
}

func (t *tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}

	return err
}

func (t *tx) GetBudget(ctx context.Context) (*ledger.Budget, error) {
	return getBudget(ctx, t.tx)
}

func (t *tx) PutBudget(ctx context.Context, b *ledger.Budget) error {
	var row *sql.Row

	if b.Version == 0 {
		row = t.tx.QueryRowContext(ctx, `
			INSERT INTO budget (id, amount, version, updated_at)
			VALUES (1, $1, 1, NOW())
			ON CONFLICT (id) DO NOTHING
			RETURNING version, updated_at
		`, b.Amount)
	} else {
		row = t.tx.QueryRowContext(ctx, `
			UPDATE budget
			SET amount = $1, version = version + 1, updated_at = NOW()
			WHERE id = 1 AND version = $2
			RETURNING version, updated_at
		`, b.Amount, b.Version)
	}

	return scanVersion(row, &b.Version, &b.UpdatedAt)
}

func (t *tx) GetStats(ctx context.Context) (*ledger.Summary, error) {
	return getStats(ctx, t.tx)
}

func (t *tx) PutStats(ctx context.Context, s *ledger.Summary) error {
	var row *sql.Row

	if s.Version == 0 {
		row = t.tx.QueryRowContext(ctx, `
			INSERT INTO payment_stats (id, total_spent, pending_count, processed_count, version, updated_at)
			VALUES (1, $1, $2, $3, 1, NOW())
			ON CONFLICT (id) DO NOTHING
			RETURNING version, updated_at
		`, s.TotalSpent, s.PendingCount, s.ProcessedCount)
	} else {
		row = t.tx.QueryRowContext(ctx, `
			UPDATE payment_stats
			SET total_spent = $1, pending_count = $2, processed_count = $3,
				version = version + 1, updated_at = NOW()
			WHERE id = 1 AND version = $4
			RETURNING version, updated_at
		`, s.TotalSpent, s.PendingCount, s.ProcessedCount, s.Version)
	}

	return scanVersion(row, &s.Version, &s.UpdatedAt)
}

// scanVersion reads back a versioned singleton write. No row means the
// insert lost to a concurrent insert or the expected version is stale.
func scanVersion(row *sql.Row, version *int64, updatedAt any) error {
	if err := row.Scan(version, updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.ErrConflict
		}

		return mapErr(err)
	}

	return nil
}

func (t *tx) Aggregate(ctx context.Context) (*ledger.Aggregate, error) {
	query := `
		SELECT
			COALESCE(SUM(COALESCE(total_amount, amount)), 0),
			COALESCE(SUM(amount), 0),
			COUNT(*) FILTER (WHERE status <> $1),
			COUNT(*) FILTER (WHERE status = $1)
		FROM payments
	`

	var agg ledger.Aggregate

	err := t.tx.QueryRowContext(ctx, query, string(ledger.StatusProcessed)).Scan(
		&agg.TotalAmount, &agg.LegacyAmount, &agg.Pending, &agg.Processed,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating payments: %w", mapErr(err))
	}

	return &agg, nil
}

func (t *tx) GetPayment(ctx context.Context, id uuid.UUID) (*ledger.Payment, error) {
	return getPayment(ctx, t.tx, id)
}

// InsertPayment also fills the legacy amount column so older readers keep
// seeing the total.
func (t *tx) InsertPayment(ctx context.Context, p *ledger.Payment) error {
	query := `
		INSERT INTO payments (
			id, pharmacy, pharmacy_key, product, quantity, unit_price, total_amount, amount,
			date, status, notes, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8, $9, $10, NOW())
		RETURNING created_at
	`

	err := t.tx.QueryRowContext(ctx, query,
		p.ID,
		p.Pharmacy,
		p.PharmacyKey,
		string(p.Product),
		p.Quantity,
		p.UnitPrice,
		p.TotalAmount,
		p.Date,
		string(p.Status),
		p.Notes,
	).Scan(&p.CreatedAt)
	if err != nil {
		return mapErr(err)
	}

	return nil
}

func (t *tx) DeletePayment(ctx context.Context, id uuid.UUID) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return ledger.ErrNotFound
	}

	return nil
}

func (t *tx) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status ledger.Status) error {
	query := `
		UPDATE payments
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`

	res, err := t.tx.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return mapErr(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return ledger.ErrNotFound
	}

	return nil
}

func (t *tx) InsertReload(ctx context.Context, r *ledger.Reload) error {
	query := `
		INSERT INTO budget_reloads (id, amount, notes, previous_total, new_total, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`

	err := t.tx.QueryRowContext(ctx, query, r.ID, r.Amount, r.Notes, r.PreviousTotal, r.NewTotal).Scan(&r.CreatedAt)
	if err != nil {
		return mapErr(err)
	}

	return nil
}
