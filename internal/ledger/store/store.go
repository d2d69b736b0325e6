package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrJamesThe3rd/farmabudget/internal/catalog"
	"github.com/MrJamesThe3rd/farmabudget/internal/ledger"
)

// SQLSTATE codes that mean a concurrent writer won and the work can be replayed.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Rows written before quantity, unit_price and total_amount existed only
// carry amount. They read back as a single unit at that price.
const selectPaymentColumns = `
	id, pharmacy, pharmacy_key, product,
	COALESCE(quantity, 1),
	COALESCE(unit_price, total_amount, amount, 0),
	COALESCE(total_amount, amount, 0),
	date, status, notes, created_at, updated_at
`

// scanPayment reads a payment row in selectPaymentColumns order.
func scanPayment(s scanner) (*ledger.Payment, error) {
	var p ledger.Payment

	var product, status string

	if err := s.Scan(
		&p.ID, &p.Pharmacy, &p.PharmacyKey, &product,
		&p.Quantity, &p.UnitPrice, &p.TotalAmount,
		&p.Date, &status, &p.Notes, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.Product = catalog.Product(product)

	p.Status = ledger.Status(status)
	if !p.Status.Valid() {
		p.Status = ledger.StatusPending
	}

	return &p, nil
}

// mapErr turns the Postgres errors that signal a lost race into ErrConflict.
func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
			return fmt.Errorf("%w: %s", ledger.ErrConflict, pgErr.Message)
		}
	}

	return err
}

func (s *Store) Begin(ctx context.Context) (ledger.Tx, error) {
	dbTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, mapErr(err)
	}

	return &tx{tx: dbTx}, nil
}

func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (*ledger.Payment, error) {
	return getPayment(ctx, s.db, id)
}

func (s *Store) GetStats(ctx context.Context) (*ledger.Summary, error) {
	return getStats(ctx, s.db)
}

func (s *Store) GetBudget(ctx context.Context) (*ledger.Budget, error) {
	return getBudget(ctx, s.db)
}

func (s *Store) ListPayments(ctx context.Context, q ledger.PageQuery) ([]*ledger.Payment, error) {
	where, args := whereClause(q.Criteria)

	if q.After != nil {
		where = append(where, fmt.Sprintf("(date, id) < ($%d, $%d)", len(args)+1, len(args)+2))
		args = append(args, q.After.Date, q.After.ID)
	}

	query := `SELECT ` + selectPaymentColumns + ` FROM payments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY date DESC, id DESC"

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	defer rows.Close()

	var payments []*ledger.Payment

	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning payment: %w", err)
		}

		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating payments: %w", err)
	}

	return payments, nil
}

func (s *Store) CountPayments(ctx context.Context, c ledger.Criteria) (int64, error) {
	where, args := whereClause(c)

	query := `SELECT COUNT(*) FROM payments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting payments: %w", err)
	}

	return n, nil
}

func (s *Store) ListReloads(ctx context.Context, limit int) ([]*ledger.Reload, error) {
	query := `
		SELECT id, amount, notes, previous_total, new_total, created_at
		FROM budget_reloads
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing reloads: %w", err)
	}
	defer rows.Close()

	var reloads []*ledger.Reload

	for rows.Next() {
		var r ledger.Reload
		if err := rows.Scan(&r.ID, &r.Amount, &r.Notes, &r.PreviousTotal, &r.NewTotal, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning reload: %w", err)
		}

		reloads = append(reloads, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reloads: %w", err)
	}

	return reloads, nil
}

// whereClause builds the conditions for c with positional arguments from $1.
func whereClause(c ledger.Criteria) ([]string, []any) {
	var (
		where []string
		args  []any
	)

	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if c.Product != nil {
		add("product = $%d", string(*c.Product))
	}

	if c.Status != nil {
		// Unknown stored statuses read back as pending.
		if *c.Status == ledger.StatusProcessed {
			add("status = $%d", string(ledger.StatusProcessed))
		} else {
			add("status <> $%d", string(ledger.StatusProcessed))
		}
	}

	if c.From != nil {
		add("date >= $%d", *c.From)
	}

	if c.To != nil {
		add("date < $%d", *c.To)
	}

	if c.PharmacyKey != "" {
		add("pharmacy_key = $%d", c.PharmacyKey)
	}

	return where, args
}

func getPayment(ctx context.Context, q querier, id uuid.UUID) (*ledger.Payment, error) {
	query := `SELECT ` + selectPaymentColumns + ` FROM payments WHERE id = $1`

	p, err := scanPayment(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}

		return nil, fmt.Errorf("getting payment: %w", mapErr(err))
	}

	return p, nil
}

func getStats(ctx context.Context, q querier) (*ledger.Summary, error) {
	query := `
		SELECT total_spent, pending_count, processed_count, updated_at, version
		FROM payment_stats
		WHERE id = 1
	`

	var st ledger.Summary

	err := q.QueryRowContext(ctx, query).Scan(
		&st.TotalSpent, &st.PendingCount, &st.ProcessedCount, &st.UpdatedAt, &st.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting stats: %w", mapErr(err))
	}

	return &st, nil
}

func getBudget(ctx context.Context, q querier) (*ledger.Budget, error) {
	query := `SELECT amount, updated_at, version FROM budget WHERE id = 1`

	var b ledger.Budget

	if err := q.QueryRowContext(ctx, query).Scan(&b.Amount, &b.UpdatedAt, &b.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting budget: %w", mapErr(err))
	}

	return &b, nil
}
