package ledger

import (
	"context"

	"github.com/google/uuid"
)

//go:generate mockgen -source=repository.go -destination=repository_mock.go -package=ledger

// Repository is the read side of the store plus the entry point for
// transactions. Only Service writes, and only through Tx.
type Repository interface {
	Begin(ctx context.Context) (Tx, error)

	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	ListPayments(ctx context.Context, q PageQuery) ([]*Payment, error)
	CountPayments(ctx context.Context, c Criteria) (int64, error)

	// GetStats and GetBudget return nil, nil when the singleton does not exist.
	GetStats(ctx context.Context) (*Summary, error)
	GetBudget(ctx context.Context) (*Budget, error)
	ListReloads(ctx context.Context, limit int) ([]*Reload, error)
}

// Tx is an isolated unit of work with snapshot reads. A store must return
// ErrConflict, from any method or from Commit, when a concurrent writer
// changed something the transaction read. Reads do not observe the
// transaction's own writes.
type Tx interface {
	GetBudget(ctx context.Context) (*Budget, error)
	// PutBudget inserts when b.Version is zero and otherwise updates only if
	// the stored version still equals b.Version.
	PutBudget(ctx context.Context, b *Budget) error

	GetStats(ctx context.Context) (*Summary, error)
	// PutStats follows the same versioning rules as PutBudget.
	PutStats(ctx context.Context, s *Summary) error
	Aggregate(ctx context.Context) (*Aggregate, error)

	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	InsertPayment(ctx context.Context, p *Payment) error
	DeletePayment(ctx context.Context, id uuid.UUID) error
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status Status) error

	InsertReload(ctx context.Context, r *Reload) error

	Commit() error
	Rollback() error
}
