package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/farmabudget/internal/events"
	"github.com/MrJamesThe3rd/farmabudget/internal/metrics"
)

const (
	DefaultPageSize    = 10
	MaxPageSize        = 100
	DefaultMaxAttempts = 5
)

// Options tunes a Service. Zero values fall back to the defaults above.
type Options struct {
	// FallbackBudget is used while the budget singleton does not exist yet.
	FallbackBudget decimal.Decimal
	PageSize       int
	MaxAttempts    int
	Publisher      events.Publisher
}

// Service is the only writer of payments, stats, budget and reloads.
type Service struct {
	repo        Repository
	fallback    decimal.Decimal
	pageSize    int
	maxAttempts int
	publisher   events.Publisher
}

func NewService(repo Repository, opts Options) *Service {
	s := &Service{
		repo:        repo,
		fallback:    opts.FallbackBudget,
		pageSize:    opts.PageSize,
		maxAttempts: opts.MaxAttempts,
		publisher:   opts.Publisher,
	}

	if s.pageSize <= 0 || s.pageSize > MaxPageSize {
		s.pageSize = DefaultPageSize
	}

	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxAttempts
	}

	if s.publisher == nil {
		s.publisher = events.Nop{}
	}

	return s
}

// Create admits a payment if it fits in the available budget.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Payment, error) {
	p, err := params.payment()
	if err != nil {
		return nil, err
	}

	p.ID = uuid.New()

	err = s.withTx(ctx, "create_payment", func(tx Tx) error {
		budget, err := s.loadBudget(ctx, tx)
		if err != nil {
			return err
		}

		stats, err := loadStats(ctx, tx)
		if err != nil {
			return err
		}

		available := budget.Available(stats.TotalSpent)
		if p.TotalAmount.GreaterThan(available) {
			return &InsufficientBudgetError{Available: available, Requested: p.TotalAmount}
		}

		if err := tx.InsertPayment(ctx, p); err != nil {
			return fmt.Errorf("inserting payment: %w", err)
		}

		stats.add(p)

		if err := tx.PutStats(ctx, stats); err != nil {
			return fmt.Errorf("writing stats: %w", err)
		}

		return nil
	})
	if err != nil {
		var ibe *InsufficientBudgetError
		if errors.As(err, &ibe) {
			metrics.Admissions.WithLabelValues("rejected").Inc()
			slog.InfoContext(ctx, "payment rejected",
				"available", ibe.Available.String(), "requested", ibe.Requested.String())
		}

		return nil, err
	}

	metrics.Admissions.WithLabelValues("admitted").Inc()
	s.publish(ctx, events.PaymentCreated, p.ID.String(), map[string]any{
		"pharmacy":     p.Pharmacy,
		"product":      p.Product,
		"total_amount": p.TotalAmount.String(),
		"status":       p.Status,
	})

	return p, nil
}

// Delete removes a payment and releases its amount from the total spent.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	var deleted *Payment

	err := s.withTx(ctx, "delete_payment", func(tx Tx) error {
		p, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}

		// Stats are loaded before the delete so a bootstrap scan still sees the row.
		stats, err := loadStats(ctx, tx)
		if err != nil {
			return err
		}

		if err := tx.DeletePayment(ctx, id); err != nil {
			return fmt.Errorf("deleting payment: %w", err)
		}

		stats.remove(p)

		if err := tx.PutStats(ctx, stats); err != nil {
			return fmt.Errorf("writing stats: %w", err)
		}

		deleted = p

		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.PaymentDeleted, id.String(), map[string]any{
		"total_amount": deleted.TotalAmount.String(),
		"status":       deleted.Status,
	})

	return nil
}

// ToggleStatus flips a payment between pending and processed.
func (s *Service) ToggleStatus(ctx context.Context, id uuid.UUID) (Status, error) {
	var next Status

	err := s.withTx(ctx, "toggle_status", func(tx Tx) error {
		p, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}

		stats, err := loadStats(ctx, tx)
		if err != nil {
			return err
		}

		next = p.Status.Toggle()

		if err := tx.UpdatePaymentStatus(ctx, id, next); err != nil {
			return fmt.Errorf("updating status: %w", err)
		}

		stats.move(p.Status, next)

		if err := tx.PutStats(ctx, stats); err != nil {
			return fmt.Errorf("writing stats: %w", err)
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	s.publish(ctx, events.PaymentStatusToggled, id.String(), map[string]any{"status": next})

	return next, nil
}

// ReloadBudget raises the ceiling by params.Amount and records an audit entry.
// The amount is not checked for sign here; callers validate it.
func (s *Service) ReloadBudget(ctx context.Context, params ReloadParams) (*ReloadResult, error) {
	var result *ReloadResult

	err := s.withTx(ctx, "reload_budget", func(tx Tx) error {
		budget, err := s.loadBudget(ctx, tx)
		if err != nil {
			return err
		}

		previous := budget.Amount
		budget.Amount = previous.Add(params.Amount)

		if err := tx.PutBudget(ctx, budget); err != nil {
			return fmt.Errorf("writing budget: %w", err)
		}

		reload := &Reload{
			ID:            uuid.New(),
			Amount:        params.Amount,
			Notes:         strings.TrimSpace(params.Notes),
			PreviousTotal: previous,
			NewTotal:      budget.Amount,
		}
		if err := tx.InsertReload(ctx, reload); err != nil {
			return fmt.Errorf("recording reload: %w", err)
		}

		result = &ReloadResult{PreviousTotal: previous, NewTotal: budget.Amount, Reload: reload}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.BudgetReloaded, result.Reload.ID.String(), map[string]any{
		"amount":         params.Amount.String(),
		"previous_total": result.PreviousTotal.String(),
		"new_total":      result.NewTotal.String(),
	})

	return result, nil
}

// FetchBudget returns the budget with the current spend, creating the
// budget from the fallback amount on first use.
func (s *Service) FetchBudget(ctx context.Context) (*BudgetView, error) {
	budget, err := s.repo.GetBudget(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting budget: %w", err)
	}

	if budget == nil {
		if budget, err = s.initBudget(ctx); err != nil {
			return nil, err
		}
	}

	stats, err := s.EnsureStats(ctx)
	if err != nil {
		return nil, err
	}

	return &BudgetView{
		Amount:         budget.Amount,
		TotalSpent:     stats.TotalSpent,
		Available:      decimal.Max(budget.Available(stats.TotalSpent), decimal.Zero),
		PendingCount:   stats.PendingCount,
		ProcessedCount: stats.ProcessedCount,
		UpdatedAt:      budget.UpdatedAt,
	}, nil
}

func (s *Service) initBudget(ctx context.Context) (*Budget, error) {
	var budget *Budget

	err := s.withTx(ctx, "init_budget", func(tx Tx) error {
		b, err := tx.GetBudget(ctx)
		if err != nil {
			return fmt.Errorf("getting budget: %w", err)
		}

		if b == nil {
			b = &Budget{Amount: s.fallback}
			if err := tx.PutBudget(ctx, b); err != nil {
				return fmt.Errorf("creating budget: %w", err)
			}
		}

		budget = b

		return nil
	})
	if err != nil {
		return nil, err
	}

	return budget, nil
}

// ListReloads returns the most recent budget reloads, newest first.
func (s *Service) ListReloads(ctx context.Context, limit int) ([]*Reload, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = s.pageSize
	}

	return s.repo.ListReloads(ctx, limit)
}

// loadBudget reads the budget inside tx, standing in the fallback amount
// when the singleton has never been written.
func (s *Service) loadBudget(ctx context.Context, tx Tx) (*Budget, error) {
	b, err := tx.GetBudget(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting budget: %w", err)
	}

	if b == nil {
		b = &Budget{Amount: s.fallback}
	}

	return b, nil
}

func (s *Service) publish(ctx context.Context, typ events.Type, subject string, data map[string]any) {
	e := events.Event{Type: typ, Subject: subject, Data: data, OccurredAt: time.Now().UTC()}
	if err := s.publisher.Publish(ctx, e); err != nil {
		slog.WarnContext(ctx, "failed to publish ledger event", "type", typ, "subject", subject, "error", err)
	}
}
