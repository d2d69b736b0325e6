// Package backend builds the ledger service for the configured data backend.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrJamesThe3rd/farmabudget/internal/config"
	"github.com/MrJamesThe3rd/farmabudget/internal/database"
	"github.com/MrJamesThe3rd/farmabudget/internal/events"
	"github.com/MrJamesThe3rd/farmabudget/internal/events/amqp"
	"github.com/MrJamesThe3rd/farmabudget/internal/ledger"
	"github.com/MrJamesThe3rd/farmabudget/internal/ledger/memstore"
	"github.com/MrJamesThe3rd/farmabudget/internal/ledger/store"
)

// Backend owns the resources behind a ledger.Service.
type Backend struct {
	Service *ledger.Service
	closers []func() error
}

// Open connects the repository and publisher named by cfg. Postgres schemas
// are migrated before the service is returned.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	b := &Backend{}

	repo, err := b.repository(ctx, cfg)
	if err != nil {
		b.Close()
		return nil, err
	}

	pub, err := b.publisher(cfg)
	if err != nil {
		b.Close()
		return nil, err
	}

	b.Service = ledger.NewService(repo, ledger.Options{
		FallbackBudget: cfg.Ledger.DefaultBudget,
		PageSize:       cfg.Ledger.PageSize,
		MaxAttempts:    cfg.Ledger.MaxAttempts,
		Publisher:      pub,
	})

	return b, nil
}

func (b *Backend) repository(ctx context.Context, cfg *config.Config) (ledger.Repository, error) {
	switch cfg.DB.Backend {
	case config.BackendMemory:
		slog.Warn("using in-memory ledger, data is lost on exit")
		return memstore.New(), nil
	case config.BackendPostgres:
		db, err := database.New(ctx, cfg.ConnectionString())
		if err != nil {
			return nil, err
		}

		b.closers = append(b.closers, db.Close)

		if err := database.Migrate(db); err != nil {
			return nil, fmt.Errorf("migrating database: %w", err)
		}

		return store.New(db), nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.DB.Backend)
	}
}

func (b *Backend) publisher(cfg *config.Config) (events.Publisher, error) {
	if cfg.AMQP.URL == "" {
		return events.Log{}, nil
	}

	pub, err := amqp.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	if err != nil {
		return nil, fmt.Errorf("connecting to amqp: %w", err)
	}

	b.closers = append(b.closers, pub.Close)

	return pub, nil
}

// Close releases resources in reverse order of acquisition.
func (b *Backend) Close() error {
	var errs []error

	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}

	b.closers = nil

	return errors.Join(errs...)
}
