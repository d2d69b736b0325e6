package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/farmabudget/internal/catalog"
	"github.com/MrJamesThe3rd/farmabudget/internal/events"
	"github.com/MrJamesThe3rd/farmabudget/internal/ledger"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func validParams() ledger.CreateParams {
	return ledger.CreateParams{
		Pharmacy:  "Droguería Central",
		Product:   catalog.Multidol400,
		Quantity:  3,
		UnitPrice: dec(100),
		Date:      time.Date(2024, 3, 10, 15, 4, 0, 0, time.UTC),
	}
}

func TestService_Create(t *testing.T) {
	type testCase struct {
		name      string
		params    ledger.CreateParams
		setupMock func(repo *ledger.MockRepository, tx *ledger.MockTx, pub *events.MockPublisher)
		wantErr   error
	}

	tests := []testCase{
		{
			name:   "Success",
			params: validParams(),
			setupMock: func(repo *ledger.MockRepository, tx *ledger.MockTx, pub *events.MockPublisher) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().GetBudget(gomock.Any()).Return(&ledger.Budget{Amount: dec(1000), Version: 2}, nil)
				tx.EXPECT().GetStats(gomock.Any()).Return(&ledger.Summary{TotalSpent: dec(200), PendingCount: 1, Version: 4}, nil)
				tx.EXPECT().InsertPayment(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, p *ledger.Payment) error {
						assert.NotEqual(t, uuid.Nil, p.ID)
						assert.True(t, p.TotalAmount.Equal(dec(300)))
						assert.Equal(t, "droguería central", p.PharmacyKey)
						assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), p.Date)
						assert.Equal(t, ledger.StatusPending, p.Status)

						return nil
					})
				tx.EXPECT().PutStats(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, s *ledger.Summary) error {
						assert.True(t, s.TotalSpent.Equal(dec(500)))
						assert.Equal(t, int64(2), s.PendingCount)
						assert.Equal(t, int64(4), s.Version)

						return nil
					})
				tx.EXPECT().Commit().Return(nil)
				pub.EXPECT().Publish(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, e events.Event) error {
						assert.Equal(t, events.PaymentCreated, e.Type)
						return nil
					})
			},
		},
		{
			name:   "InsufficientBudget",
			params: validParams(),
			setupMock: func(repo *ledger.MockRepository, tx *ledger.MockTx, _ *events.MockPublisher) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().GetBudget(gomock.Any()).Return(&ledger.Budget{Amount: dec(1000), Version: 1}, nil)
				tx.EXPECT().GetStats(gomock.Any()).Return(&ledger.Summary{TotalSpent: dec(900), Version: 1}, nil)
			},
			wantErr: ledger.ErrInsufficientBudget,
		},
		{
			name:   "FallbackBudgetWhenAbsent",
			params: validParams(),
			setupMock: func(repo *ledger.MockRepository, tx *ledger.MockTx, pub *events.MockPublisher) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().GetBudget(gomock.Any()).Return(nil, nil)
				tx.EXPECT().GetStats(gomock.Any()).Return(&ledger.Summary{Version: 1}, nil)
				tx.EXPECT().InsertPayment(gomock.Any(), gomock.Any()).Return(nil)
				tx.EXPECT().PutStats(gomock.Any(), gomock.Any()).Return(nil)
				tx.EXPECT().Commit().Return(nil)
				pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
			},
		},
		{
			name: "ValidationBeforeTransaction",
			params: ledger.CreateParams{
				Pharmacy:  "  ",
				Product:   catalog.Descongel,
				Quantity:  1,
				UnitPrice: dec(1),
				Date:      time.Now(),
			},
			wantErr: ledger.ErrValidation,
		},
		{
			name: "UnknownProduct",
			params: ledger.CreateParams{
				Pharmacy:  "X",
				Product:   "aspirina",
				Quantity:  1,
				UnitPrice: dec(1),
				Date:      time.Now(),
			},
			wantErr: ledger.ErrValidation,
		},
		{
			name:   "PublishFailureDoesNotFailCreate",
			params: validParams(),
			setupMock: func(repo *ledger.MockRepository, tx *ledger.MockTx, pub *events.MockPublisher) {
				repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
				tx.EXPECT().GetBudget(gomock.Any()).Return(&ledger.Budget{Amount: dec(1000), Version: 1}, nil)
				tx.EXPECT().GetStats(gomock.Any()).Return(&ledger.Summary{Version: 1}, nil)
				tx.EXPECT().InsertPayment(gomock.Any(), gomock.Any()).Return(nil)
				tx.EXPECT().PutStats(gomock.Any(), gomock.Any()).Return(nil)
				tx.EXPECT().Commit().Return(nil)
				pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := ledger.NewMockRepository(ctrl)
			tx := ledger.NewMockTx(ctrl)
			pub := events.NewMockPublisher(ctrl)

			tx.EXPECT().Rollback().Return(nil).AnyTimes()

			if tt.setupMock != nil {
				tt.setupMock(repo, tx, pub)
			}

			svc := ledger.NewService(repo, ledger.Options{FallbackBudget: dec(5000), Publisher: pub})
			got, err := svc.Create(context.Background(), tt.params)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)

				return
			}

			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, got.ID)
		})
	}
}

func TestService_RetriesOnConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := ledger.NewMockRepository(ctrl)
	tx := ledger.NewMockTx(ctrl)

	repo.EXPECT().Begin(gomock.Any()).Return(tx, nil).Times(2)
	tx.EXPECT().Rollback().Return(nil).AnyTimes()
	tx.EXPECT().GetBudget(gomock.Any()).Return(&ledger.Budget{Amount: dec(1000), Version: 1}, nil).Times(2)
	tx.EXPECT().GetStats(gomock.Any()).Return(&ledger.Summary{Version: 1}, nil).Times(2)
	tx.EXPECT().InsertPayment(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	tx.EXPECT().PutStats(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	gomock.InOrder(
		tx.EXPECT().Commit().Return(ledger.ErrConflict),
		tx.EXPECT().Commit().Return(nil),
	)

	svc := ledger.NewService(repo, ledger.Options{})

	got, err := svc.Create(context.Background(), validParams())
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestService_GivesUpAfterMaxAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := ledger.NewMockRepository(ctrl)
	tx := ledger.NewMockTx(ctrl)

	repo.EXPECT().Begin(gomock.Any()).Return(tx, nil).Times(3)
	tx.EXPECT().Rollback().Return(nil).AnyTimes()
	tx.EXPECT().GetBudget(gomock.Any()).Return(&ledger.Budget{Amount: dec(1000), Version: 1}, nil).Times(3)
	tx.EXPECT().PutBudget(gomock.Any(), gomock.Any()).Return(ledger.ErrConflict).Times(3)

	svc := ledger.NewService(repo, ledger.Options{MaxAttempts: 3})

	_, err := svc.ReloadBudget(context.Background(), ledger.ReloadParams{Amount: dec(10)})
	require.ErrorIs(t, err, ledger.ErrConflict)
	assert.Contains(t, err.Error(), "gave up after 3 attempts")
}

func TestService_OtherErrorsAreNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := ledger.NewMockRepository(ctrl)
	tx := ledger.NewMockTx(ctrl)

	repo.EXPECT().Begin(gomock.Any()).Return(tx, nil).Times(1)
	tx.EXPECT().Rollback().Return(nil).AnyTimes()
	tx.EXPECT().GetPayment(gomock.Any(), gomock.Any()).Return(nil, ledger.ErrNotFound)

	svc := ledger.NewService(repo, ledger.Options{})

	err := svc.Delete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestService_EnsureStats(t *testing.T) {
	t.Run("ExistingSummaryIsReadOnly", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := ledger.NewMockRepository(ctrl)
		repo.EXPECT().GetStats(gomock.Any()).
			Return(&ledger.Summary{TotalSpent: dec(40), PendingCount: 2, Version: 7}, nil).Times(2)

		svc := ledger.NewService(repo, ledger.Options{})

		first, err := svc.EnsureStats(context.Background())
		require.NoError(t, err)

		second, err := svc.EnsureStats(context.Background())
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})

	t.Run("BootstrapsFromAggregate", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := ledger.NewMockRepository(ctrl)
		tx := ledger.NewMockTx(ctrl)

		repo.EXPECT().GetStats(gomock.Any()).Return(nil, nil)
		repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
		tx.EXPECT().Rollback().Return(nil).AnyTimes()
		tx.EXPECT().GetStats(gomock.Any()).Return(nil, nil)
		tx.EXPECT().Aggregate(gomock.Any()).Return(&ledger.Aggregate{
			TotalAmount:  decimal.Zero,
			LegacyAmount: dec(700),
			Pending:      2,
			Processed:    1,
		}, nil)
		tx.EXPECT().PutStats(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, s *ledger.Summary) error {
				assert.Equal(t, int64(0), s.Version)
				s.Version = 1

				return nil
			})
		tx.EXPECT().Commit().Return(nil)

		svc := ledger.NewService(repo, ledger.Options{})

		got, err := svc.EnsureStats(context.Background())
		require.NoError(t, err)
		assert.True(t, got.TotalSpent.Equal(dec(700)), "legacy amounts are used when totals are zero")
		assert.Equal(t, int64(2), got.PendingCount)
		assert.Equal(t, int64(1), got.ProcessedCount)
	})

	t.Run("LosesBootstrapRace", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := ledger.NewMockRepository(ctrl)
		tx := ledger.NewMockTx(ctrl)

		winner := &ledger.Summary{TotalSpent: dec(5), PendingCount: 1, Version: 1}

		repo.EXPECT().GetStats(gomock.Any()).Return(nil, nil)
		repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
		tx.EXPECT().Rollback().Return(nil).AnyTimes()
		tx.EXPECT().GetStats(gomock.Any()).Return(winner, nil)
		tx.EXPECT().Commit().Return(nil)

		svc := ledger.NewService(repo, ledger.Options{})

		got, err := svc.EnsureStats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, winner, got)
	})
}

func TestService_ToggleStatus(t *testing.T) {
	id := uuid.New()

	type testCase struct {
		name          string
		current       ledger.Status
		stats         ledger.Summary
		wantNext      ledger.Status
		wantPending   int64
		wantProcessed int64
	}

	tests := []testCase{
		{
			name:          "PendingToProcessed",
			current:       ledger.StatusPending,
			stats:         ledger.Summary{PendingCount: 3, ProcessedCount: 1, Version: 1},
			wantNext:      ledger.StatusProcessed,
			wantPending:   2,
			wantProcessed: 2,
		},
		{
			name:          "ProcessedToPending",
			current:       ledger.StatusProcessed,
			stats:         ledger.Summary{PendingCount: 0, ProcessedCount: 1, Version: 1},
			wantNext:      ledger.StatusPending,
			wantPending:   1,
			wantProcessed: 0,
		},
		{
			name:          "FloorsAtZero",
			current:       ledger.StatusProcessed,
			stats:         ledger.Summary{Version: 1},
			wantNext:      ledger.StatusPending,
			wantPending:   1,
			wantProcessed: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := ledger.NewMockRepository(ctrl)
			tx := ledger.NewMockTx(ctrl)

			stats := tt.stats

			repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
			tx.EXPECT().Rollback().Return(nil).AnyTimes()
			tx.EXPECT().GetPayment(gomock.Any(), id).
				Return(&ledger.Payment{ID: id, Status: tt.current, TotalAmount: dec(10)}, nil)
			tx.EXPECT().GetStats(gomock.Any()).Return(&stats, nil)
			tx.EXPECT().UpdatePaymentStatus(gomock.Any(), id, tt.wantNext).Return(nil)
			tx.EXPECT().PutStats(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, s *ledger.Summary) error {
					assert.Equal(t, tt.wantPending, s.PendingCount)
					assert.Equal(t, tt.wantProcessed, s.ProcessedCount)
					assert.True(t, s.TotalSpent.Equal(tt.stats.TotalSpent))

					return nil
				})
			tx.EXPECT().Commit().Return(nil)

			svc := ledger.NewService(repo, ledger.Options{})

			next, err := svc.ToggleStatus(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, tt.wantNext, next)
		})
	}
}

func TestService_FetchUsesLookahead(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := ledger.NewMockRepository(ctrl)

	rows := []*ledger.Payment{
		{ID: uuid.New(), Date: time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)},
		{ID: uuid.New(), Date: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)},
		{ID: uuid.New(), Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	repo.EXPECT().ListPayments(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, q ledger.PageQuery) ([]*ledger.Payment, error) {
			assert.Equal(t, 3, q.Limit)
			assert.Nil(t, q.After)

			return rows, nil
		})
	repo.EXPECT().CountPayments(gomock.Any(), gomock.Any()).Return(int64(7), nil)
	repo.EXPECT().GetStats(gomock.Any()).Return(&ledger.Summary{TotalSpent: dec(70), PendingCount: 7, Version: 1}, nil)

	svc := ledger.NewService(repo, ledger.Options{})

	page, err := svc.Fetch(context.Background(), ledger.FetchParams{PageSize: 2})
	require.NoError(t, err)

	require.Len(t, page.Payments, 2)
	assert.True(t, page.Pagination.HasNext)
	assert.Equal(t, int64(7), page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.PageSize)
	assert.Equal(t, ledger.CursorFor(rows[1]).Encode(), page.Pagination.LastCursor)
	assert.True(t, page.Totals.TotalSpent.Equal(dec(70)))
}

func TestService_FetchBudgetCreatesFromFallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := ledger.NewMockRepository(ctrl)
	tx := ledger.NewMockTx(ctrl)

	repo.EXPECT().GetBudget(gomock.Any()).Return(nil, nil)
	repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	tx.EXPECT().Rollback().Return(nil).AnyTimes()
	tx.EXPECT().GetBudget(gomock.Any()).Return(nil, nil)
	tx.EXPECT().PutBudget(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, b *ledger.Budget) error {
			assert.True(t, b.Amount.Equal(dec(1000)))
			assert.Equal(t, int64(0), b.Version)

			return nil
		})
	tx.EXPECT().Commit().Return(nil)
	repo.EXPECT().GetStats(gomock.Any()).Return(&ledger.Summary{TotalSpent: dec(1500), Version: 1}, nil)

	svc := ledger.NewService(repo, ledger.Options{FallbackBudget: dec(1000)})

	view, err := svc.FetchBudget(context.Background())
	require.NoError(t, err)
	assert.True(t, view.Amount.Equal(dec(1000)))
	assert.True(t, view.Available.IsZero(), "available is floored for display")
}
