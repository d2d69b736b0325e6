package ledger_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/farmabudget/internal/catalog"
	"github.com/MrJamesThe3rd/farmabudget/internal/ledger"
	"github.com/MrJamesThe3rd/farmabudget/internal/ledger/memstore"
)

func newMemService(budget int64) (*ledger.Service, *memstore.Store) {
	repo := memstore.New()
	svc := ledger.NewService(repo, ledger.Options{
		FallbackBudget: decimal.NewFromInt(budget),
		MaxAttempts:    50,
	})

	return svc, repo
}

func params(total int64, date time.Time) ledger.CreateParams {
	return ledger.CreateParams{
		Pharmacy:  "Droguería Central",
		Product:   catalog.Descongel,
		Quantity:  1,
		UnitPrice: decimal.NewFromInt(total),
		Date:      date,
	}
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}

	return t
}

func assertMatchesRescan(t *testing.T, svc *ledger.Service) {
	t.Helper()

	ctx := context.Background()

	stats, err := svc.EnsureStats(ctx)
	require.NoError(t, err)

	scan, err := svc.Rescan(ctx)
	require.NoError(t, err)

	assert.True(t, scan.TotalSpent.Equal(stats.TotalSpent), "total spent %s, rescan %s", stats.TotalSpent, scan.TotalSpent)
	assert.Equal(t, scan.PendingCount, stats.PendingCount)
	assert.Equal(t, scan.ProcessedCount, stats.ProcessedCount)
}

func TestEngine_AdmissionAgainstBudget(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemService(100000)

	_, err := svc.Create(ctx, params(40000, day("2024-03-10")))
	require.NoError(t, err)

	view, err := svc.FetchBudget(ctx)
	require.NoError(t, err)
	assert.True(t, view.Available.Equal(decimal.NewFromInt(60000)))

	_, err = svc.Create(ctx, params(70000, day("2024-03-11")))
	require.ErrorIs(t, err, ledger.ErrInsufficientBudget)

	var ibe *ledger.InsufficientBudgetError
	require.ErrorAs(t, err, &ibe)
	assert.True(t, ibe.Available.Equal(decimal.NewFromInt(60000)))
	assert.True(t, ibe.Requested.Equal(decimal.NewFromInt(70000)))

	stats, err := svc.EnsureStats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.TotalSpent.Equal(decimal.NewFromInt(40000)))
	assert.Equal(t, int64(1), stats.Count())
}

func TestEngine_ExactlyAvailableIsAdmitted(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemService(1000)

	_, err := svc.Create(ctx, params(1000, day("2024-01-01")))
	require.NoError(t, err)

	_, err = svc.Create(ctx, params(0, day("2024-01-02")))
	require.NoError(t, err, "a zero-priced payment still fits")

	_, err = svc.Create(ctx, params(1, day("2024-01-03")))
	assert.ErrorIs(t, err, ledger.ErrInsufficientBudget)
}

func TestEngine_ToggleStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemService(100000)

	p, err := svc.Create(ctx, params(100, day("2024-02-01")))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, p.Status)

	stats, err := svc.EnsureStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PendingCount)
	assert.Equal(t, int64(0), stats.ProcessedCount)

	next, err := svc.ToggleStatus(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusProcessed, next)

	stats, err = svc.EnsureStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.PendingCount)
	assert.Equal(t, int64(1), stats.ProcessedCount)
	assert.True(t, stats.TotalSpent.Equal(decimal.NewFromInt(100)))

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusProcessed, got.Status)
	assert.NotNil(t, got.UpdatedAt)

	next, err = svc.ToggleStatus(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, next)
}

func TestEngine_ReloadBudget(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemService(100000)

	res, err := svc.ReloadBudget(ctx, ledger.ReloadParams{Amount: decimal.NewFromInt(50000), Notes: " monthly top-up "})
	require.NoError(t, err)
	assert.True(t, res.PreviousTotal.Equal(decimal.NewFromInt(100000)))
	assert.True(t, res.NewTotal.Equal(decimal.NewFromInt(150000)))

	reloads, err := svc.ListReloads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reloads, 1)
	assert.True(t, reloads[0].Amount.Equal(decimal.NewFromInt(50000)))
	assert.True(t, reloads[0].PreviousTotal.Equal(decimal.NewFromInt(100000)))
	assert.True(t, reloads[0].NewTotal.Equal(decimal.NewFromInt(150000)))
	assert.Equal(t, "monthly top-up", reloads[0].Notes)
	assert.False(t, reloads[0].CreatedAt.IsZero())

	view, err := svc.FetchBudget(ctx)
	require.NoError(t, err)
	assert.True(t, view.Amount.Equal(decimal.NewFromInt(150000)))

	_, err = svc.ReloadBudget(ctx, ledger.ReloadParams{Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)

	reloads, err = svc.ListReloads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reloads, 2)
	assert.True(t, reloads[0].NewTotal.Equal(decimal.NewFromInt(150001)), "newest first")
}

func TestEngine_FetchByMonth(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemService(1000000)

	for _, d := range []string{"2024-02-29", "2024-03-01", "2024-03-15", "2024-03-31", "2024-04-01"} {
		_, err := svc.Create(ctx, params(10, day(d)))
		require.NoError(t, err)
	}

	page, err := svc.Fetch(ctx, ledger.FetchParams{Filter: ledger.Filter{Month: "2024-03"}})
	require.NoError(t, err)

	require.Len(t, page.Payments, 3)

	for _, p := range page.Payments {
		assert.Equal(t, time.March, p.Date.Month())
	}

	assert.Equal(t, int64(3), page.Pagination.Total)
	assert.Equal(t, int64(5), page.Totals.PendingCount, "totals ignore filters")
	assert.True(t, page.Payments[0].Date.Equal(day("2024-03-31")))
}

func TestEngine_DeleteMissing(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemService(1000)

	_, err := svc.Create(ctx, params(300, day("2024-01-01")))
	require.NoError(t, err)

	before, err := svc.EnsureStats(ctx)
	require.NoError(t, err)

	err = svc.Delete(ctx, uuid.New())
	require.ErrorIs(t, err, ledger.ErrNotFound)

	after, err := svc.EnsureStats(ctx)
	require.NoError(t, err)
	assert.True(t, before.TotalSpent.Equal(after.TotalSpent))
	assert.Equal(t, before.PendingCount, after.PendingCount)
	assert.Equal(t, before.Version, after.Version)

	_, err = svc.ToggleStatus(ctx, uuid.New())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestEngine_DeleteReleasesBudget(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemService(1000)

	p, err := svc.Create(ctx, params(800, day("2024-01-01")))
	require.NoError(t, err)

	_, err = svc.Create(ctx, params(500, day("2024-01-02")))
	require.ErrorIs(t, err, ledger.ErrInsufficientBudget)

	require.NoError(t, svc.Delete(ctx, p.ID))

	_, err = svc.Create(ctx, params(500, day("2024-01-02")))
	require.NoError(t, err)

	_, err = svc.Get(ctx, p.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestEngine_RandomOperationsMatchRescan(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemService(1_000_000)
	rng := rand.New(rand.NewPCG(7, 11))

	var ids []uuid.UUID

	for i := range 300 {
		switch op := rng.IntN(10); {
		case op < 5 || len(ids) == 0:
			p := ledger.CreateParams{
				Pharmacy:  fmt.Sprintf("Farmacia %d", rng.IntN(5)),
				Product:   catalog.All()[rng.IntN(3)].Key,
				Quantity:  1 + rng.IntN(4),
				UnitPrice: decimal.New(int64(rng.IntN(100000)), -2),
				Date:      day("2024-01-01").AddDate(0, 0, rng.IntN(120)),
				Status:    ledger.Statuses[rng.IntN(2)],
			}

			created, err := svc.Create(ctx, p)
			if err != nil {
				require.ErrorIs(t, err, ledger.ErrInsufficientBudget, "op %d", i)
				continue
			}

			ids = append(ids, created.ID)
		case op < 8:
			_, err := svc.ToggleStatus(ctx, ids[rng.IntN(len(ids))])
			require.NoError(t, err)
		default:
			k := rng.IntN(len(ids))
			require.NoError(t, svc.Delete(ctx, ids[k]))
			ids = append(ids[:k], ids[k+1:]...)
		}
	}

	assertMatchesRescan(t, svc)

	view, err := svc.FetchBudget(ctx)
	require.NoError(t, err)
	assert.False(t, view.Available.IsNegative())
}

func TestEngine_ConcurrentCreatesNeverOverspend(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemService(1000)

	// Each payment fits alone; together they exceed the budget.
	const workers = 8

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)

	for i := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := svc.Create(ctx, params(600, day("2024-05-01").AddDate(0, 0, i)))
			if err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()

				return
			}

			assert.ErrorIs(t, err, ledger.ErrInsufficientBudget)
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, admitted)

	stats, err := svc.EnsureStats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.TotalSpent.Equal(decimal.NewFromInt(600)))
	assertMatchesRescan(t, svc)
}

func TestEngine_ConcurrentMixedOperationsMatchRescan(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemService(10_000_000)

	seed := make([]uuid.UUID, 0, 20)

	for i := range 20 {
		p, err := svc.Create(ctx, params(int64(100+i), day("2024-06-01")))
		require.NoError(t, err)

		seed = append(seed, p.ID)
	}

	var wg sync.WaitGroup

	for w := range 6 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range 15 {
				switch (w + i) % 3 {
				case 0:
					_, err := svc.Create(ctx, params(50, day("2024-06-02")))
					assert.NoError(t, err)
				case 1:
					_, err := svc.ToggleStatus(ctx, seed[(w*7+i)%len(seed)])
					assert.NoError(t, err)
				default:
					_, err := svc.ReloadBudget(ctx, ledger.ReloadParams{Amount: decimal.NewFromInt(10)})
					assert.NoError(t, err)
				}
			}
		}()
	}

	wg.Wait()

	assertMatchesRescan(t, svc)

	reloads, err := svc.ListReloads(ctx, ledger.MaxPageSize)
	require.NoError(t, err)
	assert.Len(t, reloads, 30)

	view, err := svc.FetchBudget(ctx)
	require.NoError(t, err)
	assert.True(t, view.Amount.Equal(decimal.NewFromInt(10_000_300)))
}

func TestEngine_EnsureStatsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemService(1000)

	first, err := svc.EnsureStats(ctx)
	require.NoError(t, err)

	second, err := svc.EnsureStats(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Version, second.Version)
	assert.True(t, first.TotalSpent.Equal(second.TotalSpent))
	assert.True(t, first.TotalSpent.IsZero())
}

func TestEngine_ConcurrentBootstrap(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemService(1000)

	var wg sync.WaitGroup

	results := make([]*ledger.Summary, 10)

	for i := range results {
		wg.Add(1)

		go func() {
			defer wg.Done()

			st, err := svc.EnsureStats(ctx)
			assert.NoError(t, err)

			results[i] = st
		}()
	}

	wg.Wait()

	for _, st := range results {
		require.NotNil(t, st)
		assert.Equal(t, int64(1), st.Version, "the summary is written exactly once")
	}
}

func TestEngine_FloorsCorruptedCounters(t *testing.T) {
	ctx := context.Background()
	svc, repo := newMemService(1000)

	p, err := svc.Create(ctx, params(300, day("2024-01-01")))
	require.NoError(t, err)

	// Zero the summary behind the service's back.
	tx, err := repo.Begin(ctx)
	require.NoError(t, err)

	st, err := tx.GetStats(ctx)
	require.NoError(t, err)

	st.TotalSpent = decimal.Zero
	st.PendingCount = 0
	st.ProcessedCount = 0
	require.NoError(t, tx.PutStats(ctx, st))
	require.NoError(t, tx.Commit())

	next, err := svc.ToggleStatus(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusProcessed, next)

	stats, err := svc.EnsureStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.PendingCount)
	assert.Equal(t, int64(1), stats.ProcessedCount)

	require.NoError(t, svc.Delete(ctx, p.ID))

	stats, err = svc.EnsureStats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.TotalSpent.IsZero())
	assert.Equal(t, int64(0), stats.PendingCount)
	assert.Equal(t, int64(0), stats.ProcessedCount)
}

func TestEngine_Pagination(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemService(1000000)

	// Two payments share each date so the id tie-break is exercised.
	for i := range 10 {
		_, err := svc.Create(ctx, params(1, day("2024-01-01").AddDate(0, 0, i/2)))
		require.NoError(t, err)
	}

	var (
		seen   = map[uuid.UUID]bool{}
		cursor string
		pages  int
		prev   *ledger.Payment
	)

	for {
		page, err := svc.Fetch(ctx, ledger.FetchParams{PageSize: 4, Cursor: cursor})
		require.NoError(t, err)

		pages++

		assert.Equal(t, int64(10), page.Pagination.Total)

		for _, p := range page.Payments {
			assert.False(t, seen[p.ID], "payment repeated across pages")
			seen[p.ID] = true

			if prev != nil {
				assert.False(t, p.Date.After(prev.Date), "dates must not increase")
			}

			prev = p
		}

		if !page.Pagination.HasNext {
			assert.Len(t, page.Payments, 2)
			break
		}

		cursor = page.Pagination.LastCursor
	}

	assert.Equal(t, 3, pages)
	assert.Len(t, seen, 10)
}

func TestEngine_ExactPageBoundaryHasNoNext(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemService(1000)

	for i := range 4 {
		_, err := svc.Create(ctx, params(1, day("2024-01-01").AddDate(0, 0, i)))
		require.NoError(t, err)
	}

	page, err := svc.Fetch(ctx, ledger.FetchParams{PageSize: 4})
	require.NoError(t, err)
	assert.Len(t, page.Payments, 4)
	assert.False(t, page.Pagination.HasNext)

	empty, err := svc.Fetch(ctx, ledger.FetchParams{PageSize: 4, Cursor: page.Pagination.LastCursor})
	require.NoError(t, err)
	assert.Empty(t, empty.Payments)
	assert.Empty(t, empty.Pagination.LastCursor)
}

func TestEngine_FetchFilters(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemService(1000000)

	mk := func(pharmacy string, product catalog.Product, status ledger.Status) {
		t.Helper()

		_, err := svc.Create(ctx, ledger.CreateParams{
			Pharmacy:  pharmacy,
			Product:   product,
			Quantity:  1,
			UnitPrice: decimal.NewFromInt(10),
			Date:      day("2024-07-01"),
			Status:    status,
		})
		require.NoError(t, err)
	}

	mk("Farmacia Norte", catalog.Descongel, ledger.StatusPending)
	mk("farmacia norte ", catalog.Multidol400, ledger.StatusProcessed)
	mk("Farmacia Sur", catalog.Descongel, ledger.StatusProcessed)

	type testCase struct {
		name   string
		filter ledger.Filter
		want   int
	}

	tests := []testCase{
		{name: "NoFilter", filter: ledger.Filter{}, want: 3},
		{name: "Product", filter: ledger.Filter{Product: catalog.Descongel}, want: 2},
		{name: "Status", filter: ledger.Filter{Status: ledger.StatusProcessed}, want: 2},
		{name: "InvalidStatusIgnored", filter: ledger.Filter{Status: "archivado"}, want: 3},
		{name: "PharmacyNormalized", filter: ledger.Filter{Pharmacy: "  FARMACIA NORTE"}, want: 2},
		{name: "Combined", filter: ledger.Filter{Pharmacy: "farmacia norte", Status: ledger.StatusPending}, want: 1},
		{name: "OtherMonth", filter: ledger.Filter{Month: "2024-06"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.Fetch(ctx, ledger.FetchParams{Filter: tt.filter})
			require.NoError(t, err)

			assert.Len(t, page.Payments, tt.want)
			assert.Equal(t, int64(tt.want), page.Pagination.Total)
			assert.Equal(t, int64(3), page.Totals.PendingCount+page.Totals.ProcessedCount)
		})
	}

	_, err := svc.Fetch(ctx, ledger.FetchParams{Filter: ledger.Filter{Month: "marzo"}})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = svc.Fetch(ctx, ledger.FetchParams{Cursor: "not-a-cursor"})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}
