package assets

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/artha-erp/artha/internal/shared"
	"github.com/artha-erp/artha/internal/transactions"
)

type memoryRepo struct {
	assets    map[int64]Asset
	entries   []Entry
	posted    []transactions.Transaction
	nextAsset int64
	nextEntry int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{assets: map[int64]Asset{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	shadow := &memoryTx{repo: r, assets: map[int64]Asset{}}
	if err := fn(ctx, shadow); err != nil {
		return err
	}
	shadow.commit()
	return nil
}

func (r *memoryRepo) InsertAsset(_ context.Context, asset Asset) (Asset, error) {
	r.nextAsset++
	asset.ID = r.nextAsset
	r.assets[asset.ID] = asset
	return asset, nil
}

func (r *memoryRepo) GetAsset(_ context.Context, assetID int64) (Asset, error) {
	asset, ok := r.assets[assetID]
	if !ok {
		return Asset{}, ErrAssetNotFound
	}
	return asset, nil
}

func (r *memoryRepo) ListAssets(_ context.Context, activeOnly bool) ([]Asset, error) {
	var out []Asset
	for id := int64(1); id <= r.nextAsset; id++ {
		asset, ok := r.assets[id]
		if ok && (!activeOnly || asset.IsActive) {
			out = append(out, asset)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListEntries(_ context.Context, assetID int64) ([]Entry, error) {
	var out []Entry
	for _, e := range r.entries {
		if e.AssetID == assetID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memoryTx struct {
	repo    *memoryRepo
	assets  map[int64]Asset
	entries []Entry
	posted  []transactions.Transaction
}

func (t *memoryTx) commit() {
	for id, asset := range t.assets {
		t.repo.assets[id] = asset
	}
	t.repo.entries = append(t.repo.entries, t.entries...)
	t.repo.posted = append(t.repo.posted, t.posted...)
}

func (t *memoryTx) GetAssetForUpdate(ctx context.Context, assetID int64) (Asset, error) {
	return t.repo.GetAsset(ctx, assetID)
}

func (t *memoryTx) EntryExists(_ context.Context, assetID int64, period string) (bool, error) {
	for _, e := range t.repo.entries {
		if e.AssetID == assetID && e.Period == period {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) UpdateAccumulated(_ context.Context, assetID int64, accumulated decimal.Decimal) error {
	asset := t.repo.assets[assetID]
	asset.Accumulated = accumulated
	t.assets[assetID] = asset
	return nil
}

func (t *memoryTx) InsertEntry(_ context.Context, entry Entry) (Entry, error) {
	t.repo.nextEntry++
	entry.ID = t.repo.nextEntry
	t.entries = append(t.entries, entry)
	return entry, nil
}

func (t *memoryTx) InsertPostedTransaction(_ context.Context, txn transactions.Transaction) error {
	t.posted = append(t.posted, txn)
	return nil
}

type fakeJournals struct {
	inputs []transactions.CreateInput
}

func (f *fakeJournals) BuildPosted(_ context.Context, input transactions.CreateInput) (transactions.Transaction, error) {
	f.inputs = append(f.inputs, input)
	return transactions.Transaction{ID: uuid.New(), Status: transactions.StatusPosted, Bindings: input.Bindings}, nil
}

func newTestService(repo *memoryRepo, journals *fakeJournals) *Service {
	svc := NewService(repo, journals, nil, nil, Config{DepreciationTemplateID: 41})
	svc.WithNow(func() time.Time { return time.Date(2026, 5, 31, 12, 0, 0, 0, time.UTC) })
	return svc
}

func laptop(t *testing.T, svc *Service, method Method) Asset {
	t.Helper()
	asset, err := svc.Create(context.Background(), CreateInput{
		Code:       "FA-001",
		Name:       "Laptop",
		Cost:       decimal.NewFromInt(12000000),
		Residual:   decimal.Zero,
		Method:     method,
		LifeMonths: 12,
		AcquiredAt: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Accounts:   AccountMapping{ExpenseAccount: "6-6300", AccumulatedAccount: "1-1790"},
	})
	require.NoError(t, err)
	return asset
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &fakeJournals{})
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Method: "SUM_OF_YEARS", LifeMonths: 12, Cost: decimal.NewFromInt(100)})
	require.ErrorIs(t, err, ErrUnknownMethod)

	_, err = svc.Create(ctx, CreateInput{Method: MethodStraightLine, LifeMonths: 0, Cost: decimal.NewFromInt(100)})
	require.ErrorIs(t, err, ErrInvalidLife)

	_, err = svc.Create(ctx, CreateInput{Method: MethodStraightLine, LifeMonths: 12, Cost: decimal.NewFromInt(100), Residual: decimal.NewFromInt(200)})
	require.ErrorIs(t, err, ErrInvalidCost)
}

func TestGenerateStraightLine(t *testing.T) {
	repo := newMemoryRepo()
	journals := &fakeJournals{}
	svc := newTestService(repo, journals)
	ctx := context.Background()

	asset := laptop(t, svc, MethodStraightLine)
	entry, err := svc.Generate(ctx, asset.ID, "2026-01", 5)
	require.NoError(t, err)

	// 12,000,000 over 12 months.
	require.True(t, entry.Amount.Equal(decimal.NewFromInt(1000000)))
	require.NotNil(t, entry.TransactionID)
	require.Len(t, journals.inputs, 1)
	require.True(t, journals.inputs[0].Bindings["amount"].Equal(decimal.NewFromInt(1000000)))
	require.Equal(t, "6-6300", journals.inputs[0].AccountSlots["expense"])
	require.Equal(t, "1-1790", journals.inputs[0].AccountSlots["accumulated"])

	got, err := svc.Get(ctx, asset.ID)
	require.NoError(t, err)
	require.True(t, got.Accumulated.Equal(decimal.NewFromInt(1000000)))
}

func TestGenerateSamePeriodTwiceRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &fakeJournals{})
	ctx := context.Background()

	asset := laptop(t, svc, MethodStraightLine)
	_, err := svc.Generate(ctx, asset.ID, "2026-01", 5)
	require.NoError(t, err)

	_, err = svc.Generate(ctx, asset.ID, "2026-01", 5)
	require.ErrorIs(t, err, ErrAlreadyDepreciated)

	// The failed run changes nothing.
	got, _ := svc.Get(ctx, asset.ID)
	require.True(t, got.Accumulated.Equal(decimal.NewFromInt(1000000)))
}

func TestGenerateDecliningBalance(t *testing.T) {
	repo := newMemoryRepo()
	journals := &fakeJournals{}
	svc := newTestService(repo, journals)
	ctx := context.Background()

	asset := laptop(t, svc, MethodDecliningBalance)

	// Month one: 12,000,000 * 2/12 = 2,000,000.
	entry, err := svc.Generate(ctx, asset.ID, "2026-01", 5)
	require.NoError(t, err)
	require.True(t, entry.Amount.Equal(decimal.NewFromInt(2000000)), "got %s", entry.Amount)

	// Month two applies the rate to the reduced book value.
	entry, err = svc.Generate(ctx, asset.ID, "2026-02", 5)
	require.NoError(t, err)
	require.True(t, entry.Amount.Round(0).Equal(decimal.NewFromInt(1666667)), "got %s", entry.Amount)
}

func TestGenerateFloorsAtResidual(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &fakeJournals{})
	ctx := context.Background()

	asset, err := svc.Create(ctx, CreateInput{
		Code: "FA-002", Name: "Press",
		Cost:     decimal.NewFromInt(1000),
		Residual: decimal.NewFromInt(400),
		Method:   MethodStraightLine, LifeMonths: 4,
		AcquiredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// 600 depreciable over 4 months = 150 per period.
	for i, period := range []string{"2026-01", "2026-02", "2026-03", "2026-04"} {
		entry, err := svc.Generate(ctx, asset.ID, period, 1)
		require.NoError(t, err, "period %d", i)
		require.True(t, entry.Amount.Equal(decimal.NewFromInt(150)))
	}

	_, err = svc.Generate(ctx, asset.ID, "2026-05", 1)
	require.ErrorIs(t, err, ErrFullyDepreciated)

	got, _ := svc.Get(ctx, asset.ID)
	require.True(t, got.Accumulated.Equal(decimal.NewFromInt(600)))
}

func TestGenerateGuards(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &fakeJournals{})
	ctx := context.Background()

	asset := laptop(t, svc, MethodStraightLine)

	_, err := svc.Generate(ctx, asset.ID, "2026/01", 1)
	require.ErrorIs(t, err, shared.ErrInvalidPeriod)

	_, err = svc.Generate(ctx, asset.ID, "2025-12", 1)
	require.ErrorIs(t, err, ErrPeriodBeforeAcquisition)

	_, err = svc.Generate(ctx, 99, "2026-01", 1)
	require.ErrorIs(t, err, ErrAssetNotFound)
}

func TestGenerateAllSkipsCoveredAssets(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &fakeJournals{})
	ctx := context.Background()

	first := laptop(t, svc, MethodStraightLine)
	second, err := svc.Create(ctx, CreateInput{
		Code: "FA-003", Name: "Desk",
		Cost:   decimal.NewFromInt(2400000),
		Method: MethodStraightLine, LifeMonths: 24,
		AcquiredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	_, err = svc.Generate(ctx, first.ID, "2026-02", 1)
	require.NoError(t, err)

	generated, err := svc.GenerateAll(ctx, "2026-02", 1)
	require.NoError(t, err)
	require.Equal(t, 1, generated)

	entries, err := svc.Entries(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "2026-02", entries[0].Period)
}
