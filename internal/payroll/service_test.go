package payroll

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
	runs   map[int64]Run
	posted []transactions.Transaction
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{runs: map[int64]Run{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	shadow := &memoryTx{repo: r, runs: map[int64]Run{}}
	if err := fn(ctx, shadow); err != nil {
		return err
	}
	shadow.commit()
	return nil
}

func (r *memoryRepo) InsertRun(_ context.Context, run Run) (Run, error) {
	for _, existing := range r.runs {
		if existing.Period == run.Period {
			return Run{}, ErrDuplicatePeriod
		}
	}
	r.nextID++
	run.ID = r.nextID
	r.runs[run.ID] = run
	return run, nil
}

func (r *memoryRepo) GetRun(_ context.Context, runID int64) (Run, error) {
	run, ok := r.runs[runID]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return run, nil
}

func (r *memoryRepo) ListRuns(_ context.Context, limit int) ([]Run, error) {
	var out []Run
	for _, run := range r.runs {
		out = append(out, run)
	}
	return out, nil
}

type memoryTx struct {
	repo   *memoryRepo
	runs   map[int64]Run
	posted []transactions.Transaction
}

func (t *memoryTx) commit() {
	for id, run := range t.runs {
		t.repo.runs[id] = run
	}
	t.repo.posted = append(t.repo.posted, t.posted...)
}

func (t *memoryTx) GetRunForUpdate(ctx context.Context, runID int64) (Run, error) {
	return t.repo.GetRun(ctx, runID)
}

func (t *memoryTx) MarkPosted(_ context.Context, run Run) error {
	t.runs[run.ID] = run
	return nil
}

func (t *memoryTx) InsertPostedTransaction(_ context.Context, txn transactions.Transaction) error {
	t.posted = append(t.posted, txn)
	return nil
}

type fakeJournals struct {
	inputs []transactions.CreateInput
	err    error
}

func (f *fakeJournals) BuildPosted(_ context.Context, input transactions.CreateInput) (transactions.Transaction, error) {
	if f.err != nil {
		return transactions.Transaction{}, f.err
	}
	f.inputs = append(f.inputs, input)
	return transactions.Transaction{ID: uuid.New(), Status: transactions.StatusPosted, Bindings: input.Bindings}, nil
}

func newTestService(repo *memoryRepo, journals *fakeJournals) *Service {
	svc := NewService(repo, journals, nil, Config{PayrollTemplateID: 51})
	svc.WithNow(func() time.Time { return time.Date(2026, 6, 30, 17, 0, 0, 0, time.UTC) })
	return svc
}

func TestCreateRunValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &fakeJournals{})
	ctx := context.Background()

	_, err := svc.CreateRun(ctx, RunInput{Period: "June 2026"})
	require.ErrorIs(t, err, shared.ErrInvalidPeriod)

	_, err = svc.CreateRun(ctx, RunInput{Period: "2026-06", Gross: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.CreateRun(ctx, RunInput{
		Period: "2026-06",
		Gross:  decimal.NewFromInt(100), Deductions: decimal.NewFromInt(10),
		Net: decimal.NewFromInt(95),
	})
	require.ErrorIs(t, err, ErrAmountMismatch)

	_, err = svc.CreateRun(ctx, RunInput{
		Period: "2026-06",
		Gross:  decimal.NewFromInt(100), Deductions: decimal.NewFromInt(10),
		Net: decimal.NewFromInt(90),
	})
	require.NoError(t, err)

	_, err = svc.CreateRun(ctx, RunInput{
		Period: "2026-06",
		Gross:  decimal.NewFromInt(200), Deductions: decimal.Zero,
		Net: decimal.NewFromInt(200),
	})
	require.ErrorIs(t, err, ErrDuplicatePeriod)
}

func TestGenerateJournalBindsRunFigures(t *testing.T) {
	repo := newMemoryRepo()
	journals := &fakeJournals{}
	svc := newTestService(repo, journals)
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, RunInput{
		Period:     "2026-06",
		Gross:      decimal.NewFromInt(55000000),
		Deductions: decimal.NewFromInt(5000000),
		Net:        decimal.NewFromInt(50000000),
		Headcount:  12,
		ActorID:    3,
	})
	require.NoError(t, err)

	posted, err := svc.GenerateJournal(ctx, run.ID, 3)
	require.NoError(t, err)
	require.NotNil(t, posted.TransactionID)
	require.NotNil(t, posted.PostedAt)

	require.Len(t, journals.inputs, 1)
	input := journals.inputs[0]
	require.Equal(t, int64(51), input.TemplateID)
	require.True(t, input.Bindings["grossAmount"].Equal(decimal.NewFromInt(55000000)))
	require.True(t, input.Bindings["deductionAmount"].Equal(decimal.NewFromInt(5000000)))
	require.True(t, input.Bindings["netAmount"].Equal(decimal.NewFromInt(50000000)))
	require.Equal(t, time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC), input.Date)
	require.Len(t, repo.posted, 1)
}

func TestGenerateJournalOncePerRun(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &fakeJournals{})
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, RunInput{
		Period: "2026-06",
		Gross:  decimal.NewFromInt(100), Net: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	_, err = svc.GenerateJournal(ctx, run.ID, 3)
	require.NoError(t, err)
	_, err = svc.GenerateJournal(ctx, run.ID, 3)
	require.ErrorIs(t, err, ErrAlreadyPosted)
	require.Len(t, repo.posted, 1)

	_, err = svc.GenerateJournal(ctx, 99, 3)
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestGenerateJournalFailureLeavesRunUnposted(t *testing.T) {
	repo := newMemoryRepo()
	journals := &fakeJournals{err: transactions.ErrMissingBinding}
	svc := newTestService(repo, journals)
	ctx := context.Background()

	run, err := svc.CreateRun(ctx, RunInput{
		Period: "2026-06",
		Gross:  decimal.NewFromInt(100), Net: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	_, err = svc.GenerateJournal(ctx, run.ID, 3)
	require.ErrorIs(t, err, transactions.ErrMissingBinding)

	got, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Nil(t, got.TransactionID)
	require.Empty(t, repo.posted)
}
