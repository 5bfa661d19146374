package transactions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/artha-erp/artha/internal/ledger"
	"github.com/artha-erp/artha/internal/templates"
)

type memoryRepo struct {
	transactions map[uuid.UUID]Transaction
	lines        map[uuid.UUID][]ledger.Line
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{transactions: map[uuid.UUID]Transaction{}, lines: map[uuid.UUID][]ledger.Line{}}
}

type memoryTx struct{ repo *memoryRepo }

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Get(ctx context.Context, id uuid.UUID) (Transaction, error) {
	txn, ok := r.transactions[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return txn, nil
}

func (r *memoryRepo) GetLines(ctx context.Context, id uuid.UUID) ([]ledger.Line, error) {
	return append([]ledger.Line(nil), r.lines[id]...), nil
}

func (r *memoryRepo) List(ctx context.Context, limit int) ([]Transaction, error) {
	var out []Transaction
	for _, txn := range r.transactions {
		out = append(out, txn)
	}
	return out, nil
}

func (tx *memoryTx) Insert(ctx context.Context, txn Transaction) error {
	tx.repo.transactions[txn.ID] = txn
	return nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, id uuid.UUID) (Transaction, error) {
	return tx.repo.Get(ctx, id)
}

func (tx *memoryTx) GetLines(ctx context.Context, id uuid.UUID) ([]ledger.Line, error) {
	return tx.repo.GetLines(ctx, id)
}

func (tx *memoryTx) InsertLines(ctx context.Context, id uuid.UUID, lines []ledger.Line) error {
	tx.repo.lines[id] = append(tx.repo.lines[id], lines...)
	return nil
}

func (tx *memoryTx) UpdateBindings(ctx context.Context, id uuid.UUID, bindings map[string]decimal.Decimal, slots map[string]string) error {
	txn := tx.repo.transactions[id]
	txn.Bindings = bindings
	txn.AccountSlots = slots
	tx.repo.transactions[id] = txn
	return nil
}

func (tx *memoryTx) MarkPosted(ctx context.Context, id uuid.UUID, actorID int64, at time.Time) error {
	txn := tx.repo.transactions[id]
	txn.Status = StatusPosted
	txn.PostedBy = &actorID
	txn.PostedAt = &at
	tx.repo.transactions[id] = txn
	return nil
}

func (tx *memoryTx) MarkVoid(ctx context.Context, id uuid.UUID, reason VoidReason, notes string, actorID int64, at time.Time) error {
	txn := tx.repo.transactions[id]
	txn.Status = StatusVoid
	txn.VoidReason = &reason
	txn.VoidNotes = notes
	txn.VoidedBy = &actorID
	txn.VoidedAt = &at
	tx.repo.transactions[id] = txn
	return nil
}

func (tx *memoryTx) Delete(ctx context.Context, id uuid.UUID) error {
	delete(tx.repo.transactions, id)
	return nil
}

type fakeCatalog struct {
	versions map[string]templates.Snapshot
	current  map[int64]int
}

func (c *fakeCatalog) key(id int64, version int) string { return fmt.Sprintf("%d:%d", id, version) }

func (c *fakeCatalog) Resolve(ctx context.Context, templateID int64, version int) (templates.Snapshot, error) {
	if version == 0 {
		version = c.current[templateID]
	}
	snapshot, ok := c.versions[c.key(templateID, version)]
	if !ok {
		return templates.Snapshot{}, templates.ErrNotFound
	}
	return snapshot, nil
}

func (c *fakeCatalog) add(snapshot templates.Snapshot) {
	if c.versions == nil {
		c.versions = map[string]templates.Snapshot{}
		c.current = map[int64]int{}
	}
	c.versions[c.key(snapshot.TemplateID, snapshot.Version)] = snapshot
	c.current[snapshot.TemplateID] = snapshot.Version
}

type fakeAccounts struct {
	accounts map[string]ledger.PostableAccount
}

func (f *fakeAccounts) PostableAccounts(ctx context.Context, codes []string) (map[string]ledger.PostableAccount, error) {
	return f.accounts, nil
}

func saleSnapshot(version int) templates.Snapshot {
	return templates.Snapshot{
		TemplateID: 7,
		Version:    version,
		Name:       "Credit Sale",
		Category:   templates.CategorySales,
		Type:       templates.TypeDetailed,
		IsActive:   true,
		Lines: []templates.LineSpec{
			{AccountCode: "1.2", Side: ledger.SideDebit, Formula: "revenueAmount", Order: 1},
			{AccountCode: "4.1", Side: ledger.SideCredit, Formula: "revenueAmount", Order: 2},
			{AccountCode: "5.1", Side: ledger.SideDebit, Formula: "cogsAmount", Order: 3},
			{AccountCode: "1.4", Side: ledger.SideCredit, Formula: "cogsAmount", Order: 4},
		},
		Variables: []string{"cogsAmount", "revenueAmount"},
	}
}

func postableAccounts() *fakeAccounts {
	return &fakeAccounts{accounts: map[string]ledger.PostableAccount{
		"1.2": {ID: 1, IsActive: true},
		"4.1": {ID: 2, IsActive: true},
		"5.1": {ID: 3, IsActive: true},
		"1.4": {ID: 4, IsActive: true},
	}}
}

func saleBindings() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"revenueAmount": decimal.RequireFromString("15000000"),
		"cogsAmount":    decimal.RequireFromString("10000000"),
	}
}

func newTestService(catalog *fakeCatalog, accounts *fakeAccounts) (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	svc := NewService(repo, catalog, NewBuilder(accounts), nil, nil)
	return svc, repo
}

func createDraft(t *testing.T, svc *Service) Transaction {
	t.Helper()
	txn, err := svc.Create(context.Background(), CreateInput{
		TemplateID:  7,
		Date:        time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		Description: "April credit sale",
		Bindings:    saleBindings(),
		ActorID:     42,
	})
	require.NoError(t, err)
	return txn
}

func TestCreateValidatesEagerlyWithoutWritingLines(t *testing.T) {
	catalog := &fakeCatalog{}
	catalog.add(saleSnapshot(1))
	svc, repo := newTestService(catalog, postableAccounts())

	txn := createDraft(t, svc)
	require.Equal(t, StatusDraft, txn.Status)
	require.Equal(t, 1, txn.TemplateVersion)
	require.Empty(t, repo.lines[txn.ID])

	// A missing declared variable fails at create, never posts a wrong amount.
	_, err := svc.Create(context.Background(), CreateInput{
		TemplateID: 7,
		Date:       time.Now(),
		Bindings:   map[string]decimal.Decimal{"revenueAmount": decimal.New(1, 0)},
	})
	require.ErrorIs(t, err, ErrMissingBinding)

	bad := saleBindings()
	bad["discountAmount"] = decimal.New(5, 0)
	_, err = svc.Create(context.Background(), CreateInput{TemplateID: 7, Date: time.Now(), Bindings: bad})
	require.ErrorIs(t, err, ErrUnexpectedBinding)
}

func TestPostWritesBalancedBatchOnce(t *testing.T) {
	catalog := &fakeCatalog{}
	catalog.add(saleSnapshot(1))
	svc, repo := newTestService(catalog, postableAccounts())
	ctx := context.Background()

	txn := createDraft(t, svc)
	posted, err := svc.Post(ctx, txn.ID, 42)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.Len(t, repo.lines[txn.ID], 4)

	debit, credit := decimal.Zero, decimal.Zero
	for _, line := range repo.lines[txn.ID] {
		if line.Side == ledger.SideDebit {
			debit = debit.Add(line.Amount)
		} else {
			credit = credit.Add(line.Amount)
		}
	}
	require.True(t, debit.Equal(credit))
	require.True(t, debit.Equal(decimal.RequireFromString("25000000")))

	_, err = svc.Post(ctx, txn.ID, 42)
	require.ErrorIs(t, err, ErrAlreadyPosted)
}

func TestPostRevalidatesAccountState(t *testing.T) {
	catalog := &fakeCatalog{}
	catalog.add(saleSnapshot(1))
	accounts := postableAccounts()
	svc, repo := newTestService(catalog, accounts)
	ctx := context.Background()

	txn := createDraft(t, svc)
	// The COGS account is deactivated between create and post.
	accounts.accounts["5.1"] = ledger.PostableAccount{ID: 3, IsActive: false}

	_, err := svc.Post(ctx, txn.ID, 42)
	require.ErrorIs(t, err, ledger.ErrInactiveAccount)
	require.Empty(t, repo.lines[txn.ID])
}

func TestVoidMirrorsLinesAndNetsToZero(t *testing.T) {
	catalog := &fakeCatalog{}
	catalog.add(saleSnapshot(1))
	svc, repo := newTestService(catalog, postableAccounts())
	ctx := context.Background()

	txn := createDraft(t, svc)
	_, err := svc.Post(ctx, txn.ID, 42)
	require.NoError(t, err)

	_, err = svc.Void(ctx, txn.ID, VoidInput{ActorID: 42})
	require.ErrorIs(t, err, ErrReasonRequired)

	voided, err := svc.Void(ctx, txn.ID, VoidInput{Reason: "INPUT_ERROR", Notes: "fat finger", ActorID: 42})
	require.NoError(t, err)
	require.Equal(t, StatusVoid, voided.Status)
	require.Len(t, repo.lines[txn.ID], 8)

	perAccount := map[string]decimal.Decimal{}
	for _, line := range repo.lines[txn.ID] {
		delta := line.Amount
		if line.Side == ledger.SideCredit {
			delta = delta.Neg()
		}
		perAccount[line.AccountCode] = perAccount[line.AccountCode].Add(delta)
	}
	for code, net := range perAccount {
		require.True(t, net.IsZero(), "account %s nets %s", code, net)
	}

	_, err = svc.Void(ctx, txn.ID, VoidInput{Reason: "INPUT_ERROR", ActorID: 42})
	require.ErrorIs(t, err, ErrNotPosted)
}

func TestVoidRequiresPosted(t *testing.T) {
	catalog := &fakeCatalog{}
	catalog.add(saleSnapshot(1))
	svc, _ := newTestService(catalog, postableAccounts())

	txn := createDraft(t, svc)
	_, err := svc.Void(context.Background(), txn.ID, VoidInput{Reason: "INPUT_ERROR", ActorID: 1})
	require.ErrorIs(t, err, ErrNotPosted)
}

func TestDeleteAndEditOnlyWhileDraft(t *testing.T) {
	catalog := &fakeCatalog{}
	catalog.add(saleSnapshot(1))
	svc, repo := newTestService(catalog, postableAccounts())
	ctx := context.Background()

	draft := createDraft(t, svc)
	newBindings := saleBindings()
	newBindings["revenueAmount"] = decimal.RequireFromString("16000000")
	newBindings["cogsAmount"] = decimal.RequireFromString("11000000")
	edited, err := svc.Edit(ctx, draft.ID, newBindings, nil, 42)
	require.NoError(t, err)
	require.True(t, edited.Bindings["revenueAmount"].Equal(decimal.RequireFromString("16000000")))

	require.NoError(t, svc.Delete(ctx, draft.ID, 42))
	_, err = svc.Get(ctx, draft.ID)
	require.ErrorIs(t, err, ErrNotFound)

	posted := createDraft(t, svc)
	_, err = svc.Post(ctx, posted.ID, 42)
	require.NoError(t, err)

	_, err = svc.Edit(ctx, posted.ID, newBindings, nil, 42)
	require.ErrorIs(t, err, ErrCannotEditPosted)
	require.ErrorIs(t, svc.Delete(ctx, posted.ID, 42), ErrCannotDeletePosted)
	require.NotEmpty(t, repo.lines[posted.ID])
}

func TestPostUsesPinnedTemplateVersion(t *testing.T) {
	catalog := &fakeCatalog{}
	catalog.add(saleSnapshot(1))
	svc, repo := newTestService(catalog, postableAccounts())
	ctx := context.Background()

	draft := createDraft(t, svc)

	// The template is edited after the draft was created; the draft stays
	// pinned to version 1 and reconstructs the original line set.
	v2 := saleSnapshot(2)
	v2.Lines[0].AccountCode = "1.4"
	catalog.add(v2)

	posted, err := svc.Post(ctx, draft.ID, 42)
	require.NoError(t, err)
	require.Equal(t, 1, posted.TemplateVersion)
	require.Equal(t, "1.2", repo.lines[draft.ID][0].AccountCode)
}

func TestBuildPostedForGenerators(t *testing.T) {
	catalog := &fakeCatalog{}
	catalog.add(saleSnapshot(1))
	svc, _ := newTestService(catalog, postableAccounts())

	txn, err := svc.BuildPosted(context.Background(), CreateInput{
		TemplateID: 7,
		Date:       time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC),
		Bindings:   saleBindings(),
		ActorID:    9,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPosted, txn.Status)
	require.Len(t, txn.Lines, 4)
	require.NotNil(t, txn.PostedAt)
}

func TestInactiveTemplateRejected(t *testing.T) {
	catalog := &fakeCatalog{}
	inactive := saleSnapshot(1)
	inactive.IsActive = false
	catalog.add(inactive)
	svc, _ := newTestService(catalog, postableAccounts())

	_, err := svc.Create(context.Background(), CreateInput{TemplateID: 7, Date: time.Now(), Bindings: saleBindings()})
	require.ErrorIs(t, err, templates.ErrInactive)
}
