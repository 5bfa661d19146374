package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/artha-erp/artha/internal/costing"
	"github.com/artha-erp/artha/internal/transactions"
)

type memoryRepo struct {
	products  map[int64]Product
	layers    map[int64][]costing.Layer
	movements []Movement
	nextID    int64
	posted    []transactions.Transaction
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: map[int64]Product{}, layers: map[int64][]costing.Layer{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	shadow := &memoryTx{repo: r, layers: map[int64][]costing.Layer{}}
	if err := fn(ctx, shadow); err != nil {
		return err
	}
	shadow.commit()
	return nil
}

func (r *memoryRepo) InsertProduct(_ context.Context, product Product) (Product, error) {
	for _, existing := range r.products {
		if existing.SKU == product.SKU {
			return Product{}, ErrDuplicateSKU
		}
	}
	r.nextID++
	product.ID = r.nextID
	r.products[product.ID] = product
	return product, nil
}

func (r *memoryRepo) ListProducts(_ context.Context) ([]Product, error) {
	var out []Product
	for _, p := range r.products {
		out = append(out, p)
	}
	return out, nil
}

func (r *memoryRepo) SetProductActive(_ context.Context, productID int64, active bool) error {
	p, ok := r.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	p.IsActive = active
	r.products[productID] = p
	return nil
}

func (r *memoryRepo) GetProduct(_ context.Context, productID int64) (Product, error) {
	p, ok := r.products[productID]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *memoryRepo) GetLayers(_ context.Context, productID int64) ([]costing.Layer, error) {
	return append([]costing.Layer(nil), r.layers[productID]...), nil
}

func (r *memoryRepo) ListMovements(_ context.Context, productID int64, limit int) ([]Movement, error) {
	var out []Movement
	for i := len(r.movements) - 1; i >= 0 && len(out) < limit; i-- {
		if r.movements[i].ProductID == productID {
			out = append(out, r.movements[i])
		}
	}
	return out, nil
}

// memoryTx buffers writes so a failed callback leaves the repo untouched,
// mirroring the rollback the real repository gets from PostgreSQL.
type memoryTx struct {
	repo      *memoryRepo
	layers    map[int64][]costing.Layer
	movements []Movement
	posted    []transactions.Transaction
}

func (t *memoryTx) commit() {
	for id, layers := range t.layers {
		t.repo.layers[id] = layers
	}
	t.repo.movements = append(t.repo.movements, t.movements...)
	t.repo.posted = append(t.repo.posted, t.posted...)
}

func (t *memoryTx) GetProduct(ctx context.Context, productID int64) (Product, error) {
	return t.repo.GetProduct(ctx, productID)
}

func (t *memoryTx) LoadBookForUpdate(_ context.Context, productID int64, policy costing.Policy) (*costing.Book, error) {
	return costing.RestoreBook(policy, t.repo.layers[productID])
}

func (t *memoryTx) SaveBook(_ context.Context, productID int64, book *costing.Book) error {
	t.layers[productID] = book.Layers()
	return nil
}

func (t *memoryTx) InsertMovement(_ context.Context, movement Movement) (int64, error) {
	t.repo.nextID++
	movement.ID = t.repo.nextID
	t.movements = append(t.movements, movement)
	return movement.ID, nil
}

func (t *memoryTx) InsertPostedTransaction(_ context.Context, txn transactions.Transaction) error {
	t.posted = append(t.posted, txn)
	return nil
}

// fakeJournals records the inputs it was asked to build and hands back a
// posted transaction carrying a fresh id.
type fakeJournals struct {
	inputs []transactions.CreateInput
	err    error
}

func (f *fakeJournals) BuildPosted(_ context.Context, input transactions.CreateInput) (transactions.Transaction, error) {
	if f.err != nil {
		return transactions.Transaction{}, f.err
	}
	f.inputs = append(f.inputs, input)
	return transactions.Transaction{
		ID:         uuid.New(),
		TemplateID: input.TemplateID,
		Status:     transactions.StatusPosted,
		Bindings:   input.Bindings,
	}, nil
}

func newTestService(repo *memoryRepo, journals *fakeJournals) *Service {
	svc := NewService(repo, journals, nil, nil, nil, Config{PurchaseTemplateID: 11, SaleTemplateID: 12})
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) })
	return svc
}

func mappedProduct(id int64, policy costing.Policy) Product {
	return Product{
		ID: id, SKU: "SKU-1", Name: "Widget", Policy: policy, IsActive: true,
		Accounts: &AccountMapping{
			InventoryAccount:  "1-1300",
			COGSAccount:       "5-5100",
			SalesAccount:      "4-4100",
			ReceivableAccount: "1-1200",
		},
	}
}

func TestRecordPurchaseGeneratesJournal(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = mappedProduct(1, costing.PolicyFIFO)
	journals := &fakeJournals{}
	svc := newTestService(repo, journals)

	mv, err := svc.RecordPurchase(context.Background(), PurchaseInput{
		ProductID: 1,
		Qty:       decimal.NewFromInt(10),
		UnitCost:  decimal.NewFromInt(15000),
		Reference: "PO-001",
		ActorID:   7,
	})
	require.NoError(t, err)
	require.NotNil(t, mv.TransactionID)

	require.Len(t, journals.inputs, 1)
	input := journals.inputs[0]
	require.Equal(t, int64(11), input.TemplateID)
	require.True(t, input.Bindings["amount"].Equal(decimal.NewFromInt(150000)))
	require.Equal(t, "1-1300", input.AccountSlots["inventory"])

	onHand, err := svc.StockOnHand(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, onHand.Equal(decimal.NewFromInt(10)))
}

func TestRecordSaleBindsExactCostBasis(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = mappedProduct(1, costing.PolicyFIFO)
	journals := &fakeJournals{}
	svc := newTestService(repo, journals)
	ctx := context.Background()

	_, err := svc.RecordPurchase(ctx, PurchaseInput{ProductID: 1, Qty: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(15000)})
	require.NoError(t, err)
	_, err = svc.RecordPurchase(ctx, PurchaseInput{ProductID: 1, Qty: decimal.NewFromInt(20), UnitCost: decimal.NewFromInt(10000)})
	require.NoError(t, err)

	// 15 units cross the first layer: 10@15000 + 5@10000 = 200000.
	mv, err := svc.RecordSale(ctx, SaleInput{
		ProductID: 1,
		Qty:       decimal.NewFromInt(15),
		UnitPrice: decimal.NewFromInt(25000),
	})
	require.NoError(t, err)
	require.NotNil(t, mv.TransactionID)

	require.Len(t, journals.inputs, 3)
	sale := journals.inputs[2]
	require.Equal(t, int64(12), sale.TemplateID)
	require.True(t, sale.Bindings["revenueAmount"].Equal(decimal.NewFromInt(375000)))
	require.True(t, sale.Bindings["cogsAmount"].Equal(decimal.NewFromInt(200000)))
	require.Equal(t, "5-5100", sale.AccountSlots["cogs"])

	valuation, err := svc.Valuation(ctx, 1)
	require.NoError(t, err)
	require.True(t, valuation.Equal(decimal.NewFromInt(150000)))
}

func TestRecordSaleUnmappedProductSkipsJournal(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[2] = Product{ID: 2, SKU: "RAW-1", Name: "Raw", Policy: costing.PolicyAverage, IsActive: true}
	journals := &fakeJournals{}
	svc := newTestService(repo, journals)
	ctx := context.Background()

	_, err := svc.RecordPurchase(ctx, PurchaseInput{ProductID: 2, Qty: decimal.NewFromInt(5), UnitCost: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	mv, err := svc.RecordSale(ctx, SaleInput{ProductID: 2, Qty: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(3000)})
	require.NoError(t, err)

	require.Nil(t, mv.TransactionID)
	require.Empty(t, journals.inputs)

	history, err := svc.ListMovements(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestRecordSaleInsufficientStockLeavesStateUntouched(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = mappedProduct(1, costing.PolicyFIFO)
	journals := &fakeJournals{}
	svc := newTestService(repo, journals)
	ctx := context.Background()

	_, err := svc.RecordPurchase(ctx, PurchaseInput{ProductID: 1, Qty: decimal.NewFromInt(5), UnitCost: decimal.NewFromInt(1000)})
	require.NoError(t, err)

	_, err = svc.RecordSale(ctx, SaleInput{ProductID: 1, Qty: decimal.NewFromInt(10), UnitPrice: decimal.NewFromInt(2000)})
	require.ErrorIs(t, err, costing.ErrInsufficientStock)

	onHand, err := svc.StockOnHand(ctx, 1)
	require.NoError(t, err)
	require.True(t, onHand.Equal(decimal.NewFromInt(5)))

	history, err := svc.ListMovements(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Len(t, journals.inputs, 1)
}

func TestRecordMovementValidation(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = mappedProduct(1, costing.PolicyFIFO)
	repo.products[3] = Product{ID: 3, SKU: "OLD-1", Policy: costing.PolicyFIFO, IsActive: false}
	svc := newTestService(repo, &fakeJournals{})
	ctx := context.Background()

	_, err := svc.RecordPurchase(ctx, PurchaseInput{ProductID: 1, Qty: decimal.Zero, UnitCost: decimal.NewFromInt(100)})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.RecordSale(ctx, SaleInput{ProductID: 1, Qty: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(-5)})
	require.ErrorIs(t, err, ErrInvalidPrice)

	_, err = svc.RecordPurchase(ctx, PurchaseInput{ProductID: 3, Qty: decimal.NewFromInt(1), UnitCost: decimal.NewFromInt(100)})
	require.ErrorIs(t, err, ErrProductInactive)

	_, err = svc.RecordPurchase(ctx, PurchaseInput{ProductID: 99, Qty: decimal.NewFromInt(1), UnitCost: decimal.NewFromInt(100)})
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestCreateProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &fakeJournals{})
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, ProductInput{Policy: costing.PolicyFIFO})
	require.ErrorIs(t, err, ErrSKURequired)

	_, err = svc.CreateProduct(ctx, ProductInput{SKU: "A", Policy: "LIFO"})
	require.ErrorIs(t, err, costing.ErrUnknownPolicy)

	_, err = svc.CreateProduct(ctx, ProductInput{
		SKU: "A", Policy: costing.PolicyFIFO,
		Accounts: &AccountMapping{InventoryAccount: "1-1300"},
	})
	require.ErrorIs(t, err, ErrIncompleteMapping)

	product, err := svc.CreateProduct(ctx, ProductInput{SKU: "A", Name: "Widget", Policy: costing.PolicyAverage})
	require.NoError(t, err)
	require.True(t, product.IsActive)
	require.Nil(t, product.Accounts)

	_, err = svc.CreateProduct(ctx, ProductInput{SKU: "A", Policy: costing.PolicyFIFO})
	require.ErrorIs(t, err, ErrDuplicateSKU)

	require.NoError(t, svc.SetProductActive(ctx, product.ID, false))
	_, err = svc.RecordPurchase(ctx, PurchaseInput{ProductID: product.ID, Qty: decimal.NewFromInt(1), UnitCost: decimal.NewFromInt(10)})
	require.ErrorIs(t, err, ErrProductInactive)
}

func TestAverageCostBasis(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = mappedProduct(1, costing.PolicyAverage)
	journals := &fakeJournals{}
	svc := newTestService(repo, journals)
	ctx := context.Background()

	_, err := svc.RecordPurchase(ctx, PurchaseInput{ProductID: 1, Qty: decimal.NewFromInt(10), UnitCost: decimal.NewFromInt(15000)})
	require.NoError(t, err)
	_, err = svc.RecordPurchase(ctx, PurchaseInput{ProductID: 1, Qty: decimal.NewFromInt(20), UnitCost: decimal.NewFromInt(10000)})
	require.NoError(t, err)

	// Average cost (10*15000+20*10000)/30; 15 units carry half the pool.
	_, err = svc.RecordSale(ctx, SaleInput{ProductID: 1, Qty: decimal.NewFromInt(15), UnitPrice: decimal.NewFromInt(20000)})
	require.NoError(t, err)

	// The running average is a repeating decimal, so the charged cost is
	// compared at currency precision.
	sale := journals.inputs[len(journals.inputs)-1]
	require.True(t, sale.Bindings["cogsAmount"].Round(2).Equal(decimal.NewFromInt(175000)),
		"got %s", sale.Bindings["cogsAmount"])
}
