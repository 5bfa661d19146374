package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artha-erp/artha/internal/costing"
	"github.com/artha-erp/artha/internal/shared"
	"github.com/artha-erp/artha/internal/transactions"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	InsertProduct(ctx context.Context, product Product) (Product, error)
	GetProduct(ctx context.Context, productID int64) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	SetProductActive(ctx context.Context, productID int64, active bool) error
	GetLayers(ctx context.Context, productID int64) ([]costing.Layer, error)
	ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error)
}

// JournalPort builds posted transactions for atomic insertion.
type JournalPort interface {
	BuildPosted(ctx context.Context, input transactions.CreateInput) (transactions.Transaction, error)
}

// Config carries the template ids the generator binds.
type Config struct {
	PurchaseTemplateID int64
	SaleTemplateID     int64
}

// Service coordinates inventory movements and their journals.
type Service struct {
	repo        RepositoryPort
	journals    JournalPort
	locker      *shared.Locker
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger
	cfg         Config
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, journals JournalPort, locker *shared.Locker, idem *shared.IdempotencyStore, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, journals: journals, locker: locker, idempotency: idem, logger: logger, cfg: cfg, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ProductInput groups fields for a new product.
type ProductInput struct {
	SKU      string
	Name     string
	Policy   costing.Policy
	Accounts *AccountMapping
}

// CreateProduct validates and registers a stock-tracked product. The
// account mapping is optional; without it the product moves stock but
// never generates journals.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	if input.SKU == "" {
		return Product{}, ErrSKURequired
	}
	switch input.Policy {
	case costing.PolicyFIFO, costing.PolicyAverage:
	default:
		return Product{}, costing.ErrUnknownPolicy
	}
	if m := input.Accounts; m != nil {
		if m.InventoryAccount == "" || m.COGSAccount == "" || m.SalesAccount == "" || m.ReceivableAccount == "" {
			return Product{}, ErrIncompleteMapping
		}
	}
	now := s.now()
	return s.repo.InsertProduct(ctx, Product{
		SKU:       input.SKU,
		Name:      input.Name,
		Policy:    input.Policy,
		IsActive:  true,
		Accounts:  input.Accounts,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// GetProduct returns one product.
func (s *Service) GetProduct(ctx context.Context, productID int64) (Product, error) {
	return s.repo.GetProduct(ctx, productID)
}

// ListProducts returns products ordered by sku.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.repo.ListProducts(ctx)
}

// SetProductActive activates or deactivates a product. Deactivation
// blocks new movements; history and valuation stay readable.
func (s *Service) SetProductActive(ctx context.Context, productID int64, active bool) error {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return err
	}
	return s.repo.SetProductActive(ctx, productID, active)
}

// PurchaseInput describes an inbound stock receipt.
type PurchaseInput struct {
	ProductID int64
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	Date      time.Time
	Reference string
	Note      string
	ActorID   int64
}

// RecordPurchase receives stock and posts the purchase journal when the
// product has mapped accounts.
func (s *Service) RecordPurchase(ctx context.Context, input PurchaseInput) (Movement, error) {
	if input.Qty.Sign() <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if input.UnitCost.Sign() < 0 {
		return Movement{}, ErrInvalidPrice
	}
	return s.postMovement(ctx, movementParams{
		ProductID: input.ProductID,
		Type:      MovementPurchase,
		Qty:       input.Qty,
		UnitCost:  input.UnitCost,
		Date:      input.Date,
		Reference: input.Reference,
		Note:      input.Note,
		ActorID:   input.ActorID,
	})
}

// SaleInput describes an outbound sale.
type SaleInput struct {
	ProductID int64
	Qty       decimal.Decimal
	UnitPrice decimal.Decimal
	Date      time.Time
	Reference string
	Note      string
	ActorID   int64
}

// RecordSale consumes stock at the policy's cost basis and posts the sale
// journal (revenue plus COGS) when the product has mapped accounts.
func (s *Service) RecordSale(ctx context.Context, input SaleInput) (Movement, error) {
	if input.Qty.Sign() <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	if input.UnitPrice.Sign() < 0 {
		return Movement{}, ErrInvalidPrice
	}
	return s.postMovement(ctx, movementParams{
		ProductID: input.ProductID,
		Type:      MovementSale,
		Qty:       input.Qty,
		UnitPrice: input.UnitPrice,
		Date:      input.Date,
		Reference: input.Reference,
		Note:      input.Note,
		ActorID:   input.ActorID,
	})
}

// Valuation returns the remaining stock value of a product.
func (s *Service) Valuation(ctx context.Context, productID int64) (decimal.Decimal, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	layers, err := s.repo.GetLayers(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	book, err := costing.RestoreBook(product.Policy, layers)
	if err != nil {
		return decimal.Zero, err
	}
	return book.Valuation(), nil
}

// StockOnHand returns the remaining quantity of a product.
func (s *Service) StockOnHand(ctx context.Context, productID int64) (decimal.Decimal, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	layers, err := s.repo.GetLayers(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	book, err := costing.RestoreBook(product.Policy, layers)
	if err != nil {
		return decimal.Zero, err
	}
	return book.OnHand(), nil
}

// ListMovements returns the movement history of a product, newest first.
func (s *Service) ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListMovements(ctx, productID, limit)
}

type movementParams struct {
	ProductID int64
	Type      MovementType
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	UnitPrice decimal.Decimal
	Date      time.Time
	Reference string
	Note      string
	ActorID   int64
}

func (s *Service) postMovement(ctx context.Context, params movementParams) (Movement, error) {
	release, err := s.locker.Acquire(ctx, shared.ProductLockKey(params.ProductID))
	if err != nil {
		return Movement{}, err
	}
	defer release()

	idemKey := ""
	if params.Reference != "" && s.idempotency != nil {
		idemKey = fmt.Sprintf("%s:%d:%s", params.Type, params.ProductID, params.Reference)
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "inventory"); err != nil {
			return Movement{}, err
		}
	}

	date := params.Date
	if date.IsZero() {
		date = s.now()
	}

	var movement Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProduct(ctx, params.ProductID)
		if err != nil {
			return err
		}
		if !product.IsActive {
			return ErrProductInactive
		}
		book, err := tx.LoadBookForUpdate(ctx, product.ID, product.Policy)
		if err != nil {
			return err
		}

		movement = Movement{
			ProductID: product.ID,
			Type:      params.Type,
			Qty:       params.Qty,
			MovedAt:   date,
			Reference: params.Reference,
			Note:      params.Note,
			CreatedBy: params.ActorID,
			CreatedAt: s.now(),
		}

		// cogsTotal stays the exact layer-weighted cost; the per-unit
		// figure on the movement is derived and may round.
		var cogsTotal decimal.Decimal
		switch params.Type {
		case MovementPurchase:
			if err := book.Receive(params.Qty, params.UnitCost, date); err != nil {
				return err
			}
			movement.UnitCost = params.UnitCost
		case MovementSale:
			basis, err := book.Consume(params.Qty)
			if err != nil {
				return err
			}
			cogsTotal = basis.TotalCost
			movement.UnitCost = basis.UnitCost()
			movement.UnitPrice = params.UnitPrice
		default:
			return fmt.Errorf("inventory: movement type %s not handled here", params.Type)
		}

		if err := tx.SaveBook(ctx, product.ID, book); err != nil {
			return err
		}

		journal, ok, err := s.buildJournal(ctx, product, movement, cogsTotal)
		if err != nil {
			return err
		}
		if ok {
			if err := tx.InsertPostedTransaction(ctx, journal); err != nil {
				return err
			}
			movement.TransactionID = &journal.ID
		}

		id, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return err
		}
		movement.ID = id
		return nil
	})
	if err != nil {
		if idemKey != "" {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return Movement{}, err
	}
	return movement, nil
}

// buildJournal assembles the posted journal for a movement. A product
// without mapped accounts is a soft skip: the movement still persists,
// no financial posting occurs.
func (s *Service) buildJournal(ctx context.Context, product Product, movement Movement, cogsTotal decimal.Decimal) (transactions.Transaction, bool, error) {
	if product.Accounts == nil {
		s.logger.Info("journal skipped: product has no account mapping",
			slog.Int64("product_id", product.ID),
			slog.String("movement", string(movement.Type)))
		return transactions.Transaction{}, false, nil
	}

	var input transactions.CreateInput
	switch movement.Type {
	case MovementPurchase:
		input = transactions.CreateInput{
			TemplateID:  s.cfg.PurchaseTemplateID,
			Date:        movement.MovedAt,
			Description: fmt.Sprintf("Inventory purchase %s x %s", product.SKU, movement.Qty),
			Reference:   movement.Reference,
			Bindings: map[string]decimal.Decimal{
				"amount": movement.Qty.Mul(movement.UnitCost),
			},
			AccountSlots: map[string]string{
				"inventory": product.Accounts.InventoryAccount,
			},
			ActorID: movement.CreatedBy,
		}
	case MovementSale:
		input = transactions.CreateInput{
			TemplateID:  s.cfg.SaleTemplateID,
			Date:        movement.MovedAt,
			Description: fmt.Sprintf("Inventory sale %s x %s", product.SKU, movement.Qty),
			Reference:   movement.Reference,
			Bindings: map[string]decimal.Decimal{
				"revenueAmount": movement.Qty.Mul(movement.UnitPrice),
				"cogsAmount":    cogsTotal,
			},
			AccountSlots: map[string]string{
				"receivable": product.Accounts.ReceivableAccount,
				"sales":      product.Accounts.SalesAccount,
				"cogs":       product.Accounts.COGSAccount,
				"inventory":  product.Accounts.InventoryAccount,
			},
			ActorID: movement.CreatedBy,
		}
	default:
		return transactions.Transaction{}, false, nil
	}

	journal, err := s.journals.BuildPosted(ctx, input)
	if err != nil {
		return transactions.Transaction{}, false, err
	}
	return journal, true, nil
}
