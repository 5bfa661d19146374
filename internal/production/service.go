package production

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artha-erp/artha/internal/costing"
	"github.com/artha-erp/artha/internal/inventory"
	"github.com/artha-erp/artha/internal/shared"
	"github.com/artha-erp/artha/internal/transactions"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	InsertBOM(ctx context.Context, bom BOM) (BOM, error)
	GetBOM(ctx context.Context, bomID int64) (BOM, error)
	ListBOMs(ctx context.Context, limit int) ([]BOM, error)
	InsertOrder(ctx context.Context, order Order) (Order, error)
	GetOrder(ctx context.Context, orderID int64) (Order, error)
	ListOrders(ctx context.Context, limit int) ([]Order, error)
}

// JournalPort builds posted transactions for atomic insertion.
type JournalPort interface {
	BuildPosted(ctx context.Context, input transactions.CreateInput) (transactions.Transaction, error)
}

// Config carries the template id the completion journal binds.
type Config struct {
	ProductionTemplateID int64
}

// Service coordinates BOMs, orders and the completion generator.
type Service struct {
	repo     RepositoryPort
	journals JournalPort
	locker   *shared.Locker
	audit    AuditPort
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// AuditPort records lifecycle events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NewService builds Service.
func NewService(repo RepositoryPort, journals JournalPort, locker *shared.Locker, audit AuditPort, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, journals: journals, locker: locker, audit: audit, logger: logger, cfg: cfg, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// BOMInput groups fields for a new bill of material.
type BOMInput struct {
	Name       string
	ProductID  int64
	OutputQty  decimal.Decimal
	Components []Component
}

// CreateBOM validates and stores a bill of material.
func (s *Service) CreateBOM(ctx context.Context, input BOMInput) (BOM, error) {
	if input.OutputQty.Sign() <= 0 {
		return BOM{}, ErrInvalidQuantity
	}
	if len(input.Components) == 0 {
		return BOM{}, ErrNoComponents
	}
	for _, c := range input.Components {
		if c.Qty.Sign() <= 0 {
			return BOM{}, ErrInvalidQuantity
		}
		if c.ProductID == input.ProductID {
			return BOM{}, ErrComponentIsOutput
		}
	}
	now := s.now()
	return s.repo.InsertBOM(ctx, BOM{
		Name:       input.Name,
		ProductID:  input.ProductID,
		OutputQty:  input.OutputQty,
		Components: input.Components,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

// GetBOM returns one bill of material with its components.
func (s *Service) GetBOM(ctx context.Context, bomID int64) (BOM, error) {
	return s.repo.GetBOM(ctx, bomID)
}

// ListBOMs returns bills of material, newest first.
func (s *Service) ListBOMs(ctx context.Context, limit int) ([]BOM, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListBOMs(ctx, limit)
}

// OrderInput groups fields for a new production order.
type OrderInput struct {
	Code    string
	BOMID   int64
	Qty     decimal.Decimal
	Note    string
	ActorID int64
}

// CreateOrder stores a DRAFT production order against an active BOM.
func (s *Service) CreateOrder(ctx context.Context, input OrderInput) (Order, error) {
	if input.Qty.Sign() <= 0 {
		return Order{}, ErrInvalidQuantity
	}
	bom, err := s.repo.GetBOM(ctx, input.BOMID)
	if err != nil {
		return Order{}, err
	}
	if !bom.IsActive {
		return Order{}, ErrBOMInactive
	}
	order, err := s.repo.InsertOrder(ctx, Order{
		Code:      input.Code,
		BOMID:     bom.ID,
		Qty:       input.Qty,
		Status:    OrderDraft,
		Note:      input.Note,
		CreatedBy: input.ActorID,
		CreatedAt: s.now(),
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, input.ActorID, shared.ActionOrderCreate, order.ID)
	return order, nil
}

// Start moves a DRAFT order to IN_PROGRESS.
func (s *Service) Start(ctx context.Context, orderID, actorID int64) (Order, error) {
	var out Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != OrderDraft {
			return fmt.Errorf("%w: start from %s", ErrInvalidOrderState, order.Status)
		}
		now := s.now()
		order.Status = OrderInProgress
		order.StartedAt = &now
		if err := tx.UpdateOrderStatus(ctx, order); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, actorID, shared.ActionOrderStart, orderID)
	return out, nil
}

// Cancel moves a DRAFT or IN_PROGRESS order to CANCELLED.
func (s *Service) Cancel(ctx context.Context, orderID, actorID int64) (Order, error) {
	var out Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != OrderDraft && order.Status != OrderInProgress {
			return fmt.Errorf("%w: cancel from %s", ErrInvalidOrderState, order.Status)
		}
		order.Status = OrderCancelled
		if err := tx.UpdateOrderStatus(ctx, order); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, actorID, shared.ActionOrderCancel, orderID)
	return out, nil
}

// GetOrder returns one production order.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// ListOrders returns production orders, newest first.
func (s *Service) ListOrders(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListOrders(ctx, limit)
}

// Complete consumes component stock, receives the finished good at
// total consumed cost divided by produced quantity, and posts the
// production journals. Stock is checked across every component before
// any book mutates.
func (s *Service) Complete(ctx context.Context, orderID, actorID int64) (Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	bom, err := s.repo.GetBOM(ctx, order.BOMID)
	if err != nil {
		return Order{}, err
	}

	// Product locks are taken in id order before the db transaction so
	// two completions sharing components cannot deadlock.
	ids := []int64{bom.ProductID}
	for _, c := range bom.Components {
		ids = append(ids, c.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		release, err := s.locker.Acquire(ctx, shared.ProductLockKey(id))
		if err != nil {
			return Order{}, err
		}
		defer release()
	}

	var out Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != OrderInProgress {
			return fmt.Errorf("%w: complete from %s", ErrInvalidOrderState, order.Status)
		}
		finished, err := tx.GetProduct(ctx, bom.ProductID)
		if err != nil {
			return err
		}
		if !finished.IsActive {
			return inventory.ErrProductInactive
		}

		scale := order.Qty.Div(bom.OutputQty)
		now := s.now()

		type draw struct {
			product inventory.Product
			book    *costing.Book
			need    decimal.Decimal
		}
		draws := make([]draw, 0, len(bom.Components))
		for _, c := range bom.Components {
			product, err := tx.GetProduct(ctx, c.ProductID)
			if err != nil {
				return err
			}
			book, err := tx.LoadBookForUpdate(ctx, product.ID, product.Policy)
			if err != nil {
				return err
			}
			need := c.Qty.Mul(scale)
			if need.GreaterThan(book.OnHand()) {
				return fmt.Errorf("%w: product %s needs %s, on hand %s",
					costing.ErrInsufficientStock, product.SKU, need, book.OnHand())
			}
			draws = append(draws, draw{product: product, book: book, need: need})
		}

		totalCost := decimal.Zero
		for _, d := range draws {
			basis, err := d.book.Consume(d.need)
			if err != nil {
				return err
			}
			if err := tx.SaveBook(ctx, d.product.ID, d.book); err != nil {
				return err
			}
			movement := inventory.Movement{
				ProductID: d.product.ID,
				Type:      inventory.MovementProductionConsume,
				Qty:       d.need,
				UnitCost:  basis.UnitCost(),
				MovedAt:   now,
				Reference: order.Code,
				CreatedBy: actorID,
				CreatedAt: now,
			}
			journal, ok, err := s.buildJournal(ctx, finished, d.product, basis.TotalCost, order, actorID)
			if err != nil {
				return err
			}
			if ok {
				if err := tx.InsertPostedTransaction(ctx, journal); err != nil {
					return err
				}
				movement.TransactionID = &journal.ID
			}
			if _, err := tx.InsertMovement(ctx, movement); err != nil {
				return err
			}
			totalCost = totalCost.Add(basis.TotalCost)
		}

		unitCost := totalCost.Div(order.Qty)
		finishedBook, err := tx.LoadBookForUpdate(ctx, finished.ID, finished.Policy)
		if err != nil {
			return err
		}
		if err := finishedBook.Receive(order.Qty, unitCost, now); err != nil {
			return err
		}
		if err := tx.SaveBook(ctx, finished.ID, finishedBook); err != nil {
			return err
		}
		if _, err := tx.InsertMovement(ctx, inventory.Movement{
			ProductID: finished.ID,
			Type:      inventory.MovementProductionYield,
			Qty:       order.Qty,
			UnitCost:  unitCost,
			MovedAt:   now,
			Reference: order.Code,
			CreatedBy: actorID,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		order.Status = OrderCompleted
		order.TotalCost = totalCost
		order.UnitCost = unitCost
		order.CompletedAt = &now
		if err := tx.UpdateOrderStatus(ctx, order); err != nil {
			return err
		}
		out = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, actorID, shared.ActionOrderComplete, orderID)
	return out, nil
}

// buildJournal assembles one posted journal moving component cost into
// the finished good's inventory account. Either side lacking a mapping
// is a soft skip: stock still moves, no financial posting occurs.
func (s *Service) buildJournal(ctx context.Context, finished, component inventory.Product, amount decimal.Decimal, order Order, actorID int64) (transactions.Transaction, bool, error) {
	if finished.Accounts == nil || component.Accounts == nil {
		s.logger.Info("journal skipped: product has no account mapping",
			slog.Int64("finished_product_id", finished.ID),
			slog.Int64("component_product_id", component.ID),
			slog.Int64("order_id", order.ID))
		return transactions.Transaction{}, false, nil
	}
	journal, err := s.journals.BuildPosted(ctx, transactions.CreateInput{
		TemplateID:  s.cfg.ProductionTemplateID,
		Date:        s.now(),
		Description: fmt.Sprintf("Production %s: consume %s into %s", order.Code, component.SKU, finished.SKU),
		Reference:   order.Code,
		Bindings: map[string]decimal.Decimal{
			"amount": amount,
		},
		AccountSlots: map[string]string{
			"finishedGoods": finished.Accounts.InventoryAccount,
			"materials":     component.Accounts.InventoryAccount,
		},
		ActorID: actorID,
	})
	if err != nil {
		return transactions.Transaction{}, false, err
	}
	return journal, true, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, orderID int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   shared.EntityProductionOrder,
		EntityID: fmt.Sprint(orderID),
		At:       s.now(),
	})
}
