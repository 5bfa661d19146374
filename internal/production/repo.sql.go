package production

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artha-erp/artha/internal/costing"
	"github.com/artha-erp/artha/internal/inventory"
	"github.com/artha-erp/artha/internal/platform/db"
	"github.com/artha-erp/artha/internal/transactions"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, orderID int64) (Order, error)
	UpdateOrderStatus(ctx context.Context, order Order) error
	GetProduct(ctx context.Context, productID int64) (inventory.Product, error)
	LoadBookForUpdate(ctx context.Context, productID int64, policy costing.Policy) (*costing.Book, error)
	SaveBook(ctx context.Context, productID int64, book *costing.Book) error
	InsertMovement(ctx context.Context, movement inventory.Movement) (int64, error)
	InsertPostedTransaction(ctx context.Context, txn transactions.Transaction) error
}

// Repository persists BOMs and production orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *Repository) InsertBOM(ctx context.Context, bom BOM) (BOM, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return BOM{}, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO bill_of_materials (name, product_id, output_qty, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		bom.Name, bom.ProductID, bom.OutputQty, bom.IsActive, bom.CreatedAt, bom.UpdatedAt).Scan(&bom.ID)
	if err != nil {
		return BOM{}, err
	}
	for _, c := range bom.Components {
		_, err := tx.Exec(ctx,
			`INSERT INTO bom_components (bom_id, product_id, qty) VALUES ($1, $2, $3)`,
			bom.ID, c.ProductID, c.Qty)
		if err != nil {
			return BOM{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return BOM{}, err
	}
	return bom, nil
}

const bomQuery = `
SELECT id, name, product_id, output_qty, is_active, created_at, updated_at
FROM bill_of_materials
`

func (r *Repository) scanBOM(ctx context.Context, row pgx.Row) (BOM, error) {
	var bom BOM
	err := row.Scan(&bom.ID, &bom.Name, &bom.ProductID, &bom.OutputQty,
		&bom.IsActive, &bom.CreatedAt, &bom.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BOM{}, ErrBOMNotFound
	}
	if err != nil {
		return BOM{}, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT product_id, qty FROM bom_components WHERE bom_id = $1 ORDER BY id`, bom.ID)
	if err != nil {
		return BOM{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var c Component
		if err := rows.Scan(&c.ProductID, &c.Qty); err != nil {
			return BOM{}, err
		}
		bom.Components = append(bom.Components, c)
	}
	return bom, rows.Err()
}

func (r *Repository) GetBOM(ctx context.Context, bomID int64) (BOM, error) {
	return r.scanBOM(ctx, r.pool.QueryRow(ctx, bomQuery+`WHERE id = $1`, bomID))
}

func (r *Repository) ListBOMs(ctx context.Context, limit int) ([]BOM, error) {
	rows, err := r.pool.Query(ctx, bomQuery+`ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var heads []BOM
	for rows.Next() {
		var bom BOM
		err := rows.Scan(&bom.ID, &bom.Name, &bom.ProductID, &bom.OutputQty,
			&bom.IsActive, &bom.CreatedAt, &bom.UpdatedAt)
		if err != nil {
			return nil, err
		}
		heads = append(heads, bom)
	}
	return heads, rows.Err()
}

const orderQuery = `
SELECT id, code, bom_id, qty, status, note, total_cost, unit_cost,
       created_by, created_at, started_at, completed_at
FROM production_orders
`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Code, &o.BOMID, &o.Qty, &o.Status, &o.Note,
		&o.TotalCost, &o.UnitCost, &o.CreatedBy, &o.CreatedAt, &o.StartedAt, &o.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

func (r *Repository) InsertOrder(ctx context.Context, order Order) (Order, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO production_orders
		   (code, bom_id, qty, status, note, total_cost, unit_cost, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, 0, 0, $6, $7)
		 RETURNING id`,
		order.Code, order.BOMID, order.Qty, order.Status, order.Note,
		order.CreatedBy, order.CreatedAt).Scan(&order.ID)
	return order, err
}

func (r *Repository) GetOrder(ctx context.Context, orderID int64) (Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, orderQuery+`WHERE id = $1`, orderID))
}

func (r *Repository) ListOrders(ctx context.Context, limit int) ([]Order, error) {
	rows, err := r.pool.Query(ctx, orderQuery+`ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, orderID int64) (Order, error) {
	return scanOrder(r.tx.QueryRow(ctx, orderQuery+`WHERE id = $1 FOR UPDATE`, orderID))
}

func (r *txRepository) UpdateOrderStatus(ctx context.Context, order Order) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE production_orders
		 SET status = $2, total_cost = $3, unit_cost = $4, started_at = $5, completed_at = $6
		 WHERE id = $1`,
		order.ID, order.Status, order.TotalCost, order.UnitCost, order.StartedAt, order.CompletedAt)
	return err
}

func (r *txRepository) GetProduct(ctx context.Context, productID int64) (inventory.Product, error) {
	return inventory.GetProductTx(ctx, r.tx, productID)
}

func (r *txRepository) LoadBookForUpdate(ctx context.Context, productID int64, policy costing.Policy) (*costing.Book, error) {
	return costing.LoadLayersForUpdate(ctx, r.tx, productID, policy)
}

func (r *txRepository) SaveBook(ctx context.Context, productID int64, book *costing.Book) error {
	return costing.SaveLayers(ctx, r.tx, productID, book)
}

func (r *txRepository) InsertMovement(ctx context.Context, movement inventory.Movement) (int64, error) {
	return inventory.InsertMovementTx(ctx, r.tx, movement)
}

func (r *txRepository) InsertPostedTransaction(ctx context.Context, txn transactions.Transaction) error {
	return transactions.InsertPosted(ctx, r.tx, txn)
}
