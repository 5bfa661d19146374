package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artha-erp/artha/internal/costing"
	"github.com/artha-erp/artha/internal/platform/db"
	"github.com/artha-erp/artha/internal/transactions"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetProduct(ctx context.Context, productID int64) (Product, error)
	LoadBookForUpdate(ctx context.Context, productID int64, policy costing.Policy) (*costing.Book, error)
	SaveBook(ctx context.Context, productID int64, book *costing.Book) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
	InsertPostedTransaction(ctx context.Context, txn transactions.Transaction) error
}

// Repository persists products, movements and cost layers in PostgreSQL.
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

const productQuery = `
SELECT id, sku, name, costing_policy, is_active,
       inventory_account, cogs_account, sales_account, receivable_account,
       created_at, updated_at
FROM products
`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var inv, cogs, sales, recv *string
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Policy, &p.IsActive,
		&inv, &cogs, &sales, &recv, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, err
	}
	if inv != nil {
		p.Accounts = &AccountMapping{
			InventoryAccount:  *inv,
			COGSAccount:       deref(cogs),
			SalesAccount:      deref(sales),
			ReceivableAccount: deref(recv),
		}
	}
	return p, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// GetProductTx reads a product inside the caller's transaction. Shared with
// the production module, which moves stock under its own unit of work.
func GetProductTx(ctx context.Context, tx pgx.Tx, productID int64) (Product, error) {
	return scanProduct(tx.QueryRow(ctx, productQuery+`WHERE id = $1`, productID))
}

// InsertMovementTx writes one movement row inside the caller's transaction.
func InsertMovementTx(ctx context.Context, tx pgx.Tx, movement Movement) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO inventory_movements
		   (product_id, movement_type, qty, unit_cost, unit_price, moved_at,
		    reference, note, transaction_id, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		movement.ProductID, movement.Type, movement.Qty, movement.UnitCost,
		movement.UnitPrice, movement.MovedAt, movement.Reference, movement.Note,
		movement.TransactionID, movement.CreatedBy, movement.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetProduct(ctx context.Context, productID int64) (Product, error) {
	return GetProductTx(ctx, r.tx, productID)
}

func (r *txRepository) LoadBookForUpdate(ctx context.Context, productID int64, policy costing.Policy) (*costing.Book, error) {
	return costing.LoadLayersForUpdate(ctx, r.tx, productID, policy)
}

func (r *txRepository) SaveBook(ctx context.Context, productID int64, book *costing.Book) error {
	return costing.SaveLayers(ctx, r.tx, productID, book)
}

func (r *txRepository) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	return InsertMovementTx(ctx, r.tx, movement)
}

func (r *txRepository) InsertPostedTransaction(ctx context.Context, txn transactions.Transaction) error {
	return transactions.InsertPosted(ctx, r.tx, txn)
}

func (r *Repository) InsertProduct(ctx context.Context, product Product) (Product, error) {
	var inv, cogs, sales, recv *string
	if m := product.Accounts; m != nil {
		inv, cogs, sales, recv = &m.InventoryAccount, &m.COGSAccount, &m.SalesAccount, &m.ReceivableAccount
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO products
		   (sku, name, costing_policy, is_active,
		    inventory_account, cogs_account, sales_account, receivable_account,
		    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		product.SKU, product.Name, product.Policy, product.IsActive,
		inv, cogs, sales, recv, product.CreatedAt, product.UpdatedAt).Scan(&product.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Product{}, ErrDuplicateSKU
		}
		return Product{}, err
	}
	return product, nil
}

func (r *Repository) GetProduct(ctx context.Context, productID int64) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, productQuery+`WHERE id = $1`, productID))
}

func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, productQuery+`ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func (r *Repository) SetProductActive(ctx context.Context, productID int64, active bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE products SET is_active = $2, updated_at = NOW() WHERE id = $1`,
		productID, active)
	return err
}

// GetLayers reads a product's remaining cost layers without locking.
func (r *Repository) GetLayers(ctx context.Context, productID int64) ([]costing.Layer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT seq, acquired_at, qty, unit_cost
		 FROM inventory_cost_layers
		 WHERE product_id = $1
		 ORDER BY seq`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var layers []costing.Layer
	for rows.Next() {
		var layer costing.Layer
		if err := rows.Scan(&layer.Seq, &layer.AcquiredAt, &layer.Qty, &layer.UnitCost); err != nil {
			return nil, err
		}
		layers = append(layers, layer)
	}
	return layers, rows.Err()
}

// ListMovements returns a product's movements, newest first.
func (r *Repository) ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, product_id, movement_type, qty, unit_cost, unit_price,
		        moved_at, reference, note, transaction_id, created_by, created_at
		 FROM inventory_movements
		 WHERE product_id = $1
		 ORDER BY id DESC
		 LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		err := rows.Scan(&m.ID, &m.ProductID, &m.Type, &m.Qty, &m.UnitCost,
			&m.UnitPrice, &m.MovedAt, &m.Reference, &m.Note, &m.TransactionID,
			&m.CreatedBy, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}
