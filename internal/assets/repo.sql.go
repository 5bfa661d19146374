package assets

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/artha-erp/artha/internal/platform/db"
	"github.com/artha-erp/artha/internal/transactions"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetAssetForUpdate(ctx context.Context, assetID int64) (Asset, error)
	EntryExists(ctx context.Context, assetID int64, period string) (bool, error)
	UpdateAccumulated(ctx context.Context, assetID int64, accumulated decimal.Decimal) error
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
	InsertPostedTransaction(ctx context.Context, txn transactions.Transaction) error
}

// Repository persists fixed assets in PostgreSQL.
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

const assetQuery = `
SELECT id, code, name, cost, residual, method, life_months, accumulated,
       acquired_at, expense_account, accumulated_account, is_active,
       created_at, updated_at
FROM fixed_assets
`

func scanAsset(row pgx.Row) (Asset, error) {
	var a Asset
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Cost, &a.Residual, &a.Method,
		&a.LifeMonths, &a.Accumulated, &a.AcquiredAt,
		&a.Accounts.ExpenseAccount, &a.Accounts.AccumulatedAccount,
		&a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Asset{}, ErrAssetNotFound
	}
	return a, err
}

func (r *Repository) InsertAsset(ctx context.Context, asset Asset) (Asset, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO fixed_assets
		   (code, name, cost, residual, method, life_months, accumulated,
		    acquired_at, expense_account, accumulated_account, is_active,
		    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id`,
		asset.Code, asset.Name, asset.Cost, asset.Residual, asset.Method,
		asset.LifeMonths, asset.Accumulated, asset.AcquiredAt,
		asset.Accounts.ExpenseAccount, asset.Accounts.AccumulatedAccount,
		asset.IsActive, asset.CreatedAt, asset.UpdatedAt).Scan(&asset.ID)
	return asset, err
}

func (r *Repository) GetAsset(ctx context.Context, assetID int64) (Asset, error) {
	return scanAsset(r.pool.QueryRow(ctx, assetQuery+`WHERE id = $1`, assetID))
}

func (r *Repository) ListAssets(ctx context.Context, activeOnly bool) ([]Asset, error) {
	query := assetQuery + `ORDER BY id`
	if activeOnly {
		query = assetQuery + `WHERE is_active ORDER BY id`
	}
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assets []Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// ListEntries returns an asset's depreciation rows, oldest first.
func (r *Repository) ListEntries(ctx context.Context, assetID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, asset_id, period, amount, transaction_id, created_at
		 FROM depreciation_entries
		 WHERE asset_id = $1
		 ORDER BY period`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.AssetID, &e.Period, &e.Amount, &e.TransactionID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) GetAssetForUpdate(ctx context.Context, assetID int64) (Asset, error) {
	return scanAsset(r.tx.QueryRow(ctx, assetQuery+`WHERE id = $1 FOR UPDATE`, assetID))
}

func (r *txRepository) EntryExists(ctx context.Context, assetID int64, period string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM depreciation_entries WHERE asset_id = $1 AND period = $2)`,
		assetID, period).Scan(&exists)
	return exists, err
}

func (r *txRepository) UpdateAccumulated(ctx context.Context, assetID int64, accumulated decimal.Decimal) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE fixed_assets SET accumulated = $2, updated_at = NOW() WHERE id = $1`,
		assetID, accumulated)
	return err
}

func (r *txRepository) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	err := r.tx.QueryRow(ctx,
		`INSERT INTO depreciation_entries (asset_id, period, amount, transaction_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		entry.AssetID, entry.Period, entry.Amount, entry.TransactionID, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		// The unique (asset_id, period) key backstops the existence check.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Entry{}, ErrAlreadyDepreciated
		}
		return Entry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertPostedTransaction(ctx context.Context, txn transactions.Transaction) error {
	return transactions.InsertPosted(ctx, r.tx, txn)
}
