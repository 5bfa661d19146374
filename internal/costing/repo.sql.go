package costing

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// LoadLayersForUpdate reads a product's remaining layers inside the caller's
// transaction, row-locked so concurrent consumers serialize.
func LoadLayersForUpdate(ctx context.Context, tx pgx.Tx, productID int64, policy Policy) (*Book, error) {
	rows, err := tx.Query(ctx,
		`SELECT seq, acquired_at, qty, unit_cost
		 FROM inventory_cost_layers
		 WHERE product_id = $1
		 ORDER BY seq
		 FOR UPDATE`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var layers []Layer
	for rows.Next() {
		var layer Layer
		if err := rows.Scan(&layer.Seq, &layer.AcquiredAt, &layer.Qty, &layer.UnitCost); err != nil {
			return nil, err
		}
		layers = append(layers, layer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return RestoreBook(policy, layers)
}

// SaveLayers replaces a product's persisted layers with the book's state.
// Always called under the row lock LoadLayersForUpdate took.
func SaveLayers(ctx context.Context, tx pgx.Tx, productID int64, book *Book) error {
	if _, err := tx.Exec(ctx, `DELETE FROM inventory_cost_layers WHERE product_id = $1`, productID); err != nil {
		return err
	}
	for _, layer := range book.Layers() {
		_, err := tx.Exec(ctx,
			`INSERT INTO inventory_cost_layers (product_id, seq, acquired_at, qty, unit_cost)
			 VALUES ($1, $2, $3, $4, $5)`,
			productID, layer.Seq, layer.AcquiredAt, layer.Qty, layer.UnitCost)
		if err != nil {
			return err
		}
	}
	return nil
}
