package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit actions recorded by the bookkeeping services. Every state change
// that touches journal rows leaves one of these in the trail.
const (
	ActionTransactionCreate = "transaction.create"
	ActionTransactionEdit   = "transaction.edit"
	ActionTransactionPost   = "transaction.post"
	ActionTransactionVoid   = "transaction.void"
	ActionTransactionDelete = "transaction.delete"
	ActionAssetCreate       = "asset.create"
	ActionAssetDepreciate   = "asset.depreciate"
	ActionPayrollRunCreate  = "payroll.run.create"
	ActionPayrollRunPost    = "payroll.run.post"
	ActionOrderCreate       = "production.order.create"
	ActionOrderStart        = "production.order.start"
	ActionOrderCancel       = "production.order.cancel"
	ActionOrderComplete     = "production.order.complete"
)

// Entity names used in the trail. EntityID holds the transaction UUID or
// the numeric row id rendered as text.
const (
	EntityTransaction     = "transaction"
	EntityFixedAsset      = "fixed_asset"
	EntityPayrollRun      = "payroll_run"
	EntityProductionOrder = "production_order"
)

// AuditLog is one row of the bookkeeping trail in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger appends to the trail. Services treat it as best-effort; a
// failed append never rolls back the posting it describes.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns an AuditLogger writing through the given pool.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record appends one trail row. A zero At defers to the database clock.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("shared: audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("shared: audit log requires action, entity and entity id")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, log.At)
	return err
}
