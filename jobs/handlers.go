package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/artha-erp/artha/internal/assets"
	"github.com/artha-erp/artha/internal/shared"
)

// Deps holds the services background tasks operate on.
type Deps struct {
	Assets      *assets.Service
	Idempotency *shared.IdempotencyStore
	Logger      *slog.Logger
}

// HandleDepreciationRun generates depreciation entries for every active
// asset. Assets already covered for the period are skipped, so the task
// is safe to re-deliver.
func (d Deps) HandleDepreciationRun(ctx context.Context, t *asynq.Task) error {
	var payload DepreciationRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	period := payload.Period
	if period == "" {
		period = shared.PeriodOf(time.Now().AddDate(0, -1, 0))
	}
	generated, err := d.Assets.GenerateAll(ctx, period, 0)
	if err != nil {
		return err
	}
	d.Logger.Info("depreciation run finished",
		slog.String("period", period),
		slog.Int("generated", generated))
	return nil
}

// HandleIdempotencyCleanup deletes idempotency keys past retention.
func (d Deps) HandleIdempotencyCleanup(ctx context.Context, t *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := payload.Retention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if err := d.Idempotency.Cleanup(ctx, retention); err != nil {
		return err
	}
	d.Logger.Info("idempotency cleanup finished", slog.Duration("retention", retention))
	return nil
}
