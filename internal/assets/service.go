package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artha-erp/artha/internal/shared"
	"github.com/artha-erp/artha/internal/transactions"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	InsertAsset(ctx context.Context, asset Asset) (Asset, error)
	GetAsset(ctx context.Context, assetID int64) (Asset, error)
	ListAssets(ctx context.Context, activeOnly bool) ([]Asset, error)
	ListEntries(ctx context.Context, assetID int64) ([]Entry, error)
}

// JournalPort builds posted transactions for atomic insertion.
type JournalPort interface {
	BuildPosted(ctx context.Context, input transactions.CreateInput) (transactions.Transaction, error)
}

// Config carries the template id the depreciation journal binds.
type Config struct {
	DepreciationTemplateID int64
}

// Service owns the asset register and the depreciation generator.
type Service struct {
	repo     RepositoryPort
	journals JournalPort
	audit    AuditPort
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// AuditPort records generation events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NewService builds Service.
func NewService(repo RepositoryPort, journals JournalPort, audit AuditPort, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, journals: journals, audit: audit, logger: logger, cfg: cfg, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateInput groups fields for a new asset.
type CreateInput struct {
	Code       string
	Name       string
	Cost       decimal.Decimal
	Residual   decimal.Decimal
	Method     Method
	LifeMonths int
	AcquiredAt time.Time
	Accounts   AccountMapping
	ActorID    int64
}

// Create validates and registers a fixed asset.
func (s *Service) Create(ctx context.Context, input CreateInput) (Asset, error) {
	switch input.Method {
	case MethodStraightLine, MethodDecliningBalance:
	default:
		return Asset{}, fmt.Errorf("%w: %s", ErrUnknownMethod, input.Method)
	}
	if input.LifeMonths <= 0 {
		return Asset{}, ErrInvalidLife
	}
	if input.Residual.Sign() < 0 || input.Cost.LessThan(input.Residual) {
		return Asset{}, ErrInvalidCost
	}
	now := s.now()
	acquired := input.AcquiredAt
	if acquired.IsZero() {
		acquired = now
	}
	asset, err := s.repo.InsertAsset(ctx, Asset{
		Code:        input.Code,
		Name:        input.Name,
		Cost:        input.Cost,
		Residual:    input.Residual,
		Method:      input.Method,
		LifeMonths:  input.LifeMonths,
		Accumulated: decimal.Zero,
		AcquiredAt:  acquired,
		Accounts:    input.Accounts,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Asset{}, err
	}
	s.record(ctx, input.ActorID, shared.ActionAssetCreate, asset.ID, nil)
	return asset, nil
}

// Get returns one asset.
func (s *Service) Get(ctx context.Context, assetID int64) (Asset, error) {
	return s.repo.GetAsset(ctx, assetID)
}

// List returns assets, optionally active only.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]Asset, error) {
	return s.repo.ListAssets(ctx, activeOnly)
}

// Entries returns an asset's generated depreciation rows.
func (s *Service) Entries(ctx context.Context, assetID int64) ([]Entry, error) {
	if _, err := s.repo.GetAsset(ctx, assetID); err != nil {
		return nil, err
	}
	return s.repo.ListEntries(ctx, assetID)
}

// Generate creates the depreciation entry for one asset and period,
// updates the accumulated figure and posts the journal, all in one unit
// of work. A second call for the same (asset, period) is rejected.
func (s *Service) Generate(ctx context.Context, assetID int64, period string, actorID int64) (Entry, error) {
	if _, err := shared.ParsePeriod(period); err != nil {
		return Entry{}, err
	}
	periodDate, err := shared.PeriodEnd(period)
	if err != nil {
		return Entry{}, err
	}

	var out Entry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		asset, err := tx.GetAssetForUpdate(ctx, assetID)
		if err != nil {
			return err
		}
		if !asset.IsActive {
			return ErrAssetInactive
		}
		// YYYY-MM keys order lexicographically.
		if period < shared.PeriodOf(asset.AcquiredAt) {
			return ErrPeriodBeforeAcquisition
		}
		exists, err := tx.EntryExists(ctx, asset.ID, period)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyDepreciated
		}

		amount, err := periodAmount(asset)
		if err != nil {
			return err
		}

		asset.Accumulated = asset.Accumulated.Add(amount)
		if err := tx.UpdateAccumulated(ctx, asset.ID, asset.Accumulated); err != nil {
			return err
		}

		entry := Entry{
			AssetID:   asset.ID,
			Period:    period,
			Amount:    amount,
			CreatedAt: s.now(),
		}
		journal, err := s.journals.BuildPosted(ctx, transactions.CreateInput{
			TemplateID:  s.cfg.DepreciationTemplateID,
			Date:        periodDate,
			Description: fmt.Sprintf("Depreciation %s %s", asset.Code, period),
			Reference:   fmt.Sprintf("DEP-%d-%s", asset.ID, period),
			Bindings: map[string]decimal.Decimal{
				"amount": amount,
			},
			AccountSlots: map[string]string{
				"expense":     asset.Accounts.ExpenseAccount,
				"accumulated": asset.Accounts.AccumulatedAccount,
			},
			ActorID: actorID,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertPostedTransaction(ctx, journal); err != nil {
			return err
		}
		entry.TransactionID = &journal.ID

		out, err = tx.InsertEntry(ctx, entry)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, actorID, shared.ActionAssetDepreciate, assetID, map[string]any{"period": period, "amount": out.Amount.String()})
	return out, nil
}

// GenerateAll runs Generate for every active asset, skipping assets
// already covered for the period or fully written down. Used by the
// monthly scheduler.
func (s *Service) GenerateAll(ctx context.Context, period string, actorID int64) (int, error) {
	assets, err := s.repo.ListAssets(ctx, true)
	if err != nil {
		return 0, err
	}
	generated := 0
	for _, asset := range assets {
		_, err := s.Generate(ctx, asset.ID, period, actorID)
		switch {
		case err == nil:
			generated++
		case isSkippable(err):
			s.logger.Info("depreciation skipped",
				slog.Int64("asset_id", asset.ID),
				slog.String("period", period),
				slog.String("reason", err.Error()))
		default:
			return generated, err
		}
	}
	return generated, nil
}

func isSkippable(err error) bool {
	return errors.Is(err, ErrAlreadyDepreciated) ||
		errors.Is(err, ErrFullyDepreciated) ||
		errors.Is(err, ErrPeriodBeforeAcquisition)
}

// periodAmount computes one month of depreciation, floored so the
// accumulated figure never crosses cost minus residual.
func periodAmount(asset Asset) (decimal.Decimal, error) {
	depreciable := asset.Cost.Sub(asset.Residual)
	remaining := depreciable.Sub(asset.Accumulated)
	if remaining.Sign() <= 0 {
		return decimal.Zero, ErrFullyDepreciated
	}

	var amount decimal.Decimal
	switch asset.Method {
	case MethodStraightLine:
		amount = depreciable.Div(decimal.NewFromInt(int64(asset.LifeMonths))).Round(2)
	case MethodDecliningBalance:
		// Double-declining monthly rate applied to the open book value.
		rate := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(asset.LifeMonths)))
		amount = asset.BookValue().Mul(rate).Round(2)
	default:
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownMethod, asset.Method)
	}
	if amount.GreaterThan(remaining) {
		amount = remaining
	}
	if amount.Sign() <= 0 {
		return decimal.Zero, ErrFullyDepreciated
	}
	return amount, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, assetID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   shared.EntityFixedAsset,
		EntityID: fmt.Sprint(assetID),
		Meta:     meta,
		At:       s.now(),
	})
}
