// Package assets tracks fixed assets and generates monthly depreciation
// journals, one entry per asset per period.
package assets

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Method enumerates supported depreciation methods.
type Method string

const (
	MethodStraightLine     Method = "STRAIGHT_LINE"
	MethodDecliningBalance Method = "DECLINING_BALANCE"
)

// AccountMapping links an asset to its depreciation accounts.
type AccountMapping struct {
	ExpenseAccount     string `json:"expenseAccount"`
	AccumulatedAccount string `json:"accumulatedAccount"`
}

// Asset is a depreciable fixed asset. Accumulated grows with every
// generated period and never exceeds Cost minus Residual.
type Asset struct {
	ID          int64           `json:"id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Cost        decimal.Decimal `json:"cost"`
	Residual    decimal.Decimal `json:"residual"`
	Method      Method          `json:"method"`
	LifeMonths  int             `json:"lifeMonths"`
	Accumulated decimal.Decimal `json:"accumulated"`
	AcquiredAt  time.Time       `json:"acquiredAt"`
	Accounts    AccountMapping  `json:"accounts"`
	IsActive    bool            `json:"isActive"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// BookValue returns cost minus accumulated depreciation.
func (a Asset) BookValue() decimal.Decimal {
	return a.Cost.Sub(a.Accumulated)
}

// Entry is one generated depreciation row, unique per (asset, period).
type Entry struct {
	ID            int64           `json:"id"`
	AssetID       int64           `json:"assetId"`
	Period        string          `json:"period"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID *uuid.UUID      `json:"transactionId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

var (
	// ErrAssetNotFound indicates an unknown asset id.
	ErrAssetNotFound = errors.New("assets: asset not found")
	// ErrAssetInactive indicates a generation request for a disposed asset.
	ErrAssetInactive = errors.New("assets: asset is inactive")
	// ErrUnknownMethod indicates an unsupported depreciation method.
	ErrUnknownMethod = errors.New("assets: unknown depreciation method")
	// ErrInvalidLife indicates a non-positive useful life.
	ErrInvalidLife = errors.New("assets: useful life must be positive")
	// ErrInvalidCost indicates a cost lower than the residual value.
	ErrInvalidCost = errors.New("assets: cost must cover the residual value")
	// ErrAlreadyDepreciated indicates an entry already exists for the period.
	ErrAlreadyDepreciated = errors.New("assets: period already depreciated")
	// ErrFullyDepreciated indicates no depreciable value remains.
	ErrFullyDepreciated = errors.New("assets: asset fully depreciated")
	// ErrPeriodBeforeAcquisition indicates a period earlier than acquisition.
	ErrPeriodBeforeAcquisition = errors.New("assets: period precedes acquisition date")
)
