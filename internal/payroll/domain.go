// Package payroll posts journals for externally computed payroll runs.
package payroll

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Run is one computed payroll period handed over by the payroll system.
// TransactionID is nil until the journal is generated.
type Run struct {
	ID            int64           `json:"id"`
	Period        string          `json:"period"`
	Gross         decimal.Decimal `json:"gross"`
	Deductions    decimal.Decimal `json:"deductions"`
	Net           decimal.Decimal `json:"net"`
	Headcount     int             `json:"headcount"`
	TransactionID *uuid.UUID      `json:"transactionId,omitempty"`
	CreatedBy     int64           `json:"createdBy"`
	CreatedAt     time.Time       `json:"createdAt"`
	PostedAt      *time.Time      `json:"postedAt,omitempty"`
}

var (
	// ErrRunNotFound indicates an unknown payroll run id.
	ErrRunNotFound = errors.New("payroll: run not found")
	// ErrAlreadyPosted indicates the run's journal was already generated.
	ErrAlreadyPosted = errors.New("payroll: run already posted")
	// ErrDuplicatePeriod indicates a second run for the same period.
	ErrDuplicatePeriod = errors.New("payroll: period already has a run")
	// ErrInvalidAmount indicates a negative gross or deduction figure.
	ErrInvalidAmount = errors.New("payroll: amounts must be non-negative")
	// ErrAmountMismatch indicates net does not equal gross minus deductions.
	ErrAmountMismatch = errors.New("payroll: net must equal gross minus deductions")
)
