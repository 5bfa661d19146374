// Package inventory records stock movements, drives the per-product cost
// ledger, and generates the matching journal transactions.
package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/artha-erp/artha/internal/costing"
)

// MovementType enumerates supported inventory movements.
type MovementType string

const (
	MovementPurchase          MovementType = "PURCHASE"
	MovementSale              MovementType = "SALE"
	MovementProductionConsume MovementType = "PRODUCTION_CONSUME"
	MovementProductionYield   MovementType = "PRODUCTION_YIELD"
)

// AccountMapping links a product to its ledger accounts. Products without
// a mapping still move stock; they just never generate journals.
type AccountMapping struct {
	InventoryAccount  string `json:"inventoryAccount"`
	COGSAccount       string `json:"cogsAccount"`
	SalesAccount      string `json:"salesAccount"`
	ReceivableAccount string `json:"receivableAccount"`
}

// Product is a stock-tracked item with a costing policy tag.
type Product struct {
	ID        int64           `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Policy    costing.Policy  `json:"policy"`
	IsActive  bool            `json:"isActive"`
	Accounts  *AccountMapping `json:"accounts,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Movement is one inventory transaction row. UnitCost is the cost basis
// the cost ledger charged (filled at consumption time for sales);
// TransactionID is nil when no journal was generated.
type Movement struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"productId"`
	Type          MovementType    `json:"type"`
	Qty           decimal.Decimal `json:"qty"`
	UnitCost      decimal.Decimal `json:"unitCost"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	MovedAt       time.Time       `json:"movedAt"`
	Reference     string          `json:"reference,omitempty"`
	Note          string          `json:"note,omitempty"`
	TransactionID *uuid.UUID      `json:"transactionId,omitempty"`
	CreatedBy     int64           `json:"createdBy"`
	CreatedAt     time.Time       `json:"createdAt"`
}

var (
	// ErrProductNotFound indicates an unknown product id.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrProductInactive indicates a movement against a deactivated product.
	ErrProductInactive = errors.New("inventory: product is inactive")
	// ErrInvalidQuantity indicates a non-positive movement quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInvalidPrice indicates a negative unit price or cost.
	ErrInvalidPrice = errors.New("inventory: unit price must be >= 0")
	// ErrSKURequired indicates a product without a stock keeping unit.
	ErrSKURequired = errors.New("inventory: sku is required")
	// ErrDuplicateSKU indicates a product with a taken stock keeping unit.
	ErrDuplicateSKU = errors.New("inventory: sku already exists")
	// ErrIncompleteMapping indicates an account mapping missing a slot.
	ErrIncompleteMapping = errors.New("inventory: account mapping must name all four accounts")
)
