// Package production manages bills of material and production orders.
// Completing an order consumes component stock, receives the finished
// good at the blended unit cost, and posts the production journals.
package production

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates the production order lifecycle.
type OrderStatus string

const (
	OrderDraft      OrderStatus = "DRAFT"
	OrderInProgress OrderStatus = "IN_PROGRESS"
	OrderCompleted  OrderStatus = "COMPLETED"
	OrderCancelled  OrderStatus = "CANCELLED"
)

// Component is one BOM line: a product and the quantity needed to make
// the BOM's output quantity.
type Component struct {
	ProductID int64           `json:"productId"`
	Qty       decimal.Decimal `json:"qty"`
}

// BOM maps one finished-good quantity to a set of component quantities.
type BOM struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	ProductID  int64           `json:"productId"`
	OutputQty  decimal.Decimal `json:"outputQty"`
	Components []Component     `json:"components,omitempty"`
	IsActive   bool            `json:"isActive"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Order is a production run against a BOM. TotalCost and UnitCost are
// filled on completion from the consumed component cost basis.
type Order struct {
	ID          int64           `json:"id"`
	Code        string          `json:"code"`
	BOMID       int64           `json:"bomId"`
	Qty         decimal.Decimal `json:"qty"`
	Status      OrderStatus     `json:"status"`
	Note        string          `json:"note,omitempty"`
	TotalCost   decimal.Decimal `json:"totalCost"`
	UnitCost    decimal.Decimal `json:"unitCost"`
	CreatedBy   int64           `json:"createdBy"`
	CreatedAt   time.Time       `json:"createdAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

var (
	// ErrBOMNotFound indicates an unknown BOM id.
	ErrBOMNotFound = errors.New("production: bom not found")
	// ErrOrderNotFound indicates an unknown order id.
	ErrOrderNotFound = errors.New("production: order not found")
	// ErrInvalidOrderState indicates a transition the lifecycle forbids.
	ErrInvalidOrderState = errors.New("production: invalid order state for this action")
	// ErrNoComponents indicates a BOM without component lines.
	ErrNoComponents = errors.New("production: bom needs at least one component")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("production: quantity must be positive")
	// ErrComponentIsOutput indicates a BOM consuming its own output.
	ErrComponentIsOutput = errors.New("production: component cannot be the finished product")
	// ErrBOMInactive indicates an order against a deactivated BOM.
	ErrBOMInactive = errors.New("production: bom is inactive")
)
