// Package costing maintains per-product inventory cost layers and computes
// the cost basis charged when stock is consumed.
package costing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Policy selects how a product's consumption cost basis is computed.
type Policy string

const (
	// PolicyFIFO drains acquisition layers oldest-first.
	PolicyFIFO Policy = "FIFO"
	// PolicyAverage keeps one synthetic layer at a running average cost.
	PolicyAverage Policy = "AVERAGE"
)

// Layer is a quantity-at-cost record.
type Layer struct {
	Seq        int64
	AcquiredAt time.Time
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
}

// Draw records how much of one layer a consumption took.
type Draw struct {
	Seq      int64
	Qty      decimal.Decimal
	UnitCost decimal.Decimal
}

// Consumption is the cost basis of one consume call. TotalCost may span
// several unit costs when FIFO crosses layer boundaries.
type Consumption struct {
	Qty       decimal.Decimal
	TotalCost decimal.Decimal
	Draws     []Draw
}

// UnitCost returns the weighted cost basis per unit.
func (c Consumption) UnitCost() decimal.Decimal {
	if c.Qty.IsZero() {
		return decimal.Zero
	}
	return c.TotalCost.Div(c.Qty)
}

var (
	// ErrUnknownPolicy indicates a policy outside FIFO/AVERAGE.
	ErrUnknownPolicy = errors.New("costing: unknown costing policy")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("costing: quantity must be positive")
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = errors.New("costing: unit cost must be >= 0")
	// ErrInsufficientStock indicates consumption beyond remaining quantity.
	// Raised before any layer is touched; a failed consume mutates nothing.
	ErrInsufficientStock = errors.New("costing: insufficient stock")
)

// Book holds one product's cost layers under a single policy.
type Book struct {
	policy  Policy
	layers  []Layer
	nextSeq int64
}

// NewBook builds an empty Book.
func NewBook(policy Policy) (*Book, error) {
	if policy != PolicyFIFO && policy != PolicyAverage {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}
	return &Book{policy: policy, nextSeq: 1}, nil
}

// RestoreBook rebuilds a Book from persisted layers.
func RestoreBook(policy Policy, layers []Layer) (*Book, error) {
	book, err := NewBook(policy)
	if err != nil {
		return nil, err
	}
	book.layers = append(book.layers, layers...)
	for _, layer := range layers {
		if layer.Seq >= book.nextSeq {
			book.nextSeq = layer.Seq + 1
		}
	}
	return book, nil
}

// Policy returns the book's costing policy.
func (b *Book) Policy() Policy { return b.policy }

// Layers returns a copy of the remaining layers, oldest first.
func (b *Book) Layers() []Layer {
	return append([]Layer(nil), b.layers...)
}

// OnHand returns the total remaining quantity across layers.
func (b *Book) OnHand() decimal.Decimal {
	total := decimal.Zero
	for _, layer := range b.layers {
		total = total.Add(layer.Qty)
	}
	return total
}

// Valuation returns the total remaining cost across layers.
func (b *Book) Valuation() decimal.Decimal {
	total := decimal.Zero
	for _, layer := range b.layers {
		total = total.Add(layer.Qty.Mul(layer.UnitCost))
	}
	return total
}

// Receive adds stock at the given unit cost.
func (b *Book) Receive(qty, unitCost decimal.Decimal, date time.Time) error {
	if qty.Sign() <= 0 {
		return fmt.Errorf("%w: received %s", ErrInvalidQuantity, qty)
	}
	if unitCost.Sign() < 0 {
		return fmt.Errorf("%w: received %s", ErrInvalidUnitCost, unitCost)
	}
	switch b.policy {
	case PolicyAverage:
		if len(b.layers) == 0 {
			b.layers = []Layer{{Seq: b.takeSeq(), AcquiredAt: date, Qty: qty, UnitCost: unitCost}}
			return nil
		}
		bucket := &b.layers[0]
		newQty := bucket.Qty.Add(qty)
		// newAverage = (oldQty*oldAvg + recvQty*recvCost) / (oldQty+recvQty)
		bucket.UnitCost = bucket.Qty.Mul(bucket.UnitCost).Add(qty.Mul(unitCost)).Div(newQty)
		bucket.Qty = newQty
		bucket.AcquiredAt = date
		return nil
	default:
		b.layers = append(b.layers, Layer{Seq: b.takeSeq(), AcquiredAt: date, Qty: qty, UnitCost: unitCost})
		return nil
	}
}

// Consume removes stock and returns its cost basis. All-or-nothing: when
// the requested quantity exceeds on-hand stock no layer is modified.
func (b *Book) Consume(qty decimal.Decimal) (Consumption, error) {
	if qty.Sign() <= 0 {
		return Consumption{}, fmt.Errorf("%w: consumed %s", ErrInvalidQuantity, qty)
	}
	if qty.GreaterThan(b.OnHand()) {
		return Consumption{}, fmt.Errorf("%w: requested %s, on hand %s", ErrInsufficientStock, qty, b.OnHand())
	}

	result := Consumption{Qty: qty}
	remaining := qty
	kept := b.layers[:0]
	for _, layer := range b.layers {
		if remaining.IsZero() {
			kept = append(kept, layer)
			continue
		}
		take := layer.Qty
		if take.GreaterThan(remaining) {
			take = remaining
		}
		result.Draws = append(result.Draws, Draw{Seq: layer.Seq, Qty: take, UnitCost: layer.UnitCost})
		result.TotalCost = result.TotalCost.Add(take.Mul(layer.UnitCost))
		remaining = remaining.Sub(take)
		layer.Qty = layer.Qty.Sub(take)
		if layer.Qty.Sign() > 0 {
			kept = append(kept, layer)
		}
	}
	b.layers = kept
	return result, nil
}

func (b *Book) takeSeq() int64 {
	seq := b.nextSeq
	b.nextSeq++
	return seq
}
