package costing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(n int) time.Time {
	return time.Date(2025, 3, n, 0, 0, 0, 0, time.UTC)
}

func TestFIFOConsumptionSpansLayers(t *testing.T) {
	book, err := NewBook(PolicyFIFO)
	require.NoError(t, err)
	require.NoError(t, book.Receive(d("10"), d("15000"), day(1)))
	require.NoError(t, book.Receive(d("20"), d("10000"), day(2)))

	got, err := book.Consume(d("15"))
	require.NoError(t, err)
	// 10 @ 15000 + 5 @ 10000
	require.True(t, got.TotalCost.Equal(d("200000")), "total cost %s", got.TotalCost)
	require.Len(t, got.Draws, 2)
	require.True(t, got.Draws[0].Qty.Equal(d("10")))
	require.True(t, got.Draws[1].Qty.Equal(d("5")))

	layers := book.Layers()
	require.Len(t, layers, 1)
	require.True(t, layers[0].Qty.Equal(d("15")))
	require.True(t, layers[0].UnitCost.Equal(d("10000")))
}

func TestFIFOPartialDrainKeepsLayerOrder(t *testing.T) {
	book, _ := NewBook(PolicyFIFO)
	require.NoError(t, book.Receive(d("10"), d("100"), day(1)))
	require.NoError(t, book.Receive(d("10"), d("200"), day(2)))

	got, err := book.Consume(d("4"))
	require.NoError(t, err)
	require.True(t, got.UnitCost().Equal(d("100")))

	got, err = book.Consume(d("8"))
	require.NoError(t, err)
	// 6 @ 100 + 2 @ 200 = 1000
	require.True(t, got.TotalCost.Equal(d("1000")))

	require.True(t, book.OnHand().Equal(d("8")))
	require.True(t, book.Valuation().Equal(d("1600")))
}

func TestWeightedAverageReceive(t *testing.T) {
	book, _ := NewBook(PolicyAverage)
	require.NoError(t, book.Receive(d("10"), d("15000"), day(1)))
	require.NoError(t, book.Receive(d("20"), d("10000"), day(2)))

	layers := book.Layers()
	require.Len(t, layers, 1)
	require.True(t, layers[0].Qty.Equal(d("30")))
	// (10*15000 + 20*10000) / 30
	require.True(t, layers[0].UnitCost.Round(2).Equal(d("11666.67")), "avg %s", layers[0].UnitCost)

	got, err := book.Consume(d("12"))
	require.NoError(t, err)
	require.True(t, got.UnitCost().Round(2).Equal(d("11666.67")))
	require.True(t, book.OnHand().Equal(d("18")))
}

func TestInsufficientStockLeavesLayersUntouched(t *testing.T) {
	for _, policy := range []Policy{PolicyFIFO, PolicyAverage} {
		book, _ := NewBook(policy)
		require.NoError(t, book.Receive(d("5"), d("1000"), day(1)))

		_, err := book.Consume(d("10"))
		require.ErrorIs(t, err, ErrInsufficientStock, string(policy))

		layers := book.Layers()
		require.Len(t, layers, 1, string(policy))
		require.True(t, layers[0].Qty.Equal(d("5")), string(policy))
		require.True(t, book.Valuation().Equal(d("5000")), string(policy))
	}
}

func TestReceiveValidation(t *testing.T) {
	book, _ := NewBook(PolicyFIFO)
	require.ErrorIs(t, book.Receive(d("0"), d("100"), day(1)), ErrInvalidQuantity)
	require.ErrorIs(t, book.Receive(d("-3"), d("100"), day(1)), ErrInvalidQuantity)
	require.ErrorIs(t, book.Receive(d("3"), d("-1"), day(1)), ErrInvalidUnitCost)
	_, err := book.Consume(d("0"))
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestRestoreBookContinuesSequence(t *testing.T) {
	layers := []Layer{
		{Seq: 3, AcquiredAt: day(1), Qty: d("4"), UnitCost: d("100")},
		{Seq: 7, AcquiredAt: day(2), Qty: d("6"), UnitCost: d("150")},
	}
	book, err := RestoreBook(PolicyFIFO, layers)
	require.NoError(t, err)
	require.NoError(t, book.Receive(d("1"), d("200"), day(3)))
	restored := book.Layers()
	require.Equal(t, int64(8), restored[2].Seq)

	_, err = RestoreBook("LIFO", nil)
	require.ErrorIs(t, err, ErrUnknownPolicy)
}
