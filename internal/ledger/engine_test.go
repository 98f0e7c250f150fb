package ledger

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func window() (time.Time, time.Time) {
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

func TestDeriveBalancesAndExpectedCash(t *testing.T) {
	from, to := window()
	rows := SourceRows{
		Loads: []LoadRow{
			{ProductID: 1, Qty: 100},
			{ProductID: 2, Qty: 40},
		},
		Sales: []SaleRow{
			{ProductID: 1, Qty: 60, Value: 600, Discount: 25},
			{ProductID: 2, Qty: 10, Value: 200},
		},
		Returns: []ReturnRow{
			{ProductID: 1, Qty: 5, Value: 50},
		},
		Damages: []DamageRow{
			{ProductID: 2, Qty: 2},
		},
	}

	got := Derive(7, from, to, rows)

	require.InDelta(t, 140, got.TotalLoaded, 1e-9)
	require.InDelta(t, 70, got.TotalSoldQty, 1e-9)
	require.InDelta(t, 800, got.TotalSold, 1e-9)
	require.InDelta(t, 5, got.TotalReturned, 1e-9)
	require.InDelta(t, 2, got.TotalDamaged, 1e-9)
	require.InDelta(t, 63, got.StockOnHand, 1e-9)
	// 800 sold - 25 discount - 50 returned value.
	require.InDelta(t, 725, got.ExpectedCash, 1e-9)

	require.Len(t, got.Lines, 2)
	require.Equal(t, int64(1), got.Lines[0].ProductID)
	require.InDelta(t, 35, got.Lines[0].StockOnHand, 1e-9)
	require.InDelta(t, 28, got.Lines[1].StockOnHand, 1e-9)
}

func TestDeriveOrderIndependent(t *testing.T) {
	from, to := window()
	rows := SourceRows{}
	for i := int64(1); i <= 20; i++ {
		rows.Loads = append(rows.Loads, LoadRow{ProductID: i % 5, Qty: float64(i)})
		rows.Sales = append(rows.Sales, SaleRow{ProductID: i % 5, Qty: float64(i) / 2, Value: float64(i) * 3, Discount: 1})
	}
	base := Derive(7, from, to, rows)

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 5; trial++ {
		rng.Shuffle(len(rows.Loads), func(i, j int) { rows.Loads[i], rows.Loads[j] = rows.Loads[j], rows.Loads[i] })
		rng.Shuffle(len(rows.Sales), func(i, j int) { rows.Sales[i], rows.Sales[j] = rows.Sales[j], rows.Sales[i] })
		got := Derive(7, from, to, rows)
		require.Equal(t, base, got)
	}
}

func TestDeriveEmptyWindow(t *testing.T) {
	from, to := window()
	got := Derive(7, from, to, SourceRows{})
	require.Zero(t, got.TotalLoaded)
	require.Zero(t, got.ExpectedCash)
	require.Empty(t, got.Lines)
}
