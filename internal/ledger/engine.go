package ledger

import (
	"math"
	"sort"
	"time"
)

// Derive folds source rows into a summary. Pure function over commutative
// sums; shuffling the input rows never changes the result.
func Derive(agentID int64, from, to time.Time, rows SourceRows) Summary {
	summary := Summary{AgentID: agentID, From: from, To: to}
	lines := make(map[int64]*ProductLine)

	line := func(productID int64) *ProductLine {
		if l, ok := lines[productID]; ok {
			return l
		}
		l := &ProductLine{ProductID: productID}
		lines[productID] = l
		return l
	}

	for _, row := range rows.Loads {
		summary.TotalLoaded += row.Qty
		line(row.ProductID).Loaded += row.Qty
	}
	for _, row := range rows.Sales {
		summary.TotalSoldQty += row.Qty
		summary.TotalSold += row.Value
		summary.TotalDiscount += row.Discount
		line(row.ProductID).Sold += row.Qty
	}
	for _, row := range rows.Returns {
		summary.TotalReturned += row.Qty
		summary.ReturnedValue += row.Value
		line(row.ProductID).Returned += row.Qty
	}
	for _, row := range rows.Damages {
		summary.TotalDamaged += row.Qty
		line(row.ProductID).Damaged += row.Qty
	}

	summary.StockOnHand = summary.TotalLoaded - summary.TotalSoldQty - summary.TotalReturned - summary.TotalDamaged
	summary.ExpectedCash = round2(summary.TotalSold - summary.TotalDiscount - summary.ReturnedValue)

	summary.Lines = make([]ProductLine, 0, len(lines))
	for _, l := range lines {
		l.StockOnHand = l.Loaded - l.Sold - l.Returned - l.Damaged
		summary.Lines = append(summary.Lines, *l)
	}
	sort.Slice(summary.Lines, func(i, j int) bool {
		return summary.Lines[i].ProductID < summary.Lines[j].ProductID
	})
	return summary
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
