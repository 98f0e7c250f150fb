package reconciliation

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// StatementRenderer produces a plain-text settlement statement with
// locale-aware number formatting.
type StatementRenderer struct {
	printer  *message.Printer
	currency string
}

// NewStatementRenderer constructs a renderer for the given locale.
func NewStatementRenderer(tag language.Tag, currency string) *StatementRenderer {
	if currency == "" {
		currency = "IDR"
	}
	return &StatementRenderer{printer: message.NewPrinter(tag), currency: currency}
}

// Render formats one reconciliation record as a statement.
func (r *StatementRenderer) Render(rec Reconciliation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Settlement statement %s (agent %d, cycle %d)\n", rec.Period, rec.AgentID, rec.Cycle)
	fmt.Fprintf(&b, "Status: %s\n", rec.Status)
	fmt.Fprintf(&b, "Loaded:        %s\n", r.qty(rec.TotalLoaded))
	fmt.Fprintf(&b, "Sold:          %s %s\n", r.currency, r.amount(rec.TotalSold))
	fmt.Fprintf(&b, "Returned:      %s\n", r.qty(rec.TotalReturned))
	fmt.Fprintf(&b, "Expected cash: %s %s\n", r.currency, r.amount(rec.ExpectedCash))
	fmt.Fprintf(&b, "Declared cash: %s %s\n", r.currency, r.amount(rec.CashCollected))
	fmt.Fprintf(&b, "Variance:      %s %s\n", r.currency, r.amount(rec.Variance))
	if rec.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", rec.Notes)
	}
	return b.String()
}

func (r *StatementRenderer) amount(v float64) string {
	return r.printer.Sprint(number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

func (r *StatementRenderer) qty(v float64) string {
	return r.printer.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}
