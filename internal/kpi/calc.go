package kpi

// Productivity is invoices per visit. No visits means zero, not a division
// error.
func Productivity(invoices, visits int) float64 {
	if visits == 0 {
		return 0
	}
	return float64(invoices) / float64(visits)
}

// StrikeRate is the percentage of visits that produced a sale.
func StrikeRate(successful, visits int) float64 {
	if visits == 0 {
		return 0
	}
	return float64(successful) / float64(visits) * 100
}

// DropSize is the average invoice value.
func DropSize(value float64, invoices int) float64 {
	if invoices == 0 {
		return 0
	}
	return value / float64(invoices)
}

// TargetPercent is actual over target as a percentage. A zero target yields
// zero rather than infinity.
func TargetPercent(actual, target float64) float64 {
	if target == 0 {
		return 0
	}
	return actual / target * 100
}

// Compute derives the full metric set from inputs under the policy.
func Compute(in Inputs, policy TargetPolicy) Metrics {
	return Metrics{
		Productivity:  Productivity(in.InvoiceCount, in.Visits),
		StrikeRate:    StrikeRate(in.SuccessfulVisits, in.Visits),
		DropSize:      DropSize(in.SalesValue, in.InvoiceCount),
		TargetPercent: TargetPercent(in.SalesValue, in.ValueTarget),
		CartonTarget:  policy.CartonTarget(in.ValueTarget),
		TonnageTarget: policy.TonnageTarget(in.ValueTarget),
	}
}
