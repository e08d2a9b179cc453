package payslip

import "math"

// Record is one loosely typed detail row as returned by the portal. Only the
// normalizer looks inside it.
type Record map[string]any

// Transaction is one payroll line item. Money fields are whole KRW (or other
// currency minor units) and never negative.
type Transaction struct {
	Year        int    `json:"year"`
	Month       int    `json:"month"`
	Date        string `json:"date"`
	Category    string `json:"category"`
	Group       string `json:"group"`
	Gross       int64  `json:"gross"`
	Deductions  int64  `json:"deductions"`
	Net         int64  `json:"net"`
	Currency    string `json:"currency"`
	SequenceId  string `json:"sequenceId"`
	PeriodStart string `json:"periodStart"`
	PeriodEnd   string `json:"periodEnd"`
}

type Summary struct {
	Gross      int64 `json:"gross"`
	Deductions int64 `json:"deductions"`
	Net        int64 `json:"net"`
	Count      int   `json:"count"`
}

// Summarize totals txs. Totals saturate at math.MaxInt64 instead of
// wrapping.
func Summarize(txs []Transaction) Summary {
	out := Summary{Count: len(txs)}
	for _, tx := range txs {
		out.Gross = addMoney(out.Gross, tx.Gross)
		out.Deductions = addMoney(out.Deductions, tx.Deductions)
		out.Net = addMoney(out.Net, tx.Net)
	}
	return out
}

// addMoney adds two non-negative amounts.
func addMoney(a, b int64) int64 {
	if b > math.MaxInt64-a {
		return math.MaxInt64
	}
	return a + b
}
