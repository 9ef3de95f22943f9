package sheets

import (
	"context"
	"time"

	"loancalc/internal/core"
)

// ComparisonWriter is the outbound port the export worker writes to.
type ComparisonWriter interface {
	// AppendComparison writes one row per comparison line and returns a
	// reference to the written range.
	AppendComparison(ctx context.Context, sessionID string, cmp core.Comparison) (ref string, err error)
}

// ComparisonHeader names the columns of an exported comparison row.
var ComparisonHeader = []any{
	"session", "exported_at", "entry", "amount", "rate", "term",
	"interest", "repayment", "currency", "cheapest",
}

// ComparisonRows flattens a comparison into sheet rows. Amounts stay
// numeric so the sheet can format and sum them.
func ComparisonRows(sessionID string, cmp core.Comparison) [][]any {
	rows := make([][]any, 0, len(cmp.Lines))
	exportedAt := cmp.ExportedAt.UTC().Format(time.RFC3339)
	for _, line := range cmp.Lines {
		cheapest := ""
		if line.Cheapest {
			cheapest = "yes"
		}
		rows = append(rows, []any{
			sessionID,
			exportedAt,
			line.ID,
			line.LoanAmount,
			line.AnnualInterestRate,
			line.LoanTerm,
			line.TotalInterest,
			line.TotalRepayment,
			string(cmp.Currency),
			cheapest,
		})
	}
	return rows
}
