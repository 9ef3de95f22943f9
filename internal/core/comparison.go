package core

import "time"

// ComparisonLine is one valid entry included in an exported comparison.
type ComparisonLine struct {
	Entry
	Repayment
	Cheapest bool `json:"cheapest"`
}

// Comparison is a point-in-time report of the valid entries of a ledger.
type Comparison struct {
	Currency   Currency         `json:"currency"`
	ExportedAt time.Time        `json:"exportedAt"`
	MinimumID  int              `json:"minimumId,omitempty"`
	Lines      []ComparisonLine `json:"lines"`
}

// Compare builds a comparison of the ledger's valid entries. Invalid
// entries are left out, exactly as they are left out of minimum selection.
func (l *Ledger) Compare(c Currency, at time.Time) Comparison {
	cmp := Comparison{Currency: c, ExportedAt: at.UTC()}
	if id, ok := l.Minimum(); ok {
		cmp.MinimumID = id
	}
	for _, row := range l.Rows() {
		if !row.Valid {
			continue
		}
		cmp.Lines = append(cmp.Lines, ComparisonLine{
			Entry:     row.Entry,
			Repayment: row.Repayment,
			Cheapest:  row.Cheapest,
		})
	}
	return cmp
}
