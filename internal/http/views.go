package http

import (
	"html/template"
	"strconv"

	"loancalc/internal/core"
	"loancalc/internal/services"
)

var templateFuncs = template.FuncMap{
	"formatValue": formatValue,
}

// formatValue prints an input value without trailing zeros.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type currencyOption struct {
	Code     core.Currency
	Selected bool
}

type fieldView struct {
	EntryID int
	Name    core.Field
	Label   string
	Value   float64
	Min     float64
	Max     float64
	Step    string
	Error   string
	OOB     bool
}

type entryView struct {
	ID        int
	Fields    []fieldView
	Interest  string
	Repayment string
	Valid     bool
	Cheapest  bool
	OOB       bool
}

type ledgerPage struct {
	Currency      core.Currency
	Currencies    []currencyOption
	Entries       []entryView
	HasMinimum    bool
	ExportEnabled bool
}

// fieldUpdate is the out-of-band payload sent after a single field edit:
// every summary, plus the error slots of the edited entry. Inputs are left
// alone so the user keeps focus and caret position.
type fieldUpdate struct {
	Entries []entryView
	Updated *entryView
}

func newLedgerPage(v services.LedgerView) ledgerPage {
	p := ledgerPage{
		Currency:      v.Currency,
		HasMinimum:    v.HasMinimum(),
		ExportEnabled: v.ExportEnabled,
	}
	for _, c := range core.Currencies {
		p.Currencies = append(p.Currencies, currencyOption{Code: c, Selected: c == v.Currency})
	}
	for _, row := range v.Rows {
		p.Entries = append(p.Entries, newEntryView(row, v.Currency))
	}
	return p
}

func newEntryView(row core.Row, c core.Currency) entryView {
	ev := entryView{
		ID:        row.ID,
		Valid:     row.Valid,
		Cheapest:  row.Cheapest,
		Interest:  "-",
		Repayment: "-",
	}
	if row.Valid {
		ev.Interest = c.Format(row.TotalInterest)
		ev.Repayment = c.Format(row.TotalRepayment)
	}
	for _, f := range core.Fields {
		b, _ := core.BoundsFor(f)
		step := "any"
		if f == core.FieldLoanTerm {
			step = "1"
		}
		ev.Fields = append(ev.Fields, fieldView{
			EntryID: row.ID,
			Name:    f,
			Label:   f.Label(),
			Value:   row.Value(f),
			Min:     b.Min,
			Max:     b.Max,
			Step:    step,
			Error:   row.Errors[f],
		})
	}
	return ev
}

func newFieldUpdate(v services.LedgerView, entryID int) fieldUpdate {
	page := newLedgerPage(v)
	out := fieldUpdate{Entries: page.Entries}
	for i := range out.Entries {
		e := &out.Entries[i]
		e.OOB = true
		if e.ID != entryID {
			continue
		}
		for j := range e.Fields {
			e.Fields[j].OOB = true
		}
		out.Updated = e
	}
	return out
}
