package core

import (
	"errors"
	"testing"
)

func TestCalculate(t *testing.T) {
	cases := []struct {
		entry     Entry
		interest  float64
		repayment float64
	}{
		{Entry{LoanAmount: 10000, AnnualInterestRate: 5, LoanTerm: 3}, 1500, 13500},
		{Entry{LoanAmount: 20000, AnnualInterestRate: 5, LoanTerm: 3}, 3000, 27000},
		{Entry{LoanAmount: 40000, AnnualInterestRate: 5, LoanTerm: 3}, 6000, 46000},
		{Entry{LoanAmount: 1000, AnnualInterestRate: 100, LoanTerm: 30}, 30000, 31000},
		// out of domain still yields numbers
		{Entry{LoanAmount: 500, AnnualInterestRate: 5, LoanTerm: 3}, 75, 575},
	}
	for i, tc := range cases {
		got := Calculate(tc.entry)
		if got.TotalInterest != tc.interest || got.TotalRepayment != tc.repayment {
			t.Fatalf("case %d: got %+v, want interest=%v repayment=%v", i, got, tc.interest, tc.repayment)
		}
	}
}

func TestLedgerAddAssignsSequentialIDsWithDefaults(t *testing.T) {
	l := NewLedger()
	a := l.Add()
	b := l.Add()
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("unexpected ids: %d, %d", a.ID, b.ID)
	}
	if a.LoanAmount != 10000 || a.AnnualInterestRate != 5 || a.LoanTerm != 3 {
		t.Fatalf("unexpected defaults: %+v", a)
	}
	if l.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", l.Len())
	}
}

func TestLedgerIDsNotReusedAfterRemoval(t *testing.T) {
	l := NewLedger()
	l.Add()
	l.Add()
	l.Add()
	if err := l.Remove(1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	e := l.Add()
	if e.ID != 4 {
		t.Fatalf("expected id 4, got %d", e.ID)
	}
	seen := map[int]bool{}
	for _, e := range l.Entries() {
		if seen[e.ID] {
			t.Fatalf("duplicate id %d", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestLedgerMinimumScenario(t *testing.T) {
	l := NewLedger()
	first := l.Add()
	if _, ok := l.Minimum(); ok {
		t.Fatalf("single entry must not have a minimum")
	}
	second := l.Add()
	if _, err := l.Update(second.ID, FieldLoanAmount, 20000); err != nil {
		t.Fatalf("update: %v", err)
	}

	r1, _ := l.Figures(first.ID)
	r2, _ := l.Figures(second.ID)
	if r1.TotalRepayment != 13500 || r2.TotalRepayment != 27000 {
		t.Fatalf("unexpected repayments %v %v", r1.TotalRepayment, r2.TotalRepayment)
	}
	if id, ok := l.Minimum(); !ok || id != first.ID {
		t.Fatalf("expected minimum %d, got %d (ok=%v)", first.ID, id, ok)
	}

	if _, err := l.Update(first.ID, FieldLoanAmount, 40000); err != nil {
		t.Fatalf("update: %v", err)
	}
	r1, _ = l.Figures(first.ID)
	if r1.TotalRepayment != 46000 {
		t.Fatalf("expected 46000, got %v", r1.TotalRepayment)
	}
	if id, ok := l.Minimum(); !ok || id != second.ID {
		t.Fatalf("expected minimum to flip to %d, got %d", second.ID, id)
	}
}

func TestLedgerInvalidEntryExcludedFromMinimum(t *testing.T) {
	l := NewLedger()
	a := l.Add()
	b := l.Add()
	c := l.Add()
	if _, err := l.Update(b.ID, FieldLoanAmount, 20000); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Update(c.ID, FieldLoanAmount, 30000); err != nil {
		t.Fatal(err)
	}
	// 500 is mathematically the smallest but out of domain
	if _, err := l.Update(a.ID, FieldLoanAmount, 500); err != nil {
		t.Fatal(err)
	}
	if l.Valid(a.ID) {
		t.Fatalf("entry %d should be invalid", a.ID)
	}
	msg := l.FieldErrors(a.ID)[FieldLoanAmount]
	if msg != "Loan amount must be between 1000 and 100000" {
		t.Fatalf("unexpected message %q", msg)
	}
	if id, ok := l.Minimum(); !ok || id != b.ID {
		t.Fatalf("expected minimum %d, got %d (ok=%v)", b.ID, id, ok)
	}

	// fixing the field clears the message and re-admits the entry
	if _, err := l.Update(a.ID, FieldLoanAmount, 1000); err != nil {
		t.Fatal(err)
	}
	if !l.Valid(a.ID) || len(l.FieldErrors(a.ID)) != 0 {
		t.Fatalf("entry %d should be valid again", a.ID)
	}
	if id, _ := l.Minimum(); id != a.ID {
		t.Fatalf("expected minimum %d, got %d", a.ID, id)
	}
}

func TestLedgerMinimumNoneWithFewerThanTwoValid(t *testing.T) {
	l := NewLedger()
	a := l.Add()
	l.Add()
	if _, err := l.Update(a.ID, FieldLoanTerm, 31); err != nil {
		t.Fatal(err)
	}
	if _, ok := l.Minimum(); ok {
		t.Fatalf("one valid entry must not have a minimum")
	}
}

func TestLedgerTiesResolveToEarliest(t *testing.T) {
	l := NewLedger()
	a := l.Add()
	b := l.Add()
	l.Add()
	if id, _ := l.Minimum(); id != a.ID {
		t.Fatalf("expected earliest entry %d, got %d", a.ID, id)
	}
	if err := l.Remove(a.ID); err != nil {
		t.Fatal(err)
	}
	if id, _ := l.Minimum(); id != b.ID {
		t.Fatalf("expected %d after removal, got %d", b.ID, id)
	}
}

func TestLedgerRemove(t *testing.T) {
	l := NewLedger()
	a := l.Add()
	b := l.Add()
	if _, err := l.Update(b.ID, FieldAnnualInterestRate, 0); err != nil {
		t.Fatal(err)
	}
	before, _ := l.Figures(a.ID)

	if err := l.Remove(b.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(l.FieldErrors(b.ID)) != 0 || l.Valid(b.ID) {
		t.Fatalf("validation state of removed entry must be gone")
	}
	if _, ok := l.Figures(b.ID); ok {
		t.Fatalf("figures of removed entry must be gone")
	}
	after, _ := l.Figures(a.ID)
	if before != after {
		t.Fatalf("remaining entry changed: %+v -> %+v", before, after)
	}
	if _, ok := l.Minimum(); ok {
		t.Fatalf("single remaining entry must not have a minimum")
	}

	err := l.Remove(99)
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestLedgerAddDoesNotChangeExistingFigures(t *testing.T) {
	l := NewLedger()
	a := l.Add()
	if _, err := l.Update(a.ID, FieldLoanAmount, 55000); err != nil {
		t.Fatal(err)
	}
	before, _ := l.Figures(a.ID)
	l.Add()
	after, _ := l.Figures(a.ID)
	if before != after {
		t.Fatalf("figures changed after add: %+v -> %+v", before, after)
	}
}

func TestLedgerUpdateErrors(t *testing.T) {
	l := NewLedger()
	a := l.Add()
	if _, err := l.Update(a.ID, Field("bogus"), 1); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if _, err := l.Update(42, FieldLoanAmount, 2000); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestLedgerRowsMarkCheapest(t *testing.T) {
	l := NewLedger()
	l.Add()
	b := l.Add()
	if _, err := l.Update(b.ID, FieldAnnualInterestRate, 2); err != nil {
		t.Fatal(err)
	}
	rows := l.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Cheapest || !rows[1].Cheapest {
		t.Fatalf("expected only second row cheapest: %+v", rows)
	}
}

func TestSnapshotRestore(t *testing.T) {
	l := NewLedger()
	a := l.Add()
	b := l.Add()
	l.Add()
	if err := l.Remove(b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Update(a.ID, FieldLoanTerm, 0); err != nil {
		t.Fatal(err)
	}

	restored, err := RestoreLedger(l.Snapshot())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", restored.Len())
	}
	if restored.Valid(a.ID) {
		t.Fatalf("validation state must be rebuilt on restore")
	}
	if next := restored.Add(); next.ID != 4 {
		t.Fatalf("expected id counter to continue at 4, got %d", next.ID)
	}

	if _, err := RestoreLedger(Snapshot{Entries: []Entry{{ID: 1}, {ID: 1}}}); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if _, err := RestoreLedger(Snapshot{Entries: []Entry{{ID: 0}}}); err == nil {
		t.Fatalf("expected invalid id error")
	}
}

func TestCompareSkipsInvalidEntries(t *testing.T) {
	l := NewLedger()
	a := l.Add()
	b := l.Add()
	c := l.Add()
	if _, err := l.Update(c.ID, FieldLoanAmount, 999); err != nil {
		t.Fatal(err)
	}
	cmp := l.Compare(EUR, fixedTime)
	if len(cmp.Lines) != 2 || cmp.Lines[0].ID != a.ID || cmp.Lines[1].ID != b.ID {
		t.Fatalf("unexpected lines: %+v", cmp.Lines)
	}
	if cmp.MinimumID != a.ID || !cmp.Lines[0].Cheapest {
		t.Fatalf("expected entry %d cheapest: %+v", a.ID, cmp)
	}
	if cmp.Currency != EUR || !cmp.ExportedAt.Equal(fixedTime) {
		t.Fatalf("unexpected header: %+v", cmp)
	}
}
