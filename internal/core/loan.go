// Package core holds the loan comparison domain: entries, repayment
// figures, field validation and the ledger that tracks the cheapest option.
//
// Nothing in this package performs I/O. Callers own a Ledger and drive it
// from discrete user actions.
package core

import (
	"errors"
	"fmt"
	"strings"
)

// Field names one editable input of a loan entry.
type Field string

const (
	FieldLoanAmount         Field = "loanAmount"
	FieldAnnualInterestRate Field = "annualInterestRate"
	FieldLoanTerm           Field = "loanTerm"
)

// Fields lists every editable field in display order.
var Fields = []Field{FieldLoanAmount, FieldAnnualInterestRate, FieldLoanTerm}

// Default values for a freshly added entry.
const (
	DefaultLoanAmount         = 10000
	DefaultAnnualInterestRate = 5
	DefaultLoanTerm           = 3
)

var (
	ErrEntryNotFound = errors.New("entry not found")
	ErrUnknownField  = errors.New("unknown field")
)

// ParseField maps a form field name onto a Field.
func ParseField(s string) (Field, error) {
	f := Field(strings.TrimSpace(s))
	switch f {
	case FieldLoanAmount, FieldAnnualInterestRate, FieldLoanTerm:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
	}
}

// Label returns the human readable label used next to the input.
func (f Field) Label() string {
	switch f {
	case FieldLoanAmount:
		return "Loan Amount"
	case FieldAnnualInterestRate:
		return "Annual Interest Rate (%)"
	case FieldLoanTerm:
		return "Loan Term (years)"
	default:
		return string(f)
	}
}

// Entry is one user-edited loan scenario.
type Entry struct {
	ID                 int     `json:"id"`
	LoanAmount         float64 `json:"loanAmount"`
	AnnualInterestRate float64 `json:"annualInterestRate"`
	LoanTerm           float64 `json:"loanTerm"`
}

// NewEntry returns an entry with the default field values.
func NewEntry(id int) Entry {
	return Entry{
		ID:                 id,
		LoanAmount:         DefaultLoanAmount,
		AnnualInterestRate: DefaultAnnualInterestRate,
		LoanTerm:           DefaultLoanTerm,
	}
}

// Value returns the current value of f.
func (e Entry) Value(f Field) float64 {
	switch f {
	case FieldLoanAmount:
		return e.LoanAmount
	case FieldAnnualInterestRate:
		return e.AnnualInterestRate
	case FieldLoanTerm:
		return e.LoanTerm
	default:
		return 0
	}
}

func (e *Entry) set(f Field, v float64) {
	switch f {
	case FieldLoanAmount:
		e.LoanAmount = v
	case FieldAnnualInterestRate:
		e.AnnualInterestRate = v
	case FieldLoanTerm:
		e.LoanTerm = v
	}
}

// Repayment holds the figures derived from one entry.
type Repayment struct {
	TotalInterest  float64 `json:"totalInterest"`
	TotalRepayment float64 `json:"totalRepayment"`
}

// Calculate derives simple-interest figures for e. It is total over any
// input, in domain or not; range checks belong to ValidateField.
func Calculate(e Entry) Repayment {
	interest := e.LoanAmount * (e.AnnualInterestRate / 100) * e.LoanTerm
	return Repayment{
		TotalInterest:  interest,
		TotalRepayment: e.LoanAmount + interest,
	}
}
