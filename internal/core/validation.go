package core

import (
	"errors"
	"fmt"
	"math"
)

// Bounds is the inclusive domain of a field.
type Bounds struct {
	Min float64
	Max float64
}

var fieldBounds = map[Field]Bounds{
	FieldLoanAmount:         {Min: 1000, Max: 100000},
	FieldAnnualInterestRate: {Min: 1, Max: 100},
	FieldLoanTerm:           {Min: 1, Max: 30},
}

var fieldMessages = map[Field]string{
	FieldLoanAmount:         "Loan amount must be between 1000 and 100000",
	FieldAnnualInterestRate: "Annual interest rate must be between 1% and 100%",
	FieldLoanTerm:           "Loan term must be between 1 and 30 years",
}

const wholeYearsMessage = "Loan term must be a whole number of years"

// BoundsFor returns the domain of f.
func BoundsFor(f Field) (Bounds, bool) {
	b, ok := fieldBounds[f]
	return b, ok
}

// FieldError reports a value outside its field's domain.
type FieldError struct {
	Field   Field
	Value   float64
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateField checks one value against the bounds of f. It returns nil
// when the value is valid, a *FieldError when it is not, and an error
// wrapping ErrUnknownField for names outside the entry schema.
func ValidateField(f Field, v float64) error {
	b, ok := fieldBounds[f]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, f)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < b.Min || v > b.Max {
		return &FieldError{Field: f, Value: v, Message: fieldMessages[f]}
	}
	if f == FieldLoanTerm && v != math.Trunc(v) {
		return &FieldError{Field: f, Value: v, Message: wholeYearsMessage}
	}
	return nil
}

// FieldErrors maps an invalid field to its message.
type FieldErrors map[Field]string

// record applies the outcome of validating f: a message is stored on
// failure and any previous message is cleared on success.
func (fe FieldErrors) record(f Field, v float64) {
	var ferr *FieldError
	if errors.As(ValidateField(f, v), &ferr) {
		fe[f] = ferr.Message
		return
	}
	delete(fe, f)
}

// ValidateEntry validates every field of e.
func ValidateEntry(e Entry) FieldErrors {
	fe := FieldErrors{}
	for _, f := range Fields {
		fe.record(f, e.Value(f))
	}
	return fe
}

// IsValid reports whether every field of e lies within its domain.
func IsValid(e Entry) bool {
	for _, f := range Fields {
		if ValidateField(f, e.Value(f)) != nil {
			return false
		}
	}
	return true
}
