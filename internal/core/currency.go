package core

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// Currency is the display currency selected for a session. It only affects
// formatting; no conversion is ever applied to amounts.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	BGN Currency = "BGN"
)

// DefaultCurrency is used for new sessions unless configured otherwise.
const DefaultCurrency = BGN

// Currencies lists the selectable currencies in display order.
var Currencies = []Currency{USD, EUR, BGN}

var ErrUnknownCurrency = errors.New("unknown currency")

// ParseCurrency accepts a currency code in any letter case.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case USD, EUR, BGN:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, s)
	}
}

// Symbol returns the prefix printed before an amount.
func (c Currency) Symbol() string {
	switch c {
	case USD:
		return "$"
	case EUR:
		return "€"
	default:
		return string(c) + " "
	}
}

// Format renders amount with two decimals and thousands separators,
// e.g. "$13,500.00" or "BGN 13,500.00".
func (c Currency) Format(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "-"
	}
	if amount < 0 {
		return "-" + c.Format(-amount)
	}
	return c.Symbol() + humanize.FormatFloat("#,###.##", amount)
}
