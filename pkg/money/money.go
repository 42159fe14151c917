// Package money models monetary amounts as integer minor units
// (cents) paired with an ISO currency code.
package money

import (
	"errors"
	"fmt"
)

var ErrCurrencyMismatch = errors.New("currency_mismatch")

// Amount is an immutable monetary value in minor units.
type Amount struct {
	Value    int64
	Currency string
}

func New(value int64, currency string) Amount {
	return Amount{Value: value, Currency: currency}
}

// Add returns the sum of two amounts of the same currency.
func (a Amount) Add(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, a.Currency, b.Currency)
	}
	return Amount{Value: a.Value + b.Value, Currency: a.Currency}, nil
}

// Compare returns 0 when the amounts are equal, 1 when a is greater
// and -1 when b is greater. Currencies must match.
func (a Amount) Compare(b Amount) (int, error) {
	if a.Currency != b.Currency {
		return 0, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, a.Currency, b.Currency)
	}
	switch {
	case a.Value > b.Value:
		return 1, nil
	case a.Value < b.Value:
		return -1, nil
	default:
		return 0, nil
	}
}

// Format renders the amount with two decimal places, e.g. "100.00 USD".
func (a Amount) Format() string {
	sign := ""
	v := a.Value
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, v/100, v%100, a.Currency)
}
