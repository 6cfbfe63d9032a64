// Package money provides currency-safe arithmetic and display for sale totals,
// using integer minor units and the Fowler Money pattern. Amounts enter as
// shopspring decimals and leave as formatted ISO-4217 strings.
package money

import (
	"errors"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	ARS = "ARS" // Argentine Peso
	CLP = "CLP" // Chilean Peso (no decimal places)
	EUR = "EUR" // Euro
	MXN = "MXN" // Mexican Peso
	USD = "USD" // US Dollar
)

// ErrCurrencyMismatch is returned when combining amounts of different currencies.
var ErrCurrencyMismatch = errors.New("currency mismatch")

// Money represents a monetary value with currency.
type Money struct {
	m *money.Money
}

// IsKnownCurrency reports whether code is a supported ISO-4217 code.
func IsKnownCurrency(code string) bool {
	return money.GetCurrency(strings.ToUpper(code)) != nil
}

// New creates a new Money value from minor units and currency code.
func New(amountCents int64, currencyCode string) *Money {
	return &Money{
		m: money.New(amountCents, currencyCode),
	}
}

// NewFromDecimal creates Money from a decimal, rounding half away from zero
// to the currency's minor unit. Unknown currencies fall back to USD precision.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	currency := money.GetCurrency(currencyCode)
	if currency == nil {
		currency = money.GetCurrency(USD)
	}

	multiplier := decimal.New(1, int32(currency.Fraction))
	cents := amount.Mul(multiplier).Round(0).IntPart()

	return New(cents, currencyCode)
}

// Zero returns a zero Money value for the given currency
func Zero(currencyCode string) *Money {
	return New(0, currencyCode)
}

// Amount returns the amount in minor units (cents)
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 currency code
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

// Add returns m + other. Nil is treated as zero.
func (m *Money) Add(other *Money) (*Money, error) {
	if m == nil || m.m == nil {
		return other, nil
	}
	if other == nil || other.m == nil {
		return m, nil
	}
	if !m.SameCurrency(other) {
		return nil, ErrCurrencyMismatch
	}

	result, err := m.m.Add(other.m)
	if err != nil {
		return nil, err
	}
	return &Money{m: result}, nil
}

// SameCurrency returns true if both values share a currency
func (m *Money) SameCurrency(other *Money) bool {
	if m == nil || m.m == nil || other == nil || other.m == nil {
		return false
	}
	return m.m.SameCurrency(other.m)
}

// Display returns a formatted string for display (e.g., "$1,234.56")
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return "$0.00"
	}
	return m.m.Display()
}

// ToDecimal converts to decimal.Decimal for precise calculations
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	currency := m.m.Currency()
	d := decimal.NewFromInt(m.m.Amount())
	divisor := decimal.New(1, int32(currency.Fraction))
	return d.Div(divisor)
}
