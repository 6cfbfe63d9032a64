package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cents    int64
		currency string
		want     int64
	}{
		{"positive cents", 1234, USD, 1234},
		{"zero", 0, USD, 0},
		{"large amount", 999999999, ARS, 999999999},
		{"euro", 1000, EUR, 1000},
		{"peso chileno (no decimals)", 10000, CLP, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.cents, tt.currency)
			assert.Equal(t, tt.want, m.Amount())
			assert.Equal(t, tt.currency, m.Currency())
		})
	}
}

func TestNewFromDecimal(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		want     int64
	}{
		{"two decimals", "1200.50", ARS, 120050},
		{"rounds half up", "0.005", USD, 1},
		{"more precision", "10.129", USD, 1013},
		{"zero decimal currency", "1500.6", CLP, 1501},
		{"unknown currency uses two decimals", "3.14", "XXX", 314},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewFromDecimal(decimal.RequireFromString(tt.amount), tt.currency)
			assert.Equal(t, tt.want, m.Amount())
		})
	}
}

func TestIsKnownCurrency(t *testing.T) {
	assert.True(t, IsKnownCurrency(ARS))
	assert.True(t, IsKnownCurrency("usd"))
	assert.False(t, IsKnownCurrency("PESOS"))
}

func TestAdd(t *testing.T) {
	tests := []struct {
		name    string
		a       *Money
		b       *Money
		want    int64
		wantErr bool
	}{
		{"positive + positive", New(1000, USD), New(500, USD), 1500, false},
		{"with zero", New(1000, USD), Zero(USD), 1000, false},
		{"nil + value", nil, New(500, USD), 500, false},
		{"value + nil", New(500, USD), nil, 500, false},
		{"different currencies", New(100, USD), New(100, EUR), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.a.Add(tt.b)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrCurrencyMismatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Amount())
		})
	}
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "$1,234.50", New(123450, USD).Display())
	assert.Contains(t, New(12345, EUR).Display(), "€")
	assert.Contains(t, New(12345, ARS).Display(), "$")
}

func TestToDecimal(t *testing.T) {
	d := New(12345, USD).ToDecimal()
	assert.True(t, d.Equal(decimal.RequireFromString("123.45")))
}

func TestNilSafety(t *testing.T) {
	var m *Money

	assert.Equal(t, int64(0), m.Amount())
	assert.Equal(t, "", m.Currency())
	assert.Equal(t, "$0.00", m.Display())
	assert.True(t, m.ToDecimal().IsZero())
	assert.False(t, m.SameCurrency(New(1, USD)))
}

func TestTestDataGenerator(t *testing.T) {
	gen := NewTestDataGeneratorWithSeed(42)

	t.Run("generates positive sales", func(t *testing.T) {
		for _, s := range gen.Sales(ARS, 100) {
			assert.NotEmpty(t, s.Customer)
			assert.NotEmpty(t, s.Region)
			assert.Positive(t, s.Amount.Amount())
		}
	})

	t.Run("reuses customers from the pool", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 200; i++ {
			seen[gen.Customer(5)] = true
		}
		assert.LessOrEqual(t, len(seen), 5)
	})

	t.Run("random amount within range", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			a := gen.RandomAmount(USD, 100, 200).Amount()
			assert.GreaterOrEqual(t, a, int64(100))
			assert.LessOrEqual(t, a, int64(200))
		}
	})
}

func BenchmarkNewFromDecimal(b *testing.B) {
	d := decimal.RequireFromString("1234.56")
	for i := 0; i < b.N; i++ {
		_ = NewFromDecimal(d, USD)
	}
}

func BenchmarkDisplay(b *testing.B) {
	m := New(123456789, ARS)
	for i := 0; i < b.N; i++ {
		_ = m.Display()
	}
}
