package money

import (
	"strconv"

	"github.com/brianvoe/gofakeit/v6"
)

// TestDataGenerator generates realistic sales test data using gofakeit.
type TestDataGenerator struct {
	faker *gofakeit.Faker
}

// NewTestDataGenerator creates a new test data generator with a random seed.
func NewTestDataGenerator() *TestDataGenerator {
	return &TestDataGenerator{
		faker: gofakeit.New(0), // Random seed
	}
}

// NewTestDataGeneratorWithSeed creates a generator with a specific seed for reproducibility.
func NewTestDataGeneratorWithSeed(seed int64) *TestDataGenerator {
	return &TestDataGenerator{
		faker: gofakeit.New(seed),
	}
}

// TestSale is one generated sales line.
type TestSale struct {
	Customer string
	Region   string
	Amount   *Money
}

var regions = []string{
	"Norte", "Sur", "Este", "Oeste", "Centro",
	"Patagonia", "Cuyo", "Litoral", "NOA", "NEA",
}

// RandomAmount generates a random Money value within a cent range.
func (g *TestDataGenerator) RandomAmount(currency string, minCents, maxCents int64) *Money {
	if minCents > maxCents {
		minCents, maxCents = maxCents, minCents
	}
	cents := g.faker.Int64() % (maxCents - minCents + 1)
	if cents < 0 {
		cents = -cents
	}
	return New(minCents+cents, currency)
}

// SaleAmount generates a positive sale amount between 0.01 and 50,000.00.
func (g *TestDataGenerator) SaleAmount(currency string) *Money {
	return g.RandomAmount(currency, 1, 5_000_000)
}

// Region returns a random sales region.
func (g *TestDataGenerator) Region() string {
	return regions[g.faker.Number(0, len(regions)-1)]
}

// Customer returns a random customer name drawn from a pool of poolSize
// names, so repeated customers appear in generated sets.
func (g *TestDataGenerator) Customer(poolSize int) string {
	if poolSize <= 0 {
		return g.faker.Name()
	}
	return "Cliente " + strconv.Itoa(g.faker.Number(1, poolSize))
}

// Sale generates a single valid sale.
func (g *TestDataGenerator) Sale(currency string) TestSale {
	return TestSale{
		Customer: g.Customer(50),
		Region:   g.Region(),
		Amount:   g.SaleAmount(currency),
	}
}

// Sales generates count valid sales.
func (g *TestDataGenerator) Sales(currency string, count int) []TestSale {
	sales := make([]TestSale, count)
	for i := range sales {
		sales[i] = g.Sale(currency)
	}
	return sales
}
