// Package report aggregates cleaned sales per region and renders the result.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/sales-report/internal/domain/import/parser"
)

// RegionSummary holds the totals of one region.
type RegionSummary struct {
	Region          string          `json:"region"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	UniqueCustomers int             `json:"unique_customers"`
	Rows            int             `json:"rows"`
}

// Summary is the per-region breakdown plus global totals.
type Summary struct {
	Regions         []RegionSummary `json:"regions"`
	TotalRows       int             `json:"total_rows"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	UniqueCustomers int             `json:"unique_customers"`
}

// Aggregate groups table by region. Regions are ordered by total amount,
// highest first; equal totals keep the order in which the region first appeared.
func Aggregate(table parser.CleanTable) Summary {
	index := make(map[string]int)
	customers := make([]map[string]struct{}, 0)
	allCustomers := make(map[string]struct{})

	summary := Summary{
		Regions:     make([]RegionSummary, 0),
		TotalAmount: decimal.Zero,
	}

	for _, rec := range table {
		i, ok := index[rec.Region]
		if !ok {
			i = len(summary.Regions)
			index[rec.Region] = i
			summary.Regions = append(summary.Regions, RegionSummary{Region: rec.Region, TotalAmount: decimal.Zero})
			customers = append(customers, make(map[string]struct{}))
		}

		r := &summary.Regions[i]
		r.TotalAmount = r.TotalAmount.Add(rec.Amount)
		r.Rows++
		customers[i][rec.Customer] = struct{}{}
		allCustomers[rec.Customer] = struct{}{}

		summary.TotalAmount = summary.TotalAmount.Add(rec.Amount)
		summary.TotalRows++
	}

	for i := range summary.Regions {
		summary.Regions[i].UniqueCustomers = len(customers[i])
	}
	summary.UniqueCustomers = len(allCustomers)

	sort.SliceStable(summary.Regions, func(a, b int) bool {
		return summary.Regions[a].TotalAmount.GreaterThan(summary.Regions[b].TotalAmount)
	})

	return summary
}

// AggregateFile loads a persisted clean table and aggregates it. The file must
// carry the cliente, region and monto columns.
func AggregateFile(r io.Reader) (Summary, error) {
	table, err := parser.ReadCleanTable(r)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load clean table: %w", err)
	}
	return Aggregate(table), nil
}
