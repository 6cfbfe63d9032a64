// Package mapper resolves which columns of an uploaded table hold the sale
// amount, the customer and the region.
package mapper

import (
	"github.com/FACorreiaa/sales-report/internal/domain/import/normalizer"
)

// Role is one of the three semantic fields every sales file must provide.
type Role string

const (
	RoleAmount   Role = "amount"
	RoleCustomer Role = "customer"
	RoleRegion   Role = "region"
)

// Roles lists the roles in the order they are resolved and reported.
var Roles = []Role{RoleAmount, RoleCustomer, RoleRegion}

// Canonical returns the column name used for the role in the cleaned file.
func (r Role) Canonical() string {
	switch r {
	case RoleAmount:
		return "monto"
	case RoleCustomer:
		return "cliente"
	case RoleRegion:
		return "region"
	}
	return string(r)
}

// DefaultAliases are the accepted normalized column names per role, in priority order.
var DefaultAliases = map[Role][]string{
	RoleAmount:   {"monto", "importe", "total", "precio", "ventas", "venta"},
	RoleCustomer: {"cliente", "nombre", "cliente_nombre", "comprante"},
	RoleRegion:   {"region", "zona", "area", "provincia", "territorio"},
}

// Column is a resolved source column.
type Column struct {
	Name  string // Header as it appears in the file
	Index int    // 0-based position in the header row
}

// ColumnRoleMap maps each role to exactly one source column.
type ColumnRoleMap struct {
	Amount   Column
	Customer Column
	Region   Column
}

// Get returns the column resolved for role.
func (m *ColumnRoleMap) Get(role Role) Column {
	switch role {
	case RoleAmount:
		return m.Amount
	case RoleCustomer:
		return m.Customer
	default:
		return m.Region
	}
}

func (m *ColumnRoleMap) set(role Role, c Column) {
	switch role {
	case RoleAmount:
		m.Amount = c
	case RoleCustomer:
		m.Customer = c
	case RoleRegion:
		m.Region = c
	}
}

// Map resolves the three roles against columns using DefaultAliases.
func Map(columns []string) (*ColumnRoleMap, error) {
	return MapWith(columns, DefaultAliases)
}

// MapWith resolves roles with a custom alias table. For each role the first
// alias present among the normalized column names wins; when the same
// normalized name appears twice, the leftmost column is used.
func MapWith(columns []string, aliases map[Role][]string) (*ColumnRoleMap, error) {
	normalized := normalizer.NormalizeAll(columns)

	position := make(map[string]int, len(normalized))
	for i, n := range normalized {
		if _, seen := position[n]; !seen {
			position[n] = i
		}
	}

	result := &ColumnRoleMap{}
	used := make(map[int]bool, len(Roles))
	var missing []Role

	for _, role := range Roles {
		idx, ok := findAlias(aliases[role], position, used)
		if !ok {
			missing = append(missing, role)
			continue
		}
		used[idx] = true
		result.set(role, Column{Name: columns[idx], Index: idx})
	}

	if len(missing) > 0 {
		return nil, newMissingColumnsError(missing, columns, normalized, aliases, used)
	}
	return result, nil
}

func findAlias(candidates []string, position map[string]int, used map[int]bool) (int, bool) {
	for _, alias := range candidates {
		idx, ok := position[normalizer.Normalize(alias)]
		if ok && !used[idx] {
			return idx, true
		}
	}
	return -1, false
}
