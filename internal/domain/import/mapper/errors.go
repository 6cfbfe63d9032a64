package mapper

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// ErrMissingColumns matches any *MissingColumnsError via errors.Is.
var ErrMissingColumns = errors.New("missing required columns")

// MissingColumnsError reports roles that no column could be resolved for.
type MissingColumnsError struct {
	Missing   []Role
	Available []string
	// Suggestions holds near-miss headers per missing role. They are hints for
	// the user and are never used to resolve a role.
	Suggestions map[Role][]string
}

func (e *MissingColumnsError) Error() string {
	var b strings.Builder
	b.WriteString("missing required columns: ")
	for i, role := range e.Missing {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(role))
		if hints := e.Suggestions[role]; len(hints) > 0 {
			fmt.Fprintf(&b, " (did you mean %s?)", strings.Join(hints, " or "))
		}
	}
	fmt.Fprintf(&b, "; available columns: [%s]", strings.Join(e.Available, ", "))
	return b.String()
}

func (e *MissingColumnsError) Is(target error) bool {
	return target == ErrMissingColumns
}

// NewMissingColumnsError builds the error without suggestions.
func NewMissingColumnsError(missing []Role, available []string) *MissingColumnsError {
	return &MissingColumnsError{
		Missing:   missing,
		Available: append([]string(nil), available...),
	}
}

func newMissingColumnsError(missing []Role, columns, normalized []string, aliases map[Role][]string, used map[int]bool) *MissingColumnsError {
	err := NewMissingColumnsError(missing, columns)
	for _, role := range missing {
		if hints := suggest(aliases[role], columns, normalized, used); len(hints) > 0 {
			if err.Suggestions == nil {
				err.Suggestions = make(map[Role][]string)
			}
			err.Suggestions[role] = hints
		}
	}
	return err
}

// suggest ranks unused headers that fuzzily contain an alias, or are contained
// in one (e.g. "monto_total" or "client" for the customer/amount aliases).
func suggest(candidates []string, columns, normalized []string, used map[int]bool) []string {
	free := make([]string, 0, len(normalized))
	freeIdx := make([]int, 0, len(normalized))
	for i, n := range normalized {
		if !used[i] && n != "" {
			free = append(free, n)
			freeIdx = append(freeIdx, i)
		}
	}
	if len(free) == 0 {
		return nil
	}

	best := make(map[int]int)
	record := func(idx, distance int) {
		if d, ok := best[idx]; !ok || distance < d {
			best[idx] = distance
		}
	}

	for _, alias := range candidates {
		for _, r := range fuzzy.RankFindNormalizedFold(alias, free) {
			record(freeIdx[r.OriginalIndex], r.Distance)
		}
		for i, header := range free {
			if len(header) >= 3 && fuzzy.MatchNormalizedFold(header, alias) {
				record(freeIdx[i], fuzzy.LevenshteinDistance(header, alias))
			}
		}
	}

	idxs := make([]int, 0, len(best))
	for idx := range best {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool {
		if best[idxs[i]] != best[idxs[j]] {
			return best[idxs[i]] < best[idxs[j]]
		}
		return idxs[i] < idxs[j]
	})

	hints := make([]string, len(idxs))
	for i, idx := range idxs {
		hints[i] = columns[idx]
	}
	return hints
}
