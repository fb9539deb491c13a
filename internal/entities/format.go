package entities

import (
	"fmt"
	"sort"
	"strings"
)

// ColumnNames are the spreadsheet columns Format fills, in output order.
var ColumnNames = []string{
	"unique_entities",
	"entities_count",
	"entities_with_types",
	"unique_entities_with_count",
	"unique_surnames",
	"surnames_count",
}

// Columns is the per-row summary written next to the original columns.
type Columns struct {
	UniqueEntities          string
	EntitiesCount           int
	EntitiesWithTypes       string
	UniqueEntitiesWithCount string
	UniqueSurnames          string
	SurnamesCount           int
}

// Format orders groups by mention count (descending) then name and renders the
// summary columns. Surnames are de-duplicated and sorted.
func Format(groups []Group) Columns {
	if len(groups) == 0 {
		return Columns{}
	}

	sorted := make([]Group, len(groups))
	copy(sorted, groups)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Count != sorted[j].Count {
			return sorted[i].Count > sorted[j].Count
		}
		return sorted[i].Normalized < sorted[j].Normalized
	})

	names := make([]string, 0, len(sorted))
	withTypes := make([]string, 0, len(sorted))
	withCount := make([]string, 0, len(sorted))
	for _, g := range sorted {
		names = append(names, g.Normalized)
		withTypes = append(withTypes, fmt.Sprintf("%s (%s)", g.Normalized, g.Type))
		withCount = append(withCount, fmt.Sprintf("%s (%d)", g.Normalized, g.Count))
	}

	seen := make(map[string]struct{})
	var surnames []string
	for _, g := range groups {
		if g.Type != TypePerson || g.Surname == "" {
			continue
		}
		if _, ok := seen[g.Surname]; ok {
			continue
		}
		seen[g.Surname] = struct{}{}
		surnames = append(surnames, g.Surname)
	}
	sort.Strings(surnames)

	return Columns{
		UniqueEntities:          strings.Join(names, ", "),
		EntitiesCount:           len(names),
		EntitiesWithTypes:       strings.Join(withTypes, ", "),
		UniqueEntitiesWithCount: strings.Join(withCount, ", "),
		UniqueSurnames:          strings.Join(surnames, ", "),
		SurnamesCount:           len(surnames),
	}
}

// Cells returns the column values in ColumnNames order.
func (c Columns) Cells() []any {
	return []any{
		c.UniqueEntities,
		c.EntitiesCount,
		c.EntitiesWithTypes,
		c.UniqueEntitiesWithCount,
		c.UniqueSurnames,
		c.SurnamesCount,
	}
}

// Fields returns the columns keyed by name for sinks.
func (c Columns) Fields() map[string]any {
	out := make(map[string]any, len(ColumnNames))
	for i, v := range c.Cells() {
		out[ColumnNames[i]] = v
	}
	return out
}
