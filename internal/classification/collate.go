package classification

import (
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// newCollator returns a base-strength English collator: case, accents and
// width are ignored. Collators are not safe for concurrent use, so one is
// built per sort.
func newCollator() *collate.Collator {
	return collate.New(language.English, collate.Loose)
}

// SortNames returns a sorted copy of names. Names that collate equal keep
// their input order.
func SortNames(names []string) []string {
	out := slices.Clone(names)
	if out == nil {
		return []string{}
	}
	c := newCollator()
	slices.SortStableFunc(out, func(a, b string) int {
		return c.CompareString(a, b)
	})
	return out
}

// SortOptions returns a copy of opts sorted by name with duplicate names
// removed; the first occurrence of a name wins.
func SortOptions(opts []BasicOption) []BasicOption {
	seen := make(map[string]struct{}, len(opts))
	out := make([]BasicOption, 0, len(opts))
	for _, o := range opts {
		if _, dup := seen[o.Name]; dup {
			continue
		}
		seen[o.Name] = struct{}{}
		out = append(out, o)
	}
	c := newCollator()
	slices.SortStableFunc(out, func(a, b BasicOption) int {
		return c.CompareString(a.Name, b.Name)
	})
	return out
}
