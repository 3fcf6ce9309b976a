package filter

import "strings"

// Fields describes how to read the searchable and filterable values of T.
type Fields[T any] struct {
	// Text extractors feed the case-insensitive substring search.
	Text []func(T) string
	// Categorical extractors are keyed by filter key. An item may carry several
	// values for one key (for example the school years a course covers).
	Categorical map[string]func(T) []string
}

// Apply filters items client side. An empty search term matches everything;
// categorical filters are AND-combined and skipped when set to All.
func Apply[T any](items []T, state State, fields Fields[T]) []T {
	term := strings.ToLower(strings.TrimSpace(state.SearchTerm))
	active := state.Active()

	out := make([]T, 0, len(items))
	for _, item := range items {
		if term != "" && !matchesText(item, term, fields.Text) {
			continue
		}
		if !matchesCategorical(item, active, fields.Categorical) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func matchesText[T any](item T, term string, extractors []func(T) string) bool {
	for _, extract := range extractors {
		if strings.Contains(strings.ToLower(extract(item)), term) {
			return true
		}
	}
	return false
}

func matchesCategorical[T any](item T, active []Selection, extractors map[string]func(T) []string) bool {
	for _, sel := range active {
		extract, ok := extractors[sel.Key]
		if !ok {
			// unknown keys are server-side only
			continue
		}
		if !anyEqualFold(extract(item), sel.Values) {
			return false
		}
	}
	return true
}

func anyEqualFold(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}
