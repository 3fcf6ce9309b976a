package filter

import (
	"net/url"
	"strings"
)

// SearchParam is the query parameter carrying the free-text search.
const SearchParam = "search"

// ToQuery converts state into server query parameters. Empty search terms and
// categorical filters set to All are omitted entirely.
func ToQuery(state State) url.Values {
	values := url.Values{}
	if term := strings.TrimSpace(state.SearchTerm); term != "" {
		values.Set(SearchParam, term)
	}
	for _, sel := range state.Active() {
		values.Set(sel.Key, strings.Join(sel.Values, ","))
	}
	return values
}

// FromQuery rebuilds a State from query parameters, reading only the given keys.
func FromQuery(values url.Values, keys ...string) State {
	state := NewState()
	state.SearchTerm = strings.TrimSpace(values.Get(SearchParam))
	for _, key := range keys {
		v := strings.TrimSpace(values.Get(key))
		if v == "" {
			v = All
		}
		state.Categorical[key] = v
	}
	return state
}

// Values returns the selected values for key, or nil when the key is unset or All.
func (s State) Values(key string) []string {
	v := strings.TrimSpace(s.Categorical[key])
	if v == "" || strings.EqualFold(v, All) {
		return nil
	}
	return splitValues(v)
}
