// Package filter turns list-page search input into either a client-side
// predicate or a server query string, using the same rules for both.
package filter

import (
	"sort"
	"strings"
)

// All is the sentinel value meaning "do not filter on this key".
const All = "all"

// State captures the search box and dropdown selections of one list page.
type State struct {
	SearchTerm   string            `json:"searchTerm"`
	Categorical  map[string]string `json:"categoricalFilters"`
	ShowAdvanced bool              `json:"showAdvanced"`
}

// NewState returns an empty state with every filter set to All.
func NewState() State {
	return State{Categorical: map[string]string{}}
}

// With returns a copy of s with key set to value.
func (s State) With(key, value string) State {
	out := s.Clone()
	out.Categorical[key] = value
	return out
}

// WithSearch returns a copy of s with the search term replaced.
func (s State) WithSearch(term string) State {
	out := s.Clone()
	out.SearchTerm = term
	return out
}

// Clone deep-copies the categorical map.
func (s State) Clone() State {
	out := s
	out.Categorical = make(map[string]string, len(s.Categorical))
	for k, v := range s.Categorical {
		out.Categorical[k] = v
	}
	return out
}

// Active returns the categorical filters whose value is not All, sorted by key.
func (s State) Active() []Selection {
	var out []Selection
	for k, v := range s.Categorical {
		v = strings.TrimSpace(v)
		if v == "" || strings.EqualFold(v, All) {
			continue
		}
		out = append(out, Selection{Key: k, Values: splitValues(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Selection is one non-"all" categorical filter. Multi-select values are
// carried comma separated in State and expanded here.
type Selection struct {
	Key    string
	Values []string
}

func splitValues(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
