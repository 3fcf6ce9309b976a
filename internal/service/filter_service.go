package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/bookon/bookon-api/pkg/filter"
)

// FilterPages lists the list pages whose filter state may be saved, with the
// categorical keys each accepts.
var FilterPages = map[string][]string{
	"templates":     {"type", "status"},
	"courses":       {"type", "years", "status", "venueId"},
	"broadcasts":    {"status", "channel"},
	"registers":     {"status", "venueId", "courseId"},
	"venues":        {"city"},
	"users":         {"role", "active"},
	"notifications": {"status"},
}

// FilterStoreFactory returns the store holding one user's saved filters.
type FilterStoreFactory func(userID string) filter.Store

// FilterService persists each user's list filters between sessions.
type FilterService struct {
	stores  FilterStoreFactory
	enabled bool
	logger  *zap.Logger
}

// NewFilterService constructs a FilterService. A nil factory or enabled=false
// turns saving into a no-op and loading into the default state.
func NewFilterService(stores FilterStoreFactory, enabled bool, logger *zap.Logger) *FilterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilterService{stores: stores, enabled: enabled && stores != nil, logger: logger}
}

// Load returns the saved state for page, or the default state.
func (s *FilterService) Load(ctx context.Context, actor Actor, page string) (filter.State, error) {
	if _, ok := FilterPages[page]; !ok {
		return filter.State{}, unknownPage(page)
	}
	if !s.enabled {
		return filter.NewState(), nil
	}
	state, err := s.stores(actor.UserID).Load(ctx, page)
	if err != nil {
		return filter.State{}, internalError(err, "failed to load saved filters")
	}
	if state == nil {
		return filter.NewState(), nil
	}
	return *state, nil
}

// Save stores state for page. Categorical keys the page does not know are dropped.
func (s *FilterService) Save(ctx context.Context, actor Actor, page string, state filter.State) (filter.State, error) {
	keys, ok := FilterPages[page]
	if !ok {
		return filter.State{}, unknownPage(page)
	}
	clean := filter.NewState().WithSearch(state.SearchTerm)
	clean.ShowAdvanced = state.ShowAdvanced
	for _, key := range keys {
		if v, ok := state.Categorical[key]; ok {
			clean = clean.With(key, v)
		}
	}
	if !s.enabled {
		return clean, nil
	}
	if err := s.stores(actor.UserID).Save(ctx, page, clean); err != nil {
		return filter.State{}, internalError(err, "failed to save filters")
	}
	return clean, nil
}

func unknownPage(page string) error {
	return fieldError("page", "Filters cannot be saved for page "+page)
}
