package client

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bookon/bookon-api/pkg/filter"
)

// Status is the render state of a list page.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusEmpty   Status = "empty"
	StatusError   Status = "error"
)

// Fetcher loads one page for the given query.
type Fetcher[T any] func(ctx context.Context, query url.Values) (*ListResponse[T], error)

// Snapshot is a copy of the list page state safe to render.
type Snapshot[T any] struct {
	Status     Status
	Items      []T
	Pagination *Pagination
	Stats      map[string]int
	Filters    filter.State
	Err        error
	// Message is the user-facing text for Err.
	Message string
}

// ListPage drives one list screen: it reloads on filter changes, debouncing
// search text, and lets only the newest request update the rows. Rows from
// the last successful load stay visible while loading and after errors.
type ListPage[T any] struct {
	fetch    Fetcher[T]
	debounce time.Duration
	store    filter.Store
	pageKey  string
	base     context.Context
	onChange func(Snapshot[T])
	logger   *zap.Logger

	debouncer *filter.Debouncer

	mu       sync.Mutex
	state    filter.State
	seq      uint64
	cancel   context.CancelFunc
	snap     Snapshot[T]
	restored bool

	// filter saves run one at a time; unsaved holds the newest state
	// waiting for the running save to finish.
	saving  bool
	unsaved *filter.State
}

// ListOption configures a ListPage.
type ListOption[T any] func(*ListPage[T])

// WithDebounce overrides the search debounce delay.
func WithDebounce[T any](d time.Duration) ListOption[T] {
	return func(p *ListPage[T]) { p.debounce = d }
}

// WithFilterStore restores and saves filter state under pageKey.
func WithFilterStore[T any](store filter.Store, pageKey string) ListOption[T] {
	return func(p *ListPage[T]) {
		p.store = store
		p.pageKey = pageKey
	}
}

// WithOnChange is called with a fresh snapshot after every state change.
func WithOnChange[T any](fn func(Snapshot[T])) ListOption[T] {
	return func(p *ListPage[T]) { p.onChange = fn }
}

// WithBaseContext sets the context used by loads the page starts on its own,
// such as debounced searches.
func WithBaseContext[T any](ctx context.Context) ListOption[T] {
	return func(p *ListPage[T]) { p.base = ctx }
}

// WithListLogger attaches a logger.
func WithListLogger[T any](logger *zap.Logger) ListOption[T] {
	return func(p *ListPage[T]) { p.logger = logger }
}

// NewListPage builds a list page over fetch with every filter set to all.
func NewListPage[T any](fetch Fetcher[T], opts ...ListOption[T]) *ListPage[T] {
	p := &ListPage[T]{
		fetch:    fetch,
		debounce: filter.DefaultDebounce,
		base:     context.Background(),
		logger:   zap.NewNop(),
		state:    filter.NewState(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.snap = Snapshot[T]{Status: StatusIdle, Filters: p.state.Clone()}
	p.debouncer = filter.NewDebouncer(p.debounce, func(state filter.State) {
		p.persist(state)
		_ = p.run(p.base)
	})
	return p
}

// Load performs the initial fetch, restoring saved filters first.
func (p *ListPage[T]) Load(ctx context.Context) error {
	p.restore(ctx)
	return p.run(ctx)
}

// Retry reloads with the current filters after an error.
func (p *ListPage[T]) Retry(ctx context.Context) error {
	return p.run(ctx)
}

// Refresh reloads after a mutation such as a modal save.
func (p *ListPage[T]) Refresh(ctx context.Context) error {
	return p.run(ctx)
}

// SetSearch updates the search term and reloads once typing pauses. The
// filters are saved at the same point, not on every keystroke.
func (p *ListPage[T]) SetSearch(term string) {
	p.mu.Lock()
	p.state = p.state.WithSearch(term)
	state := p.state.Clone()
	p.mu.Unlock()
	p.debouncer.Trigger(state)
}

// SetFilter updates a categorical filter and reloads immediately, dropping
// any search reload still waiting.
func (p *ListPage[T]) SetFilter(key, value string) {
	p.mu.Lock()
	p.state = p.state.With(key, value)
	state := p.state.Clone()
	p.mu.Unlock()
	p.debouncer.Flush(state)
}

// Filters returns the current filter state.
func (p *ListPage[T]) Filters() filter.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

// Snapshot returns a copy of the current state.
func (p *ListPage[T]) Snapshot() Snapshot[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.copySnap()
}

// Close stops pending reloads and cancels any request in flight.
func (p *ListPage[T]) Close() {
	p.debouncer.Stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *ListPage[T]) run(ctx context.Context) error {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	query := filter.ToQuery(p.state)
	p.snap.Status = StatusLoading
	p.snap.Err = nil
	p.snap.Message = ""
	p.snap.Filters = p.state.Clone()
	loading := p.copySnap()
	p.mu.Unlock()
	p.notify(loading)

	res, err := p.fetch(ctx, query)

	p.mu.Lock()
	if seq != p.seq {
		p.mu.Unlock()
		cancel()
		return ErrStale
	}
	p.cancel = nil
	cancel()
	if err != nil {
		p.snap.Status = StatusError
		p.snap.Err = err
		p.snap.Message = UserMessage(err)
		p.logger.Debug("list load failed", zap.Error(err))
	} else {
		p.snap.Items = res.Items
		p.snap.Pagination = res.Pagination
		p.snap.Stats = res.Stats
		p.snap.Status = StatusReady
		if len(res.Items) == 0 {
			p.snap.Status = StatusEmpty
		}
	}
	done := p.copySnap()
	p.mu.Unlock()
	p.notify(done)
	return err
}

func (p *ListPage[T]) restore(ctx context.Context) {
	p.mu.Lock()
	if p.restored || p.store == nil {
		p.mu.Unlock()
		return
	}
	p.restored = true
	p.mu.Unlock()

	saved, err := p.store.Load(ctx, p.pageKey)
	if err != nil {
		p.logger.Warn("load saved filters", zap.String("page", p.pageKey), zap.Error(err))
		return
	}
	if saved == nil {
		return
	}
	p.mu.Lock()
	p.state = saved.Clone()
	p.mu.Unlock()
}

// persist saves state in the background. Saves never overlap and states
// queued behind a running save collapse into the newest one.
func (p *ListPage[T]) persist(state filter.State) {
	if p.store == nil {
		return
	}
	p.mu.Lock()
	p.unsaved = &state
	if p.saving {
		p.mu.Unlock()
		return
	}
	p.saving = true
	p.mu.Unlock()
	go p.saveLoop()
}

func (p *ListPage[T]) saveLoop() {
	for {
		p.mu.Lock()
		next := p.unsaved
		p.unsaved = nil
		if next == nil {
			p.saving = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		if err := p.store.Save(p.base, p.pageKey, *next); err != nil {
			p.logger.Warn("save filters", zap.String("page", p.pageKey), zap.Error(err))
		}
	}
}

func (p *ListPage[T]) notify(snap Snapshot[T]) {
	if p.onChange != nil {
		p.onChange(snap)
	}
}

// copySnap must be called with mu held.
func (p *ListPage[T]) copySnap() Snapshot[T] {
	out := p.snap
	if p.snap.Items != nil {
		out.Items = append([]T(nil), p.snap.Items...)
	}
	out.Filters = p.snap.Filters.Clone()
	return out
}

// IsStale reports whether err came from a superseded load.
func IsStale(err error) bool {
	return errors.Is(err, ErrStale) || errors.Is(err, context.Canceled)
}
