package client

import (
	"context"
	"net/http"
	"net/url"
	"path"

	"github.com/bookon/bookon-api/internal/models"
	"github.com/bookon/bookon-api/pkg/filter"
)

// ListResponse is one page of a list endpoint.
type ListResponse[T any] struct {
	Items      []T
	Pagination *Pagination
	Stats      map[string]int
	CacheHit   bool
}

// Resource issues the standard CRUD and transition calls for one collection.
type Resource[T any] struct {
	client *Client
	base   string
}

// NewResource binds a collection path such as "/templates".
func NewResource[T any](c *Client, base string) *Resource[T] {
	return &Resource[T]{client: c, base: base}
}

// Templates, Courses, Broadcasts, Registers and Venues return the typed collections.
func Templates(c *Client) *Resource[models.Template] { return NewResource[models.Template](c, "/templates") }

func Courses(c *Client) *Resource[models.Course] { return NewResource[models.Course](c, "/courses") }

func Broadcasts(c *Client) *Resource[models.Broadcast] {
	return NewResource[models.Broadcast](c, "/broadcasts")
}

func Registers(c *Client) *Resource[models.Register] { return NewResource[models.Register](c, "/registers") }

func Venues(c *Client) *Resource[models.Venue] { return NewResource[models.Venue](c, "/venues") }

// List fetches a page using query, typically built by filter.ToQuery.
func (r *Resource[T]) List(ctx context.Context, query url.Values) (*ListResponse[T], error) {
	var items []T
	env, err := r.client.do(ctx, http.MethodGet, r.base, query, nil, &items)
	if err != nil {
		return nil, err
	}
	out := &ListResponse[T]{Items: items, Pagination: env.Pagination}
	if raw, ok := env.Meta["stats"].(map[string]interface{}); ok {
		out.Stats = make(map[string]int, len(raw))
		for k, v := range raw {
			if n, ok := v.(float64); ok {
				out.Stats[k] = int(n)
			}
		}
	}
	if hit, ok := env.Meta["cacheHit"].(bool); ok {
		out.CacheHit = hit
	}
	return out, nil
}

// Get fetches one entity.
func (r *Resource[T]) Get(ctx context.Context, id string) (*T, error) {
	var out T
	if _, err := r.client.do(ctx, http.MethodGet, path.Join(r.base, url.PathEscape(id)), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create posts a new entity.
func (r *Resource[T]) Create(ctx context.Context, form interface{}) (*T, error) {
	var out T
	if _, err := r.client.do(ctx, http.MethodPost, r.base, nil, form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update replaces an entity.
func (r *Resource[T]) Update(ctx context.Context, id string, form interface{}) (*T, error) {
	var out T
	if _, err := r.client.do(ctx, http.MethodPut, path.Join(r.base, url.PathEscape(id)), nil, form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transition applies a lifecycle action. body may be nil.
func (r *Resource[T]) Transition(ctx context.Context, id, action string, body interface{}) (*T, error) {
	var out T
	target := path.Join(r.base, url.PathEscape(id), url.PathEscape(action))
	if _, err := r.client.do(ctx, http.MethodPatch, target, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes an entity.
func (r *Resource[T]) Delete(ctx context.Context, id string) error {
	_, err := r.client.do(ctx, http.MethodDelete, path.Join(r.base, url.PathEscape(id)), nil, nil, nil)
	return err
}

// Fetcher adapts the resource to a ListPage.
func (r *Resource[T]) Fetcher() Fetcher[T] {
	return r.List
}

// RemoteStore persists filter state through the saved-filters endpoints.
type RemoteStore struct {
	client *Client
}

// NewRemoteStore builds a filter.Store backed by the API.
func NewRemoteStore(c *Client) *RemoteStore {
	return &RemoteStore{client: c}
}

var _ filter.Store = (*RemoteStore)(nil)

// Load implements filter.Store.
func (s *RemoteStore) Load(ctx context.Context, pageKey string) (*filter.State, error) {
	var state filter.State
	if _, err := s.client.do(ctx, http.MethodGet, "/filters/"+url.PathEscape(pageKey), nil, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Save implements filter.Store.
func (s *RemoteStore) Save(ctx context.Context, pageKey string, state filter.State) error {
	_, err := s.client.do(ctx, http.MethodPut, "/filters/"+url.PathEscape(pageKey), nil, state, nil)
	return err
}
