package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookon/bookon-api/internal/models"
	appErrors "github.com/bookon/bookon-api/pkg/errors"
	"github.com/bookon/bookon-api/pkg/lifecycle"
)

type memoryCacheRepo struct {
	items   map[string][]byte
	deleted []string
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{items: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
		}
	}
	return nil
}

var (
	admin    = Actor{UserID: "admin-1", Role: models.RoleAdmin}
	business = Actor{UserID: "biz-1", Role: models.RoleBusiness}
	rival    = Actor{UserID: "biz-2", Role: models.RoleBusiness}
)

func assertCode(t *testing.T, want *appErrors.Error, err error) *appErrors.Error {
	t.Helper()
	require.Error(t, err)
	got := appErrors.FromError(err)
	assert.Equal(t, want.Code, got.Code, got.Message)
	return got
}

func TestResolveActionRejectsSystemAndUnknownActions(t *testing.T) {
	next, err := resolveAction(lifecycle.KindBroadcast, lifecycle.BroadcastSending, lifecycle.ActionPause)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.BroadcastPaused, next)

	_, err = resolveAction(lifecycle.KindBroadcast, lifecycle.BroadcastSending, lifecycle.ActionComplete)
	appErr := assertCode(t, appErrors.ErrInvalidTransition, err)
	assert.Equal(t, 409, appErr.Status)

	_, err = resolveAction(lifecycle.KindCourse, lifecycle.CourseArchived, lifecycle.ActionPublish)
	assertCode(t, appErrors.ErrInvalidTransition, err)

	_, err = resolveAction(lifecycle.KindCourse, "bogus", lifecycle.ActionPublish)
	assertCode(t, appErrors.ErrInvalidTransition, err)

	next, err = resolveAction(lifecycle.KindTemplate, lifecycle.TemplateArchived, lifecycle.ActionUnarchive)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.TemplateInactive, next)
}

func TestActorAccess(t *testing.T) {
	assert.True(t, admin.canAccess("anyone"))
	assert.True(t, business.canAccess("biz-1"))
	assert.False(t, business.canAccess("biz-2"))
	assert.False(t, Actor{}.canAccess(""))
	assert.Equal(t, "", admin.scope())
	assert.Equal(t, "biz-1", business.scope())

	claims := &models.JWTClaims{UserID: "p1", Role: models.RoleParent}
	assert.Equal(t, Actor{UserID: "p1", Role: models.RoleParent}, ActorFromClaims(claims))
	assert.Equal(t, Actor{}, ActorFromClaims(nil))
}

func TestCachedListServesHitsAndInvalidates(t *testing.T) {
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)
	ctx := context.Background()
	calls := 0
	load := func() (*ListResult[string], error) {
		calls++
		return &ListResult[string]{Items: []string{"a"}, Pagination: &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}}, nil
	}
	filter := models.ListFilter{Search: "x"}

	first, err := cachedList(ctx, cache, "widgets", filter, load)
	require.NoError(t, err)
	second, err := cachedList(ctx, cache, "widgets", filter, load)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first.Items, second.Items)
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)

	_, err = cachedList(ctx, cache, "widgets", models.ListFilter{Search: "y"}, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	invalidateList(ctx, cache, "widgets")
	assert.Equal(t, []string{"bookon:list:widgets:*"}, repo.deleted)
	_, err = cachedList(ctx, cache, "widgets", filter, load)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestCachedListWithoutCache(t *testing.T) {
	calls := 0
	for i := 0; i < 2; i++ {
		_, err := cachedList(context.Background(), nil, "widgets", nil, func() (*ListResult[int], error) {
			calls++
			return &ListResult[int]{}, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)
}
