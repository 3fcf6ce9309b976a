package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookon/bookon-api/internal/models"
	appErrors "github.com/bookon/bookon-api/pkg/errors"
)

type mockUserRepo struct {
	users   map[string]*models.User
	listErr error
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var users []models.User
	for _, u := range m.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: map[string]*models.User{
		"u-1": {ID: "u-1", Email: "owner@example.com", FullName: "Club Owner", Role: models.RoleBusiness, Active: true},
		"u-2": {ID: "u-2", Email: "parent@example.com", FullName: "Pat Parent", Role: models.RoleParent, Active: true},
	}}
}

func TestUserServiceList(t *testing.T) {
	svc := NewUserService(newMockUserRepo(), nil)
	role := models.RoleParent

	res, err := svc.List(context.Background(), models.UserFilter{Role: &role, ListFilter: models.ListFilter{PageSize: 10}})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "u-2", res.Items[0].ID)
	assert.Equal(t, 1, res.Pagination.TotalCount)
	assert.Equal(t, 10, res.Pagination.PageSize)
}

func TestUserServiceListError(t *testing.T) {
	repo := newMockUserRepo()
	repo.listErr = errors.New("db down")
	svc := NewUserService(repo, nil)

	_, err := svc.List(context.Background(), models.UserFilter{})
	assertCode(t, appErrors.ErrInternal, err)
}

func TestUserServiceGet(t *testing.T) {
	svc := NewUserService(newMockUserRepo(), nil)

	user, err := svc.Get(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Club Owner", user.FullName)

	_, err = svc.Get(context.Background(), "missing")
	assertCode(t, appErrors.ErrNotFound, err)
}
