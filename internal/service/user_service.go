package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/bookon/bookon-api/internal/models"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// UserService exposes account listings to administrators.
type UserService struct {
	repo   userRepository
	logger *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, logger: logger}
}

// List returns users matching the filter.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) (*ListResult[models.User], error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list users")
	}
	return &ListResult[models.User]{Items: users, Pagination: filter.Paginate(total)}, nil
}

// Get returns a single user.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "user")
	}
	return user, nil
}
