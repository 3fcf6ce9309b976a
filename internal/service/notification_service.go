package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/bookon/bookon-api/internal/models"
	appErrors "github.com/bookon/bookon-api/pkg/errors"
	"github.com/bookon/bookon-api/pkg/lifecycle"
)

type notificationRepository interface {
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	Stats(ctx context.Context, filter models.NotificationFilter) (models.StatusStats, error)
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	CreateMany(ctx context.Context, items []models.Notification) error
	UpdateStatus(ctx context.Context, id, from, to string) error
}

// NotificationService serves each user's in-app notification feed. Feeds are
// never cached; they change with every broadcast.
type NotificationService struct {
	repo    notificationRepository
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(repo notificationRepository, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, metrics: metrics, logger: logger}
}

// List returns the actor's own notifications, whatever their role.
func (s *NotificationService) List(ctx context.Context, actor Actor, filter models.NotificationFilter) (*ListResult[models.Notification], error) {
	filter.UserID = actor.UserID
	filter.OwnerID = ""
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list notifications")
	}
	stats, err := s.repo.Stats(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to count notifications")
	}
	return &ListResult[models.Notification]{Items: items, Pagination: filter.Paginate(total), Stats: stats}, nil
}

// Transition applies read, unread or archive to one of the actor's notifications.
func (s *NotificationService) Transition(ctx context.Context, actor Actor, id, action string) (*models.Notification, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "notification")
	}
	if n.UserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	next, err := resolveAction(lifecycle.KindNotification, n.Status, action)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, n.ID, n.Status, next); err != nil {
		return nil, statusUpdateError(err, "notification")
	}
	s.metrics.RecordTransition(string(lifecycle.KindNotification), action)
	n.Status = next
	return n, nil
}

// Notify sends an in-app notification to each user id.
func (s *NotificationService) Notify(ctx context.Context, userIDs []string, title, body string, link *string) error {
	if strings.TrimSpace(title) == "" {
		return fieldError("title", "Title is required")
	}
	items := make([]models.Notification, 0, len(userIDs))
	for _, id := range trimAll(userIDs) {
		items = append(items, models.Notification{UserID: id, Title: title, Body: body, Link: link})
	}
	if len(items) == 0 {
		return nil
	}
	if err := s.repo.CreateMany(ctx, items); err != nil {
		return internalError(err, "failed to create notifications")
	}
	return nil
}
