package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bookon/bookon-api/internal/models"
	"github.com/bookon/bookon-api/pkg/lifecycle"
)

const notificationColumns = "id, user_id, title, body, link, status, read_at, created_at, updated_at"

// NotificationRepository stores per-user in-app notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs a NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func notificationWhere(filter models.NotificationFilter) *whereBuilder {
	w := &whereBuilder{}
	w.add("user_id = $%d", filter.UserID)
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}
	w.search(filter.Search, "title", "body")
	return w
}

// List returns a user's notifications, newest first.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	w := notificationWhere(filter)
	base := "FROM notifications WHERE 1=1" + w.sql()

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC%s", notificationColumns, base, pageClause(filter.ListFilter))
	var items []models.Notification
	if err := r.db.SelectContext(ctx, &items, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, w.args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return items, total, nil
}

// Stats counts a user's notifications per status.
func (r *NotificationRepository) Stats(ctx context.Context, filter models.NotificationFilter) (models.StatusStats, error) {
	filter.Status = ""
	w := notificationWhere(filter)
	var rows []statusCount
	query := "SELECT status, COUNT(*) AS count FROM notifications WHERE 1=1" + w.sql() + " GROUP BY status"
	if err := r.db.SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, fmt.Errorf("notification stats: %w", err)
	}
	return toStats(rows, lifecycle.Statuses(lifecycle.KindNotification)), nil
}

// FindByID fetches a notification by ID.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	query := fmt.Sprintf("SELECT %s FROM notifications WHERE id = $1", notificationColumns)
	var n models.Notification
	if err := r.db.GetContext(ctx, &n, query, id); err != nil {
		return nil, err
	}
	return &n, nil
}

// CreateMany inserts notifications in a single statement.
func (r *NotificationRepository) CreateMany(ctx context.Context, items []models.Notification) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		if items[i].Status == "" {
			items[i].Status = lifecycle.NotificationUnread
		}
		items[i].CreatedAt = now
		items[i].UpdatedAt = now
	}
	const query = `INSERT INTO notifications (id, user_id, title, body, link, status, created_at, updated_at)
		VALUES (:id, :user_id, :title, :body, :link, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, items); err != nil {
		return fmt.Errorf("create notifications: %w", err)
	}
	return nil
}

// UpdateStatus performs an optimistic status transition. Reading stamps
// read_at; marking unread clears it.
func (r *NotificationRepository) UpdateStatus(ctx context.Context, id, from, to string) error {
	extra := ""
	switch to {
	case lifecycle.NotificationRead:
		extra = ", read_at = $2"
	case lifecycle.NotificationUnread:
		extra = ", read_at = NULL"
	}
	return updateStatus(ctx, r.db, "notifications", id, from, to, extra, time.Now().UTC())
}
