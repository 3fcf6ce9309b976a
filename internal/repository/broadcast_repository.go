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

const broadcastColumns = `id, name, subject, body, body_html, template_id, channels, audience_type, audience_ids, scheduled_for, status,
	recipient_count, sent_count, failed_count, delivered_offset, last_error, sent_at, created_by, created_at, updated_at`

// BroadcastRepository manages persistence for broadcasts and their delivery progress.
type BroadcastRepository struct {
	db *sqlx.DB
}

// NewBroadcastRepository constructs a BroadcastRepository.
func NewBroadcastRepository(db *sqlx.DB) *BroadcastRepository {
	return &BroadcastRepository{db: db}
}

func broadcastWhere(filter models.BroadcastFilter) *whereBuilder {
	w := &whereBuilder{}
	w.common("", filter.ListFilter)
	if filter.Channel != "" {
		w.add("$%d = ANY(channels)", filter.Channel)
	}
	w.search(filter.Search, "name", "subject")
	return w
}

// List returns broadcasts matching filters along with total count.
func (r *BroadcastRepository) List(ctx context.Context, filter models.BroadcastFilter) ([]models.Broadcast, int, error) {
	w := broadcastWhere(filter)
	base := "FROM broadcasts WHERE 1=1" + w.sql()

	order := orderClause(filter.ListFilter, map[string]string{
		"name":          "name",
		"scheduled_for": "scheduled_for",
		"sent_at":       "sent_at",
		"created_at":    "created_at",
	}, "created_at")

	query := fmt.Sprintf("SELECT %s %s%s%s", broadcastColumns, base, order, pageClause(filter.ListFilter))
	var broadcasts []models.Broadcast
	if err := r.db.SelectContext(ctx, &broadcasts, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("list broadcasts: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, w.args...); err != nil {
		return nil, 0, fmt.Errorf("count broadcasts: %w", err)
	}
	return broadcasts, total, nil
}

// Stats counts broadcasts per status ignoring the status filter.
func (r *BroadcastRepository) Stats(ctx context.Context, filter models.BroadcastFilter) (models.StatusStats, error) {
	filter.ListFilter = withoutStatus(filter.ListFilter)
	w := broadcastWhere(filter)
	var rows []statusCount
	query := "SELECT status, COUNT(*) AS count FROM broadcasts WHERE 1=1" + w.sql() + " GROUP BY status"
	if err := r.db.SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, fmt.Errorf("broadcast stats: %w", err)
	}
	return toStats(rows, lifecycle.Statuses(lifecycle.KindBroadcast)), nil
}

// FindByID fetches a broadcast by ID.
func (r *BroadcastRepository) FindByID(ctx context.Context, id string) (*models.Broadcast, error) {
	query := fmt.Sprintf("SELECT %s FROM broadcasts WHERE id = $1", broadcastColumns)
	var b models.Broadcast
	if err := r.db.GetContext(ctx, &b, query, id); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListDue returns scheduled broadcasts whose send time has passed, oldest first.
func (r *BroadcastRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Broadcast, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf("SELECT %s FROM broadcasts WHERE status = $1 AND scheduled_for <= $2 ORDER BY scheduled_for ASC LIMIT %d", broadcastColumns, limit)
	var due []models.Broadcast
	if err := r.db.SelectContext(ctx, &due, query, lifecycle.BroadcastScheduled, now); err != nil {
		return nil, fmt.Errorf("list due broadcasts: %w", err)
	}
	return due, nil
}

// Create inserts a new broadcast record.
func (r *BroadcastRepository) Create(ctx context.Context, b *models.Broadcast) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	const query = `INSERT INTO broadcasts (id, name, subject, body, body_html, template_id, channels, audience_type, audience_ids, scheduled_for,
		status, recipient_count, sent_count, failed_count, delivered_offset, created_by, created_at, updated_at)
		VALUES (:id, :name, :subject, :body, :body_html, :template_id, :channels, :audience_type, :audience_ids, :scheduled_for,
		:status, :recipient_count, :sent_count, :failed_count, :delivered_offset, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, b); err != nil {
		return fmt.Errorf("create broadcast: %w", err)
	}
	return nil
}

// Update modifies the editable fields of a broadcast.
func (r *BroadcastRepository) Update(ctx context.Context, b *models.Broadcast) error {
	b.UpdatedAt = time.Now().UTC()
	const query = `UPDATE broadcasts SET name = :name, subject = :subject, body = :body, body_html = :body_html, template_id = :template_id,
		channels = :channels, audience_type = :audience_type, audience_ids = :audience_ids, scheduled_for = :scheduled_for, updated_at = :updated_at
		WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, b); err != nil {
		return fmt.Errorf("update broadcast: %w", err)
	}
	return nil
}

// UpdateStatus performs an optimistic status transition. Reaching sent stamps sent_at.
func (r *BroadcastRepository) UpdateStatus(ctx context.Context, id, from, to string) error {
	extra := ""
	if to == lifecycle.BroadcastSent {
		extra = ", sent_at = $2"
	}
	return updateStatus(ctx, r.db, "broadcasts", id, from, to, extra, time.Now().UTC())
}

// SetSchedule stores the send time for a broadcast.
func (r *BroadcastRepository) SetSchedule(ctx context.Context, id string, at *time.Time) error {
	const query = `UPDATE broadcasts SET scheduled_for = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at, time.Now().UTC()); err != nil {
		return fmt.Errorf("set broadcast schedule: %w", err)
	}
	return nil
}

// StartDelivery resets delivery counters and records the resolved audience size.
func (r *BroadcastRepository) StartDelivery(ctx context.Context, id string, recipients int) error {
	const query = `UPDATE broadcasts SET recipient_count = $2, sent_count = 0, failed_count = 0, delivered_offset = 0, last_error = NULL, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, recipients, time.Now().UTC()); err != nil {
		return fmt.Errorf("start broadcast delivery: %w", err)
	}
	return nil
}

// SaveProgress adds the counts of a delivered batch and advances the offset.
func (r *BroadcastRepository) SaveProgress(ctx context.Context, p models.DeliveryProgress) error {
	const query = `UPDATE broadcasts SET sent_count = sent_count + $2, failed_count = failed_count + $3, delivered_offset = $4,
		last_error = COALESCE($5, last_error), updated_at = $6 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, p.BroadcastID, p.Sent, p.Failed, p.Offset, p.LastError, time.Now().UTC()); err != nil {
		return fmt.Errorf("save broadcast progress: %w", err)
	}
	return nil
}

// Delete removes a broadcast.
func (r *BroadcastRepository) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, "broadcasts", id)
}
