package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bookon/bookon-api/internal/models"
	"github.com/bookon/bookon-api/pkg/lifecycle"
)

const templateColumns = "id, name, type, subject, body, body_html, description, tags, status, created_by, created_at, updated_at"

// TemplateRepository manages persistence for message templates.
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository constructs a TemplateRepository.
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func templateWhere(filter models.TemplateFilter) *whereBuilder {
	w := &whereBuilder{}
	w.common("", filter.ListFilter)
	if filter.Type != "" {
		w.add("type = $%d", filter.Type)
	}
	w.search(filter.Search, "name", "subject", "description")
	return w
}

// List returns templates matching filters along with total count.
func (r *TemplateRepository) List(ctx context.Context, filter models.TemplateFilter) ([]models.Template, int, error) {
	w := templateWhere(filter)
	base := "FROM templates WHERE 1=1" + w.sql()

	order := orderClause(filter.ListFilter, map[string]string{
		"name":       "name",
		"type":       "type",
		"created_at": "created_at",
		"updated_at": "updated_at",
	}, "updated_at")

	query := fmt.Sprintf("SELECT %s %s%s%s", templateColumns, base, order, pageClause(filter.ListFilter))
	var templates []models.Template
	if err := r.db.SelectContext(ctx, &templates, query, w.args...); err != nil {
		return nil, 0, fmt.Errorf("list templates: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, w.args...); err != nil {
		return nil, 0, fmt.Errorf("count templates: %w", err)
	}
	return templates, total, nil
}

// Stats counts templates per status ignoring the status filter.
func (r *TemplateRepository) Stats(ctx context.Context, filter models.TemplateFilter) (models.StatusStats, error) {
	filter.ListFilter = withoutStatus(filter.ListFilter)
	w := templateWhere(filter)
	var rows []statusCount
	query := "SELECT status, COUNT(*) AS count FROM templates WHERE 1=1" + w.sql() + " GROUP BY status"
	if err := r.db.SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, fmt.Errorf("template stats: %w", err)
	}
	return toStats(rows, lifecycle.Statuses(lifecycle.KindTemplate)), nil
}

// FindByID fetches a template by ID.
func (r *TemplateRepository) FindByID(ctx context.Context, id string) (*models.Template, error) {
	query := fmt.Sprintf("SELECT %s FROM templates WHERE id = $1", templateColumns)
	var tpl models.Template
	if err := r.db.GetContext(ctx, &tpl, query, id); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// ExistsByName checks whether the owner already has a template with name.
func (r *TemplateRepository) ExistsByName(ctx context.Context, ownerID, name, excludeID string) (bool, error) {
	query := "SELECT 1 FROM templates WHERE created_by = $1 AND LOWER(name) = LOWER($2)"
	args := []interface{}{ownerID, name}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check template name: %w", err)
	}
	return true, nil
}

// CountReferences returns how many courses and broadcasts use the template.
func (r *TemplateRepository) CountReferences(ctx context.Context, id string) (int, error) {
	const query = `SELECT (SELECT COUNT(*) FROM courses WHERE template_id = $1) + (SELECT COUNT(*) FROM broadcasts WHERE template_id = $1)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count template references: %w", err)
	}
	return count, nil
}

// Create inserts a new template record.
func (r *TemplateRepository) Create(ctx context.Context, tpl *models.Template) error {
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now

	const query = `INSERT INTO templates (id, name, type, subject, body, body_html, description, tags, status, created_by, created_at, updated_at)
		VALUES (:id, :name, :type, :subject, :body, :body_html, :description, :tags, :status, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, tpl); err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

// Update modifies the editable fields of a template.
func (r *TemplateRepository) Update(ctx context.Context, tpl *models.Template) error {
	tpl.UpdatedAt = time.Now().UTC()
	const query = `UPDATE templates SET name = :name, type = :type, subject = :subject, body = :body, body_html = :body_html,
		description = :description, tags = :tags, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, tpl); err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return nil
}

// UpdateStatus performs an optimistic status transition.
func (r *TemplateRepository) UpdateStatus(ctx context.Context, id, from, to string) error {
	return updateStatus(ctx, r.db, "templates", id, from, to, "", time.Now().UTC())
}

// Delete removes a template.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, "templates", id)
}
