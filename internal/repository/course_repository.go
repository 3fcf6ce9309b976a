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

const courseSelect = `SELECT c.id, c.title, c.description, c.type, c.years, c.venue_id, v.name AS venue_name, c.template_id,
	c.start_date, c.end_date, c.capacity, c.price, c.status, c.published_at, c.created_by, c.created_at, c.updated_at`

const courseFrom = " FROM courses c LEFT JOIN venues v ON v.id = c.venue_id WHERE 1=1"

// CourseRepository manages persistence for courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func courseWhere(filter models.CourseFilter) *whereBuilder {
	w := &whereBuilder{}
	w.common("c.", filter.ListFilter)
	w.anyOf("c.type", filter.Types)
	w.overlaps("c.years", filter.Years)
	if filter.VenueID != "" {
		w.add("c.venue_id = $%d", filter.VenueID)
	}
	w.search(filter.Search, "c.title", "c.description", "v.name")
	return w
}

// List returns courses matching filters along with total count.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	w := courseWhere(filter)
	base := courseFrom + w.sql()

	order := orderClause(filter.ListFilter, map[string]string{
		"title":      "c.title",
		"start_date": "c.start_date",
		"price":      "c.price",
		"created_at": "c.created_at",
	}, "c.start_date")

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, courseSelect+base+order+pageClause(filter.ListFilter), w.args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+base, w.args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// Stats counts courses per status ignoring the status filter.
func (r *CourseRepository) Stats(ctx context.Context, filter models.CourseFilter) (models.StatusStats, error) {
	filter.ListFilter = withoutStatus(filter.ListFilter)
	w := courseWhere(filter)
	var rows []statusCount
	query := "SELECT c.status AS status, COUNT(*) AS count" + courseFrom + w.sql() + " GROUP BY c.status"
	if err := r.db.SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, fmt.Errorf("course stats: %w", err)
	}
	return toStats(rows, lifecycle.Statuses(lifecycle.KindCourse)), nil
}

// FindByID fetches a course by ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	if err := r.db.GetContext(ctx, &course, courseSelect+courseFrom+" AND c.id = $1", id); err != nil {
		return nil, err
	}
	return &course, nil
}

// Create inserts a new course record.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now

	const query = `INSERT INTO courses (id, title, description, type, years, venue_id, template_id, start_date, end_date, capacity, price, status, created_by, created_at, updated_at)
		VALUES (:id, :title, :description, :type, :years, :venue_id, :template_id, :start_date, :end_date, :capacity, :price, :status, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update modifies the editable fields of a course.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET title = :title, description = :description, type = :type, years = :years, venue_id = :venue_id,
		template_id = :template_id, start_date = :start_date, end_date = :end_date, capacity = :capacity, price = :price, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// UpdateStatus performs an optimistic status transition, stamping
// published_at when a course is published.
func (r *CourseRepository) UpdateStatus(ctx context.Context, id, from, to string) error {
	extra := ""
	if to == lifecycle.CoursePublished {
		extra = ", published_at = $2"
	}
	return updateStatus(ctx, r.db, "courses", id, from, to, extra, time.Now().UTC())
}

// Delete removes a course.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, "courses", id)
}
