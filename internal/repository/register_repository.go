package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bookon/bookon-api/internal/models"
	"github.com/bookon/bookon-api/pkg/database"
	"github.com/bookon/bookon-api/pkg/lifecycle"
)

// ErrUnknownAttendee is returned when an attendance mark names a child that
// is not on the register.
var ErrUnknownAttendee = errors.New("attendee not on register")

const registerSelect = `SELECT r.id, r.course_id, c.title AS course_title, r.venue_id, v.name AS venue_name, r.session_date, r.start_time, r.end_time,
	r.capacity, r.notes, r.status, r.started_at, r.completed_at, r.created_by, r.created_at, r.updated_at,
	(SELECT COUNT(*) FROM register_attendees a WHERE a.register_id = r.id) AS attendee_count,
	(SELECT COUNT(*) FROM register_attendees a WHERE a.register_id = r.id AND a.present) AS present_count`

const registerFrom = " FROM registers r LEFT JOIN courses c ON c.id = r.course_id LEFT JOIN venues v ON v.id = r.venue_id WHERE 1=1"

const attendeeColumns = "id, register_id, booking_id, child_name, parent_id, present, arrived_at, note, marked_at"

// RegisterRepository manages registers and their attendees.
type RegisterRepository struct {
	db *sqlx.DB
}

// NewRegisterRepository constructs a RegisterRepository.
func NewRegisterRepository(db *sqlx.DB) *RegisterRepository {
	return &RegisterRepository{db: db}
}

func registerWhere(filter models.RegisterFilter) *whereBuilder {
	w := &whereBuilder{}
	w.common("r.", filter.ListFilter)
	if filter.VenueID != "" {
		w.add("r.venue_id = $%d", filter.VenueID)
	}
	if filter.CourseID != "" {
		w.add("r.course_id = $%d", filter.CourseID)
	}
	w.search(filter.Search, "c.title", "v.name", "r.notes")
	return w
}

// List returns registers matching filters along with total count.
func (r *RegisterRepository) List(ctx context.Context, filter models.RegisterFilter) ([]models.Register, int, error) {
	w := registerWhere(filter)
	base := registerFrom + w.sql()

	order := orderClause(filter.ListFilter, map[string]string{
		"date":       "r.session_date",
		"created_at": "r.created_at",
	}, "r.session_date")

	var registers []models.Register
	if err := r.db.SelectContext(ctx, &registers, registerSelect+base+order+pageClause(filter.ListFilter), w.args...); err != nil {
		return nil, 0, fmt.Errorf("list registers: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+base, w.args...); err != nil {
		return nil, 0, fmt.Errorf("count registers: %w", err)
	}
	return registers, total, nil
}

// Stats counts registers per status ignoring the status filter.
func (r *RegisterRepository) Stats(ctx context.Context, filter models.RegisterFilter) (models.StatusStats, error) {
	filter.ListFilter = withoutStatus(filter.ListFilter)
	w := registerWhere(filter)
	var rows []statusCount
	query := "SELECT r.status AS status, COUNT(*) AS count" + registerFrom + w.sql() + " GROUP BY r.status"
	if err := r.db.SelectContext(ctx, &rows, query, w.args...); err != nil {
		return nil, fmt.Errorf("register stats: %w", err)
	}
	return toStats(rows, lifecycle.Statuses(lifecycle.KindRegister)), nil
}

// FindByID fetches a register by ID.
func (r *RegisterRepository) FindByID(ctx context.Context, id string) (*models.Register, error) {
	var reg models.Register
	if err := r.db.GetContext(ctx, &reg, registerSelect+registerFrom+" AND r.id = $1", id); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Attendees lists the children on a register ordered by name.
func (r *RegisterRepository) Attendees(ctx context.Context, registerID string) ([]models.RegisterAttendee, error) {
	query := fmt.Sprintf("SELECT %s FROM register_attendees WHERE register_id = $1 ORDER BY child_name ASC", attendeeColumns)
	var attendees []models.RegisterAttendee
	if err := r.db.SelectContext(ctx, &attendees, query, registerID); err != nil {
		return nil, fmt.Errorf("list register attendees: %w", err)
	}
	return attendees, nil
}

// Create inserts a register and copies the course's confirmed bookings onto it.
func (r *RegisterRepository) Create(ctx context.Context, reg *models.Register) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = now
	}
	reg.UpdatedAt = now

	const insert = `INSERT INTO registers (id, course_id, venue_id, session_date, start_time, end_time, capacity, notes, status, created_by, created_at, updated_at)
		VALUES (:id, :course_id, :venue_id, :session_date, :start_time, :end_time, :capacity, :notes, :status, :created_by, :created_at, :updated_at)`
	const seed = `INSERT INTO register_attendees (id, register_id, booking_id, child_name, parent_id, present)
		SELECT gen_random_uuid(), $1, b.id, b.child_name, b.parent_id, FALSE FROM bookings b
		WHERE b.course_id = $2 AND b.status = 'confirmed' ORDER BY b.created_at LIMIT $3`

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insert, reg); err != nil {
			return fmt.Errorf("create register: %w", err)
		}
		res, err := tx.ExecContext(ctx, seed, reg.ID, reg.CourseID, reg.Capacity)
		if err != nil {
			return fmt.Errorf("seed register attendees: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			reg.AttendeeCount = int(n)
		}
		return nil
	})
}

// Update modifies the editable fields of a register.
func (r *RegisterRepository) Update(ctx context.Context, reg *models.Register) error {
	reg.UpdatedAt = time.Now().UTC()
	const query = `UPDATE registers SET venue_id = :venue_id, session_date = :session_date, start_time = :start_time, end_time = :end_time,
		capacity = :capacity, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, reg); err != nil {
		return fmt.Errorf("update register: %w", err)
	}
	return nil
}

// UpdateStatus performs an optimistic status transition and stamps the
// session start or end time.
func (r *RegisterRepository) UpdateStatus(ctx context.Context, id, from, to string) error {
	extra := ""
	switch to {
	case lifecycle.RegisterInProgress:
		extra = ", started_at = $2"
	case lifecycle.RegisterCompleted:
		extra = ", completed_at = $2"
	}
	return updateStatus(ctx, r.db, "registers", id, from, to, extra, time.Now().UTC())
}

// MarkAttendance applies every mark in one transaction.
func (r *RegisterRepository) MarkAttendance(ctx context.Context, registerID string, marks []models.RegisterAttendee) error {
	const query = `UPDATE register_attendees SET present = $3, arrived_at = $4, note = $5, marked_at = $6 WHERE id = $1 AND register_id = $2`
	now := time.Now().UTC()
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, m := range marks {
			res, err := tx.ExecContext(ctx, query, m.ID, registerID, m.Present, m.ArrivedAt, m.Note, now)
			if err != nil {
				return fmt.Errorf("mark attendance: %w", err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return fmt.Errorf("%w: %s", ErrUnknownAttendee, m.ID)
			}
		}
		return nil
	})
}

// Delete removes a register together with its attendees.
func (r *RegisterRepository) Delete(ctx context.Context, id string) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM register_attendees WHERE register_id = $1", id); err != nil {
			return fmt.Errorf("delete register attendees: %w", err)
		}
		return deleteByID(ctx, tx, "registers", id)
	})
}
