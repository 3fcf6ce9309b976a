package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bookon/bookon-api/internal/models"
	"github.com/bookon/bookon-api/internal/repository"
	appErrors "github.com/bookon/bookon-api/pkg/errors"
	"github.com/bookon/bookon-api/pkg/export"
	"github.com/bookon/bookon-api/pkg/forms"
	"github.com/bookon/bookon-api/pkg/lifecycle"
)

const registerResource = "registers"

type registerRepository interface {
	List(ctx context.Context, filter models.RegisterFilter) ([]models.Register, int, error)
	Stats(ctx context.Context, filter models.RegisterFilter) (models.StatusStats, error)
	FindByID(ctx context.Context, id string) (*models.Register, error)
	Attendees(ctx context.Context, registerID string) ([]models.RegisterAttendee, error)
	Create(ctx context.Context, reg *models.Register) error
	Update(ctx context.Context, reg *models.Register) error
	UpdateStatus(ctx context.Context, id, from, to string) error
	MarkAttendance(ctx context.Context, registerID string, marks []models.RegisterAttendee) error
	Delete(ctx context.Context, id string) error
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// RegisterExport is a rendered attendance sheet ready for download.
type RegisterExport struct {
	Filename    string
	ContentType string
	Body        []byte
}

// RegisterService manages session registers and attendance.
type RegisterService struct {
	repo      registerRepository
	courses   courseReader
	venues    venueReader
	validator *forms.Validator
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewRegisterService constructs a RegisterService.
func NewRegisterService(repo registerRepository, courses courseReader, venues venueReader, validate *forms.Validator, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *RegisterService {
	if validate == nil {
		validate = forms.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegisterService{repo: repo, courses: courses, venues: venues, validator: validate, cache: cache, metrics: metrics, logger: logger}
}

// List returns registers with status counts.
func (s *RegisterService) List(ctx context.Context, actor Actor, filter models.RegisterFilter) (*ListResult[models.Register], error) {
	filter.OwnerID = actor.scope()
	return cachedList(ctx, s.cache, registerResource, filter, func() (*ListResult[models.Register], error) {
		items, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, internalError(err, "failed to list registers")
		}
		stats, err := s.repo.Stats(ctx, filter)
		if err != nil {
			return nil, internalError(err, "failed to count registers")
		}
		return &ListResult[models.Register]{Items: items, Pagination: filter.Paginate(total), Stats: stats}, nil
	})
}

// Get returns a register with its attendees.
func (s *RegisterService) Get(ctx context.Context, actor Actor, id string) (*models.RegisterDetail, error) {
	reg, err := s.find(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	attendees, err := s.repo.Attendees(ctx, reg.ID)
	if err != nil {
		return nil, internalError(err, "failed to load attendees")
	}
	if attendees == nil {
		attendees = []models.RegisterAttendee{}
	}
	return &models.RegisterDetail{Register: *reg, Attendees: attendees}, nil
}

// Create opens an upcoming register for a published course session. Confirmed
// bookings are copied onto it up to its capacity.
func (s *RegisterService) Create(ctx context.Context, actor Actor, form forms.RegisterForm) (*models.RegisterDetail, error) {
	if errs := s.validator.Struct(form); !errs.Valid() {
		return nil, invalidForm("register", errs)
	}
	course, err := s.courses.FindByID(ctx, form.CourseID)
	if err != nil || !actor.canAccess(course.CreatedBy) {
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, internalError(err, "failed to load course")
		}
		return nil, fieldError("courseId", "Selected course does not exist")
	}
	if course.Status != lifecycle.CoursePublished {
		return nil, fieldError("courseId", "Registers can only be opened for published courses")
	}

	reg := &models.Register{
		CourseID:    course.ID,
		CourseTitle: &course.Title,
		Status:      lifecycle.RegisterUpcoming,
		CreatedBy:   actor.UserID,
	}
	if err := s.apply(ctx, actor, reg, form, course); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, reg); err != nil {
		return nil, internalError(err, "failed to create register")
	}
	invalidateList(ctx, s.cache, registerResource)
	return s.Get(ctx, actor, reg.ID)
}

// Update edits an upcoming register.
func (s *RegisterService) Update(ctx context.Context, actor Actor, id string, form forms.RegisterForm) (*models.Register, error) {
	if errs := s.validator.Struct(form); !errs.Valid() {
		return nil, invalidForm("register", errs)
	}
	reg, err := s.find(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if reg.Status != lifecycle.RegisterUpcoming {
		return nil, preconditionFailed("only upcoming registers can be edited")
	}
	if form.CourseID != reg.CourseID {
		return nil, fieldError("courseId", "A register cannot be moved to another course")
	}
	course, err := s.courses.FindByID(ctx, reg.CourseID)
	if err != nil {
		return nil, lookupError(err, "course")
	}
	if err := s.apply(ctx, actor, reg, form, course); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, reg); err != nil {
		return nil, internalError(err, "failed to update register")
	}
	invalidateList(ctx, s.cache, registerResource)
	return reg, nil
}

// Transition applies start, complete or cancel.
func (s *RegisterService) Transition(ctx context.Context, actor Actor, id, action string) (*models.Register, error) {
	reg, err := s.find(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	next, err := resolveAction(lifecycle.KindRegister, reg.Status, action)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, reg.ID, reg.Status, next); err != nil {
		return nil, statusUpdateError(err, "register")
	}
	s.metrics.RecordTransition(string(lifecycle.KindRegister), action)
	invalidateList(ctx, s.cache, registerResource)

	now := time.Now().UTC()
	switch next {
	case lifecycle.RegisterInProgress:
		reg.StartedAt = &now
	case lifecycle.RegisterCompleted:
		reg.CompletedAt = &now
	}
	reg.Status = next
	return reg, nil
}

// MarkAttendance records presence for attendees of an in-progress register.
func (s *RegisterService) MarkAttendance(ctx context.Context, actor Actor, id string, form forms.AttendanceForm) (*models.RegisterDetail, error) {
	if errs := s.validator.Struct(form); !errs.Valid() {
		return nil, invalidForm("attendance", errs)
	}
	reg, err := s.find(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if reg.Status != lifecycle.RegisterInProgress {
		return nil, preconditionFailed("attendance can only be taken while the session is in progress")
	}

	marks := make([]models.RegisterAttendee, 0, len(form.Marks))
	for _, m := range form.Marks {
		mark := models.RegisterAttendee{ID: m.AttendeeID, RegisterID: reg.ID, Present: m.Present, Note: optional(m.Note)}
		if m.Present {
			arrived := m.ArrivedAt
			if arrived.IsZero() {
				arrived = time.Now()
			}
			arrived = arrived.UTC()
			mark.ArrivedAt = &arrived
		}
		marks = append(marks, mark)
	}
	if err := s.repo.MarkAttendance(ctx, reg.ID, marks); err != nil {
		if errors.Is(err, repository.ErrUnknownAttendee) {
			return nil, fieldError("marks", "One or more children are not on this register")
		}
		return nil, internalError(err, "failed to record attendance")
	}
	invalidateList(ctx, s.cache, registerResource)
	return s.Get(ctx, actor, reg.ID)
}

// Delete removes an upcoming register.
func (s *RegisterService) Delete(ctx context.Context, actor Actor, id string) error {
	reg, err := s.find(ctx, actor, id)
	if err != nil {
		return err
	}
	if reg.Status != lifecycle.RegisterUpcoming {
		return preconditionFailed("only upcoming registers can be deleted, cancel it instead")
	}
	if err := s.repo.Delete(ctx, reg.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "register not found")
		}
		return internalError(err, "failed to delete register")
	}
	invalidateList(ctx, s.cache, registerResource)
	return nil
}

// Export renders the register's attendance sheet.
func (s *RegisterService) Export(ctx context.Context, actor Actor, id, format string) (*RegisterExport, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, fieldError("format", "Choose csv or pdf")
	}
	detail, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	body, err := export.Render(f, attendanceSheet(detail))
	if err != nil {
		return nil, internalError(err, "failed to render attendance sheet")
	}
	return &RegisterExport{
		Filename:    fmt.Sprintf("register-%s-%s.%s", detail.Date.Format(forms.DateLayout), shortID(detail.ID), f),
		ContentType: f.ContentType(),
		Body:        body,
	}, nil
}

func attendanceSheet(detail *models.RegisterDetail) export.Sheet {
	title := "Register"
	if detail.CourseTitle != nil {
		title = "Register: " + *detail.CourseTitle
	}
	venue := detail.VenueID
	if detail.VenueName != nil {
		venue = *detail.VenueName
	}
	present := 0
	rows := make([][]string, 0, len(detail.Attendees))
	for _, a := range detail.Attendees {
		mark, arrived, note := "no", "", ""
		if a.Present {
			present++
			mark = "yes"
		}
		if a.ArrivedAt != nil {
			arrived = a.ArrivedAt.Format(forms.ClockLayout)
		}
		if a.Note != nil {
			note = *a.Note
		}
		rows = append(rows, []string{a.ChildName, mark, arrived, note})
	}
	return export.Sheet{
		Title: title,
		Summary: []export.Field{
			{Label: "Date", Value: detail.Date.Format(forms.DateLayout)},
			{Label: "Time", Value: detail.StartTime + " - " + detail.EndTime},
			{Label: "Venue", Value: venue},
			{Label: "Status", Value: detail.Status},
			{Label: "Present", Value: fmt.Sprintf("%d of %d", present, len(detail.Attendees))},
		},
		Headers: []string{"Child", "Present", "Arrived", "Note"},
		Rows:    rows,
		Widths:  []float64{4, 1.5, 1.5, 5},
	}
}

func (s *RegisterService) find(ctx context.Context, actor Actor, id string) (*models.Register, error) {
	reg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "register")
	}
	if !actor.canAccess(reg.CreatedBy) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "register not found")
	}
	return reg, nil
}

func (s *RegisterService) apply(ctx context.Context, actor Actor, reg *models.Register, form forms.RegisterForm, course *models.Course) error {
	date, _ := time.Parse(forms.DateLayout, form.Date)
	if date.Before(course.StartDate) || date.After(course.EndDate) {
		return fieldError("date", "Session date must fall within the course dates")
	}
	venueID := strings.TrimSpace(form.VenueID)
	venue, err := s.venues.FindByID(ctx, venueID)
	if err != nil || !actor.canAccess(venue.CreatedBy) {
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return internalError(err, "failed to load venue")
		}
		return fieldError("venueId", "Selected venue does not exist")
	}
	reg.VenueID = venue.ID
	reg.VenueName = &venue.Name
	reg.Date = date
	reg.StartTime = form.StartTime
	reg.EndTime = form.EndTime
	reg.Capacity = form.Capacity
	reg.Notes = optional(form.Notes)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
