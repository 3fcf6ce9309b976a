package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookon/bookon-api/internal/models"
	"github.com/bookon/bookon-api/internal/repository"
	appErrors "github.com/bookon/bookon-api/pkg/errors"
	"github.com/bookon/bookon-api/pkg/forms"
	"github.com/bookon/bookon-api/pkg/lifecycle"
)

type mockRegisterRepo struct {
	items     map[string]*models.Register
	attendees map[string][]models.RegisterAttendee
	marked    []models.RegisterAttendee
}

func newMockRegisterRepo(items ...*models.Register) *mockRegisterRepo {
	repo := &mockRegisterRepo{items: map[string]*models.Register{}, attendees: map[string][]models.RegisterAttendee{}}
	for _, r := range items {
		repo.items[r.ID] = r
	}
	return repo
}

func (m *mockRegisterRepo) List(ctx context.Context, filter models.RegisterFilter) ([]models.Register, int, error) {
	var out []models.Register
	for _, r := range m.items {
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (m *mockRegisterRepo) Stats(ctx context.Context, filter models.RegisterFilter) (models.StatusStats, error) {
	return models.StatusStats{}, nil
}

func (m *mockRegisterRepo) FindByID(ctx context.Context, id string) (*models.Register, error) {
	r, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (m *mockRegisterRepo) Attendees(ctx context.Context, registerID string) ([]models.RegisterAttendee, error) {
	return m.attendees[registerID], nil
}

func (m *mockRegisterRepo) Create(ctx context.Context, reg *models.Register) error {
	reg.ID = "reg-new"
	cp := *reg
	m.items[reg.ID] = &cp
	return nil
}

func (m *mockRegisterRepo) Update(ctx context.Context, reg *models.Register) error {
	cp := *reg
	m.items[reg.ID] = &cp
	return nil
}

func (m *mockRegisterRepo) UpdateStatus(ctx context.Context, id, from, to string) error {
	r, ok := m.items[id]
	if !ok || r.Status != from {
		return repository.ErrStaleStatus
	}
	r.Status = to
	return nil
}

func (m *mockRegisterRepo) MarkAttendance(ctx context.Context, registerID string, marks []models.RegisterAttendee) error {
	known := map[string]int{}
	for i, a := range m.attendees[registerID] {
		known[a.ID] = i
	}
	for _, mark := range marks {
		if _, ok := known[mark.ID]; !ok {
			return repository.ErrUnknownAttendee
		}
	}
	for _, mark := range marks {
		a := &m.attendees[registerID][known[mark.ID]]
		a.Present = mark.Present
		a.ArrivedAt = mark.ArrivedAt
		a.Note = mark.Note
	}
	m.marked = append(m.marked, marks...)
	return nil
}

func (m *mockRegisterRepo) Delete(ctx context.Context, id string) error {
	delete(m.items, id)
	return nil
}

func mondaySession(status string) *models.Register {
	title := "Summer Camp"
	return &models.Register{
		ID: "reg-12345678-abcd", CourseID: "course-1", CourseTitle: &title, VenueID: "venue-1",
		Date: time.Date(2025, 7, 21, 0, 0, 0, 0, time.UTC), StartTime: "09:00", EndTime: "15:00",
		Capacity: 20, Status: status, CreatedBy: business.UserID,
	}
}

func publishedCourse() *models.Course {
	c := summerCamp(lifecycle.CoursePublished)
	c.StartDate = time.Date(2025, 7, 21, 0, 0, 0, 0, time.UTC)
	c.EndDate = time.Date(2025, 7, 25, 0, 0, 0, 0, time.UTC)
	return c
}

func newRegisterService(repo *mockRegisterRepo, courses ...*models.Course) *RegisterService {
	return NewRegisterService(repo, newMockCourseRepo(courses...), newMockVenueRepo(schoolHall()), nil, nil, nil, nil)
}

func validRegisterForm() forms.RegisterForm {
	return forms.RegisterForm{CourseID: "course-1", VenueID: "venue-1", Date: "2025-07-22", StartTime: "09:00", EndTime: "15:00", Capacity: 20}
}

func TestRegisterServiceCreate(t *testing.T) {
	repo := newMockRegisterRepo()
	svc := newRegisterService(repo, publishedCourse())

	detail, err := svc.Create(context.Background(), business, validRegisterForm())
	require.NoError(t, err)
	assert.Equal(t, lifecycle.RegisterUpcoming, detail.Status)
	assert.Equal(t, "2025-07-22", detail.Date.Format(forms.DateLayout))
	require.NotNil(t, detail.VenueName)
	assert.Equal(t, "School Hall", *detail.VenueName)
	assert.NotNil(t, detail.Attendees)
	assert.Empty(t, detail.Attendees)

	form := validRegisterForm()
	form.Date = "2025-08-01"
	_, err = svc.Create(context.Background(), business, form)
	appErr := assertCode(t, appErrors.ErrValidation, err)
	assert.Contains(t, appErr.Fields, "date")

	form = validRegisterForm()
	form.EndTime = "08:00"
	_, err = svc.Create(context.Background(), business, form)
	appErr = assertCode(t, appErrors.ErrValidation, err)
	assert.Equal(t, "End time must be after the start time", appErr.Fields["endTime"])
}

func TestRegisterServiceCreateRequiresPublishedCourse(t *testing.T) {
	svc := newRegisterService(newMockRegisterRepo(), summerCamp(lifecycle.CourseDraft))

	_, err := svc.Create(context.Background(), business, validRegisterForm())
	appErr := assertCode(t, appErrors.ErrValidation, err)
	assert.Equal(t, "Registers can only be opened for published courses", appErr.Fields["courseId"])

	_, err = svc.Create(context.Background(), rival, validRegisterForm())
	appErr = assertCode(t, appErrors.ErrValidation, err)
	assert.Equal(t, "Selected course does not exist", appErr.Fields["courseId"])
}

func TestRegisterServiceAttendanceOnlyWhileInProgress(t *testing.T) {
	repo := newMockRegisterRepo(mondaySession(lifecycle.RegisterUpcoming))
	repo.attendees["reg-12345678-abcd"] = []models.RegisterAttendee{
		{ID: "att-1", RegisterID: "reg-12345678-abcd", ChildName: "Ella Smith"},
		{ID: "att-2", RegisterID: "reg-12345678-abcd", ChildName: "Tom Jones"},
	}
	svc := newRegisterService(repo)
	ctx := context.Background()
	form := forms.AttendanceForm{Marks: []forms.AttendanceMark{{AttendeeID: "att-1", Present: true}}}

	_, err := svc.MarkAttendance(ctx, business, "reg-12345678-abcd", form)
	assertCode(t, appErrors.ErrPreconditionFailed, err)

	reg, err := svc.Transition(ctx, business, "reg-12345678-abcd", lifecycle.ActionStart)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.RegisterInProgress, reg.Status)
	assert.NotNil(t, reg.StartedAt)

	detail, err := svc.MarkAttendance(ctx, business, "reg-12345678-abcd", form)
	require.NoError(t, err)
	require.Len(t, detail.Attendees, 2)
	assert.True(t, detail.Attendees[0].Present)
	assert.NotNil(t, detail.Attendees[0].ArrivedAt)
	assert.False(t, detail.Attendees[1].Present)

	_, err = svc.MarkAttendance(ctx, business, "reg-12345678-abcd", forms.AttendanceForm{Marks: []forms.AttendanceMark{{AttendeeID: "att-9"}}})
	appErr := assertCode(t, appErrors.ErrValidation, err)
	assert.Contains(t, appErr.Fields, "marks")

	_, err = svc.MarkAttendance(ctx, business, "reg-12345678-abcd", forms.AttendanceForm{})
	appErr = assertCode(t, appErrors.ErrValidation, err)
	assert.Equal(t, "Mark at least one attendee", appErr.Fields["marks"])
}

func TestRegisterServiceExportCSV(t *testing.T) {
	arrived := time.Date(2025, 7, 21, 9, 5, 0, 0, time.UTC)
	repo := newMockRegisterRepo(mondaySession(lifecycle.RegisterCompleted))
	repo.attendees["reg-12345678-abcd"] = []models.RegisterAttendee{
		{ID: "att-1", ChildName: "Ella Smith", Present: true, ArrivedAt: &arrived},
		{ID: "att-2", ChildName: "Tom Jones"},
	}
	svc := newRegisterService(repo)

	out, err := svc.Export(context.Background(), business, "reg-12345678-abcd", "")
	require.NoError(t, err)
	assert.Equal(t, "register-2025-07-21-reg-1234.csv", out.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", out.ContentType)
	assert.Equal(t, "Child,Present,Arrived,Note\nElla Smith,yes,09:05,\nTom Jones,no,,\n", string(out.Body))

	_, err = svc.Export(context.Background(), business, "reg-12345678-abcd", "xlsx")
	assertCode(t, appErrors.ErrValidation, err)
	_, err = svc.Export(context.Background(), rival, "reg-12345678-abcd", "csv")
	assertCode(t, appErrors.ErrNotFound, err)
}

func TestRegisterServiceDeleteOnlyUpcoming(t *testing.T) {
	repo := newMockRegisterRepo(mondaySession(lifecycle.RegisterInProgress))
	svc := newRegisterService(repo)
	ctx := context.Background()

	assertCode(t, appErrors.ErrPreconditionFailed, svc.Delete(ctx, business, "reg-12345678-abcd"))

	repo.items["reg-12345678-abcd"].Status = lifecycle.RegisterUpcoming
	require.NoError(t, svc.Delete(ctx, business, "reg-12345678-abcd"))
	assert.Empty(t, repo.items)
}

func TestRegisterServiceSummarySheet(t *testing.T) {
	detail := &models.RegisterDetail{Register: *mondaySession(lifecycle.RegisterCompleted), Attendees: []models.RegisterAttendee{
		{ChildName: "Ella Smith", Present: true},
		{ChildName: "Tom Jones"},
	}}

	sheet := attendanceSheet(detail)
	assert.Equal(t, "Register: Summer Camp", sheet.Title)
	assert.Equal(t, "1 of 2", sheet.Summary[4].Value)
	assert.Equal(t, "venue-1", sheet.Summary[2].Value)
}
