package forms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateNameRequired(t *testing.T) {
	v := New()
	form := DefaultTemplateForm()
	form.Body = "Hello"
	form.Subject = "Hi"

	errs := v.Struct(form)
	assert.Equal(t, FieldErrors{"name": "Template name is required"}, errs)

	form.Name = "   "
	assert.Equal(t, "Template name is required", v.Struct(form)["name"])

	form.Name = "Welcome"
	assert.True(t, v.Struct(form).Valid())
}

func TestTemplateEmailNeedsSubject(t *testing.T) {
	v := New()
	errs := v.Struct(TemplateForm{Name: "Reminder", Type: TemplateTypeEmail, Body: "x"})
	assert.Equal(t, "Email templates need a subject line", errs["subject"])

	errs = v.Struct(TemplateForm{Name: "Reminder", Type: TemplateTypeSMS, Body: "x"})
	assert.True(t, errs.Valid())
}

func TestBroadcastScheduleStep(t *testing.T) {
	v := New()
	form := DefaultBroadcastForm()
	form.Name = "Half term update"
	form.Subject = "Half term"
	form.Body = "See you soon"

	step, errs := v.NextBroadcastStep(StepContent, form)
	require.True(t, errs.Valid())
	assert.Equal(t, StepAudience, step)

	step, errs = v.NextBroadcastStep(step, form)
	require.True(t, errs.Valid())
	assert.Equal(t, StepSchedule, step)

	step, errs = v.NextBroadcastStep(step, form)
	assert.Equal(t, StepSchedule, step)
	assert.Equal(t, FieldErrors{"scheduledFor": MsgSendChoice}, errs)

	form.ScheduledFor = "2025-01-01T10:00"
	step, errs = v.NextBroadcastStep(step, form)
	assert.True(t, errs.Valid())
	assert.Equal(t, StepReview, step)
	assert.Equal(t, "review", step.String())
}

func TestBroadcastSendNowSkipsSchedule(t *testing.T) {
	v := New()
	form := BroadcastForm{Name: "n", Subject: "s", Body: "b", Channels: []string{ChannelEmail}, AudienceType: AudienceAllParents, SendNow: true}
	assert.True(t, v.ValidateBroadcastStep(StepReview, form).Valid())
}

func TestBroadcastAudienceTargetsRequired(t *testing.T) {
	v := New()
	form := BroadcastForm{Name: "n", Subject: "s", Body: "b", Channels: []string{ChannelEmail}, AudienceType: AudienceCourse, SendNow: true}
	errs := v.ValidateBroadcastStep(StepAudience, form)
	assert.Equal(t, FieldErrors{"audienceIds": "Select at least one recipient group"}, errs)

	// content step does not report audience problems
	assert.True(t, v.ValidateBroadcastStep(StepContent, form).Valid())
}

func TestBroadcastBadChannel(t *testing.T) {
	v := New()
	form := DefaultBroadcastForm()
	form.Channels = []string{"fax"}
	errs := v.ValidateBroadcastStep(StepContent, form)
	assert.Equal(t, "Channels must be one of: email, sms, push", errs["channels"])
}

func TestCourseDateOrder(t *testing.T) {
	v := New()
	form := DefaultCourseForm()
	form.Title = "Easter Camp"
	form.Years = []string{"Y1"}
	form.VenueID = "venue-1"
	form.StartDate = "2026-04-10"
	form.EndDate = "2026-04-01"

	errs := v.Struct(form)
	assert.Equal(t, FieldErrors{"endDate": "End date must be on or after the start date"}, errs)

	form.EndDate = "2026-04-14"
	assert.True(t, v.Struct(form).Valid())
}

func TestCourseGenericMessages(t *testing.T) {
	v := New()
	errs := v.Struct(CourseForm{Title: "ab", Type: "camp", Capacity: 0, Price: -1})
	assert.Equal(t, "Title must be at least 3 characters", errs["title"])
	assert.Equal(t, "Type must be one of: holiday_club, after_school, wraparound, activity", errs["type"])
	assert.Equal(t, "Select at least one school year", errs["years"])
	assert.Equal(t, "Please choose a venue", errs["venueId"])
	assert.Equal(t, "Start date is required", errs["startDate"])
	assert.Equal(t, "Capacity must be 1 or more", errs["capacity"])
	assert.Equal(t, "Price must be 0 or more", errs["price"])
}

func TestRegisterTimeOrder(t *testing.T) {
	v := New()
	form := DefaultRegisterForm()
	form.CourseID = "c1"
	form.VenueID = "v1"
	form.Date = "2026-11-02"
	form.EndTime = "08:00"
	assert.Equal(t, "End time must be after the start time", v.Struct(form)["endTime"])
}

func TestAttendanceArrivalNotInFuture(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	v := New(WithClock(func() time.Time { return now }))

	form := AttendanceForm{Marks: []AttendanceMark{{AttendeeID: "a1", Present: true, ArrivedAt: now.Add(time.Hour)}}}
	assert.Equal(t, "Arrival time cannot be in the future", v.Struct(form)["arrivedAt"])

	form.Marks[0].ArrivedAt = now.Add(-time.Minute)
	assert.True(t, v.Struct(form).Valid())

	assert.Equal(t, "Mark at least one attendee", v.Struct(AttendanceForm{})["marks"])
}

func TestVenueMessages(t *testing.T) {
	v := New()
	errs := v.Struct(VenueForm{ContactEmail: "nope"})
	assert.Equal(t, "Venue name is required", errs["name"])
	assert.Equal(t, "Address is required", errs["addressLine1"])
	assert.Equal(t, "City is required", errs["city"])
	assert.Equal(t, "Contact email must be a valid email address", errs["contactEmail"])
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "Venue ID", Humanize("venueId"))
	assert.Equal(t, "Audience IDs", Humanize("audienceIds"))
	assert.Equal(t, "Scheduled for", Humanize("scheduledFor"))
	assert.Equal(t, "", Humanize(""))
}

func TestParseSchedule(t *testing.T) {
	ts, err := ParseSchedule("2025-01-01T10:00", nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC), ts)

	_, err = ParseSchedule("tomorrow", nil)
	assert.Error(t, err)
}
