package forms

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// ClockLayout is the wire format of times of day.
const ClockLayout = "15:04"

// RegisterForm is the create/edit payload of a session register.
type RegisterForm struct {
	CourseID  string `json:"courseId" validate:"required"`
	VenueID   string `json:"venueId" validate:"required"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"startTime" validate:"required,datetime=15:04"`
	EndTime   string `json:"endTime" validate:"required,datetime=15:04"`
	Capacity  int    `json:"capacity" validate:"gte=1,lte=500"`
	Notes     string `json:"notes" validate:"max=2000"`
}

// DefaultRegisterForm is the blank register draft.
func DefaultRegisterForm() RegisterForm {
	return RegisterForm{StartTime: "09:00", EndTime: "15:00", Capacity: 20}
}

// FieldMessages implements messageProvider.
func (RegisterForm) FieldMessages() map[string]string {
	return map[string]string{
		"courseId.required": "Please choose a course",
		"endTime.order":     "End time must be after the start time",
	}
}

func registerRules(sl validator.StructLevel) {
	form := sl.Current().Interface().(RegisterForm)
	start, err1 := time.Parse(ClockLayout, form.StartTime)
	end, err2 := time.Parse(ClockLayout, form.EndTime)
	if err1 == nil && err2 == nil && !end.After(start) {
		sl.ReportError(form.EndTime, "endTime", "EndTime", "order", "")
	}
}

// AttendanceMark records one attendee's presence on a register.
type AttendanceMark struct {
	AttendeeID string    `json:"attendeeId" validate:"required"`
	Present    bool      `json:"present"`
	ArrivedAt  time.Time `json:"arrivedAt" validate:"notfuture"`
	Note       string    `json:"note" validate:"max=500"`
}

// AttendanceForm batches marks for one register.
type AttendanceForm struct {
	Marks []AttendanceMark `json:"marks" validate:"min=1,dive"`
}

// FieldMessages implements messageProvider.
func (AttendanceForm) FieldMessages() map[string]string {
	return map[string]string{
		"marks.min":           "Mark at least one attendee",
		"arrivedAt.notfuture": "Arrival time cannot be in the future",
	}
}
