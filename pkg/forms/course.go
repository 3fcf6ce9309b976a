package forms

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// CourseForm is the create/edit payload of a bookable course.
type CourseForm struct {
	Title       string   `json:"title" validate:"notblank,min=3,max=150"`
	Description string   `json:"description" validate:"max=5000"`
	Type        string   `json:"type" validate:"required,oneof=holiday_club after_school wraparound activity"`
	Years       []string `json:"years" validate:"min=1,dive,notblank"`
	VenueID     string   `json:"venueId" validate:"required"`
	TemplateID  string   `json:"templateId"`
	StartDate   string   `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate     string   `json:"endDate" validate:"required,datetime=2006-01-02"`
	Capacity    int      `json:"capacity" validate:"gte=1,lte=500"`
	Price       float64  `json:"price" validate:"gte=0"`
}

// DefaultCourseForm is the blank course draft.
func DefaultCourseForm() CourseForm {
	return CourseForm{Type: "holiday_club", Capacity: 20}
}

// FieldMessages implements messageProvider.
func (CourseForm) FieldMessages() map[string]string {
	return map[string]string{
		"title.notblank":   "Course title is required",
		"years.min":        "Select at least one school year",
		"venueId.required": "Please choose a venue",
		"endDate.order":    "End date must be on or after the start date",
	}
}

func courseRules(sl validator.StructLevel) {
	form := sl.Current().Interface().(CourseForm)
	start, err1 := time.Parse(DateLayout, form.StartDate)
	end, err2 := time.Parse(DateLayout, form.EndDate)
	if err1 == nil && err2 == nil && end.Before(start) {
		sl.ReportError(form.EndDate, "endDate", "EndDate", "order", "")
	}
}
