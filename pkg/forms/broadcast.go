package forms

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ScheduleLayout is the wire format of broadcast send times (local wall clock).
const ScheduleLayout = "2006-01-02T15:04"

// Audience types a broadcast can target.
const (
	AudienceAllParents = "all_parents"
	AudienceCourse     = "course"
	AudienceVenue      = "venue"
	AudienceYear       = "year"
)

// Broadcast channels.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelPush  = "push"
)

// MsgSendChoice is shown when neither send-now nor a schedule time is chosen.
const MsgSendChoice = "Please select a send time or choose to send now"

// BroadcastStep names one page of the broadcast wizard.
type BroadcastStep int

const (
	StepContent BroadcastStep = iota
	StepAudience
	StepSchedule
	StepReview
)

func (s BroadcastStep) String() string {
	switch s {
	case StepContent:
		return "content"
	case StepAudience:
		return "audience"
	case StepSchedule:
		return "schedule"
	case StepReview:
		return "review"
	default:
		return "unknown"
	}
}

var stepFields = map[BroadcastStep][]string{
	StepContent:  {"name", "subject", "body", "channels", "templateId"},
	StepAudience: {"audienceType", "audienceIds"},
	StepSchedule: {"sendNow", "scheduledFor"},
}

// BroadcastForm is the create/edit payload of a broadcast.
type BroadcastForm struct {
	Name         string   `json:"name" validate:"notblank,max=120"`
	Subject      string   `json:"subject" validate:"notblank,max=200"`
	Body         string   `json:"body" validate:"notblank,max=20000"`
	TemplateID   string   `json:"templateId"`
	Channels     []string `json:"channels" validate:"min=1,dive,oneof=email sms push"`
	AudienceType string   `json:"audienceType" validate:"required,oneof=all_parents course venue year"`
	AudienceIDs  []string `json:"audienceIds"`
	SendNow      bool     `json:"sendNow"`
	ScheduledFor string   `json:"scheduledFor" validate:"omitempty,datetime=2006-01-02T15:04"`
}

// DefaultBroadcastForm is the blank broadcast draft.
func DefaultBroadcastForm() BroadcastForm {
	return BroadcastForm{Channels: []string{ChannelEmail}, AudienceType: AudienceAllParents}
}

// FieldMessages implements messageProvider.
func (BroadcastForm) FieldMessages() map[string]string {
	return map[string]string{
		"name.notblank":         "Broadcast name is required",
		"subject.notblank":      "Subject is required",
		"body.notblank":         "Message content is required",
		"channels.min":          "Choose at least one channel",
		"audienceIds.targets":   "Select at least one recipient group",
		"scheduledFor.choice":   MsgSendChoice,
		"scheduledFor.datetime": "Send time must look like 2025-01-01T10:00",
	}
}

func broadcastRules(sl validator.StructLevel) {
	form := sl.Current().Interface().(BroadcastForm)
	if form.AudienceType != "" && form.AudienceType != AudienceAllParents && len(form.AudienceIDs) == 0 {
		sl.ReportError(form.AudienceIDs, "audienceIds", "AudienceIDs", "targets", "")
	}
	if !form.SendNow && strings.TrimSpace(form.ScheduledFor) == "" {
		sl.ReportError(form.ScheduledFor, "scheduledFor", "ScheduledFor", "choice", "")
	}
}

// ValidateBroadcastStep returns only the errors belonging to step. The review
// step validates the whole form.
func (v *Validator) ValidateBroadcastStep(step BroadcastStep, form BroadcastForm) FieldErrors {
	errs := v.Struct(form)
	if step == StepReview {
		return errs
	}
	return errs.Only(stepFields[step]...)
}

// NextBroadcastStep advances the wizard when the current step is valid.
func (v *Validator) NextBroadcastStep(step BroadcastStep, form BroadcastForm) (BroadcastStep, FieldErrors) {
	errs := v.ValidateBroadcastStep(step, form)
	if !errs.Valid() || step == StepReview {
		return step, errs
	}
	return step + 1, errs
}

// ParseSchedule parses a ScheduleLayout value in loc (UTC when nil).
func ParseSchedule(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(ScheduleLayout, strings.TrimSpace(raw), loc)
}
