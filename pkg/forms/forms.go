// Package forms declares the create/edit payloads of every BookOn resource and
// the field-level rules they must satisfy before anything is sent or stored.
package forms

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// FieldErrors maps a JSON field name to a user-facing message. Empty means valid.
type FieldErrors map[string]string

// Valid reports whether no field failed.
func (f FieldErrors) Valid() bool { return len(f) == 0 }

// Only keeps the errors for the listed fields.
func (f FieldErrors) Only(fields ...string) FieldErrors {
	out := FieldErrors{}
	for _, name := range fields {
		if msg, ok := f[name]; ok {
			out[name] = msg
		}
	}
	return out
}

// messageProvider lets a form override messages by "field.tag" or "field".
type messageProvider interface {
	FieldMessages() map[string]string
}

// Validator wraps go-playground/validator with BookOn's tags and messages.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the clock used by the notfuture rule.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// New builds a Validator with the custom rules registered.
func New(opts ...Option) *Validator {
	v := &Validator{validate: validator.New(), now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.validate.RegisterValidation("notfuture", func(fl validator.FieldLevel) bool {
		ts, ok := fl.Field().Interface().(time.Time)
		if !ok {
			return false
		}
		return ts.IsZero() || !ts.After(v.now())
	})
	_ = v.validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.validate.RegisterStructValidation(broadcastRules, BroadcastForm{})
	v.validate.RegisterStructValidation(courseRules, CourseForm{})
	v.validate.RegisterStructValidation(registerRules, RegisterForm{})
	return v
}

// Engine exposes the underlying validator for callers validating ad-hoc structs.
func (v *Validator) Engine() *validator.Validate { return v.validate }

// Struct validates form and converts failures into FieldErrors.
func (v *Validator) Struct(form interface{}) FieldErrors {
	errs := FieldErrors{}
	err := v.validate.Struct(form)
	if err == nil {
		return errs
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs["_"] = err.Error()
		return errs
	}
	var custom map[string]string
	if mp, ok := form.(messageProvider); ok {
		custom = mp.FieldMessages()
	}
	for _, fe := range fieldErrs {
		field, _, _ := strings.Cut(fe.Field(), "[")
		if _, seen := errs[field]; seen {
			continue
		}
		errs[field] = message(field, fe, custom)
	}
	return errs
}

func message(field string, fe validator.FieldError, custom map[string]string) string {
	if msg, ok := custom[field+"."+fe.Tag()]; ok {
		return msg
	}
	if msg, ok := custom[field]; ok {
		return msg
	}
	label := Humanize(field)
	switch fe.Tag() {
	case "required", "notblank", "required_if", "required_unless", "required_without":
		return label + " is required"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("Select at least %s %s", fe.Param(), strings.ToLower(label))
		}
		return fmt.Sprintf("%s must be at least %s", label, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", label, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be %s or more", label, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be %s or less", label, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", label, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "email":
		return label + " must be a valid email address"
	case "datetime":
		return label + " must be a valid date"
	case "notfuture":
		return label + " cannot be in the future"
	case "uuid", "uuid4":
		return label + " must be a valid identifier"
	default:
		return label + " is invalid"
	}
}

// Humanize converts a camelCase field name into a sentence-case label.
func Humanize(field string) string {
	if field == "" {
		return ""
	}
	var words []string
	start := 0
	for i, r := range field {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, field[start:i])
			start = i
		}
	}
	words = append(words, field[start:])
	for i, w := range words {
		switch lw := strings.ToLower(w); {
		case lw == "id":
			words[i] = "ID"
		case lw == "ids":
			words[i] = "IDs"
		case i == 0:
			words[i] = strings.ToUpper(lw[:1]) + lw[1:]
		default:
			words[i] = lw
		}
	}
	return strings.Join(words, " ")
}
