package forms

// Template channel types.
const (
	TemplateTypeEmail = "email"
	TemplateTypeSMS   = "sms"
	TemplateTypePush  = "push"
)

// TemplateForm is the create/edit payload of a message template.
type TemplateForm struct {
	Name        string   `json:"name" validate:"notblank,max=120"`
	Type        string   `json:"type" validate:"required,oneof=email sms push"`
	Subject     string   `json:"subject" validate:"required_if=Type email,max=200"`
	Body        string   `json:"body" validate:"notblank,max=20000"`
	Description string   `json:"description" validate:"max=500"`
	Tags        []string `json:"tags" validate:"max=10,dive,max=40"`
}

// DefaultTemplateForm is the blank draft shown by the create dialog.
func DefaultTemplateForm() TemplateForm {
	return TemplateForm{Type: TemplateTypeEmail}
}

// FieldMessages implements messageProvider.
func (TemplateForm) FieldMessages() map[string]string {
	return map[string]string{
		"name.notblank":       "Template name is required",
		"body.notblank":       "Template content is required",
		"subject.required_if": "Email templates need a subject line",
		"type.oneof":          "Choose email, SMS or push",
	}
}
