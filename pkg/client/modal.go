package client

import (
	"context"
	"errors"
	"sync"

	"github.com/bookon/bookon-api/internal/models"
	"github.com/bookon/bookon-api/pkg/forms"
)

// Mode says whether a modal creates or edits.
type Mode int

const (
	ModeCreate Mode = iota
	ModeEdit
)

// ModalState is the lifecycle of a create/edit dialog.
type ModalState int

const (
	ModalClosed ModalState = iota
	ModalOpen
	ModalSubmitting
)

func (s ModalState) String() string {
	switch s {
	case ModalOpen:
		return "open"
	case ModalSubmitting:
		return "submitting"
	default:
		return "closed"
	}
}

var (
	// ErrModalClosed is returned by Submit when the modal is not open.
	ErrModalClosed = errors.New("client: modal is not open")
	// ErrBusy is returned while a previous submit or delete is still running.
	ErrBusy = errors.New("client: save already in progress")
)

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(message string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(message string) bool

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(message string) bool { return f(message) }

// ModalConfig wires a Modal to one entity kind.
type ModalConfig[F, T any] struct {
	Defaults   func() F
	FromEntity func(T) F
	IDOf       func(T) string
	Validate   func(F) forms.FieldErrors
	Create     func(ctx context.Context, form F) (*T, error)
	Update     func(ctx context.Context, id string, form F) (*T, error)
	Remove     func(ctx context.Context, id string) error
	Confirmer  Confirmer
	// ConfirmMessage is shown before a delete.
	ConfirmMessage string
	// OnSuccess runs after a successful save or delete, usually a list Refresh.
	OnSuccess func(ctx context.Context)
}

// Modal is the create/edit dialog controller. Validation failures never reach
// the network, and a failed save keeps the dialog open with the draft intact.
type Modal[F, T any] struct {
	cfg ModalConfig[F, T]

	mu          sync.Mutex
	state       ModalState
	mode        Mode
	editID      string
	draft       F
	fieldErrors forms.FieldErrors
	banner      string
	saving      bool
}

// NewModal builds a closed modal.
func NewModal[F, T any](cfg ModalConfig[F, T]) *Modal[F, T] {
	return &Modal[F, T]{cfg: cfg, fieldErrors: forms.FieldErrors{}}
}

// Open shows the dialog. Create mode always starts from defaults; edit mode
// seeds the draft from seed.
func (m *Modal[F, T]) Open(mode Mode, seed *T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	m.editID = ""
	m.fieldErrors = forms.FieldErrors{}
	m.banner = ""
	m.state = ModalOpen
	if mode == ModeEdit && seed != nil {
		m.draft = m.cfg.FromEntity(*seed)
		if m.cfg.IDOf != nil {
			m.editID = m.cfg.IDOf(*seed)
		}
		return
	}
	m.mode = ModeCreate
	m.draft = m.defaults()
}

// Close hides the dialog and discards the draft.
func (m *Modal[F, T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = ModalClosed
	m.draft = m.defaults()
	m.fieldErrors = forms.FieldErrors{}
	m.banner = ""
}

// Draft returns the current form values.
func (m *Modal[F, T]) Draft() F {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draft
}

// SetDraft replaces the form values.
func (m *Modal[F, T]) SetDraft(form F) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.draft = form
}

// Validate checks the draft and records the field errors.
func (m *Modal[F, T]) Validate() forms.FieldErrors {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fieldErrors = m.validate(m.draft)
	return copyFields(m.fieldErrors)
}

// Submit validates and then creates or updates. On success the modal closes
// and OnSuccess runs.
func (m *Modal[F, T]) Submit(ctx context.Context) (*T, error) {
	m.mu.Lock()
	if m.state != ModalOpen {
		m.mu.Unlock()
		if m.IsSaving() {
			return nil, ErrBusy
		}
		return nil, ErrModalClosed
	}
	errs := m.validate(m.draft)
	m.fieldErrors = errs
	if !errs.Valid() {
		m.mu.Unlock()
		return nil, &ValidationError{Fields: copyFields(errs)}
	}
	draft, mode, id := m.draft, m.mode, m.editID
	m.banner = ""
	m.mu.Unlock()

	release, ok := m.acquire()
	if !ok {
		return nil, ErrBusy
	}
	defer release()

	var (
		entity *T
		err    error
	)
	if mode == ModeEdit {
		entity, err = m.cfg.Update(ctx, id, draft)
	} else {
		entity, err = m.cfg.Create(ctx, draft)
	}
	if err != nil {
		m.fail(err)
		return nil, err
	}

	m.mu.Lock()
	m.state = ModalClosed
	m.fieldErrors = forms.FieldErrors{}
	m.draft = m.defaults()
	m.mu.Unlock()
	if m.cfg.OnSuccess != nil {
		m.cfg.OnSuccess(ctx)
	}
	return entity, nil
}

// Delete removes id after the user confirms. It reports false without any
// request when the user declines.
func (m *Modal[F, T]) Delete(ctx context.Context, id string) (bool, error) {
	if m.cfg.Confirmer == nil || !m.cfg.Confirmer.Confirm(m.confirmMessage()) {
		return false, nil
	}
	release, ok := m.acquire()
	if !ok {
		return false, ErrBusy
	}
	defer release()

	if err := m.cfg.Remove(ctx, id); err != nil {
		m.mu.Lock()
		m.banner = UserMessage(err)
		m.mu.Unlock()
		return false, err
	}
	m.mu.Lock()
	m.banner = ""
	m.mu.Unlock()
	if m.cfg.OnSuccess != nil {
		m.cfg.OnSuccess(ctx)
	}
	return true, nil
}

// State reports the lifecycle state.
func (m *Modal[F, T]) State() ModalState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Mode reports whether the open dialog creates or edits.
func (m *Modal[F, T]) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// IsSaving reports whether a submit or delete is in flight.
func (m *Modal[F, T]) IsSaving() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saving
}

// FieldErrors returns the errors from the last validation or server rejection.
func (m *Modal[F, T]) FieldErrors() forms.FieldErrors {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyFields(m.fieldErrors)
}

// Banner returns the message of the last failed save or delete.
func (m *Modal[F, T]) Banner() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.banner
}

// acquire sets the saving flag; release always clears it and reopens a
// modal left in Submitting.
func (m *Modal[F, T]) acquire() (func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saving {
		return nil, false
	}
	m.saving = true
	wasOpen := m.state == ModalOpen
	if wasOpen {
		m.state = ModalSubmitting
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.saving = false
		if m.state == ModalSubmitting {
			m.state = ModalOpen
		}
	}, true
}

func (m *Modal[F, T]) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.banner = UserMessage(err)
	var valErr *ValidationError
	if errors.As(err, &valErr) && len(valErr.Fields) > 0 {
		m.fieldErrors = copyFields(valErr.Fields)
	}
}

func (m *Modal[F, T]) validate(form F) forms.FieldErrors {
	if m.cfg.Validate == nil {
		return forms.FieldErrors{}
	}
	errs := m.cfg.Validate(form)
	if errs == nil {
		return forms.FieldErrors{}
	}
	return errs
}

func (m *Modal[F, T]) defaults() F {
	if m.cfg.Defaults != nil {
		return m.cfg.Defaults()
	}
	var zero F
	return zero
}

func (m *Modal[F, T]) confirmMessage() string {
	if m.cfg.ConfirmMessage != "" {
		return m.cfg.ConfirmMessage
	}
	return "Are you sure you want to delete this item? This cannot be undone."
}

func copyFields(in map[string]string) forms.FieldErrors {
	out := make(forms.FieldErrors, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// FormValidator adapts a forms.Validator to ModalConfig.Validate.
func FormValidator[F any](v *forms.Validator) func(F) forms.FieldErrors {
	if v == nil {
		v = forms.New()
	}
	return func(form F) forms.FieldErrors {
		return v.Struct(form)
	}
}

// NewTemplateModal wires a modal to the templates endpoints.
func NewTemplateModal(c *Client, confirm Confirmer, onSuccess func(ctx context.Context)) *Modal[forms.TemplateForm, models.Template] {
	res := Templates(c)
	return NewModal(ModalConfig[forms.TemplateForm, models.Template]{
		Defaults:   forms.DefaultTemplateForm,
		FromEntity: templateForm,
		IDOf:       func(t models.Template) string { return t.ID },
		Validate:   FormValidator[forms.TemplateForm](nil),
		Create: func(ctx context.Context, form forms.TemplateForm) (*models.Template, error) {
			return res.Create(ctx, form)
		},
		Update: func(ctx context.Context, id string, form forms.TemplateForm) (*models.Template, error) {
			return res.Update(ctx, id, form)
		},
		Remove:         res.Delete,
		Confirmer:      confirm,
		ConfirmMessage: "Delete this template? This cannot be undone.",
		OnSuccess:      onSuccess,
	})
}

func templateForm(t models.Template) forms.TemplateForm {
	form := forms.TemplateForm{
		Name: t.Name,
		Type: t.Type,
		Body: t.Body,
		Tags: append([]string(nil), t.Tags...),
	}
	if t.Subject != nil {
		form.Subject = *t.Subject
	}
	if t.Description != nil {
		form.Description = *t.Description
	}
	return form
}
