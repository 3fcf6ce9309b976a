package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookon/bookon-api/internal/models"
	"github.com/bookon/bookon-api/pkg/forms"
)

type templateServer struct {
	*httptest.Server
	posts   int32
	deletes int32
	fail    atomic.Bool
	during  func()
}

func newTemplateServer(t *testing.T) *templateServer {
	t.Helper()
	ts := &templateServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ts.during != nil {
			ts.during()
		}
		if ts.fail.Load() {
			writeEnvelope(w, http.StatusConflict, map[string]interface{}{"success": false, "error": map[string]interface{}{"code": "CONFLICT", "message": "a template with this name already exists"}})
			return
		}
		switch r.Method {
		case http.MethodPost:
			atomic.AddInt32(&ts.posts, 1)
			var form forms.TemplateForm
			_ = json.NewDecoder(r.Body).Decode(&form)
			writeEnvelope(w, http.StatusCreated, map[string]interface{}{"success": true, "data": map[string]string{"id": "tpl-9", "name": form.Name, "status": "active"}})
		case http.MethodPut:
			writeEnvelope(w, http.StatusOK, map[string]interface{}{"success": true, "data": map[string]string{"id": "tpl-1", "name": "Renamed"}})
		case http.MethodDelete:
			atomic.AddInt32(&ts.deletes, 1)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestModalSubmitEmptyNameNeverPosts(t *testing.T) {
	srv := newTemplateServer(t)
	modal := NewTemplateModal(New(srv.URL, StaticToken("tok")), nil, nil)

	modal.Open(ModeCreate, nil)
	draft := modal.Draft()
	draft.Body = "Hello"
	draft.Subject = "Hi"
	modal.SetDraft(draft)

	_, err := modal.Submit(context.Background())
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "Template name is required", modal.FieldErrors()["name"])
	assert.False(t, modal.IsSaving())
	assert.Equal(t, ModalOpen, modal.State())
	assert.Zero(t, atomic.LoadInt32(&srv.posts))
}

func TestModalOpenCreateResetsDraft(t *testing.T) {
	modal := NewTemplateModal(New("http://unused", StaticToken("tok")), nil, nil)

	modal.Open(ModeCreate, nil)
	modal.SetDraft(forms.TemplateForm{Name: "Unsaved", Type: forms.TemplateTypeSMS})
	modal.Open(ModeCreate, nil)

	assert.Equal(t, forms.DefaultTemplateForm(), modal.Draft())
	assert.Empty(t, modal.FieldErrors())
}

func TestModalEditSeedsDraft(t *testing.T) {
	srv := newTemplateServer(t)
	modal := NewTemplateModal(New(srv.URL, StaticToken("tok")), nil, nil)
	subject := "Welcome aboard"

	modal.Open(ModeEdit, &models.Template{ID: "tpl-1", Name: "Welcome", Type: "email", Subject: &subject, Body: "Hi"})
	assert.Equal(t, ModeEdit, modal.Mode())
	assert.Equal(t, "Welcome aboard", modal.Draft().Subject)

	out, err := modal.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Renamed", out.Name)
	assert.Equal(t, ModalClosed, modal.State())
}

func TestModalSubmitSuccessRefreshesAndCloses(t *testing.T) {
	srv := newTemplateServer(t)
	var refreshed int32
	var modal *Modal[forms.TemplateForm, models.Template]
	var savingDuringRequest atomic.Bool
	srv.during = func() { savingDuringRequest.Store(modal.IsSaving()) }
	modal = NewTemplateModal(New(srv.URL, StaticToken("tok")), nil, func(context.Context) {
		atomic.AddInt32(&refreshed, 1)
	})

	modal.Open(ModeCreate, nil)
	modal.SetDraft(forms.TemplateForm{Name: "Reminder", Type: "email", Subject: "Tomorrow", Body: "See you"})
	out, err := modal.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tpl-9", out.ID)
	assert.True(t, savingDuringRequest.Load())
	assert.False(t, modal.IsSaving())
	assert.Equal(t, ModalClosed, modal.State())
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshed))

	_, err = modal.Submit(context.Background())
	assert.ErrorIs(t, err, ErrModalClosed)
}

func TestModalServerFailureKeepsDraft(t *testing.T) {
	srv := newTemplateServer(t)
	srv.fail.Store(true)
	modal := NewTemplateModal(New(srv.URL, StaticToken("tok")), nil, nil)

	form := forms.TemplateForm{Name: "Reminder", Type: "sms", Body: "See you"}
	modal.Open(ModeCreate, nil)
	modal.SetDraft(form)
	_, err := modal.Submit(context.Background())
	require.Error(t, err)

	assert.Equal(t, ModalOpen, modal.State())
	assert.Equal(t, "a template with this name already exists", modal.Banner())
	assert.Equal(t, form, modal.Draft())
	assert.False(t, modal.IsSaving())
}

func TestModalDeleteRequiresConfirmation(t *testing.T) {
	srv := newTemplateServer(t)
	var asked string
	answer := false
	confirm := ConfirmFunc(func(message string) bool {
		asked = message
		return answer
	})
	modal := NewTemplateModal(New(srv.URL, StaticToken("tok")), confirm, nil)

	deleted, err := modal.Delete(context.Background(), "tpl-1")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, "Delete this template? This cannot be undone.", asked)
	assert.Zero(t, atomic.LoadInt32(&srv.deletes))

	answer = true
	deleted, err = modal.Delete(context.Background(), "tpl-1")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, int32(1), atomic.LoadInt32(&srv.deletes))
	assert.False(t, modal.IsSaving())
}
