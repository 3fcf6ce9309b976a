package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookon/bookon-api/internal/models"
	"github.com/bookon/bookon-api/pkg/filter"
)

func writeEnvelope(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestResourceListDecodesEnvelope(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"success":    true,
			"data":       []map[string]interface{}{{"id": "tpl-1", "name": "Welcome", "status": "active"}},
			"pagination": map[string]int{"page": 1, "pageSize": 20, "totalCount": 1},
			"meta":       map[string]interface{}{"stats": map[string]int{"active": 1, "archived": 2}, "cacheHit": true},
		})
	}))
	defer srv.Close()

	c := New(srv.URL+"/api/v1", StaticToken("tok"))
	state := filter.NewState().WithSearch("welcome").With("type", "email").With("status", "all")
	res, err := Templates(c).List(context.Background(), filter.ToQuery(state))
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "search=welcome&type=email", gotQuery)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Welcome", res.Items[0].Name)
	assert.Equal(t, 1, res.Pagination.TotalCount)
	assert.Equal(t, map[string]int{"active": 1, "archived": 2}, res.Stats)
	assert.True(t, res.CacheHit)
}

func TestClientErrorTaxonomy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/templates/expired":
			writeEnvelope(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "error": map[string]interface{}{"code": "UNAUTHORIZED", "message": "token expired"}})
		case "/templates/invalid":
			writeEnvelope(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": map[string]interface{}{"code": "VALIDATION_ERROR", "message": "invalid template payload", "fields": map[string]string{"name": "Template name is required"}}})
		case "/templates/forbidden":
			writeEnvelope(w, http.StatusForbidden, map[string]interface{}{"success": false, "error": map[string]interface{}{"code": "FORBIDDEN", "message": "insufficient permissions"}})
		case "/templates/locked":
			writeEnvelope(w, http.StatusPreconditionFailed, map[string]interface{}{"success": false, "error": map[string]interface{}{"code": "PRECONDITION_FAILED", "message": "template is in use"}})
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()
	res := Templates(New(srv.URL, StaticToken("tok")))
	ctx := context.Background()

	_, err := res.Get(ctx, "expired")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, MsgAuth, UserMessage(err))

	_, err = res.Get(ctx, "invalid")
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "Template name is required", valErr.Fields["name"])

	_, err = res.Get(ctx, "locked")
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusPreconditionFailed, serverErr.Status)
	assert.Equal(t, "template is in use", UserMessage(err))

	// a signed-in user without the role keeps their session
	_, err = res.Get(ctx, "forbidden")
	assert.False(t, errors.As(err, &authErr))
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusForbidden, serverErr.Status)
	assert.Equal(t, "insufficient permissions", UserMessage(err))

	_, err = res.Get(ctx, "gateway")
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, MsgGeneric, UserMessage(err))
}

func TestClientMissingTokenNeverCallsServer(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	_, err := Templates(New(srv.URL, StaticToken(""))).Get(context.Background(), "tpl-1")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestClientTimeoutAndNetworkErrors(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(srv.URL, StaticToken("tok"), WithTimeout(50*time.Millisecond))
	_, err := Templates(c).Get(context.Background(), "tpl-1")
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, MsgTimeout, UserMessage(err))

	closed := httptest.NewServer(http.NotFoundHandler())
	addr := closed.URL
	closed.Close()
	_, err = Templates(New(addr, StaticToken("tok"))).Get(context.Background(), "tpl-1")
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, MsgNetwork, UserMessage(err))
}

func TestClientCallerCancellationIsNotTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := Templates(New(srv.URL, StaticToken("tok"))).Get(ctx, "tpl-1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsStale(err))
}

func TestResourceTransitionAndDelete(t *testing.T) {
	var method, path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeEnvelope(w, http.StatusOK, map[string]interface{}{"success": true, "data": map[string]string{"id": "bc-1", "status": "scheduled"}})
	}))
	defer srv.Close()
	broadcasts := Broadcasts(New(srv.URL, StaticToken("tok")))

	out, err := broadcasts.Transition(context.Background(), "bc-1", "schedule", map[string]string{"scheduledFor": "2025-01-01T10:00"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, method)
	assert.Equal(t, "/broadcasts/bc-1/schedule", path)
	assert.JSONEq(t, `{"scheduledFor":"2025-01-01T10:00"}`, body)
	assert.Equal(t, "scheduled", out.Status)

	require.NoError(t, broadcasts.Delete(context.Background(), "bc-1"))
	assert.Equal(t, http.MethodDelete, method)
}

func TestPreviewAudienceAndRemoteStore(t *testing.T) {
	saved := map[string]json.RawMessage{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/broadcasts/audience/preview":
			var in models.Audience
			_ = json.NewDecoder(r.Body).Decode(&in)
			writeEnvelope(w, http.StatusOK, map[string]interface{}{"success": true, "data": map[string]int{"count": len(in.IDs) * 10}})
		case r.Method == http.MethodPut:
			var raw json.RawMessage
			_ = json.NewDecoder(r.Body).Decode(&raw)
			saved[r.URL.Path] = raw
			writeEnvelope(w, http.StatusOK, map[string]interface{}{"success": true, "data": raw})
		default:
			writeEnvelope(w, http.StatusOK, map[string]interface{}{"success": true, "data": saved[r.URL.Path]})
		}
	}))
	defer srv.Close()
	c := New(srv.URL, StaticToken("tok"))

	count, err := c.PreviewAudience(context.Background(), "course", []string{"c1", "c2"})
	require.NoError(t, err)
	assert.Equal(t, 20, count)

	store := NewRemoteStore(c)
	require.NoError(t, store.Save(context.Background(), "courses", filter.NewState().With("years", "Y1,Y2")))
	loaded, err := store.Load(context.Background(), "courses")
	require.NoError(t, err)
	assert.Equal(t, []string{"Y1", "Y2"}, loaded.Values("years"))
}

func TestUserMessageFallbacks(t *testing.T) {
	assert.Empty(t, UserMessage(nil))
	assert.Equal(t, MsgGeneric, UserMessage(errors.New("boom")))
	assert.Equal(t, MsgValidation, UserMessage(&ValidationError{Fields: map[string]string{"name": "x"}}))
	assert.Equal(t, "bad payload", UserMessage(&ValidationError{Message: "bad payload"}))
	assert.Equal(t, MsgGeneric, UserMessage(&ServerError{Status: 500}))
}

func staticFetcher(items ...string) Fetcher[string] {
	return func(ctx context.Context, query url.Values) (*ListResponse[string], error) {
		return &ListResponse[string]{Items: items}, nil
	}
}
