package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/hub-backorders/internal/backorder/application"
	"github.com/dmehra2102/hub-backorders/internal/backorder/domain"
)

type stubLinks map[string]domain.Link

func (s stubLinks) Find(_ context.Context, scope domain.Scope) (domain.Link, error) {
	l, ok := s[scope.String()]
	if !ok {
		return domain.Link{}, domain.ErrNotLinked
	}
	return l, nil
}

type recorder struct {
	completed []application.CompleteRequest
	err       error
}

func (r *recorder) Complete(_ context.Context, req application.CompleteRequest) error {
	r.completed = append(r.completed, req)
	return r.err
}

func newServer(t *testing.T, rec *recorder) *httptest.Server {
	t.Helper()
	links := stubLinks{"d1/oc1": {
		Scope:         domain.Scope{UserID: "u1", DistributorID: "d1", OrderCycleID: "oc1"},
		RemoteOrderID: "remote-7",
		State:         domain.StateFinalizeFailed,
		LastError:     "status 502",
	}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	r.Mount("/backorders", NewHandler(log, links, rec).Routes())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestGetBackorder(t *testing.T) {
	srv := newServer(t, &recorder{})

	resp, err := http.Get(srv.URL + "/backorders/d1/oc1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body linkResp
	decode(t, resp, &body)
	assert.Equal(t, "remote-7", body.RemoteOrderID)
	assert.Equal(t, "finalize_failed", body.State)
	assert.Equal(t, "status 502", body.LastError)
}

func TestGetBackorderNotLinked(t *testing.T) {
	srv := newServer(t, &recorder{})

	resp, err := http.Get(srv.URL + "/backorders/d9/oc1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCompleteRetryUsesLinkedUser(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec)

	resp, err := http.Post(srv.URL+"/backorders/d1/oc1/complete", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, rec.completed, 1)
	assert.Equal(t, application.CompleteRequest{UserID: "u1", DistributorID: "d1", OrderCycleID: "oc1", RemoteOrderID: "remote-7"}, rec.completed[0])
}

func TestCompleteRetryConflict(t *testing.T) {
	srv := newServer(t, &recorder{err: domain.ErrFinalizeInProgress})

	resp, err := http.Post(srv.URL+"/backorders/d1/oc1/complete", "application/json", nil)
	require.NoError(t, err)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["error"], "already started")
}

func TestCompleteRetryLinkMismatch(t *testing.T) {
	srv := newServer(t, &recorder{err: fmt.Errorf("%w: d1/oc1 is linked to remote-7", domain.ErrLinkMismatch)})

	resp, err := http.Post(srv.URL+"/backorders/d1/oc1/complete", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCompleteRetryRemoteDown(t *testing.T) {
	srv := newServer(t, &recorder{err: fmt.Errorf("complete backorder remote-7: %w", domain.ErrRemoteUnavailable)})

	resp, err := http.Post(srv.URL+"/backorders/d1/oc1/complete", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCompleteRetryNotLinked(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec)

	resp, err := http.Post(srv.URL+"/backorders/d2/oc1/complete", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, rec.completed)
}
