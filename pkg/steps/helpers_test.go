package steps

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/systemstart/pipecall/pkg/api"
	"github.com/systemstart/pipecall/pkg/session"
	"github.com/systemstart/pipecall/pkg/templating"
)

// newAPIServer starts a small JSON API for request step tests.
//
//	POST /login        -> {"id": 42, "token": "t-1"}
//	GET  /users/{id}   -> {"id": "<id>", "auth": "<Authorization header>"}
//	POST /echo         -> {"contentType": "...", "body": "<raw body>"}
//	GET  /missing      -> 404
func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()

	r := chi.NewRouter()
	r.Post("/login", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 42, "token": "t-1"})
	})
	r.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":   chi.URLParam(r, "id"),
			"auth": r.Header.Get("Authorization"),
		})
	})
	r.Post("/echo", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		writeJSON(w, http.StatusOK, map[string]any{
			"contentType": r.Header.Get("Content-Type"),
			"body":        string(body),
		})
	})
	r.Get("/text", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("hello"))
	})
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newRequestExecutor(transport Transport) (*RequestExecutor, *session.Store) {
	store := session.New()
	return NewRequestExecutor(templating.New(store), transport), store
}

func httpStep(name, method, url string) api.Step {
	return api.Step{
		Name:    name,
		Kind:    api.KindRequest,
		Method:  method,
		URL:     url,
		Headers: map[string]string{},
	}
}

// recordingTransport captures outbound requests and answers with a fixed response.
type recordingTransport struct {
	requests []*OutboundRequest
	response *InboundResponse
	err      error
}

func (r *recordingTransport) Do(_ context.Context, req *OutboundRequest) (*InboundResponse, error) {
	r.requests = append(r.requests, req)
	if r.err != nil {
		return nil, r.err
	}
	if r.response != nil {
		return r.response, nil
	}
	return &InboundResponse{StatusCode: http.StatusOK, Status: "200 OK", Headers: http.Header{}}, nil
}

func (r *recordingTransport) last() *OutboundRequest {
	return r.requests[len(r.requests)-1]
}

// fakeEvaluator returns canned results for script executor tests.
type fakeEvaluator struct {
	result any
	err    error
	write  map[string]any
	seen   string
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ string, source string, store *session.Store) (any, error) {
	f.seen = source
	for k, v := range f.write {
		store.Map()[k] = v
	}
	return f.result, f.err
}
