package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/influxdata/taskstats/kit/errors"
	"github.com/influxdata/taskstats/kit/prom/promtest"
)

func TestWriteError(t *testing.T) {
	for _, tt := range []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{
			name:    "not found",
			err:     &kerrors.Error{Code: kerrors.ENotFound, Msg: "task node-1:4 not found"},
			status:  http.StatusNotFound,
			code:    kerrors.ENotFound,
			message: "task node-1:4 not found",
		},
		{
			name:    "invalid",
			err:     kerrors.Invalidf("taskstats.ParseTaskID", "malformed task id %q", "x"),
			status:  http.StatusBadRequest,
			code:    kerrors.EInvalid,
			message: `malformed task id "x"`,
		},
		{
			name:    "plain error",
			err:     errors.New("boom"),
			status:  http.StatusInternalServerError,
			code:    kerrors.EInternal,
			message: "An internal error has occurred.",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, w.Header().Get(ErrorCodeHeader))

			var body struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.message, body.Message)
		})
	}
}

func TestWriteError_Nil(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status code 200, got: %d", w.Code)
	}
}

func TestMetrics(t *testing.T) {
	m := NewRequestMetrics("taskstats")

	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Get("/api/v1/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"id": chi.URLParam(r, "id")})
	})
	r.Get("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/api/v1/tasks/node-1:1", "/api/v1/tasks/node-1:2", "/missing"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	mfs := promtest.MustGather(t, m.PrometheusCollectors()...)
	got := promtest.CounterValue(t, mfs, "taskstats_http_requests_total", map[string]string{
		"method":        http.MethodGet,
		"path":          "/api/v1/tasks/{id}",
		"status":        "2XX",
		"response_code": "200",
		"user_agent":    "unknown",
	})
	assert.Equal(t, 2.0, got)
	// 4XX responses are not reported.
	for _, mf := range mfs {
		assert.Len(t, mf.Metric, 1, mf.GetName())
	}
}

func TestStatusResponseWriter(t *testing.T) {
	w := NewStatusResponseWriter(httptest.NewRecorder())
	assert.Equal(t, http.StatusOK, w.Code())
	assert.Equal(t, "2XX", w.StatusCodeClass())

	w.WriteHeader(http.StatusServiceUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code())
	assert.Equal(t, "5XX", w.StatusCodeClass())
}
