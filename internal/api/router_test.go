package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fachebot/wecom-sync-bot/internal/loop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoop struct {
	status        loop.Status
	starts, stops int
}

func (l *fakeLoop) StartLoop() {
	l.starts++
	l.status.Enabled = true
}

func (l *fakeLoop) StopLoopAndGoHome() {
	l.stops++
	l.status.Enabled = false
}

func (l *fakeLoop) Status() loop.Status { return l.status }

type fakeStore struct {
	err error
}

func (s fakeStore) Ping(ctx context.Context) error { return s.err }

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		code   int
		status string
	}{
		{"存储正常", nil, http.StatusOK, "healthy"},
		{"存储不可用", errors.New("dial tcp: connection refused"), http.StatusServiceUnavailable, "degraded"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l := &fakeLoop{status: loop.Status{State: loop.StateHome, Enabled: true, Running: true}}
			rec := do(t, NewRouter(l, l, fakeStore{tc.err}), http.MethodGet, "/healthz")
			assert.Equal(t, tc.code, rec.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.status, resp.Status)
			assert.True(t, resp.Loop.Running)
			assert.Contains(t, resp.Checks, "store")
		})
	}
}

func TestLoopControl(t *testing.T) {
	l := &fakeLoop{}
	r := NewRouter(l, l, fakeStore{})

	rec := do(t, r, http.MethodPost, "/loop/start")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, l.starts)
	assert.Contains(t, rec.Body.String(), `"enabled":true`)

	rec = do(t, r, http.MethodGet, "/loop/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"Stopped"`)

	rec = do(t, r, http.MethodPost, "/loop/stop")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, l.stops)
	assert.Contains(t, rec.Body.String(), `"enabled":false`)

	rec = do(t, r, http.MethodGet, "/loop/start")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, 1, l.starts)
}

func TestMetrics(t *testing.T) {
	l := &fakeLoop{}
	rec := do(t, NewRouter(l, l, fakeStore{}), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}
