package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New(nil)

	m.Login(LoginCreated)
	m.Login(LoginCreated)
	m.Login(LoginFailed)
	m.Failure(317)
	m.SessionsPurged(3)
	m.SessionsPurged(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.logins.WithLabelValues(LoginCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues(LoginFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("317")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessionsPurged))
}

func TestObserveRPC(t *testing.T) {
	m := New(nil)
	m.ObserveRPC("system.getAPIVersion", 20*time.Millisecond, nil)
	m.ObserveRPC("ticket.query", time.Second, errors.New("down"))

	assert.Equal(t, 2, testutil.CollectAndCount(m.rpcDuration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Login(LoginReused)
		m.Failure(999)
		m.ObserveRPC("x", time.Millisecond, nil)
		m.SessionsPurged(1)
	})
}

func TestHandler(t *testing.T) {
	cached := 4
	m := New(func() int { return cached })
	m.Login(LoginReused)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pawprint_clientcache_clients 4")
	assert.Contains(t, string(body), `pawprint_auth_logins_total{outcome="reused"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
