package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csfam/pawprint/internal/common/middleware"
	"github.com/csfam/pawprint/internal/pawprint/auth"
	"github.com/csfam/pawprint/internal/pawprint/clientcache"
	"github.com/csfam/pawprint/internal/pawprint/dispatch"
	"github.com/csfam/pawprint/internal/pawprint/faults"
	"github.com/csfam/pawprint/internal/pawprint/metrics"
	"github.com/csfam/pawprint/internal/pawprint/rpcclient"
	"github.com/csfam/pawprint/internal/pawprint/rpcclient/rpctest"
	"github.com/csfam/pawprint/internal/pawprint/sessionstore"
)

const (
	testUser = "alice"
	testPass = "s3cret"
)

func newTestServices(t *testing.T, strict bool) *Services {
	t.Helper()
	store := sessionstore.NewMemoryStore()
	var cache *clientcache.Cache
	m := metrics.New(func() int { return cache.Len() })
	cache = clientcache.New(clientcache.HTTPFactory(rpcclient.Options{Timeout: 2 * time.Second, Observer: m.ObserveRPC}))
	taxonomy := faults.Default()
	a, err := auth.New(store, cache, taxonomy, auth.Options{TokenDuration: time.Minute, Metrics: m})
	require.NoError(t, err)
	return &Services{
		Store:      store,
		Cache:      cache,
		Auth:       a,
		Dispatcher: dispatch.New(store, cache, taxonomy, dispatch.Options{StrictHTTPStatus: strict, Metrics: m}),
		Metrics:    m,
	}
}

func newTracServer(t *testing.T) *rpctest.Server {
	t.Helper()
	srv := rpctest.NewServer(testUser, testPass)
	t.Cleanup(srv.Close)
	return srv
}

func executeTestRequest(t *testing.T, svc *Services, opts Options, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	s, err := CreateNewServer(svc, opts)
	require.NoError(t, err, "create new server")
	s.MountHandlers()

	rr := httptest.NewRecorder()
	s.Router.ServeHTTP(rr, req)
	return rr
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func checkHeader(t *testing.T, h http.Header) {
	t.Helper()
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.NotEmpty(t, h.Get(middleware.RequestIDHeader), "no request id")
}

type failingReady struct{}

func (failingReady) check(context.Context) error { return sessionstore.ErrDatabase }
