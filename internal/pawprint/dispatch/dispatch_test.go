package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/csfam/pawprint/internal/common/httpx"
	"github.com/csfam/pawprint/internal/pawprint/auth"
	"github.com/csfam/pawprint/internal/pawprint/clientcache"
	"github.com/csfam/pawprint/internal/pawprint/faults"
	"github.com/csfam/pawprint/internal/pawprint/rpcclient"
	"github.com/csfam/pawprint/internal/pawprint/rpcclient/rpctest"
	"github.com/csfam/pawprint/internal/pawprint/sessionstore"
)

const (
	testUser = "alice"
	testPass = "s3cret"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	srv   *rpctest.Server
	store *sessionstore.MemoryStore
	cache *clientcache.Cache
	now   time.Time
	opts  Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		srv:   rpctest.NewServer(testUser, testPass),
		store: sessionstore.NewMemoryStore(),
		cache: clientcache.New(clientcache.HTTPFactory(rpcclient.Options{Timeout: 2 * time.Second})),
		now:   t0,
	}
	t.Cleanup(f.srv.Close)
	f.opts.Now = func() time.Time { return f.now }
	return f
}

func (f *fixture) dispatcher() *Dispatcher {
	return New(f.store, f.cache, faults.Default(), f.opts)
}

func (f *fixture) session(t *testing.T, password string) *sessionstore.Session {
	t.Helper()
	s, err := f.store.Create(context.Background(), f.srv.URL, testUser, password, t0, time.Minute)
	require.NoError(t, err)
	return s
}

func serve(h httpx.RequestHandler, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/ticket/getAll", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	httpx.WrapHttpRsp(h).ServeHTTP(rec, req)
	return rec
}

func assertFailure(t *testing.T, rec *httptest.ResponseRecorder, code int, msg string) {
	t.Helper()
	body := gjson.Parse(rec.Body.String())
	assert.False(t, body.Get("success").Bool(), rec.Body.String())
	assert.Equal(t, int64(code), body.Get("reason.errcode").Int())
	assert.Equal(t, msg, body.Get("reason.errmsg").String())
	assert.False(t, body.Get("data").Exists())
}

func queryTickets(ctx context.Context, _ Request, client rpcclient.Client) (any, error) {
	var ids []int
	if err := client.Call(ctx, "ticket.query", &ids, "max=0&order=id"); err != nil {
		return nil, err
	}
	return ids, nil
}

func TestProtectedSuccess(t *testing.T) {
	f := newFixture(t)
	f.srv.Result("ticket.query", []int{1, 2, 3})
	s := f.session(t, testPass)

	rec := serve(f.dispatcher().Protected(Endpoint{Name: "ticket/getAll", Operation: queryTickets}), url.Values{"token": {s.Token}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":[1,2,3]}`, rec.Body.String())
	assert.Equal(t, 1, f.cache.Len())
}

func TestProtectedTokenFailures(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, testPass)
	var called bool
	ep := Endpoint{Name: "ticket/getAll", Operation: func(context.Context, Request, rpcclient.Client) (any, error) {
		called = true
		return nil, nil
	}}
	h := f.dispatcher().Protected(ep)

	rec := serve(h, url.Values{})
	assertFailure(t, rec, 307, "request is missing a required parameter 'token'")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, url.Values{"token": {"nope"}})
	assertFailure(t, rec, 317, "session has expired for nope")

	f.now = s.Expiry
	rec = serve(h, url.Values{"token": {s.Token}})
	assertFailure(t, rec, 317, "session has expired for "+s.Token)

	assert.False(t, called)
	assert.Equal(t, 0, f.srv.Requests())
	// expired sessions are left to the sweeper
	assert.Equal(t, 1, f.store.Len())
}

func TestProtectedClassifiesOperationFailures(t *testing.T) {
	tests := []struct {
		name     string
		password string
		setup    func(srv *rpctest.Server)
		code     int
		prefix   string
	}{
		{
			name:     "invalid params",
			password: testPass,
			setup:    func(srv *rpctest.Server) { srv.Fault("ticket.query", -32602, "bad query") },
			code:     358,
			prefix:   "fault -- bad query",
		},
		{
			name:     "generic fault",
			password: testPass,
			setup:    func(srv *rpctest.Server) { srv.Fault("ticket.query", 1, "ticket does not exist") },
			code:     998,
			prefix:   "fault -- ticket does not exist",
		},
		{
			name:     "credentials revoked",
			password: "old",
			setup:    func(*rpctest.Server) {},
			code:     337,
			prefix:   "could not authenticate user 'alice'",
		},
		{
			name:     "plugin removed",
			password: testPass,
			setup:    func(srv *rpctest.Server) { srv.FailWith(http.StatusNotFound) },
			code:     327,
			prefix:   "the specified Trac server",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f.srv)
			s := f.session(t, tt.password)

			var (
				cleanupErr     error
				cleanupSession *sessionstore.Session
			)
			ep := Endpoint{
				Name:      "ticket/getAll",
				Operation: queryTickets,
				Cleanup: func(_ context.Context, err error, s *sessionstore.Session) {
					cleanupErr, cleanupSession = err, s
				},
			}
			rec := serve(f.dispatcher().Protected(ep), url.Values{"token": {s.Token}})

			body := gjson.Parse(rec.Body.String())
			assert.False(t, body.Get("success").Bool())
			assert.Equal(t, int64(tt.code), body.Get("reason.errcode").Int())
			assert.True(t, strings.HasPrefix(body.Get("reason.errmsg").String(), tt.prefix), rec.Body.String())

			require.Error(t, cleanupErr)
			assert.False(t, faults.IsMember(cleanupErr))
			require.NotNil(t, cleanupSession)
			assert.Equal(t, s.Token, cleanupSession.Token)

			// protected failures do not roll back the session
			_, err := f.store.FindByToken(context.Background(), s.Token, t0)
			assert.NoError(t, err)
		})
	}
}

func TestProtectedRecoversPanics(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, testPass)
	var cleaned bool
	ep := Endpoint{
		Name: "boom",
		Operation: func(context.Context, Request, rpcclient.Client) (any, error) {
			panic("boom")
		},
		Cleanup: func(_ context.Context, err error, _ *sessionstore.Session) {
			cleaned = errors.Is(err, ErrOperationPanic)
		},
	}

	rec := serve(f.dispatcher().Protected(ep), url.Values{"token": {s.Token}})
	assertFailure(t, rec, 999, "unknown error: operation panicked: boom")
	assert.True(t, cleaned)
}

func TestProtectedSessionExpiringMidCall(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, testPass)
	ep := Endpoint{Name: "slow", Operation: func(ctx context.Context, req Request, client rpcclient.Client) (any, error) {
		f.now = req.Session.Expiry.Add(time.Second)
		var v []int
		if err := client.Call(ctx, "system.getAPIVersion", &v); err != nil {
			return nil, err
		}
		return v, nil
	}}

	rec := serve(f.dispatcher().Protected(ep), url.Values{"token": {s.Token}})
	assert.JSONEq(t, `{"success":true,"data":[1,1,8]}`, rec.Body.String())
}

func TestProtectedStrictStatus(t *testing.T) {
	f := newFixture(t)
	f.opts.StrictHTTPStatus = true
	h := f.dispatcher().Protected(Endpoint{Name: "ticket/getAll", Operation: queryTickets})

	rec := serve(h, url.Values{"token": {"nope"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assertFailure(t, rec, 317, "session has expired for nope")

	rec = serve(h, url.Values{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type brokenStore struct {
	sessionstore.Store
}

func (brokenStore) FindByToken(context.Context, string, time.Time) (*sessionstore.Session, error) {
	return nil, sessionstore.ErrDatabase.Err(errors.New("connection reset"))
}

type countingStore struct {
	sessionstore.Store
	lookups atomic.Int32
}

func (c *countingStore) FindByToken(ctx context.Context, token string, now time.Time) (*sessionstore.Session, error) {
	c.lookups.Add(1)
	return c.Store.FindByToken(ctx, token, now)
}

func TestProtectedMissingTokenSkipsLookup(t *testing.T) {
	f := newFixture(t)
	store := &countingStore{Store: f.store}
	h := New(store, f.cache, faults.Default(), f.opts).Protected(Endpoint{Name: "ticket/getAll", Operation: queryTickets})

	for _, form := range []url.Values{{}, {"token": {""}}} {
		rec := serve(h, form)
		assertFailure(t, rec, 307, "request is missing a required parameter 'token'")
	}
	assert.Equal(t, int32(0), store.lookups.Load())

	rec := serve(h, url.Values{"token": {"nope"}})
	assertFailure(t, rec, 317, "session has expired for nope")
	assert.Equal(t, int32(1), store.lookups.Load())
	assert.Equal(t, 0, f.srv.Requests())
}

func TestProtectedStoreFailure(t *testing.T) {
	d := New(brokenStore{}, clientcache.New(nil), nil, Options{})
	rec := serve(d.Protected(Endpoint{Name: "x", Operation: queryTickets}), url.Values{"token": {"t"}})
	assertFailure(t, rec, 999, "unknown error: database error")
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	a, err := auth.New(f.store, f.cache, faults.Default(), auth.Options{TokenDuration: time.Minute, Now: f.opts.Now})
	require.NoError(t, err)
	h := f.dispatcher().Login(a)

	rec := serve(h, url.Values{"url": {f.srv.URL}, "username": {testUser}, "password": {testPass}})
	body := gjson.Parse(rec.Body.String())
	assert.True(t, body.Get("success").Bool(), rec.Body.String())
	token := body.Get("token").String()
	assert.NotEmpty(t, token)
	assert.False(t, body.Get("data").Exists())

	rec = serve(h, url.Values{"url": {f.srv.URL}, "username": {testUser}, "password": {testPass}})
	assert.Equal(t, token, gjson.Get(rec.Body.String(), "token").String())

	rec = serve(h, url.Values{"username": {testUser}, "password": {testPass}})
	assertFailure(t, rec, 307, "request is missing a required parameter 'url'")

	rec = serve(h, url.Values{"url": {f.srv.URL}, "username": {testUser}, "password": {"wrong"}})
	assertFailure(t, rec, 337, "could not authenticate user 'alice' for '"+f.srv.URL+"'")
	assert.Equal(t, 1, f.store.Len())
}
