package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/csfam/pawprint/internal/pawprint/config"
	"github.com/csfam/pawprint/internal/pawprint/rpcclient/rpctest"
)

func loginBody(t *testing.T, url, user, pass string) string {
	t.Helper()
	body, err := sjson.Set(`{}`, "url", url)
	require.NoError(t, err)
	if user != "" {
		body, err = sjson.Set(body, "username", user)
		require.NoError(t, err)
	}
	if pass != "" {
		body, err = sjson.Set(body, "password", pass)
		require.NoError(t, err)
	}
	return body
}

func TestLoginThenGetAllTickets(t *testing.T) {
	trac := newTracServer(t)
	trac.Result("ticket.query", []int{42})
	trac.Result("ticket.get", []any{42, 0, 0, map[string]any{"summary": "paw", "status": "new"}})
	svc := newTestServices(t, false)

	rsp := executeTestRequest(t, svc, Options{}, jsonRequest(http.MethodPost, "/login", loginBody(t, trac.URL, testUser, testPass)))
	require.Equal(t, http.StatusOK, rsp.Code)
	checkHeader(t, rsp.Result().Header)
	token := gjson.Get(rsp.Body.String(), "token").String()
	require.NotEmpty(t, token, rsp.Body.String())
	assert.True(t, gjson.Get(rsp.Body.String(), "success").Bool())

	rsp = executeTestRequest(t, svc, Options{}, httptest.NewRequest(http.MethodGet, "/ticket/getAll?token="+token, nil))
	require.Equal(t, http.StatusOK, rsp.Code)
	checkHeader(t, rsp.Result().Header)
	body := gjson.Parse(rsp.Body.String())
	assert.True(t, body.Get("success").Bool(), rsp.Body.String())
	assert.Equal(t, int64(42), body.Get("data.0.id").Int())
	assert.Equal(t, "paw", body.Get("data.0.summary").String())

	// form-encoded POST works the same way
	req := httptest.NewRequest(http.MethodPost, "/ticket/getAll", strings.NewReader("token="+token))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rsp = executeTestRequest(t, svc, Options{}, req)
	assert.Equal(t, int64(42), gjson.Get(rsp.Body.String(), "data.0.id").Int())
}

func TestLoginKeepsPaddedPassword(t *testing.T) {
	trac := rpctest.NewServer(testUser, " padded ")
	t.Cleanup(trac.Close)
	svc := newTestServices(t, false)

	rsp := executeTestRequest(t, svc, Options{}, jsonRequest(http.MethodPost, "/login", loginBody(t, trac.URL, testUser, " padded ")))
	token := gjson.Get(rsp.Body.String(), "token").String()
	require.NotEmpty(t, token, rsp.Body.String())

	form := url.Values{"url": {trac.URL}, "username": {testUser}, "password": {" padded "}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rsp = executeTestRequest(t, svc, Options{}, req)
	require.True(t, gjson.Get(rsp.Body.String(), "success").Bool(), rsp.Body.String())
	assert.Equal(t, token, gjson.Get(rsp.Body.String(), "token").String())
}

func TestLoginFailures(t *testing.T) {
	trac := newTracServer(t)
	svc := newTestServices(t, false)

	rsp := executeTestRequest(t, svc, Options{}, jsonRequest(http.MethodPost, "/login", loginBody(t, trac.URL, testUser, "")))
	require.Equal(t, http.StatusOK, rsp.Code)
	assert.JSONEq(t, `{"success":false,"reason":{"errcode":307,"errmsg":"request is missing a required parameter 'password'"}}`, rsp.Body.String())

	rsp = executeTestRequest(t, svc, Options{}, jsonRequest(http.MethodPost, "/login", loginBody(t, trac.URL, testUser, "nope")))
	assert.Equal(t, int64(337), gjson.Get(rsp.Body.String(), "reason.errcode").Int())

	strict := newTestServices(t, true)
	rsp = executeTestRequest(t, strict, Options{}, jsonRequest(http.MethodPost, "/login", loginBody(t, trac.URL, testUser, "nope")))
	assert.Equal(t, http.StatusUnauthorized, rsp.Code)

	rsp = executeTestRequest(t, svc, Options{}, jsonRequest(http.MethodPost, "/login", `{"url":`))
	assert.False(t, gjson.Get(rsp.Body.String(), "success").Bool())
	assert.Equal(t, int64(0), gjson.Get(rsp.Body.String(), "reason.errcode").Int())
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	svc := newTestServices(t, false)
	for _, path := range []string{"/ticket/getAll", "/ticket/fields", "/milestone/getAll", "/component/getAll"} {
		t.Run(path, func(t *testing.T) {
			rsp := executeTestRequest(t, svc, Options{}, httptest.NewRequest(http.MethodGet, path, nil))
			require.Equal(t, http.StatusOK, rsp.Code)
			assert.JSONEq(t, `{"success":false,"reason":{"errcode":307,"errmsg":"request is missing a required parameter 'token'"}}`, rsp.Body.String())

			rsp = executeTestRequest(t, svc, Options{}, httptest.NewRequest(http.MethodGet, path+"?token=stale", nil))
			assert.Equal(t, int64(317), gjson.Get(rsp.Body.String(), "reason.errcode").Int())
		})
	}
}

func TestVersion(t *testing.T) {
	rsp := executeTestRequest(t, newTestServices(t, false), Options{}, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rsp.Code)
	checkHeader(t, rsp.Result().Header)
	assert.Equal(t, "pawprint "+Version, gjson.Get(rsp.Body.String(), "data.serverVersion").String())
	assert.Equal(t, APIVersion, gjson.Get(rsp.Body.String(), "data.apiVersion").String())
}

func TestReady(t *testing.T) {
	svc := newTestServices(t, false)
	rsp := executeTestRequest(t, svc, Options{}, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rsp.Code)
	assert.Equal(t, "ready", gjson.Get(rsp.Body.String(), "data.status").String())

	svc.Ready = failingReady{}.check
	rsp = executeTestRequest(t, svc, Options{}, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rsp.Code)
	assert.False(t, gjson.Get(rsp.Body.String(), "success").Bool())
}

func TestMetricsEndpoint(t *testing.T) {
	trac := newTracServer(t)
	svc := newTestServices(t, false)
	executeTestRequest(t, svc, Options{}, jsonRequest(http.MethodPost, "/login", loginBody(t, trac.URL, testUser, testPass)))

	rsp := executeTestRequest(t, svc, Options{}, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rsp.Code)
	assert.Contains(t, rsp.Body.String(), `pawprint_auth_logins_total{outcome="created"} 1`)
	assert.Contains(t, rsp.Body.String(), "pawprint_clientcache_clients 1")
	assert.Contains(t, rsp.Body.String(), `pawprint_rpc_call_duration_seconds_count{method="system.getAPIVersion",result="ok"} 1`)
}

func TestCORS(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/login", nil)
	req.Header.Set("Origin", "http://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rsp := executeTestRequest(t, newTestServices(t, false), Options{HandleCORS: true}, req)
	assert.Equal(t, "*", rsp.Header().Get("Access-Control-Allow-Origin"))

	rsp = executeTestRequest(t, newTestServices(t, false), Options{}, req)
	assert.Empty(t, rsp.Header().Get("Access-Control-Allow-Origin"))
}

func TestCreateNewServerRequiresServices(t *testing.T) {
	_, err := CreateNewServer(nil, Options{})
	assert.Error(t, err)
	_, err = CreateNewServer(&Services{}, Options{})
	assert.Error(t, err)
}

func TestNewServicesMemory(t *testing.T) {
	cfg, err := config.ParseConfig(`format_version = "0.1.0"`)
	require.NoError(t, err)

	svc, err := NewServices(context.Background(), cfg)
	require.NoError(t, err)
	defer svc.Close()
	assert.NotNil(t, svc.Auth)
	assert.NotNil(t, svc.Dispatcher)
	assert.Nil(t, svc.Ready)
	assert.Equal(t, 0, svc.Cache.Len())
}

func TestIsAPICompatible(t *testing.T) {
	assert.True(t, IsAPICompatible("1.0.0"))
	assert.True(t, IsAPICompatible("1.4.2"))
	assert.False(t, IsAPICompatible("2.0.0"))
	assert.False(t, IsAPICompatible("latest"))
}
