package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickqr/qrbot/internal/auth/domain"
	"github.com/quickqr/qrbot/internal/auth/kv"
	"github.com/quickqr/qrbot/internal/auth/service"
	"github.com/quickqr/qrbot/internal/auth/store/drivers/sqlite"
	"github.com/quickqr/qrbot/pkg/cryptox"
	"github.com/quickqr/qrbot/pkg/jwtx"
	"github.com/quickqr/qrbot/pkg/slogx"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "authhttp")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))
	cryptox.SetParams(cryptox.Params{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1})

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

const testPassword = "correct-horse-9"

type testServer struct {
	*httptest.Server
	auth  *service.AuthService
	admin *service.UserAdminService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL",
		filepath.Join(t.TempDir(), "auth_test.db"))
	st, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	mem := kv.NewMemory()
	tokens := service.NewTokenService(
		jwtx.NewHS256([]byte("0123456789abcdef0123456789abcdef"), "qrbot-test", 0),
		mem, "qrbot-test", time.Hour,
	)
	limiter := service.NewRateLimiter(mem, map[string]service.Limit{
		service.ActionLogin: {Requests: 5, Window: 5 * time.Minute},
	}, false)
	audit := &service.Auditor{Store: st}
	auth := service.NewAuthService(st, tokens, limiter, audit)
	admin := &service.UserAdminService{Store: st, Audit: audit}

	logger := slogx.New(slogx.Config{Service: "auth-test", Level: "error", Format: "text"})
	router := NewRouter("test", st, mem, logger)
	router.AuthService = auth
	router.AdminService = admin
	router.Audit = audit
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, auth: auth, admin: admin}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) register(t *testing.T, username string) map[string]any {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/v1/auth/register", "",
		map[string]string{"username": username, "password": testPassword})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[map[string]any](t, resp)
}

func (ts *testServer) login(t *testing.T, username, password string) (string, *http.Response) {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/v1/auth/login", "",
		map[string]string{"username": username, "password": password})
	if resp.StatusCode != http.StatusOK {
		return "", resp
	}
	body := decode[map[string]any](t, resp)
	return body["token"].(string), resp
}

func TestRegisterEndpoint(t *testing.T) {
	ts := newTestServer(t)

	body := ts.register(t, "Alice")
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "user", body["role"])
	assert.NotEmpty(t, body["user_id"])
}

func TestRegisterDuplicate(t *testing.T) {
	ts := newTestServer(t)

	ts.register(t, "alice")
	resp := ts.do(t, http.MethodPost, "/v1/auth/register", "",
		map[string]string{"username": "ALICE", "password": testPassword})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRegisterWeakPassword(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/v1/auth/register", "",
		map[string]string{"username": "alice", "password": "short"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "weak_password", body["error"])
}

func TestLoginEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")

	resp := ts.do(t, http.MethodPost, "/v1/auth/login", "",
		map[string]string{"username": "alice", "password": testPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	body := decode[map[string]any](t, resp)
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, "Bearer", body["token_type"])
	assert.Equal(t, float64(3600), body["expires_in"])
}

func TestLoginUniformFailureBody(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")

	readBody := func(username, password string) (int, string) {
		resp := ts.do(t, http.MethodPost, "/v1/auth/login", "",
			map[string]string{"username": username, "password": password})
		var buf bytes.Buffer
		_, err := buf.ReadFrom(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, buf.String()
	}

	unknownCode, unknownBody := readBody("ghost", testPassword)
	wrongCode, wrongBody := readBody("alice", "wrong-pass-1")

	assert.Equal(t, http.StatusUnauthorized, unknownCode)
	assert.Equal(t, http.StatusUnauthorized, wrongCode)
	assert.JSONEq(t, unknownBody, wrongBody, "unknown user and wrong password must be indistinguishable")
}

func TestLoginLockout(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.LockoutThreshold = 3
	ts.auth.Limiter.Limits[service.ActionLogin] = service.Limit{Requests: 100, Window: 5 * time.Minute}
	ts.register(t, "alice")

	for i := 0; i < 3; i++ {
		_, resp := ts.login(t, "alice", "wrong-pass-1")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	_, resp := ts.login(t, "alice", testPassword)
	require.Equal(t, http.StatusLocked, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestLoginRateLimited(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")

	for i := 0; i < 5; i++ {
		_, _ = ts.login(t, "alice", "wrong-pass-1")
	}

	_, resp := ts.login(t, "alice", testPassword)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestMeEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")
	token, _ := ts.login(t, "alice", testPassword)

	resp := ts.do(t, http.MethodGet, "/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "user", body["role"])
	assert.Equal(t, true, body["active"])
}

func TestMeWithoutToken(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/v1/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "invalid_token")
}

func TestLogoutInvalidatesToken(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")
	token, _ := ts.login(t, "alice", testPassword)

	resp := ts.do(t, http.MethodPost, "/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Idempotent.
	resp = ts.do(t, http.MethodPost, "/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestChangePasswordEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")
	token, _ := ts.login(t, "alice", testPassword)

	resp := ts.do(t, http.MethodPut, "/v1/auth/password", token,
		map[string]string{"current_password": testPassword, "new_password": "new-Password-7"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, resp = ts.login(t, "alice", testPassword)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	newToken, _ := ts.login(t, "alice", "new-Password-7")
	assert.NotEmpty(t, newToken)
}

func TestAdminEventsForbiddenForUsers(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "alice")
	token, _ := ts.login(t, "alice", testPassword)

	resp := ts.do(t, http.MethodGet, "/v1/admin/events", token, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "insufficient_scope")
}

func (ts *testServer) promote(t *testing.T, body map[string]any) {
	t.Helper()
	require.NoError(t, ts.admin.SetRole(t.Context(), body["user_id"].(string), domain.RoleAdmin))
}

func TestAdminEvents(t *testing.T) {
	ts := newTestServer(t)
	body := ts.register(t, "root")
	ts.promote(t, body)
	token, _ := ts.login(t, "root", testPassword)

	ts.register(t, "alice")
	_, _ = ts.login(t, "alice", "wrong-pass-1")

	resp := ts.do(t, http.MethodGet, "/v1/admin/events?type=login_failure", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := decode[[]map[string]any](t, resp)
	require.NotEmpty(t, events)
	assert.Equal(t, "login_failure", events[0]["type"])
}

func TestAdminUserLifecycle(t *testing.T) {
	ts := newTestServer(t)
	rootBody := ts.register(t, "root")
	ts.promote(t, rootBody)
	rootToken, _ := ts.login(t, "root", testPassword)

	aliceBody := ts.register(t, "alice")
	aliceID := aliceBody["user_id"].(string)
	base := fmt.Sprintf("/v1/admin/users/%s", aliceID)

	// Promote to admin, then back down.
	resp := ts.do(t, http.MethodPut, base+"/role", rootToken, map[string]string{"role": "admin"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = ts.do(t, http.MethodPut, base+"/role", rootToken, map[string]string{"role": "owner"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Deactivation kills both login and existing sessions.
	aliceToken, _ := ts.login(t, "alice", testPassword)
	resp = ts.do(t, http.MethodPost, base+"/deactivate", rootToken, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, resp = ts.login(t, "alice", testPassword)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = ts.do(t, http.MethodGet, "/v1/auth/me", aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Reactivate restores access.
	resp = ts.do(t, http.MethodPost, base+"/reactivate", rootToken, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, resp = ts.login(t, "alice", testPassword)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Unknown user id is a 404 on the admin surface.
	resp = ts.do(t, http.MethodPost, "/v1/admin/users/nope/deactivate", rootToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])

	resp = ts.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ready := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", ready["status"])
}
