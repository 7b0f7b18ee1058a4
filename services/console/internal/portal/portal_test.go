package portal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unibrain/erpconsole/pkg/config"
	"github.com/unibrain/erpconsole/services/console/internal/backendtest"
	"github.com/unibrain/erpconsole/services/console/internal/httpclient"
	"github.com/unibrain/erpconsole/services/console/internal/navigation"
	"github.com/unibrain/erpconsole/services/console/internal/permission"
	"github.com/unibrain/erpconsole/services/console/internal/session"
	"github.com/unibrain/erpconsole/services/console/internal/tokenstore"
)

type fixture struct {
	backend  *backendtest.Backend
	sessions *session.Manager
	app      *fiber.App
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := backendtest.New(t)
	backend.AddAccount(backendtest.Account{Username: "sam", Password: "secret123", Role: "sales"})
	backend.AddAccount(backendtest.Account{Username: "ada", Password: "secret789", Role: "admin"})
	backend.AddAccount(backendtest.Account{Username: "mia", Password: "secret321", Role: "marketing"})

	store := tokenstore.New(tokenstore.NewMemory(), nil)
	client, err := httpclient.New(httpclient.Options{BaseURL: backend.URL, Timeout: 5 * time.Second, Tokens: store})
	require.NoError(t, err)

	sessions := session.New(session.Options{
		Store:  store,
		Client: client,
		Auth:   config.AuthConfig{RefreshInterval: 600},
	})
	t.Cleanup(func() { _ = sessions.Close() })

	ev, err := permission.NewEvaluator(permission.DefaultTable())
	require.NoError(t, err)

	app := fiber.New(AppConfig("erpconsole-test", 0, 0))
	New(Options{Sessions: sessions, Client: client, Evaluator: ev}).Mount(app)
	return &fixture{backend: backend, sessions: sessions, app: app}
}

func (f *fixture) login(t *testing.T, username, password string) {
	t.Helper()
	_, err := f.sessions.Login(context.Background(), username, password)
	require.NoError(t, err)
}

func (f *fixture) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := f.app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	return f.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func formRequest(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", fiber.MIMEApplicationForm)
	return req
}

func jsonRequest(path string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(data)))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	return req
}

func TestAnonymousPageRedirectsToLogin(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/sales")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.Equal(t, 0, f.backend.LoginCalls())
}

func TestFormLoginRedirectsHome(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, formRequest("/login", url.Values{"username": {"sam"}, "password": {"secret123"}}))
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
	require.NotNil(t, f.sessions.User())
	assert.Equal(t, "sales", f.sessions.User().Role)

	resp = f.get(t, "/login")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestJSONLoginReturnsUser(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, jsonRequest("/login", LoginRequest{Username: "ada", Password: "secret789"}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	data := body["data"].(map[string]any)
	assert.Equal(t, "/dashboard", data["redirect"])
	assert.Equal(t, "ada", data["user"].(map[string]any)["username"])
}

func TestLoginFailureIsGeneric(t *testing.T) {
	f := newFixture(t)

	for _, creds := range []LoginRequest{
		{Username: "sam", Password: "wrong-password"},
		{Username: "nobody", Password: "secret123"},
	} {
		resp := f.do(t, jsonRequest("/login", creds))
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, msgInvalidLogin, decode(t, resp)["message"])
	}
	assert.Nil(t, f.sessions.User())

	resp := f.do(t, jsonRequest("/login", LoginRequest{Username: "sam"}))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestForbiddenPageRedirectsToUnauthorized(t *testing.T) {
	f := newFixture(t)
	f.login(t, "sam", "secret123")

	resp := f.get(t, "/production")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/unauthorized", resp.Header.Get("Location"))

	resp = f.get(t, "/unauthorized")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	data := decode(t, resp)["data"].(map[string]any)
	assert.Equal(t, "unauthorized", data["page"])
}

func TestPageLoadsBackendData(t *testing.T) {
	f := newFixture(t)
	f.login(t, "sam", "secret123")

	resp := f.get(t, "/sales")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := decode(t, resp)["data"].(map[string]any)

	page := data["page"].(map[string]any)
	assert.Equal(t, "sales", page["name"])
	assert.Equal(t, "sam", data["user"].(map[string]any)["username"])

	payload := data["data"].(map[string]any)
	assert.Equal(t, "sales/sales/", payload["endpoint"])
	assert.Equal(t, "sam", payload["user"])
}

func TestDashboardNeedsNoBackendCall(t *testing.T) {
	f := newFixture(t)
	f.login(t, "sam", "secret123")
	f.backend.RevokeAll()

	resp := f.get(t, "/dashboard")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotNil(t, f.sessions.User())
}

func TestRejectedTokenEndsSessionWithOneRedirect(t *testing.T) {
	f := newFixture(t)
	f.login(t, "sam", "secret123")
	f.backend.RevokeAll()

	resp := f.get(t, "/customers")
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.Nil(t, f.sessions.User())

	resp = f.get(t, "/login")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMenuMatchesGuards(t *testing.T) {
	f := newFixture(t)
	f.login(t, "sam", "secret123")

	resp := f.get(t, "/menu")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data []navigation.Entry `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Data)

	for _, entry := range body.Data {
		page := f.get(t, entry.Path)
		if entry.Enabled {
			assert.Equal(t, fiber.StatusOK, page.StatusCode, entry.Path)
		} else {
			assert.Equal(t, "/unauthorized", page.Header.Get("Location"), entry.Path)
		}
	}
}

func TestSessionAndLogout(t *testing.T) {
	f := newFixture(t)
	f.login(t, "sam", "secret123")

	data := decode(t, f.get(t, "/session"))["data"].(map[string]any)
	assert.Equal(t, "authenticated", data["state"])

	resp := f.do(t, httptest.NewRequest(http.MethodPost, "/logout", nil))
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	data = decode(t, f.get(t, "/session"))["data"].(map[string]any)
	assert.Equal(t, "anonymous", data["state"])
	assert.Nil(t, data["user"])
}

func TestManualRefresh(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, httptest.NewRequest(http.MethodPost, "/session/refresh", nil))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	f.login(t, "sam", "secret123")
	resp = f.do(t, httptest.NewRequest(http.MethodPost, "/session/refresh", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, f.backend.RefreshCalls())

	f.backend.FailRefresh(true)
	resp = f.do(t, httptest.NewRequest(http.MethodPost, "/session/refresh", nil))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Nil(t, f.sessions.User())
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, jsonRequest("/register", RegisterRequest{
		Username: "newbie", Email: "n@unibrain.test", Password: "longpassword", Password2: "different1",
	}))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, resp)["message"], "passwords do not match")

	resp = f.do(t, jsonRequest("/register", RegisterRequest{
		Username: "sam", Password: "longpassword", Password2: "longpassword",
	}))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, resp)["message"], "already exists")

	resp = f.do(t, formRequest("/register", url.Values{
		"username": {"newbie"}, "email": {"n@unibrain.test"}, "role": {"sales"},
		"password": {"longpassword"}, "password2": {"longpassword"},
	}))
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.Nil(t, f.sessions.User())

	account, ok := f.backend.Account("newbie")
	require.True(t, ok)
	assert.True(t, account.Inactive)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/health")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "anonymous", body["session"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestAPIProxy(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/api/sales/sales/")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	f.login(t, "sam", "secret123")

	resp = f.get(t, "/api/sales/customers/?page=2")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "sales/customers/", body["endpoint"])
	assert.Equal(t, "sam", body["user"])

	resp = f.do(t, jsonRequest("/api/sales/sales/", map[string]any{"quantity": 3}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, http.MethodPost, decode(t, resp)["method"])

	resp = f.get(t, "/api/warehouses/")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = f.get(t, "/api/unknown/")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAPIProxyFollowsPageRequirement(t *testing.T) {
	f := newFixture(t)
	f.login(t, "sam", "secret123")

	resp := f.get(t, "/campaigns")
	assert.NotEqual(t, fiber.StatusOK, resp.StatusCode)
	resp = f.get(t, "/api/sales/feedbacks/")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	g := newFixture(t)
	g.login(t, "mia", "secret321")
	resp = g.get(t, "/api/sales/feedbacks/")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "sales/feedbacks/", decode(t, resp)["endpoint"])
}

func TestAPIProxyRejectedTokenSignalsRedirect(t *testing.T) {
	f := newFixture(t)
	f.login(t, "sam", "secret123")
	f.backend.RevokeAll()

	resp := f.get(t, "/api/sales/sales/")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get(HeaderRedirect))
	assert.Equal(t, "token_not_valid", decode(t, resp)["code"])
	assert.Nil(t, f.sessions.User())
}
