package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unibrain/erpconsole/services/console/internal/backendtest"
	"github.com/unibrain/erpconsole/services/console/internal/navigation"
	"github.com/unibrain/erpconsole/services/console/internal/tokenstore"
)

type staticTokens struct{ access atomic.Value }

func (s *staticTokens) AccessToken(context.Context) string {
	v, _ := s.access.Load().(string)
	return v
}

func newClient(t *testing.T, baseURL string, tokens TokenSource, keyword string) *Client {
	t.Helper()
	c, err := New(Options{BaseURL: baseURL, Tokens: tokens, Keyword: keyword})
	require.NoError(t, err)
	return c
}

func TestBearerInjection(t *testing.T) {
	var gotAuth, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tokens := &staticTokens{}
	c := newClient(t, srv.URL+"/api", tokens, "")

	var out struct{ OK bool }
	require.NoError(t, c.Get(context.Background(), "sales/sales/", &out))
	assert.True(t, out.OK)
	assert.Empty(t, gotAuth)
	assert.NotEmpty(t, gotRequestID)

	tokens.access.Store("abc")
	require.NoError(t, c.Get(context.Background(), "sales/sales/", nil))
	assert.Equal(t, "Bearer abc", gotAuth)

	// 令牌接口不携带令牌
	require.NoError(t, c.Get(Anonymous(context.Background()), "token/", nil))
	assert.Empty(t, gotAuth)
}

func TestResolveKeepsBasePath(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:8000/api", nil, "")
	u, err := c.Resolve("/sales/sales/?page=2")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8000/api/sales/sales/?page=2", u.String())
}

func TestNewRejectsRelativeBase(t *testing.T) {
	_, err := New(Options{BaseURL: "/api/"})
	assert.Error(t, err)
}

// sessionStub 模拟会话：失效时清空令牌并请求跳转登录页
type sessionStub struct {
	store *tokenstore.Store
	calls atomic.Int32
}

func (s *sessionStub) HandleAuthFailure(ctx context.Context) {
	s.calls.Add(1)
	_ = s.store.Clear(ctx)
	if nav := navigation.FromContext(ctx); nav != nil && nav.Location() != "/login" {
		nav.Redirect("/login")
	}
}

func TestUnauthorizedClearsSessionAndRedirectsOnce(t *testing.T) {
	backend := backendtest.New(t)
	backend.AddAccount(backendtest.Account{Username: "sam", Password: "secret123", Role: "sales"})

	ctx := context.Background()
	store := tokenstore.New(tokenstore.NewMemory(), nil)
	require.NoError(t, store.Save(ctx, backend.IssueAccess("sam"), backend.IssueRefresh("sam")))

	stub := &sessionStub{store: store}
	c := newClient(t, backend.URL, store, "")
	c.SetAuthFailureHandler(stub)

	tracker := navigation.NewTracker("/sales")
	reqCtx := navigation.WithNavigator(ctx, tracker)
	require.NoError(t, c.Get(reqCtx, "sales/sales/", nil))

	backend.RevokeAll()
	err := c.Get(reqCtx, "sales/sales/", nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.Contains(t, string(se.Body), "token_not_valid")

	assert.Equal(t, tokenstore.Tokens{}, store.Read(ctx))
	target, ok := tracker.Pending()
	assert.True(t, ok)
	assert.Equal(t, "/login", target)

	// 令牌已清空，后续401不再触发处理
	require.Error(t, c.Get(reqCtx, "sales/customers/", nil))
	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestUnauthorizedOnLoginPageDoesNotRedirect(t *testing.T) {
	backend := backendtest.New(t)
	backend.AddAccount(backendtest.Account{Username: "sam", Password: "secret123", Role: "sales"})

	ctx := context.Background()
	store := tokenstore.New(tokenstore.NewMemory(), nil)
	require.NoError(t, store.Save(ctx, backend.IssueAccess("sam"), backend.IssueRefresh("sam")))
	backend.RevokeAll()

	stub := &sessionStub{store: store}
	c := newClient(t, backend.URL, store, "")
	c.SetAuthFailureHandler(stub)

	tracker := navigation.NewTracker("/login")
	require.Error(t, c.Get(navigation.WithNavigator(ctx, tracker), "sales/sales/", nil))

	assert.Equal(t, int32(1), stub.calls.Load())
	assert.Equal(t, tokenstore.Tokens{}, store.Read(ctx))
	_, ok := tracker.Pending()
	assert.False(t, ok)
}

func TestKeywordFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		if r.URL.Path == "/api/expired/" {
			w.Write([]byte(`{"code":"TOKEN_NOT_VALID"}`))
			return
		}
		w.Write([]byte(`{"detail":"object-level permission"}`))
	}))
	defer srv.Close()

	tokens := &staticTokens{}
	tokens.access.Store("abc")
	var calls atomic.Int32
	c := newClient(t, srv.URL+"/api/", tokens, "token_not_valid")
	c.SetAuthFailureHandler(AuthFailureFunc(func(context.Context) { calls.Add(1) }))

	err := c.Get(context.Background(), "other/", nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, string(se.Body), "object-level")
	assert.Equal(t, int32(0), calls.Load())

	err = c.Get(context.Background(), "expired/", nil)
	require.True(t, errors.As(err, &se))
	// 检查关键字后响应体仍完整
	assert.Equal(t, `{"code":"TOKEN_NOT_VALID"}`, string(se.Body))
	assert.Equal(t, int32(1), calls.Load())
}

func TestTransportLeavesResponseReadable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(strings.Repeat("x", 64) + "token_not_valid"))
	}))
	defer srv.Close()

	tokens := &staticTokens{}
	tokens.access.Store("abc")
	tr := NewAuthTransport(nil, tokens, "token_not_valid")
	fired := false
	tr.SetAuthFailureHandler(AuthFailureFunc(func(context.Context) { fired = true }))

	req := httptest.NewRequest(http.MethodGet, srv.URL, nil)
	req.RequestURI = ""
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.True(t, strings.HasSuffix(string(body), "token_not_valid"))
	// 原请求不被修改
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestDoEncodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		json.NewEncoder(w).Encode(map[string]string{"echo": in["name"]})
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, nil, "")
	var out map[string]string
	require.NoError(t, c.Post(context.Background(), "echo/", map[string]string{"name": "ada"}, &out))
	assert.Equal(t, "ada", out["echo"])
}
