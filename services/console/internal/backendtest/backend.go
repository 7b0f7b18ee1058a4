// Package backendtest runs an in-process fake of the ERP REST backend for
// tests: token issue/refresh, registration and the module endpoints.
package backendtest

import (
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/unibrain/erpconsole/pkg/auth"
)

// Account 测试账号
type Account struct {
	ID        string
	Username  string
	Password  string
	Role      string
	Email     string
	FirstName string
	LastName  string
	Inactive  bool
}

// Backend 假后端
type Backend struct {
	URL    string // 以 /api/ 结尾的基础地址
	Signer *auth.Signer

	srv     *httptest.Server
	refresh *auth.Signer

	mu       sync.Mutex
	accounts map[string]*Account
	valid    map[string]bool // 有效的访问令牌
	nextID   int

	refreshFails atomic.Bool
	refreshDelay atomic.Int64
	loginDelay   atomic.Int64
	refreshCalls atomic.Int32
	loginCalls   atomic.Int32
	profileUser  atomic.Pointer[auth.User]
}

var secret = []byte("backendtest")

// Option 假后端选项
type Option func(*Backend)

// WithAccessTTL 访问令牌有效期
func WithAccessTTL(ttl time.Duration) Option {
	return func(b *Backend) {
		b.Signer = auth.NewSigner(secret, "backendtest", ttl)
	}
}

// New 启动假后端，测试结束时自动关闭
func New(t testing.TB, opts ...Option) *Backend {
	t.Helper()
	b := &Backend{
		Signer:   auth.NewSigner(secret, "backendtest", time.Hour),
		refresh:  auth.NewSigner(secret, "backendtest", 7*24*time.Hour),
		accounts: make(map[string]*Account),
		valid:    make(map[string]bool),
		nextID:   1,
	}
	for _, opt := range opts {
		opt(b)
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	api := app.Group("/api")
	api.Post("/token/", b.issue)
	api.Post("/token/refresh/", b.refreshToken)
	api.Post("/accounts/register/", b.register)
	api.All("/*", b.module)

	b.srv = httptest.NewServer(adaptor.FiberApp(app))
	b.URL = b.srv.URL + "/api/"
	t.Cleanup(b.srv.Close)
	return b
}

// AddAccount 添加可登录账号
func (b *Backend) AddAccount(a Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a.ID == "" {
		a.ID = strconv.Itoa(b.nextID)
		b.nextID++
	}
	b.accounts[a.Username] = &a
}

// Approve 激活注册后的账号
func (b *Backend) Approve(username string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.accounts[username]; ok {
		a.Inactive = false
	}
}

// Account 查询账号
func (b *Backend) Account(username string) (Account, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.accounts[username]
	if !ok {
		return Account{}, false
	}
	return *a, true
}

// RevokeAll 使已签发的访问令牌全部失效
func (b *Backend) RevokeAll() {
	b.mu.Lock()
	b.valid = make(map[string]bool)
	b.mu.Unlock()
}

// FailRefresh 让刷新接口返回401
func (b *Backend) FailRefresh(fail bool) { b.refreshFails.Store(fail) }

// SetRefreshDelay 刷新接口响应延迟
func (b *Backend) SetRefreshDelay(d time.Duration) { b.refreshDelay.Store(int64(d)) }

// SetLoginDelay 登录接口响应延迟
func (b *Backend) SetLoginDelay(d time.Duration) { b.loginDelay.Store(int64(d)) }

// OverrideProfile 登录响应中的 user 对象改为指定内容
func (b *Backend) OverrideProfile(u *auth.User) { b.profileUser.Store(u) }

// RefreshCalls 刷新接口调用次数
func (b *Backend) RefreshCalls() int { return int(b.refreshCalls.Load()) }

// LoginCalls 登录接口调用次数
func (b *Backend) LoginCalls() int { return int(b.loginCalls.Load()) }

// IssueAccess 直接为账号签发访问令牌
func (b *Backend) IssueAccess(username string) string {
	a, ok := b.Account(username)
	if !ok {
		panic("backendtest: unknown account " + username)
	}
	token, err := b.Signer.Issue(*claimsOf(&a), "access")
	if err != nil {
		panic(err)
	}
	b.mu.Lock()
	b.valid[token] = true
	b.mu.Unlock()
	return token
}

// IssueRefresh 直接为账号签发刷新令牌
func (b *Backend) IssueRefresh(username string) string {
	a, ok := b.Account(username)
	if !ok {
		panic("backendtest: unknown account " + username)
	}
	token, err := b.refresh.Issue(*claimsOf(&a), "refresh")
	if err != nil {
		panic(err)
	}
	return token
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (b *Backend) issue(c *fiber.Ctx) error {
	b.loginCalls.Add(1)
	if d := time.Duration(b.loginDelay.Load()); d > 0 {
		time.Sleep(d)
	}
	var in credentials
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": "malformed request"})
	}

	a, ok := b.Account(in.Username)
	if !ok || a.Password != in.Password || a.Inactive {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"detail": "No active account found with the given credentials",
		})
	}

	access := b.IssueAccess(a.Username)
	refresh := b.IssueRefresh(a.Username)

	profile := auth.UserFromClaims(claimsOf(&a))
	if p := b.profileUser.Load(); p != nil {
		profile = p
	}
	return c.JSON(fiber.Map{"access": access, "refresh": refresh, "user": profile})
}

func (b *Backend) refreshToken(c *fiber.Ctx) error {
	b.refreshCalls.Add(1)
	if d := time.Duration(b.refreshDelay.Load()); d > 0 {
		time.Sleep(d)
	}
	if b.refreshFails.Load() {
		return tokenNotValid(c)
	}

	var in struct {
		Refresh string `json:"refresh"`
	}
	if err := c.BodyParser(&in); err != nil || in.Refresh == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"refresh": []string{"This field is required."}})
	}

	claims, err := b.refresh.Verify(in.Refresh)
	if err != nil || claims.TokenType != "refresh" {
		return tokenNotValid(c)
	}
	if _, ok := b.Account(claims.Username); !ok {
		return tokenNotValid(c)
	}
	return c.JSON(fiber.Map{"access": b.IssueAccess(claims.Username)})
}

type registration struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	Phone     string `json:"phone"`
}

func (b *Backend) register(c *fiber.Ctx) error {
	var in registration
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": "malformed request"})
	}

	fields := fiber.Map{}
	if in.Username == "" {
		fields["username"] = []string{"This field may not be blank."}
	} else if _, exists := b.Account(in.Username); exists {
		fields["username"] = []string{"A user with that username already exists."}
	}
	if len(in.Password) < 8 {
		fields["password"] = []string{"This password is too short. It must contain at least 8 characters."}
	} else if in.Password != in.Password2 {
		fields["password"] = []string{"Password fields didn't match."}
	}
	if len(fields) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fields)
	}

	b.AddAccount(Account{
		Username:  in.Username,
		Password:  in.Password,
		Role:      in.Role,
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Inactive:  true,
	})
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"username": in.Username,
		"email":    in.Email,
		"role":     in.Role,
	})
}

func (b *Backend) module(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	token := strings.TrimPrefix(header, "Bearer ")
	if header == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"detail": "Authentication credentials were not provided.",
		})
	}

	b.mu.Lock()
	ok := b.valid[token]
	b.mu.Unlock()
	if !ok {
		return tokenNotValid(c)
	}

	claims, err := b.Signer.Verify(token)
	if err != nil {
		return tokenNotValid(c)
	}
	return c.JSON(fiber.Map{
		"endpoint": strings.TrimPrefix(c.Path(), "/api/"),
		"method":   c.Method(),
		"user":     claims.Username,
		"results":  []any{},
	})
}

func tokenNotValid(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"detail": "Given token not valid for any token type",
		"code":   "token_not_valid",
	})
}

func claimsOf(a *Account) *auth.Claims {
	return &auth.Claims{
		UserID:    auth.UserID(a.ID),
		Username:  a.Username,
		Role:      a.Role,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
	}
}
