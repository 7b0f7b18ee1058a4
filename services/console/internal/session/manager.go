// Package session owns the login state of the console: it is the only
// writer of the token store and keeps the access token fresh.
package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/unibrain/erpconsole/pkg/auth"
	"github.com/unibrain/erpconsole/pkg/config"
	"github.com/unibrain/erpconsole/pkg/errors"
	"github.com/unibrain/erpconsole/services/console/internal/httpclient"
	"github.com/unibrain/erpconsole/services/console/internal/navigation"
	"github.com/unibrain/erpconsole/services/console/internal/tokenstore"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// State 会话状态
type State int

const (
	Anonymous State = iota
	Authenticated
	Refreshing
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Session 会话快照
type Session struct {
	User      *auth.User `json:"user"`
	State     State      `json:"-"`
	StateName string     `json:"state"`
	Bypass    bool       `json:"bypass,omitempty"`
	ExpiresAt time.Time  `json:"expires_at,omitempty"`
}

// Options 会话管理器选项
type Options struct {
	Store  *tokenstore.Store
	Client *httpclient.Client
	Auth   config.AuthConfig
	API    config.APIConfig
	Logger *zap.Logger

	// RetryBackoff 刷新重试的基础间隔，第 n 次重试等待 n 倍
	RetryBackoff time.Duration
	// Now 测试用时钟
	Now func() time.Time
}

// Manager 会话管理器
type Manager struct {
	store  *tokenstore.Store
	client *httpclient.Client
	log    *zap.Logger
	now    func() time.Time

	loginPath    string
	tokenPath    string
	refreshPath  string
	registerPath string
	interval     time.Duration
	retries      int
	backoff      time.Duration
	bypassCfg    config.DevBypassConfig

	cron  *cron.Cron
	group singleflight.Group

	mu        sync.Mutex
	epoch     uint64
	state     State
	user      *auth.User
	expiresAt time.Time
	bypass    bool
	entry     cron.EntryID
	listeners []func(Session)
	started   bool
	closed    bool
	stopWatch context.CancelFunc
}

// New 创建会话管理器，并接管客户端的令牌失效处理
func New(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	loginPath := opts.Auth.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}

	m := &Manager{
		store:        opts.Store,
		client:       opts.Client,
		log:          log,
		now:          now,
		loginPath:    loginPath,
		tokenPath:    orDefault(opts.API.TokenPath, "token/"),
		refreshPath:  orDefault(opts.API.RefreshPath, "token/refresh/"),
		registerPath: orDefault(opts.API.RegisterPath, "accounts/register/"),
		interval:     opts.Auth.RefreshEvery(),
		retries:      opts.Auth.RefreshRetries,
		backoff:      backoff,
		bypassCfg:    opts.Auth.DevBypass,
		cron:         cron.New(cron.WithLogger(cronLogger{log.Sugar()})),
	}
	opts.Client.SetAuthFailureHandler(m)
	return m
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Start 从令牌存储恢复会话并启动定时刷新
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	m.cron.Start()

	expired := m.restore(ctx)
	if expired {
		m.log.Info("访问令牌已过期，立即刷新")
		if err := m.Refresh(ctx); err != nil {
			m.log.Warn("恢复会话时刷新失败", zap.Error(err))
		}
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	supported, err := m.store.Watch(watchCtx, m.resync)
	if err != nil || !supported {
		cancel()
		if err != nil {
			m.log.Warn("订阅令牌变更失败，跨进程会话不会同步", zap.Error(err))
		}
		return nil
	}
	m.mu.Lock()
	m.stopWatch = cancel
	m.mu.Unlock()
	return nil
}

// restore 按存储内容重建会话，返回访问令牌是否已过期
func (m *Manager) restore(ctx context.Context) bool {
	m.mu.Lock()
	m.epoch++
	tokens := m.store.Read(ctx)
	if tokens.Empty() {
		changed := m.user != nil
		m.resetLocked()
		snap := m.snapshotLocked()
		m.mu.Unlock()
		if changed {
			m.notify(snap)
		}
		return false
	}

	claims, err := auth.Decode(tokens.Access)
	if err != nil {
		m.log.Warn("存储的令牌无法解析，已清除", zap.Error(err))
		if err := m.store.Clear(ctx); err != nil {
			m.log.Warn("清除令牌失败", zap.Error(err))
		}
		m.resetLocked()
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(snap)
		return false
	}

	user := auth.UserFromClaims(claims)
	if m.user != nil {
		user.MergeProfile(m.user)
	}
	m.setUserLocked(user, claims, isBypassToken(claims))
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
	return !snap.Bypass && claims.Expired(m.now())
}

// resync 其他进程修改了令牌存储
func (m *Manager) resync() {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}
	m.log.Debug("令牌存储被其他进程修改，重新同步会话")
	m.restore(context.Background())
}

// Login 使用用户名密码登录
func (m *Manager) Login(ctx context.Context, username, password string) (*auth.User, error) {
	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	m.mu.Unlock()

	if tokens, ok := m.bypassLogin(username, password); ok {
		m.log.Warn("使用离线开发账号登录", zap.String("username", username))
		return m.commitLogin(ctx, epoch, tokens, nil)
	}

	var resp tokenResponse
	err := m.client.Post(httpclient.Anonymous(ctx), m.tokenPath, credentials{Username: username, Password: password}, &resp)
	if err != nil {
		m.failLogin(ctx, epoch)
		m.log.Info("登录失败", zap.String("username", username), zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrInvalidCredentials)
	}
	if resp.Access == "" || resp.Refresh == "" {
		m.failLogin(ctx, epoch)
		return nil, errors.Wrap(fmt.Errorf("token response missing access or refresh"), errors.ErrInvalidCredentials)
	}

	var profile *auth.User
	if resp.User != nil {
		profile = resp.User.user()
	}
	return m.commitLogin(ctx, epoch, tokenstore.Tokens{Access: resp.Access, Refresh: resp.Refresh}, profile)
}

// commitLogin 写入登录结果，期间有其他会话操作时放弃
func (m *Manager) commitLogin(ctx context.Context, epoch uint64, tokens tokenstore.Tokens, profile *auth.User) (*auth.User, error) {
	claims, err := auth.Decode(tokens.Access)
	if err != nil {
		m.failLogin(ctx, epoch)
		return nil, errors.Wrap(err, errors.ErrInvalidCredentials)
	}
	user := auth.UserFromClaims(claims)
	user.MergeProfile(profile)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return nil, errors.ErrSessionSuperseded
	}
	// 登录期间发出的刷新携带的是旧令牌
	m.epoch++
	if err := m.store.Save(ctx, tokens.Access, tokens.Refresh); err != nil {
		m.resetLocked()
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(snap)
		return nil, err
	}
	m.setUserLocked(user, claims, isBypassToken(claims))
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Info("登录成功", zap.String("username", user.Username), zap.String("role", user.Role))
	m.notify(snap)
	return cloneUser(user), nil
}

// failLogin 登录失败回到未登录状态
func (m *Manager) failLogin(ctx context.Context, epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	changed := m.user != nil
	if err := m.store.Clear(ctx); err != nil {
		m.log.Warn("清除令牌失败", zap.Error(err))
	}
	m.resetLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()
	if changed {
		m.notify(snap)
	}
}

// Logout 退出登录，可重复调用
func (m *Manager) Logout() {
	m.mu.Lock()
	m.epoch++
	m.logoutLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(snap)
}

func (m *Manager) logoutLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.Clear(ctx); err != nil {
		m.log.Warn("清除令牌失败", zap.Error(err))
	}
	if m.user != nil {
		m.log.Info("已退出登录", zap.String("username", m.user.Username))
	}
	m.resetLocked()
}

// HandleAuthFailure 后端拒绝了当前令牌
func (m *Manager) HandleAuthFailure(ctx context.Context) {
	if rejected := httpclient.RejectedToken(ctx); rejected != "" {
		if current := m.store.AccessToken(ctx); current != "" && current != rejected {
			// 被拒的是旧令牌，当前会话已更新
			return
		}
	}

	m.log.Warn("后端拒绝访问令牌，结束会话")
	m.Logout()

	if nav := navigation.FromContext(ctx); nav != nil && nav.Location() != m.loginPath {
		nav.Redirect(m.loginPath)
	}
}

// Refresh 刷新访问令牌，没有刷新令牌时不做任何事
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.bypass {
		m.mu.Unlock()
		return nil
	}
	epoch := m.epoch
	m.mu.Unlock()

	tokens := m.store.Read(ctx)
	if tokens.Refresh == "" {
		return nil
	}

	_, err, _ := m.group.Do(fmt.Sprintf("refresh:%d", epoch), func() (any, error) {
		// 合并后的调用方共享结果，不受首个调用方取消影响
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.interval)
		defer cancel()
		return nil, m.refresh(sctx, epoch, tokens.Refresh)
	})
	return err
}

func (m *Manager) refresh(ctx context.Context, epoch uint64, refreshToken string) error {
	m.mu.Lock()
	if m.epoch == epoch && m.user != nil {
		m.state = Refreshing
	}
	m.mu.Unlock()

	resp, err := m.requestRefresh(ctx, refreshToken)
	var claims *auth.Claims
	if err == nil {
		claims, err = auth.Decode(resp.Access)
	}
	if err != nil {
		m.log.Warn("令牌刷新失败，结束会话", zap.Error(err))
		m.mu.Lock()
		if !m.currentLocked(ctx, epoch, refreshToken) {
			m.mu.Unlock()
			return errors.Wrap(err, errors.ErrRefreshFailure)
		}
		m.epoch++
		m.logoutLocked()
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(snap)
		return errors.Wrap(err, errors.ErrRefreshFailure)
	}

	newRefresh := refreshToken
	if resp.Refresh != "" {
		newRefresh = resp.Refresh
	}

	m.mu.Lock()
	if !m.currentLocked(ctx, epoch, refreshToken) {
		m.mu.Unlock()
		return errors.ErrSessionSuperseded
	}
	if err := m.store.Save(ctx, resp.Access, newRefresh); err != nil {
		if m.user != nil {
			m.state = Authenticated
		}
		m.mu.Unlock()
		return err
	}
	user := auth.UserFromClaims(claims)
	if m.user != nil {
		user.MergeProfile(m.user)
	}
	m.setUserLocked(user, claims, false)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Debug("访问令牌已刷新", zap.Time("expires_at", snap.ExpiresAt))
	m.notify(snap)
	return nil
}

// currentLocked 刷新结果是否仍属于当前会话
func (m *Manager) currentLocked(ctx context.Context, epoch uint64, refreshToken string) bool {
	return m.epoch == epoch && m.store.Read(ctx).Refresh == refreshToken
}

// requestRefresh 调用刷新接口，只对网络错误按配置重试
func (m *Manager) requestRefresh(ctx context.Context, refreshToken string) (*refreshResponse, error) {
	for attempt := 0; ; attempt++ {
		var resp refreshResponse
		err := m.client.Post(httpclient.Anonymous(ctx), m.refreshPath, refreshRequest{Refresh: refreshToken}, &resp)
		if err == nil {
			if resp.Access == "" {
				return nil, fmt.Errorf("refresh response has no access token")
			}
			return &resp, nil
		}

		var se *httpclient.StatusError
		if errors.As(err, &se) || attempt >= m.retries || ctx.Err() != nil {
			return nil, err
		}

		wait := time.Duration(attempt+1) * m.backoff
		m.log.Info("刷新请求失败，稍后重试", zap.Int("attempt", attempt+1), zap.Duration("wait", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// tick 定时刷新
func (m *Manager) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()
	if err := m.Refresh(ctx); err != nil && !errors.Is(err, errors.ErrSessionSuperseded) {
		m.log.Warn("定时刷新失败", zap.Error(err))
	}
}

func (m *Manager) setUserLocked(user *auth.User, claims *auth.Claims, bypass bool) {
	m.user = user
	m.state = Authenticated
	m.bypass = bypass
	m.expiresAt = time.Time{}
	if claims.ExpiresAt != nil {
		m.expiresAt = claims.ExpiresAt.Time
	}
	if bypass {
		m.unscheduleLocked()
	} else {
		m.scheduleLocked()
	}
}

func (m *Manager) resetLocked() {
	m.user = nil
	m.state = Anonymous
	m.bypass = false
	m.expiresAt = time.Time{}
	m.unscheduleLocked()
}

func (m *Manager) scheduleLocked() {
	if m.entry != 0 || m.closed {
		return
	}
	m.entry = m.cron.Schedule(cron.Every(m.interval), cron.FuncJob(m.tick))
}

func (m *Manager) unscheduleLocked() {
	if m.entry == 0 {
		return
	}
	m.cron.Remove(m.entry)
	m.entry = 0
}

// Scheduled 定时刷新是否在运行
func (m *Manager) Scheduled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entry != 0
}

// User 当前用户，未登录返回 nil
func (m *Manager) User() *auth.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneUser(m.user)
}

// State 当前状态
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Authenticated 是否已登录
func (m *Manager) Authenticated() bool {
	return m.User() != nil
}

// Session 当前会话快照
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Session {
	return Session{
		User:      cloneUser(m.user),
		State:     m.state,
		StateName: m.state.String(),
		Bypass:    m.bypass,
		ExpiresAt: m.expiresAt,
	}
}

// OnChange 注册会话变化监听
func (m *Manager) OnChange(fn func(Session)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *Manager) notify(s Session) {
	m.mu.Lock()
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}

// Close 停止定时刷新与存储订阅，返回后不会再有刷新发生
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.unscheduleLocked()
	stopWatch := m.stopWatch
	m.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}
	<-m.cron.Stop().Done()
	return nil
}

func cloneUser(u *auth.User) *auth.User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

// cronLogger 将 cron 日志接入 zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
