// Package navigation carries per-request redirect intent and builds the
// permission-aware menu.
package navigation

import (
	"context"
	"sync"
)

// Navigator 当前请求的导航能力
type Navigator interface {
	// Location 当前所在路径
	Location() string
	// Redirect 请求跳转到 path
	Redirect(path string)
}

// Tracker 记录一次请求内的跳转意图，只保留第一次跳转
type Tracker struct {
	mu       sync.Mutex
	location string
	target   string
}

// NewTracker 创建跟踪器，location 为当前路径
func NewTracker(location string) *Tracker {
	return &Tracker{location: location}
}

// Location 实现 Navigator
func (t *Tracker) Location() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.location
}

// Redirect 实现 Navigator，已有跳转或目标为当前路径时忽略
func (t *Tracker) Redirect(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.target != "" || path == t.location {
		return
	}
	t.target = path
}

// Pending 待执行的跳转目标
func (t *Tracker) Pending() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target, t.target != ""
}

type ctxKey struct{}

// WithNavigator 将 Navigator 放入上下文
func WithNavigator(ctx context.Context, nav Navigator) context.Context {
	return context.WithValue(ctx, ctxKey{}, nav)
}

// FromContext 获取上下文中的 Navigator，不存在时返回 nil
func FromContext(ctx context.Context) Navigator {
	if ctx == nil {
		return nil
	}
	nav, _ := ctx.Value(ctxKey{}).(Navigator)
	return nav
}
