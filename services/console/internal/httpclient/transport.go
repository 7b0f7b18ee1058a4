// Package httpclient talks to the ERP REST backend with the current access
// token attached and reacts to rejected credentials.
package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// maxInspectBody 检查401响应体时最多读取的字节数
const maxInspectBody = 1 << 20

// TokenSource 访问令牌来源
type TokenSource interface {
	AccessToken(ctx context.Context) string
}

// AuthFailureHandler 凭证被拒时的处理者
type AuthFailureHandler interface {
	HandleAuthFailure(ctx context.Context)
}

// AuthFailureFunc 函数适配器
type AuthFailureFunc func(ctx context.Context)

func (f AuthFailureFunc) HandleAuthFailure(ctx context.Context) { f(ctx) }

type anonymousKey struct{}

// Anonymous 标记请求不携带令牌，也不触发失效处理
func Anonymous(ctx context.Context) context.Context {
	return context.WithValue(ctx, anonymousKey{}, true)
}

func isAnonymous(ctx context.Context) bool {
	v, _ := ctx.Value(anonymousKey{}).(bool)
	return v
}

type rejectedKey struct{}

// RejectedToken 被后端拒绝的访问令牌，只在失效处理回调中可用
func RejectedToken(ctx context.Context) string {
	v, _ := ctx.Value(rejectedKey{}).(string)
	return v
}

// AuthTransport 注入 Bearer 令牌并拦截 401 响应
type AuthTransport struct {
	Base    http.RoundTripper
	Tokens  TokenSource
	Keyword string // 非空时只有响应体包含该词的401才视为令牌失效

	mu      sync.RWMutex
	handler AuthFailureHandler
}

// NewAuthTransport 创建传输层
func NewAuthTransport(base http.RoundTripper, tokens TokenSource, keyword string) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &AuthTransport{Base: base, Tokens: tokens, Keyword: keyword}
}

// SetAuthFailureHandler 设置失效处理者
func (t *AuthTransport) SetAuthFailureHandler(h AuthFailureHandler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

func (t *AuthTransport) failureHandler() AuthFailureHandler {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.handler
}

// RoundTrip 实现 http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	req = req.Clone(ctx)
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}

	anonymous := isAnonymous(ctx)
	var access string
	if !anonymous && t.Tokens != nil {
		access = t.Tokens.AccessToken(ctx)
		if access != "" {
			req.Header.Set("Authorization", "Bearer "+access)
		}
	}

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && access != "" && t.matchKeyword(resp) {
		if h := t.failureHandler(); h != nil {
			h.HandleAuthFailure(context.WithValue(ctx, rejectedKey{}, access))
		}
	}
	return resp, nil
}

// matchKeyword 检查响应体，读取后原样放回
func (t *AuthTransport) matchKeyword(resp *http.Response) bool {
	if t.Keyword == "" {
		return true
	}
	if resp.Body == nil {
		return false
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxInspectBody))
	rest := resp.Body
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(data), rest), rest}
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), strings.ToLower(t.Keyword))
}
