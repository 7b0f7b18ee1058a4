package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// StatusError 非2xx响应
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("backend responded %d: %s", e.Status, body)
}

// Client 后端JSON客户端
type Client struct {
	base      *url.URL
	http      *http.Client
	transport *AuthTransport
	log       *zap.Logger
}

// Options 客户端选项
type Options struct {
	BaseURL string
	Timeout time.Duration
	Keyword string
	Tokens  TokenSource
	Base    http.RoundTripper // 为空时使用 http.DefaultTransport
	Logger  *zap.Logger
}

// New 创建客户端
func New(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", opts.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	transport := NewAuthTransport(opts.Base, opts.Tokens, opts.Keyword)
	return &Client{
		base:      base,
		http:      &http.Client{Transport: transport, Timeout: opts.Timeout},
		transport: transport,
		log:       opts.Logger,
	}, nil
}

// BaseURL 后端基础地址
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Transport 带令牌注入的传输层，供反向代理复用
func (c *Client) Transport() *AuthTransport {
	return c.transport
}

// SetAuthFailureHandler 设置令牌失效处理者
func (c *Client) SetAuthFailureHandler(h AuthFailureHandler) {
	c.transport.SetAuthFailureHandler(h)
}

// Resolve 拼接后端地址，path 可带查询参数
func (c *Client) Resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, err
	}
	return c.base.ResolveReference(ref), nil
}

// Do 发送JSON请求，in 为空时不带请求体，out 为空时丢弃响应体
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	target, err := c.Resolve(path)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", path, err)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("后端请求失败", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Debug("后端返回错误",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return &StatusError{Status: resp.StatusCode, Body: data}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Get GET请求
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post POST请求
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}
