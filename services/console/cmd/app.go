package main

import (
	"context"
	"fmt"

	"github.com/unibrain/erpconsole/pkg/config"
	"github.com/unibrain/erpconsole/pkg/logger"
	"github.com/unibrain/erpconsole/services/console/internal/httpclient"
	"github.com/unibrain/erpconsole/services/console/internal/permission"
	"github.com/unibrain/erpconsole/services/console/internal/session"
	"github.com/unibrain/erpconsole/services/console/internal/tokenstore"
	"go.uber.org/zap"
)

// runtime 一次运行所需的全部组件
type runtime struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *tokenstore.Store
	client    *httpclient.Client
	evaluator *permission.Evaluator
	sessions  *session.Manager
}

// loadConfig 加载配置并初始化全局日志
func loadConfig(path, logLevel string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := logger.Init(&cfg.Log); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

// openRuntime 打开令牌存储、加载权限表并创建会话管理器
func openRuntime(cfg *config.Config) (*runtime, error) {
	log := logger.Get()

	store, err := tokenstore.Open(cfg, log.Named("tokenstore"))
	if err != nil {
		return nil, err
	}

	evaluator, err := permission.Load(&cfg.Permissions, store.DB())
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	client, err := httpclient.New(httpclient.Options{
		BaseURL: cfg.API.ResolveBaseURL(cfg.Server.HTTP.Host),
		Timeout: cfg.API.RequestTimeout(),
		Keyword: cfg.API.UnauthorizedKeyword,
		Tokens:  store,
		Logger:  log.Named("http"),
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	if cfg.IsProd() && cfg.Auth.DevBypass.Username != "" && session.BypassCompiled {
		log.Warn("离线开发账号在生产环境中已启用", zap.String("username", cfg.Auth.DevBypass.Username))
	}

	sessions := session.New(session.Options{
		Store:  store,
		Client: client,
		Auth:   cfg.Auth,
		API:    cfg.API,
		Logger: log.Named("session"),
	})
	sessions.OnChange(func(s session.Session) {
		username := ""
		if s.User != nil {
			username = s.User.Username
		}
		log.Debug("会话变化", zap.String("state", s.StateName), zap.String("username", username))
	})

	return &runtime{
		cfg:       cfg,
		log:       log,
		store:     store,
		client:    client,
		evaluator: evaluator,
		sessions:  sessions,
	}, nil
}

// start 从存储恢复会话
func (r *runtime) start(ctx context.Context) error {
	return r.sessions.Start(ctx)
}

// Close 停止定时刷新并关闭存储
func (r *runtime) Close() error {
	if err := r.sessions.Close(); err != nil {
		r.log.Warn("关闭会话管理器失败", zap.Error(err))
	}
	return r.store.Close()
}
