// Package tokenstore persists the access/refresh token pair across restarts.
package tokenstore

import (
	"context"
	"fmt"
	"time"

	"github.com/unibrain/erpconsole/pkg/config"
	"github.com/unibrain/erpconsole/pkg/database"
	"github.com/unibrain/erpconsole/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ioTimeout 单次存储操作超时
const ioTimeout = 5 * time.Second

// Tokens 令牌对，任一为空即视为未登录
type Tokens struct {
	Access  string
	Refresh string
}

// Empty 是否没有可用令牌
func (t Tokens) Empty() bool {
	return t.Access == "" || t.Refresh == ""
}

// Backend 存储后端
type Backend interface {
	Save(ctx context.Context, t Tokens) error
	Load(ctx context.Context) (Tokens, error)
	Clear(ctx context.Context) error
	Close() error
}

// Watcher 支持跨进程变更通知的后端
// onChange 只在其他进程写入后触发
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

// Store 令牌存储
// 读取永不报错，后端故障时降级为“无会话”
type Store struct {
	backend Backend
	log     *zap.Logger
	db      *gorm.DB
}

// New 使用指定后端创建存储
func New(backend Backend, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{backend: backend, log: log}
}

// Open 按配置打开存储后端
func Open(cfg *config.Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	prefix := cfg.Storage.KeyPrefix
	if prefix == "" {
		prefix = "erpconsole"
	}

	switch cfg.Storage.Driver {
	case "memory":
		return New(NewMemory(), log), nil
	case "redis":
		rdb, err := database.OpenRedis(&cfg.Redis)
		if err != nil {
			return nil, errors.Wrap(fmt.Errorf("open redis: %w", err), errors.ErrStorage)
		}
		return New(NewRedis(rdb.Client, prefix, rdb), log), nil
	case "", "sqlite", "mysql", "postgres":
		dbCfg := cfg.Database
		if cfg.Storage.Driver != "" {
			dbCfg.Driver = cfg.Storage.Driver
		}
		db, err := database.Open(&dbCfg, log)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrStorage)
		}
		backend, err := NewSQL(db, prefix)
		if err != nil {
			_ = database.Close(db)
			return nil, errors.Wrap(err, errors.ErrStorage)
		}
		s := New(backend, log)
		s.db = db
		return s, nil
	default:
		return nil, errors.WithMessage(errors.ErrConfig, fmt.Sprintf("unsupported storage driver: %s", cfg.Storage.Driver), nil)
	}
}

// Save 覆盖保存令牌对
func (s *Store) Save(ctx context.Context, access, refresh string) error {
	ctx, cancel := context.WithTimeout(ctx, ioTimeout)
	defer cancel()
	if err := s.backend.Save(ctx, Tokens{Access: access, Refresh: refresh}); err != nil {
		s.log.Warn("保存令牌失败", zap.Error(err))
		return errors.Wrap(err, errors.ErrStorage)
	}
	return nil
}

// Read 读取令牌对，失败或不完整时返回空
func (s *Store) Read(ctx context.Context) Tokens {
	ctx, cancel := context.WithTimeout(ctx, ioTimeout)
	defer cancel()
	t, err := s.backend.Load(ctx)
	if err != nil {
		s.log.Warn("读取令牌失败，按未登录处理", zap.Error(err))
		return Tokens{}
	}
	if t.Empty() {
		return Tokens{}
	}
	return t
}

// Clear 删除令牌对
func (s *Store) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ioTimeout)
	defer cancel()
	if err := s.backend.Clear(ctx); err != nil {
		s.log.Warn("清除令牌失败", zap.Error(err))
		return errors.Wrap(err, errors.ErrStorage)
	}
	return nil
}

// Watch 订阅其他进程的写入；后端不支持时返回 false
func (s *Store) Watch(ctx context.Context, onChange func()) (bool, error) {
	w, ok := s.backend.(Watcher)
	if !ok {
		return false, nil
	}
	return true, w.Watch(ctx, onChange)
}

// DB SQL后端的数据库连接，其他后端返回 nil
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close 关闭后端
func (s *Store) Close() error {
	return s.backend.Close()
}

// AccessToken 当前访问令牌
func (s *Store) AccessToken(ctx context.Context) string {
	return s.Read(ctx).Access
}
