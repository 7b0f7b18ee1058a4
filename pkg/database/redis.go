package database

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/unibrain/erpconsole/pkg/config"
)

// Redis Redis连接，内存模式下持有 miniredis 实例
type Redis struct {
	Client *redis.Client
	mini   *miniredis.Miniredis
}

// OpenRedis 打开Redis连接
func OpenRedis(cfg *config.RedisConfig) (*Redis, error) {
	if cfg.Mode == "memory" {
		// 使用内存模式（miniredis）
		mini, err := miniredis.Run()
		if err != nil {
			return nil, err
		}
		return &Redis{
			Client: redis.NewClient(&redis.Options{Addr: mini.Addr()}),
			mini:   mini,
		}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{Client: client}, nil
}

// Close 关闭Redis连接
func (r *Redis) Close() error {
	if r == nil {
		return nil
	}
	err := r.Client.Close()
	if r.mini != nil {
		r.mini.Close()
	}
	return err
}
