package tokenstore

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis 基于Redis的存储，多个进程可共享同一会话
type Redis struct {
	client     *redis.Client
	closer     io.Closer
	accessKey  string
	refreshKey string
	channel    string
	origin     string // 本进程写入标识
}

// NewRedis 创建Redis存储，closer 为空时关闭 client
func NewRedis(client *redis.Client, prefix string, closer io.Closer) *Redis {
	if closer == nil {
		closer = client
	}
	return &Redis{
		client:     client,
		closer:     closer,
		accessKey:  prefix + ":access",
		refreshKey: prefix + ":refresh",
		channel:    prefix + ":events",
		origin:     uuid.NewString(),
	}
}

func (r *Redis) Save(ctx context.Context, t Tokens) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.accessKey, t.Access, 0)
		pipe.Set(ctx, r.refreshKey, t.Refresh, 0)
		return nil
	})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, r.origin).Err()
}

func (r *Redis) Load(ctx context.Context) (Tokens, error) {
	vals, err := r.client.MGet(ctx, r.accessKey, r.refreshKey).Result()
	if err != nil {
		return Tokens{}, err
	}
	var t Tokens
	if s, ok := vals[0].(string); ok {
		t.Access = s
	}
	if s, ok := vals[1].(string); ok {
		t.Refresh = s
	}
	return t, nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.accessKey, r.refreshKey).Err(); err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, r.origin).Err()
}

// Watch 订阅变更频道，忽略本进程自己的写入
func (r *Redis) Watch(ctx context.Context, onChange func()) error {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload == r.origin {
					continue
				}
				onChange()
			}
		}
	}()
	return nil
}

func (r *Redis) Close() error {
	err := r.closer.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
