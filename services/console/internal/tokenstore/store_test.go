package tokenstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unibrain/erpconsole/pkg/config"
	"github.com/unibrain/erpconsole/pkg/database"
	apperrors "github.com/unibrain/erpconsole/pkg/errors"
	"go.uber.org/zap"
)

func newSQLBackend(t *testing.T, path string) *SQL {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{
		Driver:   "sqlite",
		Database: path,
		LogLevel: "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	b, err := NewSQL(db, "test")
	require.NoError(t, err)
	return b
}

func newRedisBackend(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedis(client, "test", nil), mr
}

func backends(t *testing.T) map[string]Backend {
	rb, _ := newRedisBackend(t)
	return map[string]Backend{
		"memory": NewMemory(),
		"sqlite": newSQLBackend(t, filepath.Join(t.TempDir(), "tokens.db")),
		"redis":  rb,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := New(b, nil)
			defer s.Close()

			assert.Equal(t, Tokens{}, s.Read(ctx))

			require.NoError(t, s.Save(ctx, "a1", "r1"))
			assert.Equal(t, Tokens{Access: "a1", Refresh: "r1"}, s.Read(ctx))

			// 覆盖写入
			require.NoError(t, s.Save(ctx, "a2", "r2"))
			assert.Equal(t, Tokens{Access: "a2", Refresh: "r2"}, s.Read(ctx))

			require.NoError(t, s.Clear(ctx))
			assert.Equal(t, Tokens{}, s.Read(ctx))

			// 重复清除无副作用
			require.NoError(t, s.Clear(ctx))
		})
	}
}

func TestStoreHalfPairReadsEmpty(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemory(), nil)
	require.NoError(t, s.Save(ctx, "a1", ""))
	assert.Equal(t, Tokens{}, s.Read(ctx))
}

func TestSQLPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.db")

	first := New(newSQLBackend(t, path), nil)
	require.NoError(t, first.Save(ctx, "a1", "r1"))
	require.NoError(t, first.Close())

	second := New(newSQLBackend(t, path), nil)
	defer second.Close()
	assert.Equal(t, Tokens{Access: "a1", Refresh: "r1"}, second.Read(ctx))
}

func TestSQLTableLayout(t *testing.T) {
	b := newSQLBackend(t, filepath.Join(t.TempDir(), "tokens.db"))

	m := b.db.Migrator()
	assert.True(t, m.HasTable("client_token"))
	assert.False(t, m.HasTable("client_tokens"))
	for _, col := range []string{"name", "value", "updated_at"} {
		assert.True(t, m.HasColumn(&ClientToken{}, col), col)
	}
}

type brokenBackend struct{ Memory }

var errBroken = errors.New("disk on fire")

func (*brokenBackend) Save(context.Context, Tokens) error    { return errBroken }
func (*brokenBackend) Load(context.Context) (Tokens, error) { return Tokens{}, errBroken }
func (*brokenBackend) Clear(context.Context) error          { return errBroken }

func TestStoreDegradesOnBackendFailure(t *testing.T) {
	ctx := context.Background()
	s := New(&brokenBackend{}, zap.NewNop())

	assert.Equal(t, Tokens{}, s.Read(ctx))

	err := s.Save(ctx, "a", "r")
	assert.True(t, apperrors.Is(err, apperrors.ErrStorage))
	assert.ErrorIs(t, err, errBroken)

	assert.True(t, apperrors.Is(s.Clear(ctx), apperrors.ErrStorage))
}

func TestRedisUnavailableReadsEmpty(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	s := New(NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), "test", nil), nil)
	require.NoError(t, s.Save(ctx, "a1", "r1"))

	mr.Close()
	assert.Equal(t, Tokens{}, s.Read(ctx))
}

func TestRedisWatchIgnoresOwnWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mr := miniredis.RunT(t)
	mine := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test", nil)
	other := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test", nil)
	defer mine.Close()
	defer other.Close()

	changed := make(chan struct{}, 4)
	supported, err := New(mine, nil).Watch(ctx, func() { changed <- struct{}{} })
	require.NoError(t, err)
	require.True(t, supported)

	require.NoError(t, mine.Save(ctx, Tokens{Access: "a1", Refresh: "r1"}))
	select {
	case <-changed:
		t.Fatal("own write must not notify")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, other.Clear(ctx))
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected change notification from other process")
	}
}

func TestWatchUnsupported(t *testing.T) {
	supported, err := New(NewMemory(), nil).Watch(context.Background(), func() {})
	require.NoError(t, err)
	assert.False(t, supported)
}

func TestOpenByDriver(t *testing.T) {
	ctx := context.Background()

	cfg := &config.Config{
		Storage:  config.StorageConfig{Driver: "sqlite", KeyPrefix: "erp"},
		Database: config.DatabaseConfig{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "erp.db"), LogLevel: "silent"},
	}
	s, err := Open(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, s.DB())
	require.NoError(t, s.Save(ctx, "a", "r"))
	assert.Equal(t, Tokens{Access: "a", Refresh: "r"}, s.Read(ctx))
	require.NoError(t, s.Close())

	cfg = &config.Config{
		Storage: config.StorageConfig{Driver: "redis"},
		Redis:   config.RedisConfig{Mode: "memory"},
	}
	s, err = Open(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, s.DB())
	require.NoError(t, s.Save(ctx, "a", "r"))
	assert.Equal(t, "a", s.Read(ctx).Access)
	require.NoError(t, s.Close())

	_, err = Open(&config.Config{Storage: config.StorageConfig{Driver: "etcd"}}, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfig))
}
