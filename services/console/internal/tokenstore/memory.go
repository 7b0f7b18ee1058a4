package tokenstore

import (
	"context"
	"sync"
)

// Memory 进程内存储，重启后丢失
type Memory struct {
	mu     sync.RWMutex
	tokens Tokens
}

// NewMemory 创建内存存储
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Save(_ context.Context, t Tokens) error {
	m.mu.Lock()
	m.tokens = t
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(_ context.Context) (Tokens, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.tokens = Tokens{}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
