package lifecycle

import (
	"sync"
	"time"
)

// Event 生命周期事件类型
type Event string

const (
	EventStarting Event = "starting" // 服务启动中
	EventStarted  Event = "started"  // 启动钩子已完成
	EventReady    Event = "ready"    // 服务就绪（可接收请求）
	EventStopping Event = "stopping" // 服务停止中
	EventStopped  Event = "stopped"  // 服务已停止
)

// Message 生命周期消息
type Message struct {
	Service   string    `json:"service"`
	Event     Event     `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  any       `json:"metadata,omitempty"`
}

// Handler 生命周期事件处理器
type Handler func(msg *Message)

// Manager 进程内生命周期事件分发
type Manager struct {
	service     string
	mu          sync.RWMutex
	handlers    map[Event][]Handler
	allHandlers []Handler
	last        Event
}

// NewManager 创建生命周期管理器
func NewManager(service string) *Manager {
	return &Manager{
		service:  service,
		handlers: make(map[Event][]Handler),
	}
}

// OnEvent 监听特定生命周期事件
func (m *Manager) OnEvent(event Event, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], handler)
}

// OnAnyEvent 监听所有生命周期事件
func (m *Manager) OnAnyEvent(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allHandlers = append(m.allHandlers, handler)
}

// Emit 发布生命周期事件，处理器按注册顺序同步执行
func (m *Manager) Emit(event Event, metadata any) {
	msg := &Message{
		Service:   m.service,
		Event:     event,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}

	m.mu.Lock()
	m.last = event
	handlers := append([]Handler(nil), m.handlers[event]...)
	handlers = append(handlers, m.allHandlers...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

// Current 最近一次发布的事件
func (m *Manager) Current() Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}
