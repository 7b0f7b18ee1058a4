package lifecycle

import "sync"

// ServiceContext 服务上下文，在钩子之间共享组件
// 通过构造函数创建，显式传入，不使用全局单例
type ServiceContext struct {
	service *Service
	mu      sync.RWMutex
	values  map[string]any
}

// newServiceContext 创建服务上下文（内部使用）
func newServiceContext(svc *Service) *ServiceContext {
	return &ServiceContext{service: svc, values: make(map[string]any)}
}

// Service 获取服务实例
func (sc *ServiceContext) Service() *Service {
	return sc.service
}

// Lifecycle 获取生命周期管理器
func (sc *ServiceContext) Lifecycle() *Manager {
	if sc.service == nil {
		return nil
	}
	return sc.service.Lifecycle()
}

// Set 保存共享组件
func (sc *ServiceContext) Set(key string, value any) {
	sc.mu.Lock()
	sc.values[key] = value
	sc.mu.Unlock()
}

// Get 读取共享组件
func (sc *ServiceContext) Get(key string) (any, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	v, ok := sc.values[key]
	return v, ok
}

// Value 按类型读取共享组件
func Value[T any](sc *ServiceContext, key string) (T, bool) {
	var zero T
	v, ok := sc.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
