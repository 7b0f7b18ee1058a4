package lifecycle

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/unibrain/erpconsole/pkg/logger"
	"go.uber.org/zap"
)

// Hook 生命周期钩子
type Hook func(*ServiceContext) error

// ServiceOptions 服务配置选项
type ServiceOptions struct {
	Name            string        // 服务名称
	Address         string        // 监听地址
	ShutdownTimeout time.Duration // 优雅关闭超时
}

// Service 服务包装器
type Service struct {
	opts      *ServiceOptions
	app       *fiber.App
	lifecycle *Manager
	ctx       *ServiceContext
	addr      net.Addr

	onStart []Hook
	onReady []Hook
	onStop  []Hook
}

// NewService 创建服务
func NewService(opts *ServiceOptions) *Service {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	s := &Service{
		opts:      opts,
		lifecycle: NewManager(opts.Name),
	}
	s.ctx = newServiceContext(s)
	return s
}

// SetApp 设置Fiber应用
func (s *Service) SetApp(app *fiber.App) {
	s.app = app
}

// App 获取Fiber应用
func (s *Service) App() *fiber.App {
	return s.app
}

// Lifecycle 获取生命周期管理器
func (s *Service) Lifecycle() *Manager {
	return s.lifecycle
}

// Context 获取服务上下文
func (s *Service) Context() *ServiceContext {
	return s.ctx
}

// Addr 实际监听地址，服务就绪后可用
func (s *Service) Addr() net.Addr {
	return s.addr
}

// OnStart 注册启动钩子
func (s *Service) OnStart(fn Hook) {
	s.onStart = append(s.onStart, fn)
}

// OnReady 注册就绪钩子
func (s *Service) OnReady(fn Hook) {
	s.onReady = append(s.onReady, fn)
}

// OnStop 注册停止钩子
func (s *Service) OnStop(fn Hook) {
	s.onStop = append(s.onStop, fn)
}

// RunContext 运行服务直到 ctx 结束
func (s *Service) RunContext(ctx context.Context) error {
	s.lifecycle.Emit(EventStarting, nil)

	for _, fn := range s.onStart {
		if err := fn(s.ctx); err != nil {
			return fmt.Errorf("start hook: %w", err)
		}
	}
	if s.app == nil {
		return fmt.Errorf("service %s has no app", s.opts.Name)
	}
	s.lifecycle.Emit(EventStarted, nil)

	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		s.runStopHooks()
		return fmt.Errorf("listen %s: %w", s.opts.Address, err)
	}
	s.addr = ln.Addr()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("服务启动",
			zap.String("service", s.opts.Name),
			zap.String("address", s.addr.String()),
		)
		if err := s.app.Listener(ln); err != nil {
			errCh <- err
		}
	}()

	for _, fn := range s.onReady {
		if err := fn(s.ctx); err != nil {
			_ = s.Shutdown()
			return fmt.Errorf("ready hook: %w", err)
		}
	}
	s.lifecycle.Emit(EventReady, s.addr.String())

	select {
	case <-ctx.Done():
		logger.Info("收到退出信号，正在关闭服务...")
	case err := <-errCh:
		_ = s.Shutdown()
		return fmt.Errorf("server error: %w", err)
	}

	return s.Shutdown()
}

// Shutdown 优雅关闭服务
func (s *Service) Shutdown() error {
	s.lifecycle.Emit(EventStopping, nil)

	s.runStopHooks()

	if s.app != nil {
		if err := s.app.ShutdownWithTimeout(s.opts.ShutdownTimeout); err != nil {
			logger.Error("关闭HTTP服务失败", zap.Error(err))
		}
	}

	s.lifecycle.Emit(EventStopped, nil)
	logger.Info("服务已关闭", zap.String("service", s.opts.Name))
	return nil
}

func (s *Service) runStopHooks() {
	for _, fn := range s.onStop {
		if err := fn(s.ctx); err != nil {
			logger.Error("停止钩子执行失败", zap.Error(err))
		}
	}
}
