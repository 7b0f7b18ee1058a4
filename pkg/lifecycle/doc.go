// Package lifecycle 提供服务启动、就绪与优雅关闭的生命周期管理
//
// # 核心功能
//
// 1. 生命周期事件 (Manager)
//   - 发布自身服务的生命周期状态
//   - 支持的事件: starting, started, ready, stopping, stopped
//
// 2. 服务包装器 (Service / Builder)
//   - 统一的 OnStart / OnReady / OnStop 钩子
//   - 钩子之间通过 ServiceContext 共享组件
//   - ctx 结束后优雅关闭
//
// # 使用示例
//
//	svc := lifecycle.NewBuilder("erpconsole").
//		WithAddress("127.0.0.1:5173").
//		WithApp(app).
//		OnStart(func(sc *lifecycle.ServiceContext) error {
//			// 打开令牌存储、创建会话管理器
//			return nil
//		}).
//		OnStop(func(sc *lifecycle.ServiceContext) error {
//			// 停止定时刷新
//			return nil
//		}).
//		Build()
//	err := svc.RunContext(ctx)
package lifecycle
