// Package portal serves the ERP sections over HTTP behind the same guards
// the browser client applied, and proxies /api to the backend.
package portal

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/unibrain/erpconsole/pkg/middleware"
	"github.com/unibrain/erpconsole/pkg/router"
	"github.com/unibrain/erpconsole/services/console/internal/guard"
	"github.com/unibrain/erpconsole/services/console/internal/httpclient"
	"github.com/unibrain/erpconsole/services/console/internal/navigation"
	"github.com/unibrain/erpconsole/services/console/internal/pages"
	"github.com/unibrain/erpconsole/services/console/internal/permission"
	"github.com/unibrain/erpconsole/services/console/internal/session"
	"go.uber.org/zap"
)

// HeaderRedirect 接口请求无法跳转时，用该响应头告知调用方目标路径
const HeaderRedirect = "X-Redirect"

// Options 门户选项
type Options struct {
	Name      string
	Sessions  *session.Manager
	Client    *httpclient.Client
	Evaluator *permission.Evaluator
	Paths     guard.Paths
	Pages     []pages.Page
	Logger    *zap.Logger
}

// Portal 本地门户
type Portal struct {
	name      string
	sessions  *session.Manager
	client    *httpclient.Client
	evaluator *permission.Evaluator
	paths     guard.Paths
	pages     []pages.Page
	log       *zap.Logger
}

// New 创建门户
func New(opts Options) *Portal {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	paths := opts.Paths
	if paths.Login == "" {
		paths.Login = guard.DefaultPaths.Login
	}
	if paths.Unauthorized == "" {
		paths.Unauthorized = guard.DefaultPaths.Unauthorized
	}
	all := opts.Pages
	if all == nil {
		all = pages.All
	}
	name := opts.Name
	if name == "" {
		name = "erpconsole"
	}
	return &Portal{
		name:      name,
		sessions:  opts.Sessions,
		client:    opts.Client,
		evaluator: opts.Evaluator,
		paths:     paths,
		pages:     all,
		log:       log,
	}
}

// AppConfig 门户使用的 Fiber 配置
func AppConfig(name string, readTimeout, writeTimeout time.Duration) fiber.Config {
	return fiber.Config{
		AppName:               name,
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
		ErrorHandler:          middleware.ErrorHandler,
		DisableStartupMessage: true,
	}
}

// Mount 注册中间件与全部控制器
func (p *Portal) Mount(app *fiber.App) {
	app.Use(middleware.Recovery())
	app.Use(middleware.RequestID())
	app.Use(middleware.AccessLog(p.log))
	app.Use(p.trackNavigation)

	router.Register(app, nil,
		newAuthController(p),
		newSessionController(p),
		newPageController(p),
		newProxyController(p),
	)
}

// trackNavigation 为每个请求放入 Navigator，处理完成后执行拦截器记录的跳转
func (p *Portal) trackNavigation(c *fiber.Ctx) error {
	tracker := navigation.NewTracker(c.Path())
	c.SetUserContext(navigation.WithNavigator(c.UserContext(), tracker))

	if err := c.Next(); err != nil {
		return err
	}

	target, ok := tracker.Pending()
	if !ok {
		return nil
	}
	if isAPIPath(c.Path()) {
		c.Set(HeaderRedirect, target)
		return nil
	}
	p.log.Debug("navigation redirect", zap.String("from", c.Path()), zap.String("to", target))
	return c.Redirect(target, fiber.StatusFound)
}

// users 供守卫读取当前会话用户
func (p *Portal) users() guard.UserSource {
	return p.sessions
}

func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}
