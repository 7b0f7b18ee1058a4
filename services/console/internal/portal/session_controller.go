package portal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/unibrain/erpconsole/pkg/response"
	"github.com/unibrain/erpconsole/pkg/router"
	"github.com/unibrain/erpconsole/services/console/internal/navigation"
)

type sessionController struct {
	router.BaseController
	p *Portal
}

func newSessionController(p *Portal) *sessionController {
	return &sessionController{BaseController: router.NewBaseController(p.log.Named("session")), p: p}
}

func (s *sessionController) Prefix() string { return "" }

func (s *sessionController) Routes(map[string]fiber.Handler) []router.Route {
	return []router.Route{
		{Method: fiber.MethodGet, Path: "/session", Handler: s.current},
		{Method: fiber.MethodPost, Path: "/session/refresh", Handler: s.refresh},
		{Method: fiber.MethodGet, Path: "/menu", Handler: s.menu},
		{Method: fiber.MethodGet, Path: "/health", Handler: s.health},
	}
}

func (s *sessionController) current(c *fiber.Ctx) error {
	return response.Success(c, s.p.sessions.Session())
}

// refresh 手动刷新访问令牌，刷新失败即退出登录
func (s *sessionController) refresh(c *fiber.Ctx) error {
	if !s.p.sessions.Authenticated() {
		return response.Unauthorized(c, "")
	}
	if err := s.p.sessions.Refresh(c.UserContext()); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, s.p.sessions.Session())
}

func (s *sessionController) menu(c *fiber.Ctx) error {
	return response.Success(c, navigation.Build(s.p.sessions.User(), s.p.evaluator, s.p.pages))
}

func (s *sessionController) health(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":  "healthy",
		"service": s.p.name,
		"session": s.p.sessions.State().String(),
		"time":    time.Now().Format(time.RFC3339),
	})
}
