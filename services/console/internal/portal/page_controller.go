package portal

import (
	"github.com/gofiber/fiber/v2"
	"github.com/unibrain/erpconsole/pkg/errors"
	"github.com/unibrain/erpconsole/pkg/response"
	"github.com/unibrain/erpconsole/pkg/router"
	"github.com/unibrain/erpconsole/services/console/internal/guard"
	"github.com/unibrain/erpconsole/services/console/internal/httpclient"
	"github.com/unibrain/erpconsole/services/console/internal/pages"
	"go.uber.org/zap"
)

// PageView 页面响应
type PageView struct {
	Page pages.Page `json:"page"`
	User any        `json:"user"`
	Data any        `json:"data,omitempty"`
}

type pageController struct {
	router.BaseController
	p *Portal
}

func newPageController(p *Portal) *pageController {
	return &pageController{BaseController: router.NewBaseController(p.log.Named("pages")), p: p}
}

func (pc *pageController) Prefix() string { return "" }

// Routes 每个页面一条路由，守卫按页面要求逐请求判定
func (pc *pageController) Routes(map[string]fiber.Handler) []router.Route {
	routes := make([]router.Route, 0, len(pc.p.pages))
	for _, page := range pc.p.pages {
		routes = append(routes, router.Route{
			Method:      fiber.MethodGet,
			Path:        page.Path,
			Handler:     pc.view(page),
			Middlewares: []fiber.Handler{guard.Middleware(pc.p.users(), pc.p.evaluator, page.Requirement, pc.p.paths)},
		})
	}
	return routes
}

func (pc *pageController) view(page pages.Page) fiber.Handler {
	return func(c *fiber.Ctx) error {
		view := PageView{Page: page, User: guard.CurrentUser(c)}
		if page.Endpoint == "" {
			return response.Success(c, view)
		}

		var data any
		if err := pc.p.client.Get(c.UserContext(), page.Endpoint, &data); err != nil {
			pc.Log().Warn("load page data failed", zap.String("page", page.Name), zap.Error(err))
			var se *httpclient.StatusError
			if errors.As(err, &se) {
				return response.Abort(c, fiber.StatusBadGateway, se.Status, "backend request failed")
			}
			return response.Abort(c, fiber.StatusBadGateway, fiber.StatusBadGateway, "backend unavailable")
		}
		view.Data = data
		return response.Success(c, view)
	}
}
