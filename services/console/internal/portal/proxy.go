package portal

import (
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/unibrain/erpconsole/pkg/response"
	"github.com/unibrain/erpconsole/pkg/router"
	"github.com/unibrain/erpconsole/services/console/internal/guard"
	"github.com/unibrain/erpconsole/services/console/internal/pages"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// apiPrefix 门户上的后端透传前缀
const apiPrefix = "/api"

type proxyController struct {
	router.BaseController
	p     *Portal
	proxy *httputil.ReverseProxy
}

func newProxyController(p *Portal) *proxyController {
	pc := &proxyController{BaseController: router.NewBaseController(p.log.Named("proxy")), p: p}
	pc.proxy = pc.newReverseProxy()
	return pc
}

func (pc *proxyController) Prefix() string { return apiPrefix }

func (pc *proxyController) Routes(map[string]fiber.Handler) []router.Route {
	return []router.Route{
		{Method: fiber.MethodGet, Path: "/*", Handler: pc.forward},
		{Method: fiber.MethodPost, Path: "/*", Handler: pc.forward},
		{Method: fiber.MethodPut, Path: "/*", Handler: pc.forward},
		{Method: fiber.MethodPatch, Path: "/*", Handler: pc.forward},
		{Method: fiber.MethodDelete, Path: "/*", Handler: pc.forward},
	}
}

// newReverseProxy 以客户端的基础地址为目标，经 AuthTransport 发出请求
func (pc *proxyController) newReverseProxy() *httputil.ReverseProxy {
	target := pc.p.client.BaseURL()
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = pc.p.client.Transport()

	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		// /api/sales/sales/ -> <base>/sales/sales/
		req.URL.Path = strings.TrimPrefix(req.URL.Path, apiPrefix)
		req.URL.RawPath = ""
		originalDirector(req)
		req.Host = target.Host
		req.Header.Del("Authorization")
		req.Header.Del("Cookie")
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		pc.Log().Error("代理请求失败", zap.String("path", r.URL.Path), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"code":502,"message":"backend unavailable"}`))
	}
	return proxy
}

// forward 透传到后端：需要登录，并且满足接口所属页面的访问要求
func (pc *proxyController) forward(c *fiber.Ctx) error {
	user := pc.p.sessions.User()
	if user == nil {
		return response.Unauthorized(c, "")
	}

	req, ok := pages.RequirementForAPI(strings.TrimPrefix(c.Path(), apiPrefix))
	if !ok {
		return response.NotFound(c, "unknown backend endpoint")
	}
	if guard.Check(user, pc.p.evaluator, req) != guard.Allow {
		return response.Forbidden(c, "")
	}

	ctx := c.UserContext()
	handler := fasthttpadaptor.NewFastHTTPHandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pc.proxy.ServeHTTP(w, r.WithContext(ctx))
	})
	handler(c.Context())
	return nil
}
