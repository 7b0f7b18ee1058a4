package portal

import (
	"github.com/gofiber/fiber/v2"
	"github.com/unibrain/erpconsole/pkg/errors"
	"github.com/unibrain/erpconsole/pkg/response"
	"github.com/unibrain/erpconsole/pkg/router"
	"github.com/unibrain/erpconsole/services/console/internal/pages"
	"github.com/unibrain/erpconsole/services/console/internal/session"
	"go.uber.org/zap"
)

// msgInvalidLogin 登录失败统一提示，不区分用户不存在与密码错误
const msgInvalidLogin = "invalid username or password"

// LoginRequest 登录表单
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// RegisterRequest 注册表单
type RegisterRequest struct {
	Username  string `json:"username" form:"username"`
	Email     string `json:"email" form:"email"`
	Password  string `json:"password" form:"password"`
	Password2 string `json:"password2" form:"password2"`
	FirstName string `json:"first_name" form:"first_name"`
	LastName  string `json:"last_name" form:"last_name"`
	Role      string `json:"role" form:"role"`
	Phone     string `json:"phone" form:"phone"`
}

type authController struct {
	router.BaseController
	p *Portal
}

func newAuthController(p *Portal) *authController {
	return &authController{BaseController: router.NewBaseController(p.log.Named("auth")), p: p}
}

func (a *authController) Prefix() string { return "" }

func (a *authController) Routes(map[string]fiber.Handler) []router.Route {
	return []router.Route{
		{Method: fiber.MethodGet, Path: "/", Handler: a.home},
		{Method: fiber.MethodGet, Path: a.p.paths.Login, Handler: a.loginPage},
		{Method: fiber.MethodPost, Path: a.p.paths.Login, Handler: a.login},
		{Method: fiber.MethodPost, Path: "/logout", Handler: a.logout},
		{Method: fiber.MethodGet, Path: "/register", Handler: a.registerPage},
		{Method: fiber.MethodPost, Path: "/register", Handler: a.register},
		{Method: fiber.MethodGet, Path: a.p.paths.Unauthorized, Handler: a.unauthorized},
	}
}

func (a *authController) home(c *fiber.Ctx) error {
	if a.p.sessions.Authenticated() {
		return c.Redirect(pages.Home, fiber.StatusFound)
	}
	return c.Redirect(a.p.paths.Login, fiber.StatusFound)
}

func (a *authController) loginPage(c *fiber.Ctx) error {
	if a.p.sessions.Authenticated() {
		return c.Redirect(pages.Home, fiber.StatusFound)
	}
	return response.Success(c, fiber.Map{"page": "login"})
}

func (a *authController) login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := a.Bind(c, &req); err != nil || req.Username == "" || req.Password == "" {
		return response.BadRequest(c, "username and password are required")
	}

	user, err := a.p.sessions.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, errors.ErrSessionSuperseded) {
			return response.FromError(c, err)
		}
		a.Log().Debug("login rejected", zap.String("username", req.Username), zap.Error(err))
		return response.Unauthorized(c, msgInvalidLogin)
	}

	if a.WantsJSON(c) {
		return response.Success(c, fiber.Map{"user": user, "redirect": pages.Home})
	}
	return c.Redirect(pages.Home, fiber.StatusSeeOther)
}

func (a *authController) logout(c *fiber.Ctx) error {
	a.p.sessions.Logout()
	if a.WantsJSON(c) {
		return response.Success(c, fiber.Map{"redirect": a.p.paths.Login})
	}
	return c.Redirect(a.p.paths.Login, fiber.StatusSeeOther)
}

func (a *authController) registerPage(c *fiber.Ctx) error {
	return response.Success(c, fiber.Map{"page": "register"})
}

func (a *authController) register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := a.Bind(c, &req); err != nil {
		return response.BadRequest(c, "invalid registration form")
	}

	err := a.p.sessions.Register(c.UserContext(), session.RegisterRequest{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		Password2: req.Password2,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
		Phone:     req.Phone,
	})
	if err != nil {
		return response.FromError(c, err)
	}

	if a.WantsJSON(c) {
		return response.SuccessWithMessage(c, "registration submitted", fiber.Map{"redirect": a.p.paths.Login})
	}
	return c.Redirect(a.p.paths.Login, fiber.StatusSeeOther)
}

func (a *authController) unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(response.Response{
		Code:    response.CodeForbidden,
		Message: response.MsgForbidden,
		Data:    fiber.Map{"page": "unauthorized", "user": a.p.sessions.User(), "home": pages.Home},
	})
}
