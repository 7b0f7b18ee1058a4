package guard

import (
	"github.com/gofiber/fiber/v2"
	"github.com/unibrain/erpconsole/pkg/auth"
	"github.com/unibrain/erpconsole/services/console/internal/permission"
)

// UserSource 当前用户来源
type UserSource interface {
	User() *auth.User
}

// Paths 守卫跳转目标
type Paths struct {
	Login        string
	Unauthorized string
}

// DefaultPaths 默认跳转路径
var DefaultPaths = Paths{Login: "/login", Unauthorized: "/unauthorized"}

// Middleware 页面守卫中间件，每个请求都重新判定
func Middleware(users UserSource, ev *permission.Evaluator, req Requirement, paths Paths) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := users.User()
		switch Check(user, ev, req) {
		case Unauthenticated:
			return c.Redirect(paths.Login, fiber.StatusFound)
		case Unauthorized:
			return c.Redirect(paths.Unauthorized, fiber.StatusFound)
		}
		c.Locals(localsUser, user)
		return c.Next()
	}
}

type localsKey string

const localsUser localsKey = "guard.user"

// CurrentUser 获取守卫放行时的用户
func CurrentUser(c *fiber.Ctx) *auth.User {
	u, _ := c.Locals(localsUser).(*auth.User)
	return u
}
