package router

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// BaseController 控制器基类
type BaseController struct {
	log *zap.Logger
}

// NewBaseController 创建基础控制器
func NewBaseController(log *zap.Logger) BaseController {
	if log == nil {
		log = zap.NewNop()
	}
	return BaseController{log: log}
}

// Log 获取控制器日志
func (c *BaseController) Log() *zap.Logger {
	return c.log
}

// Bind 解析请求体，支持表单与JSON
func (c *BaseController) Bind(ctx *fiber.Ctx, out any) error {
	return ctx.BodyParser(out)
}

// WantsJSON 请求方是否期望JSON响应
func (c *BaseController) WantsJSON(ctx *fiber.Ctx) bool {
	return strings.Contains(ctx.Get(fiber.HeaderAccept), fiber.MIMEApplicationJSON) ||
		strings.HasPrefix(ctx.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON)
}
