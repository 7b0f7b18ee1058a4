package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/unibrain/erpconsole/pkg/errors"
	"github.com/unibrain/erpconsole/pkg/logger"
	"github.com/unibrain/erpconsole/pkg/response"
	"go.uber.org/zap"
)

// LocalsRequestID 请求ID在 Locals 中的键
const LocalsRequestID = "requestId"

// Recovery 恢复中间件
func Recovery() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.Any("error", r),
					zap.String("path", c.Path()),
					zap.String("method", c.Method()),
				)
				err = response.ServerError(c, "服务器内部错误")
			}
		}()
		return c.Next()
	}
}

// RequestID 请求ID中间件
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Locals(LocalsRequestID, requestID)
		c.Set("X-Request-ID", requestID)
		return c.Next()
	}
}

// GetRequestID 从上下文获取请求ID
func GetRequestID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalsRequestID).(string)
	return id
}

// AccessLog 访问日志中间件
func AccessLog(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Debug("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", GetRequestID(c)),
		)
		return err
	}
}

// ErrorHandler Fiber 全局错误处理
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return response.FromError(c, appErr)
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return response.Abort(c, fe.Code, fe.Code, fe.Message)
	}
	logger.Error("unhandled error", zap.Error(err), zap.String("path", c.Path()))
	return response.ServerError(c, "")
}
