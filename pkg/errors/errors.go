package errors

import (
	"errors"
	"fmt"
)

// 错误原因，用于 errors.Is 匹配
const (
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonRegistration       = "registration_failed"
	ReasonDecode             = "token_decode"
	ReasonRefreshFailure     = "refresh_failed"
	ReasonUnauthenticated    = "unauthenticated"
	ReasonUnauthorized       = "unauthorized"
	ReasonSessionSuperseded  = "session_superseded"
	ReasonStorage            = "storage_unavailable"
	ReasonConfig             = "invalid_config"
)

// 预定义错误
var (
	ErrInvalidCredentials = New(401, ReasonInvalidCredentials, "用户名或密码错误")
	ErrRegistration       = New(400, ReasonRegistration, "注册失败，请重试")
	ErrDecode             = New(401, ReasonDecode, "令牌无法解析")
	ErrRefreshFailure     = New(401, ReasonRefreshFailure, "令牌刷新失败")
	ErrUnauthenticated    = New(401, ReasonUnauthenticated, "未登录")
	ErrUnauthorized       = New(403, ReasonUnauthorized, "没有访问权限")
	ErrSessionSuperseded  = New(409, ReasonSessionSuperseded, "会话已被新的操作覆盖")
	ErrStorage            = New(503, ReasonStorage, "令牌存储不可用")
	ErrConfig             = New(500, ReasonConfig, "配置错误")
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 解包错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误原因匹配，消息不同的同类错误视为相等
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Reason != "" && e.Reason == t.Reason
}

// New 创建新错误
func New(code int, reason, message string) *AppError {
	return &AppError{
		Code:    code,
		Reason:  reason,
		Message: message,
	}
}

// Wrap 用预定义错误包装底层错误
func Wrap(err error, kind *AppError) *AppError {
	return &AppError{
		Code:    kind.Code,
		Reason:  kind.Reason,
		Message: kind.Message,
		Err:     err,
	}
}

// WithMessage 复制预定义错误并替换消息
func WithMessage(kind *AppError, message string, err error) *AppError {
	if message == "" {
		message = kind.Message
	}
	return &AppError{
		Code:    kind.Code,
		Reason:  kind.Reason,
		Message: message,
		Err:     err,
	}
}

// Decode 创建令牌解析错误
func Decode(format string, args ...any) *AppError {
	return Wrap(fmt.Errorf(format, args...), ErrDecode)
}

// Registration 创建注册错误，message 为服务端返回的提示
func Registration(message string, err error) *AppError {
	return WithMessage(ErrRegistration, message, err)
}

// Is 检查是否为指定错误
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 类型转换错误
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// GetCode 获取错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return 500
}

// GetMessage 获取面向用户的错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
