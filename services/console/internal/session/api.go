package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/unibrain/erpconsole/pkg/auth"
	"github.com/unibrain/erpconsole/pkg/errors"
	"github.com/unibrain/erpconsole/services/console/internal/httpclient"
	"go.uber.org/zap"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Access  string          `json:"access"`
	Refresh string          `json:"refresh"`
	User    *profilePayload `json:"user,omitempty"`
}

// profilePayload 登录响应附带的用户资料
type profilePayload struct {
	ID        auth.UserID `json:"id"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
}

func (p *profilePayload) user() *auth.User {
	return &auth.User{
		ID:        string(p.ID),
		Username:  p.Username,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
	}
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Register 注册新账号，不影响当前会话
func (m *Manager) Register(ctx context.Context, req RegisterRequest) error {
	if req.Password != req.Password2 {
		return errors.Registration("password: passwords do not match", nil)
	}

	err := m.client.Post(httpclient.Anonymous(ctx), m.registerPath, req, nil)
	if err == nil {
		m.log.Info("注册成功", zap.String("username", req.Username))
		return nil
	}

	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return errors.Registration(registrationMessage(se.Body), err)
	}
	return errors.Wrap(err, errors.ErrRegistration)
}

// registrationMessage 提取服务端的错误说明：detail 或逐字段错误
func registrationMessage(body []byte) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil || len(payload) == 0 {
		return ""
	}

	if raw, ok := payload["detail"]; ok {
		var detail string
		if json.Unmarshal(raw, &detail) == nil && detail != "" {
			return detail
		}
	}

	fields := make([]string, 0, len(payload))
	for field := range payload {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var parts []string
	for _, field := range fields {
		msg := fieldMessage(payload[field])
		if msg == "" {
			continue
		}
		if field == "non_field_errors" {
			parts = append(parts, msg)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return strings.Join(parts, "; ")
}

func fieldMessage(raw json.RawMessage) string {
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return strings.Join(list, " ")
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}
