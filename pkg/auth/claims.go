package auth

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/unibrain/erpconsole/pkg/errors"
)

// UserID 用户ID，兼容数字与字符串两种编码
type UserID string

// UnmarshalJSON 实现json.Unmarshaler
func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = UserID(n.String())
	return nil
}

// MarshalJSON 实现json.Marshaler
func (id UserID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(id))
}

// Claims 访问令牌中的身份声明
type Claims struct {
	UserID    UserID `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Role      string `json:"role,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// Expired 令牌是否已过期，没有exp声明视为未过期
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Time)
}

// parser 只解析载荷，不校验签名与有效期
var parser = jwt.NewParser(jwt.WithoutClaimsValidation())

// Decode 解析令牌载荷
// 签名由服务端校验，客户端只需要声明用于界面判断
func Decode(token string) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, errors.Decode("empty token")
	}

	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, errors.Wrap(err, errors.ErrDecode)
	}

	if claims.Username == "" {
		claims.Username = claims.Subject
	}
	if claims.Username == "" {
		return nil, errors.Decode("token has no username claim")
	}
	if claims.Role == "" {
		return nil, errors.Decode("token has no role claim")
	}
	return claims, nil
}
