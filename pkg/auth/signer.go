package auth

import (
	"crypto/rand"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Signer 令牌签发器
// 用于离线开发登录与测试后端，正式令牌由ERP后端签发
type Signer struct {
	secret   []byte
	issuer   string
	expireIn time.Duration
}

// NewSigner 创建令牌签发器
func NewSigner(secret []byte, issuer string, expireIn time.Duration) *Signer {
	return &Signer{
		secret:   secret,
		issuer:   issuer,
		expireIn: expireIn,
	}
}

// NewEphemeralSigner 使用随机密钥创建签发器，密钥只在进程内有效
func NewEphemeralSigner(issuer string, expireIn time.Duration) (*Signer, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return NewSigner(secret, issuer, expireIn), nil
}

// Issue 签发令牌，tokenType 为 access 或 refresh
func (s *Signer) Issue(c Claims, tokenType string) (string, error) {
	now := time.Now()
	c.TokenType = tokenType
	c.Issuer = s.issuer
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Subject == "" {
		c.Subject = c.Username
	}
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(s.expireIn))

	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// Verify 校验签名并返回声明
func (s *Signer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}
