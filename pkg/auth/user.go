package auth

import "strings"

// User 当前登录用户，由访问令牌推导
type User struct {
	ID        string `json:"id,omitempty"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// UserFromClaims 由令牌声明构造用户
func UserFromClaims(c *Claims) *User {
	return &User{
		ID:        string(c.UserID),
		Username:  c.Username,
		Role:      c.Role,
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
	}
}

// DisplayName 展示名称
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// MergeProfile 补充资料字段，用户名不一致时忽略
// 身份与角色只以令牌为准
func (u *User) MergeProfile(p *User) {
	if p == nil || p.Username != u.Username {
		return
	}
	if p.ID != "" {
		u.ID = p.ID
	}
	if p.Email != "" {
		u.Email = p.Email
	}
	if p.FirstName != "" {
		u.FirstName = p.FirstName
	}
	if p.LastName != "" {
		u.LastName = p.LastName
	}
}
