// Package guard decides whether the current user may open a page.
package guard

import (
	"strings"

	"github.com/unibrain/erpconsole/pkg/auth"
	"github.com/unibrain/erpconsole/services/console/internal/permission"
)

// Decision 守卫判定结果
type Decision int

const (
	Allow Decision = iota
	Unauthenticated
	Unauthorized
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Unauthenticated:
		return "unauthenticated"
	case Unauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Requirement 页面访问要求
// Modules 与 Roles 同时设置时需同时满足
type Requirement struct {
	Modules []permission.Module
	Roles   []permission.Role
}

// RequireModule 需要可访问任一模块
func RequireModule(modules ...permission.Module) Requirement {
	return Requirement{Modules: modules}
}

// RequireRoles 需要属于任一角色
//
// Deprecated: 使用 RequireModule，角色列表仅为兼容旧路由保留。
func RequireRoles(roles ...permission.Role) Requirement {
	return Requirement{Roles: roles}
}

// AndRoles 在模块要求之上追加角色要求
func (r Requirement) AndRoles(roles ...permission.Role) Requirement {
	r.Roles = append(append([]permission.Role(nil), r.Roles...), roles...)
	return r
}

// Public 是否只要求登录
func (r Requirement) Public() bool {
	return len(r.Modules) == 0 && len(r.Roles) == 0
}

func (r Requirement) String() string {
	var parts []string
	if len(r.Modules) > 0 {
		mods := make([]string, len(r.Modules))
		for i, m := range r.Modules {
			mods[i] = string(m)
		}
		parts = append(parts, "modules="+strings.Join(mods, "|"))
	}
	if len(r.Roles) > 0 {
		roles := make([]string, len(r.Roles))
		for i, role := range r.Roles {
			roles[i] = string(role)
		}
		parts = append(parts, "roles="+strings.Join(roles, "|"))
	}
	if len(parts) == 0 {
		return "authenticated"
	}
	return strings.Join(parts, " ")
}

// Check 判定用户是否满足要求，结果只依赖入参
func Check(user *auth.User, ev *permission.Evaluator, req Requirement) Decision {
	if user == nil {
		return Unauthenticated
	}
	role := permission.Role(user.Role)

	if len(req.Modules) > 0 {
		ok := false
		for _, m := range req.Modules {
			if ev.CanAccess(role, m) {
				ok = true
				break
			}
		}
		if !ok {
			return Unauthorized
		}
	}

	if len(req.Roles) > 0 {
		ok := false
		for _, r := range req.Roles {
			if r == role {
				ok = true
				break
			}
		}
		if !ok {
			return Unauthorized
		}
	}
	return Allow
}
