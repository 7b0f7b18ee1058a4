// Package permission holds the static role to module table and answers
// "can this role use this module".
package permission

import (
	"fmt"
	"sort"

	"github.com/casbin/casbin/v3"
	"github.com/unibrain/erpconsole/pkg/auth"
	"github.com/unibrain/erpconsole/pkg/errors"
)

// Role 用户岗位角色
type Role string

// 已知角色
const (
	RoleAdmin       Role = "admin"
	RoleSales       Role = "sales"
	RoleMarketing   Role = "marketing"
	RoleWarehouse   Role = "warehouse"
	RoleTransporter Role = "transporter"
	RoleHR          Role = "hr"
	RoleFactoryOps  Role = "factory_ops"
)

// Roles 全部已知角色
var Roles = []Role{RoleAdmin, RoleSales, RoleMarketing, RoleWarehouse, RoleTransporter, RoleHR, RoleFactoryOps}

// Valid 是否为已知角色
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole 解析角色名
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", errors.WithMessage(errors.ErrConfig, fmt.Sprintf("未知角色: %q", s), nil)
	}
	return r, nil
}

// Module 应用模块，权限授予的最小单位
type Module string

// 已知模块
const (
	ModuleDashboard  Module = "dashboard"
	ModuleSales      Module = "sales"
	ModuleProduction Module = "production"
	ModuleTransport  Module = "transport"
	ModuleWarehouse  Module = "warehouse"
	ModuleMarketing  Module = "marketing"
	ModuleAdmin      Module = "admin"
	ModuleLeave      Module = "leave"
	ModuleMilling    Module = "milling"
)

// Modules 全部已知模块
var Modules = []Module{
	ModuleDashboard, ModuleSales, ModuleProduction, ModuleTransport, ModuleWarehouse,
	ModuleMarketing, ModuleAdmin, ModuleLeave, ModuleMilling,
}

// Valid 是否为已知模块
func (m Module) Valid() bool {
	for _, known := range Modules {
		if m == known {
			return true
		}
	}
	return false
}

// ParseModule 解析模块名
func ParseModule(s string) (Module, error) {
	m := Module(s)
	if !m.Valid() {
		return "", errors.WithMessage(errors.ErrConfig, fmt.Sprintf("未知模块: %q", s), nil)
	}
	return m, nil
}

// DefaultRoles 内置角色权限表
var DefaultRoles = map[string][]string{
	"admin":       {"dashboard", "sales", "production", "transport", "warehouse", "marketing", "admin", "leave", "milling"},
	"sales":       {"dashboard", "sales"},
	"marketing":   {"dashboard", "sales", "marketing"},
	"warehouse":   {"dashboard", "warehouse"},
	"transporter": {"dashboard", "transport"},
	"hr":          {"dashboard", "leave"},
	"factory_ops": {"dashboard", "production", "milling"},
}

// Table 角色到模块集合的映射，构造后不可变
type Table struct {
	modules map[Role][]Module
}

// NewTable 校验并构造权限表，未知角色或模块直接报错
func NewTable(raw map[string][]string) (*Table, error) {
	t := &Table{modules: make(map[Role][]Module, len(raw))}
	for roleName, moduleNames := range raw {
		role, err := ParseRole(roleName)
		if err != nil {
			return nil, err
		}
		seen := make(map[Module]bool, len(moduleNames))
		mods := make([]Module, 0, len(moduleNames))
		for _, name := range moduleNames {
			m, err := ParseModule(name)
			if err != nil {
				return nil, errors.WithMessage(errors.ErrConfig, fmt.Sprintf("角色 %s: 未知模块 %q", roleName, name), err)
			}
			if !seen[m] {
				seen[m] = true
				mods = append(mods, m)
			}
		}
		t.modules[role] = mods
	}
	return t, nil
}

// DefaultTable 内置权限表
func DefaultTable() *Table {
	t, err := NewTable(DefaultRoles)
	if err != nil {
		panic(err)
	}
	return t
}

// TableFromPolicies 由 [角色, 模块] 策略构造权限表
func TableFromPolicies(policies [][]string) (*Table, error) {
	raw := make(map[string][]string)
	for _, p := range policies {
		if len(p) < 2 {
			return nil, errors.WithMessage(errors.ErrConfig, fmt.Sprintf("无效策略: %v", p), nil)
		}
		raw[p[0]] = append(raw[p[0]], p[1])
	}
	return NewTable(raw)
}

// Modules 角色可访问的模块，未知角色返回空
func (t *Table) Modules(r Role) []Module {
	mods := t.modules[r]
	out := make([]Module, len(mods))
	copy(out, mods)
	return out
}

// Roles 表中出现的角色，按名称排序
func (t *Table) Roles() []Role {
	out := make([]Role, 0, len(t.modules))
	for r := range t.modules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Policies 转为 casbin 策略
func (t *Table) Policies() [][]string {
	var policies [][]string
	for _, r := range t.Roles() {
		for _, m := range t.modules[r] {
			policies = append(policies, []string{string(r), string(m)})
		}
	}
	return policies
}

// Evaluator 权限判定器
type Evaluator struct {
	table    *Table
	enforcer *casbin.Enforcer
}

// NewEvaluator 基于权限表创建判定器
func NewEvaluator(t *Table) (*Evaluator, error) {
	e, err := auth.NewModuleEnforcer(t.Policies())
	if err != nil {
		return nil, err
	}
	return &Evaluator{table: t, enforcer: e}, nil
}

// CanAccess 角色是否可以使用模块
func (e *Evaluator) CanAccess(role Role, module Module) bool {
	if role == "" || module == "" {
		return false
	}
	ok, err := e.enforcer.Enforce(string(role), string(module))
	return err == nil && ok
}

// Modules 角色可访问的模块
func (e *Evaluator) Modules(role Role) []Module {
	return e.table.Modules(role)
}

// Table 底层权限表
func (e *Evaluator) Table() *Table {
	return e.table
}
