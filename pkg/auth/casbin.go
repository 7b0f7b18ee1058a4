package auth

import (
	"fmt"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

// moduleModel 角色-模块访问模型：p = 角色, 模块
const moduleModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj
`

// NewModuleEnforcer 创建内存中的模块访问Enforcer，策略为 [角色, 模块] 对
func NewModuleEnforcer(policies [][]string) (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(moduleModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	if len(policies) > 0 {
		if _, err := e.AddPolicies(policies); err != nil {
			return nil, fmt.Errorf("failed to add casbin policies: %w", err)
		}
	}
	return e, nil
}

// LoadModulePolicies 从数据库的 casbin_rule 表读取 [角色, 模块] 策略
// 只在启动时读取一次，之后不再同步
func LoadModulePolicies(db *gorm.DB) ([][]string, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin adapter: %w", err)
	}

	m, err := model.NewModelFromString(moduleModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	e, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	if err := e.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("failed to load casbin policy: %w", err)
	}

	policies, err := e.GetPolicy()
	if err != nil {
		return nil, fmt.Errorf("failed to read casbin policy: %w", err)
	}
	return policies, nil
}
