package permission

import (
	"fmt"

	"github.com/unibrain/erpconsole/pkg/auth"
	"github.com/unibrain/erpconsole/pkg/config"
	"github.com/unibrain/erpconsole/pkg/errors"
	"gorm.io/gorm"
)

// Load 按配置加载权限表并创建判定器
// source=database 时从 casbin_rule 表读取一次，db 为空则报错
func Load(cfg *config.PermissionsConfig, db *gorm.DB) (*Evaluator, error) {
	var (
		table *Table
		err   error
	)

	switch cfg.Source {
	case "", "config":
		raw := cfg.Roles
		if len(raw) == 0 {
			raw = DefaultRoles
		}
		table, err = NewTable(raw)
	case "database":
		if db == nil {
			return nil, errors.WithMessage(errors.ErrConfig, "permissions.source=database 需要SQL存储", nil)
		}
		var policies [][]string
		policies, err = auth.LoadModulePolicies(db)
		if err != nil {
			return nil, err
		}
		table, err = TableFromPolicies(policies)
	default:
		return nil, errors.WithMessage(errors.ErrConfig, fmt.Sprintf("未知权限来源: %s", cfg.Source), nil)
	}
	if err != nil {
		return nil, err
	}
	return NewEvaluator(table)
}
