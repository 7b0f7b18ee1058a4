package permission

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unibrain/erpconsole/pkg/auth"
	"github.com/unibrain/erpconsole/pkg/config"
	"github.com/unibrain/erpconsole/pkg/database"
	"go.uber.org/zap"
)

func TestLoadFromDatabase(t *testing.T) {
	db, err := database.Open(&config.DatabaseConfig{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "policy.db"),
		LogLevel: "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	defer database.Close(db)

	// 首次读取时创建 casbin_rule 表
	policies, err := auth.LoadModulePolicies(db)
	require.NoError(t, err)
	assert.Empty(t, policies)

	for _, row := range []map[string]any{
		{"ptype": "p", "v0": "sales", "v1": "dashboard"},
		{"ptype": "p", "v0": "sales", "v1": "sales"},
	} {
		require.NoError(t, db.Table("casbin_rule").Create(row).Error)
	}

	ev, err := Load(&config.PermissionsConfig{Source: "database"}, db)
	require.NoError(t, err)
	assert.True(t, ev.CanAccess(RoleSales, ModuleSales))
	assert.False(t, ev.CanAccess(RoleSales, ModuleProduction))
	assert.False(t, ev.CanAccess(RoleAdmin, ModuleSales))
}
