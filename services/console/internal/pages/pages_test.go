package pages

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unibrain/erpconsole/services/console/internal/guard"
	"github.com/unibrain/erpconsole/services/console/internal/permission"
)

func TestPageTableIsConsistent(t *testing.T) {
	paths := make(map[string]bool)
	names := make(map[string]bool)
	for _, p := range All {
		assert.False(t, paths[p.Path], "duplicate path %s", p.Path)
		assert.False(t, names[p.Name], "duplicate name %s", p.Name)
		paths[p.Path] = true
		names[p.Name] = true

		assert.True(t, strings.HasPrefix(p.Path, "/"), p.Path)
		assert.False(t, p.Requirement.Public(), "page %s has no requirement", p.Name)
		for _, m := range p.Requirement.Modules {
			assert.True(t, m.Valid(), "page %s: module %s", p.Name, m)
		}

		if p.Endpoint == "" {
			continue
		}
		// 页面接口必须归属于页面自身要求的模块，代理与页面判定保持一致
		m, ok := ModuleForAPI(p.Endpoint)
		assert.True(t, ok, "endpoint %s is not mapped", p.Endpoint)
		assert.Contains(t, p.Requirement.Modules, m, "page %s endpoint %s", p.Name, p.Endpoint)
	}
	assert.True(t, paths[Home])
}

func TestModuleForAPI(t *testing.T) {
	m, ok := ModuleForAPI("/sales/sales/?page=2")
	assert.True(t, ok)
	assert.Equal(t, permission.ModuleSales, m)

	m, ok = ModuleForAPI("production/analytics/")
	assert.True(t, ok)
	assert.Equal(t, permission.ModuleProduction, m)

	m, ok = ModuleForAPI("/sales/feedbacks/?page=1")
	assert.True(t, ok)
	assert.Equal(t, permission.ModuleMarketing, m)

	_, ok = ModuleForAPI("token/")
	assert.False(t, ok)
}

func TestRequirementForAPIMatchesOwningPage(t *testing.T) {
	campaigns, ok := ByPath("/campaigns")
	require.True(t, ok)

	req, ok := RequirementForAPI("sales/feedbacks/12/")
	require.True(t, ok)
	assert.Equal(t, campaigns.Requirement, req)

	req, ok = RequirementForAPI("/sales/sales/analytics/?range=week")
	require.True(t, ok)
	assert.Equal(t, []permission.Module{permission.ModuleSales}, req.Modules)

	// 没有页面的接口只要求模块
	req, ok = RequirementForAPI("raw-materials/")
	require.True(t, ok)
	assert.Equal(t, guard.RequireModule(permission.ModuleProduction), req)
	assert.Empty(t, req.Roles)

	_, ok = RequirementForAPI("token/")
	assert.False(t, ok)
}

func TestByPath(t *testing.T) {
	p, ok := ByPath("/transport/list")
	assert.True(t, ok)
	assert.Equal(t, "transport", p.Name)

	_, ok = ByPath("/nowhere")
	assert.False(t, ok)
}
