// Package pages is the single table of ERP sections shared by the portal
// routes, the menu and the /api proxy.
package pages

import (
	"strings"

	"github.com/unibrain/erpconsole/services/console/internal/guard"
	"github.com/unibrain/erpconsole/services/console/internal/permission"
)

// Page ERP页面
type Page struct {
	Name        string            `json:"name"`
	Title       string            `json:"title"`
	Path        string            `json:"path"`
	Endpoint    string            `json:"endpoint,omitempty"` // 相对后端基础地址
	Requirement guard.Requirement `json:"-"`
}

// All 全部页面，顺序即菜单顺序
var All = []Page{
	{Name: "dashboard", Title: "Dashboard", Path: "/dashboard",
		Requirement: guard.RequireModule(permission.ModuleDashboard)},
	{Name: "sales", Title: "Sales Records", Path: "/sales", Endpoint: "sales/sales/",
		Requirement: guard.RequireModule(permission.ModuleSales)},
	{Name: "customers", Title: "Customers", Path: "/customers", Endpoint: "sales/customers/",
		Requirement: guard.RequireModule(permission.ModuleSales)},
	{Name: "products", Title: "Products", Path: "/products", Endpoint: "sales/products/",
		Requirement: guard.RequireModule(permission.ModuleSales)},
	{Name: "campaigns", Title: "Campaigns", Path: "/campaigns", Endpoint: "sales/feedbacks/",
		Requirement: guard.RequireModule(permission.ModuleMarketing).AndRoles(permission.RoleAdmin, permission.RoleMarketing)},
	{Name: "sales-analytics", Title: "Sales Analytics", Path: "/analytics", Endpoint: "sales/sales/analytics/",
		Requirement: guard.RequireModule(permission.ModuleSales)},
	{Name: "production", Title: "Production List", Path: "/production", Endpoint: "flour-output/",
		Requirement: guard.RequireModule(permission.ModuleProduction)},
	{Name: "production-analytics", Title: "Production Analytics", Path: "/production/analytics", Endpoint: "production/analytics/",
		Requirement: guard.RequireModule(permission.ModuleProduction)},
	{Name: "milling", Title: "Milling", Path: "/milling", Endpoint: "milling/dashboard/",
		Requirement: guard.RequireModule(permission.ModuleMilling)},
	{Name: "transport", Title: "Transport", Path: "/transport/list", Endpoint: "transport/records/",
		Requirement: guard.RequireModule(permission.ModuleTransport)},
	{Name: "transport-analytics", Title: "Transport Analytics", Path: "/transport/analytics", Endpoint: "transport/records/analytics/",
		Requirement: guard.RequireModule(permission.ModuleTransport)},
	{Name: "warehouse", Title: "Warehouse", Path: "/warehouse", Endpoint: "warehouses/",
		Requirement: guard.RequireModule(permission.ModuleWarehouse)},
	{Name: "warehouse-analytics", Title: "Warehouse Analytics", Path: "/warehouse/analytics", Endpoint: "warehouseanalytics/dashboard/",
		Requirement: guard.RequireModule(permission.ModuleWarehouse)},
	{Name: "leave", Title: "Leave", Path: "/leave", Endpoint: "leave/leave-requests/",
		Requirement: guard.RequireModule(permission.ModuleLeave)},
	{Name: "users", Title: "Users", Path: "/admin/users", Endpoint: "accounts/users/",
		Requirement: guard.RequireModule(permission.ModuleAdmin)},
	{Name: "pending-users", Title: "Pending Users", Path: "/admin/pending-users", Endpoint: "accounts/pending-users/",
		Requirement: guard.RequireModule(permission.ModuleAdmin)},
	{Name: "audit-logs", Title: "Audit Logs", Path: "/admin/audit-logs", Endpoint: "accounts/audit-logs/",
		Requirement: guard.RequireModule(permission.ModuleAdmin)},
}

// Home 登录后的默认页面
const Home = "/dashboard"

// apiModules 后端接口前缀到模块的映射，按最长前缀匹配
var apiModules = map[string]permission.Module{
	"sales":               permission.ModuleSales,
	"sales/feedbacks":     permission.ModuleMarketing,
	"flour-output":        permission.ModuleProduction,
	"raw-materials":       permission.ModuleProduction,
	"merged":              permission.ModuleProduction,
	"production":          permission.ModuleProduction,
	"milling":             permission.ModuleMilling,
	"transport":           permission.ModuleTransport,
	"warehouses":          permission.ModuleWarehouse,
	"materials":           permission.ModuleWarehouse,
	"dailyinventory":      permission.ModuleWarehouse,
	"inventory":           permission.ModuleWarehouse,
	"warehouseanalytics":  permission.ModuleWarehouse,
	"warehouse-analytics": permission.ModuleWarehouse,
	"leave":               permission.ModuleLeave,
	"accounts":            permission.ModuleAdmin,
}

// ByPath 按路径查找页面
func ByPath(path string) (Page, bool) {
	for _, p := range All {
		if p.Path == path {
			return p, true
		}
	}
	return Page{}, false
}

// ModuleForAPI 后端接口路径所属模块，未登记的接口返回 false
func ModuleForAPI(path string) (permission.Module, bool) {
	segs := apiSegments(path)
	for n := len(segs); n > 0; n-- {
		if m, ok := apiModules[strings.Join(segs[:n], "/")]; ok {
			return m, true
		}
	}
	return "", false
}

// RequirementForAPI 代理接口的访问要求，与拥有该接口的页面一致
func RequirementForAPI(path string) (guard.Requirement, bool) {
	m, ok := ModuleForAPI(path)
	if !ok {
		return guard.Requirement{}, false
	}
	clean := strings.Join(apiSegments(path), "/") + "/"
	var owner *Page
	for i := range All {
		ep := All[i].Endpoint
		if ep == "" || !strings.HasPrefix(clean, ep) {
			continue
		}
		if owner == nil || len(ep) > len(owner.Endpoint) {
			owner = &All[i]
		}
	}
	if owner != nil {
		return owner.Requirement, true
	}
	return guard.RequireModule(m), true
}

func apiSegments(path string) []string {
	path, _, _ = strings.Cut(path, "?")
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
