package navigation

import (
	"github.com/unibrain/erpconsole/pkg/auth"
	"github.com/unibrain/erpconsole/services/console/internal/guard"
	"github.com/unibrain/erpconsole/services/console/internal/pages"
	"github.com/unibrain/erpconsole/services/console/internal/permission"
)

// Entry 菜单项
type Entry struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
}

// Build 构建菜单，所有页面都列出，无权限的页面不可点击
func Build(user *auth.User, ev *permission.Evaluator, all []pages.Page) []Entry {
	entries := make([]Entry, 0, len(all))
	for _, p := range all {
		entries = append(entries, Entry{
			Name:    p.Name,
			Title:   p.Title,
			Path:    p.Path,
			Enabled: guard.Check(user, ev, p.Requirement) == guard.Allow,
		})
	}
	return entries
}
