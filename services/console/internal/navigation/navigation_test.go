package navigation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unibrain/erpconsole/pkg/auth"
	"github.com/unibrain/erpconsole/services/console/internal/guard"
	"github.com/unibrain/erpconsole/services/console/internal/pages"
	"github.com/unibrain/erpconsole/services/console/internal/permission"
)

func TestTrackerRecordsFirstRedirectOnly(t *testing.T) {
	tr := NewTracker("/sales")
	_, ok := tr.Pending()
	assert.False(t, ok)

	tr.Redirect("/login")
	tr.Redirect("/unauthorized")

	target, ok := tr.Pending()
	assert.True(t, ok)
	assert.Equal(t, "/login", target)
}

func TestTrackerIgnoresRedirectToCurrentLocation(t *testing.T) {
	tr := NewTracker("/login")
	tr.Redirect("/login")
	_, ok := tr.Pending()
	assert.False(t, ok)
}

func TestNavigatorContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	tr := NewTracker("/sales")
	ctx := WithNavigator(context.Background(), tr)
	nav := FromContext(ctx)
	require.NotNil(t, nav)
	assert.Equal(t, "/sales", nav.Location())
}

func TestMenuAgreesWithGuards(t *testing.T) {
	ev, err := permission.NewEvaluator(permission.DefaultTable())
	require.NoError(t, err)

	for _, role := range permission.Roles {
		user := &auth.User{Username: "u", Role: string(role)}
		entries := Build(user, ev, pages.All)
		require.Len(t, entries, len(pages.All))
		for i, p := range pages.All {
			want := guard.Check(user, ev, p.Requirement) == guard.Allow
			assert.Equal(t, want, entries[i].Enabled, "role=%s page=%s", role, p.Name)
		}
	}
}

func TestMenuForSalesUser(t *testing.T) {
	ev, err := permission.NewEvaluator(permission.DefaultTable())
	require.NoError(t, err)

	enabled := make(map[string]bool)
	for _, e := range Build(&auth.User{Username: "s", Role: "sales"}, ev, pages.All) {
		enabled[e.Path] = e.Enabled
	}
	assert.True(t, enabled["/dashboard"])
	assert.True(t, enabled["/sales"])
	assert.False(t, enabled["/production"])
	assert.False(t, enabled["/campaigns"])
	assert.False(t, enabled["/admin/users"])
}

func TestMenuAnonymousAllDisabled(t *testing.T) {
	ev, err := permission.NewEvaluator(permission.DefaultTable())
	require.NoError(t, err)

	for _, e := range Build(nil, ev, pages.All) {
		assert.False(t, e.Enabled, e.Path)
	}
}
