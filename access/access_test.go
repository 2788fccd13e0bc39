package access

import (
	"testing"
	"w9-uploads/core"

	"github.com/stretchr/testify/assert"
)

var menu = []core.MenuItem{
	{Slug: "index.php", Title: "Dashboard", HasSubmenu: true},
	{Slug: "users.php", Title: "Users", HasSubmenu: true},
	{Slug: "stf_w9_uploads_menu_page", Title: "W9 Uploads"},
	{Slug: "stf_tar_csv_to_db_menu_page", Title: "TAR CSV"},
	{Slug: "wp_csv_to_db_menu_page", Title: "Past Grants"},
	{Slug: "profile.php", Title: "Profile"},
}

func slugs(items []core.MenuItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Slug
	}
	return out
}

func TestIsPureManager(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  bool
	}{
		{"admin and manager", []string{"administrator", "w9_manager"}, true},
		{"reversed order", []string{"w9_manager", "administrator"}, true},
		{"admin only", []string{"administrator"}, false},
		{"manager only", []string{"w9_manager"}, false},
		{"three roles", []string{"administrator", "w9_manager", "editor"}, false},
		{"duplicate admin", []string{"administrator", "administrator"}, false},
		{"none", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPureManager(&core.User{ID: 1, Roles: tt.roles}))
		})
	}
	assert.False(t, IsPureManager(nil))
}

func TestAllowed(t *testing.T) {
	allowed := []int{4, 13, 7}
	assert.True(t, Allowed(&core.User{ID: 7}, allowed))
	assert.True(t, Allowed(&core.User{ID: 4}, allowed))
	assert.False(t, Allowed(&core.User{ID: 8}, allowed))
	assert.False(t, Allowed(nil, allowed))
}

func TestFilterMenu_PureManager(t *testing.T) {
	u := &core.User{ID: 7, Roles: []string{"administrator", "w9_manager"}}

	got := FilterMenu(u, []int{4, 13, 7}, menu)
	assert.Equal(t, []string{"stf_w9_uploads_menu_page", "profile.php"}, slugs(got))
	for _, item := range got {
		assert.False(t, item.HasSubmenu)
	}
}

func TestFilterMenu_NotAllowedHidesPluginPage(t *testing.T) {
	u := &core.User{ID: 99, Roles: []string{"administrator"}}

	got := FilterMenu(u, []int{4, 13}, menu)
	assert.NotContains(t, slugs(got), "stf_w9_uploads_menu_page")
	assert.Len(t, got, len(menu)-1)
}

func TestFilterMenu_FullAdmin(t *testing.T) {
	u := &core.User{ID: 4, Roles: []string{"administrator"}}

	got := FilterMenu(u, []int{4, 13}, menu)
	assert.Equal(t, slugs(menu), slugs(got))
}
