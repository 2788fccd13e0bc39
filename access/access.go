// Package access decides who may open the uploads admin pages and which
// navigation entries they see.
package access

import (
	"slices"
	"w9-uploads/core"
)

// PageIDs identify the uploads admin page in the navigation.
var PageIDs = []string{"stf_w9_uploads_menu_page", "toplevel_page_stf_w9_uploads_menu_page"}

// hiddenForManagers are unrelated pages that pure managers never see.
var hiddenForManagers = []string{"stf_tar_csv_to_db_menu_page", "wp_csv_to_db_menu_page"}

// IsPureManager reports whether the user holds exactly the administrator and
// w9_manager roles. Such users get a navigation reduced to the uploads page.
func IsPureManager(u *core.User) bool {
	return u != nil && len(u.Roles) == 2 &&
		u.HasRole(core.RoleAdministrator) && u.HasRole(core.RoleManager)
}

// Allowed reports whether the user is in the access decision set.
func Allowed(u *core.User, allowed []int) bool {
	return u != nil && slices.Contains(allowed, u.ID)
}

// IsPluginPage reports whether slug is one of the uploads admin pages.
func IsPluginPage(slug string) bool {
	return slices.Contains(PageIDs, slug)
}

// FilterMenu returns the navigation entries visible to u.
func FilterMenu(u *core.User, allowed []int, items []core.MenuItem) []core.MenuItem {
	visible := make([]core.MenuItem, 0, len(items))
	switch {
	case IsPureManager(u):
		for _, item := range items {
			if item.HasSubmenu || slices.Contains(hiddenForManagers, item.Slug) {
				continue
			}
			visible = append(visible, item)
		}
	case !Allowed(u, allowed):
		for _, item := range items {
			if IsPluginPage(item.Slug) {
				continue
			}
			visible = append(visible, item)
		}
	default:
		visible = append(visible, items...)
	}
	return visible
}
