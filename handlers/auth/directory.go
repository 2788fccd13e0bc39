package auth

import (
	"slices"
	"strings"
	"w9-uploads/core"
)

// Directory is a read-only user directory loaded from configuration.
type Directory struct {
	users []core.User
}

func NewDirectory(users []core.User) *Directory {
	sorted := slices.Clone(users)
	slices.SortFunc(sorted, func(a, b core.User) int { return a.ID - b.ID })
	return &Directory{users: sorted}
}

// All returns every user ordered by id.
func (d *Directory) All() []core.User {
	return slices.Clone(d.users)
}

func (d *Directory) ByID(id int) (*core.User, bool) {
	for i := range d.users {
		if d.users[i].ID == id {
			u := d.users[i]
			return &u, true
		}
	}
	return nil, false
}

// ByIdentity matches email case-insensitively first, then login.
func (d *Directory) ByIdentity(email, login string) (*core.User, bool) {
	if email != "" {
		for i := range d.users {
			if strings.EqualFold(d.users[i].Email, email) {
				u := d.users[i]
				return &u, true
			}
		}
	}
	if login != "" {
		for i := range d.users {
			if d.users[i].Login == login {
				u := d.users[i]
				return &u, true
			}
		}
	}
	return nil, false
}
