package core

import "slices"

const (
	RoleAdministrator = "administrator"
	RoleManager       = "w9_manager"
)

type (
	// User is a back-office account from the user directory.
	User struct {
		ID    int      `json:"id" mapstructure:"id"`
		Login string   `json:"login" mapstructure:"login"`
		Name  string   `json:"name" mapstructure:"name"`
		Email string   `json:"email" mapstructure:"email"`
		Roles []string `json:"roles" mapstructure:"roles"`
	}

	// UserDirectory resolves back-office accounts.
	UserDirectory interface {
		All() []User
		ByID(id int) (*User, bool)
		// ByIdentity matches a login provider identity against email or login.
		ByIdentity(email, login string) (*User, bool)
	}
)

func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Login
}
