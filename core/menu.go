package core

// MenuItem is an entry of the back-office navigation.
type MenuItem struct {
	Slug       string `json:"slug" mapstructure:"slug"`
	Title      string `json:"title" mapstructure:"title"`
	URL        string `json:"url" mapstructure:"url"`
	HasSubmenu bool   `json:"hasSubmenu" mapstructure:"has_submenu"`
}
