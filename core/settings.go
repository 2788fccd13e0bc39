package core

import (
	"context"
	"errors"
)

// SettingsVersion is the current layout of the persisted Settings record.
const SettingsVersion = 1

// DefaultTheme is the jQuery UI theme used when none is configured.
const DefaultTheme = "start"

var ErrOptionNotFound = errors.New("option not found")

type (
	// Settings is the persisted configuration record of the uploads page.
	Settings struct {
		Version  int    `json:"version"`
		JQTheme  string `json:"jq_theme"`
		Managers []int  `json:"managers"`
	}

	// OptionStore is a key/value store for named configuration records.
	OptionStore interface {
		// Get returns the raw value stored under key, or ErrOptionNotFound.
		Get(ctx context.Context, key string) ([]byte, error)

		// Put creates or replaces the value stored under key.
		Put(ctx context.Context, key string, value []byte) error

		// Delete removes key. Deleting a missing key is not an error.
		Delete(ctx context.Context, key string) error
	}
)
