// Package settings owns the persisted manager list and the access decision
// derived from it.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"w9-uploads/core"

	"github.com/sirupsen/logrus"
)

const (
	OptionKey       = "stf_w9_uploads"
	LegacyOptionKey = "stf_pdf_uploads"
)

type Service struct {
	store  core.OptionStore
	owners []int
}

func NewService(store core.OptionStore, owners []int) *Service {
	return &Service{store: store, owners: dedupe(owners)}
}

// Owners returns the permanently privileged user ids.
func (s *Service) Owners() []int {
	return slices.Clone(s.owners)
}

func (s *Service) IsOwner(userID int) bool {
	return slices.Contains(s.owners, userID)
}

// Bootstrap runs once at startup. It moves a legacy record to the current key
// when only the legacy one exists, upgrades an unversioned record, and seeds
// the default record when nothing is stored.
func (s *Service) Bootstrap(ctx context.Context) error {
	log := logrus.WithField("option", OptionKey)

	_, err := s.store.Get(ctx, OptionKey)
	switch {
	case errors.Is(err, core.ErrOptionNotFound):
		legacy, lerr := s.store.Get(ctx, LegacyOptionKey)
		switch {
		case lerr == nil:
			if err := s.store.Put(ctx, OptionKey, legacy); err != nil {
				return fmt.Errorf("migrate legacy settings: %w", err)
			}
			if err := s.store.Delete(ctx, LegacyOptionKey); err != nil {
				return fmt.Errorf("remove legacy settings: %w", err)
			}
			log.Info("Legacy settings migrated")
		case errors.Is(lerr, core.ErrOptionNotFound):
			defaults := &core.Settings{
				Version:  core.SettingsVersion,
				JQTheme:  core.DefaultTheme,
				Managers: s.Owners(),
			}
			log.Info("Seeding default settings")
			return s.save(ctx, defaults)
		default:
			return fmt.Errorf("load legacy settings: %w", lerr)
		}
	case err != nil:
		return fmt.Errorf("load settings: %w", err)
	}

	current, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if current.Version < core.SettingsVersion {
		current.Version = core.SettingsVersion
		if current.JQTheme == "" {
			current.JQTheme = core.DefaultTheme
		}
		log.Info("Upgrading settings record")
		return s.save(ctx, current)
	}
	return nil
}

// Load returns the stored record, or nil when none exists.
func (s *Service) Load(ctx context.Context) (*core.Settings, error) {
	data, err := s.store.Get(ctx, OptionKey)
	if err != nil {
		if errors.Is(err, core.ErrOptionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load settings: %w", err)
	}
	var settings core.Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &settings, nil
}

func (s *Service) save(ctx context.Context, settings *core.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.store.Put(ctx, OptionKey, data); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// AllowedManagers is the access decision set: owners plus the configured
// managers, or the owners alone when nothing is configured.
func (s *Service) AllowedManagers(ctx context.Context) ([]int, error) {
	settings, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if settings == nil || len(settings.Managers) == 0 {
		return s.Owners(), nil
	}
	return dedupe(append(s.Owners(), settings.Managers...)), nil
}

// Theme returns the configured jQuery UI theme.
func (s *Service) Theme(ctx context.Context) string {
	settings, err := s.Load(ctx)
	if err != nil || settings == nil || settings.JQTheme == "" {
		return core.DefaultTheme
	}
	return settings.JQTheme
}

// AssignManagers replaces the manager list with the owners plus the selected
// ids. Entries that are not integers are ignored, and an empty selection
// leaves only the owners. It always succeeds unless the store fails, and
// returns the list that was persisted.
func (s *Service) AssignManagers(ctx context.Context, selected []string) ([]int, error) {
	ids := make([]int, 0, len(selected))
	for _, raw := range selected {
		id, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			logrus.WithField("value", raw).Debug("Ignoring non-numeric manager id")
			continue
		}
		ids = append(ids, id)
	}

	managers := s.Owners()
	if len(ids) > 0 {
		managers = dedupe(append(managers, ids...))
	}

	settings, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = &core.Settings{Version: core.SettingsVersion, JQTheme: core.DefaultTheme}
	}
	settings.Managers = managers

	if err := s.save(ctx, settings); err != nil {
		return nil, err
	}
	logrus.WithField("managers", managers).Info("Managers updated")
	return managers, nil
}

// dedupe keeps the first occurrence of every id.
func dedupe(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
