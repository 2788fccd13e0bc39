package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"w9-uploads/core"

	"github.com/sirupsen/logrus"
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

type fsStore struct {
	basePath string
}

// NewStore creates a filesystem option store keeping one JSON file per key.
func NewStore(basePath string) (*fsStore, error) {
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, fmt.Errorf("create options directory: %w", err)
	}
	return &fsStore{basePath: basePath}, nil
}

func (s *fsStore) path(key string) (string, error) {
	if !validKey.MatchString(key) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid option key %q", key)
	}
	return filepath.Join(s.basePath, key+".json"), nil
}

func (s *fsStore) Get(ctx context.Context, key string) ([]byte, error) {
	filePath, err := s.path(key)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"option": key, "file_path": filePath})

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug("Option file not found")
			return nil, core.ErrOptionNotFound
		}
		log.WithError(err).Error("Failed to read option file")
		return nil, err
	}
	return data, nil
}

// Put writes the value to a temp file and renames it over the key's file.
func (s *fsStore) Put(ctx context.Context, key string, value []byte) error {
	filePath, err := s.path(key)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"option": key, "file_path": filePath})

	tmp, err := os.CreateTemp(s.basePath, key+".*.tmp")
	if err != nil {
		log.WithError(err).Error("Failed to create temp option file")
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		log.WithError(err).Error("Failed to write option file")
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		os.Remove(tmpName)
		log.WithError(err).Error("Failed to replace option file")
		return err
	}

	log.Info("Option saved successfully")
	return nil
}

func (s *fsStore) Delete(ctx context.Context, key string) error {
	filePath, err := s.path(key)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"option": key, "file_path": filePath})

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			log.Debug("Option file not found for deletion, considered successful.")
			return nil
		}
		log.WithError(err).Error("Failed to delete option file")
		return err
	}

	log.Info("Option deleted successfully")
	return nil
}
