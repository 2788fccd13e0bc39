package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"w9-uploads/core"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore opens (or creates) a SQLite database holding the options table.
func NewStore(dataSourceName string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	optionsTableStmt := `
	CREATE TABLE IF NOT EXISTS options (
		name TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME
	);`
	if _, err = db.Exec(optionsTableStmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("create options table: %w", err)
	}

	return &sqliteStore{db}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) Get(ctx context.Context, key string) ([]byte, error) {
	log := logrus.WithField("option", key)
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM options WHERE name = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("Option not found")
			return nil, core.ErrOptionNotFound
		}
		log.WithError(err).Error("Failed to retrieve option")
		return nil, err
	}
	return value, nil
}

func (s *sqliteStore) Put(ctx context.Context, key string, value []byte) error {
	log := logrus.WithFields(logrus.Fields{
		"option":       key,
		"value_length": len(value),
	})

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO options (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now())
	if err != nil {
		log.WithError(err).Error("Failed to save option")
		return err
	}
	log.Info("Option saved successfully")
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM options WHERE name = ?", key)
	if err != nil {
		logrus.WithField("option", key).WithError(err).Error("Failed to delete option")
	}
	return err
}
