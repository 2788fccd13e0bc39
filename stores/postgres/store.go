package postgres

import (
	"context"
	"errors"
	"fmt"
	"w9-uploads/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore connects to PostgreSQL and makes sure the options table exists.
func NewStore(ctx context.Context, dsn string) (*pgStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	_, err = pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS options (
		name TEXT PRIMARY KEY,
		value JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create options table: %w", err)
	}

	return &pgStore{pool: pool}, nil
}

func (s *pgStore) Close() {
	s.pool.Close()
}

func (s *pgStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value::text FROM options WHERE name = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrOptionNotFound
		}
		logrus.WithField("option", key).WithError(err).Error("Failed to retrieve option")
		return nil, err
	}
	return value, nil
}

func (s *pgStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
	INSERT INTO options (name, value, updated_at) VALUES ($1, $2::jsonb, now())
	ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, string(value))
	if err != nil {
		logrus.WithField("option", key).WithError(err).Error("Failed to save option")
		return err
	}
	logrus.WithField("option", key).Info("Option saved successfully")
	return nil
}

func (s *pgStore) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM options WHERE name = $1`, key)
	return err
}
