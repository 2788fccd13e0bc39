package memory

import (
	"context"
	"sync"
	"w9-uploads/core"

	"github.com/sirupsen/logrus"
)

// memStore keeps options in process memory. Values are lost on restart.
type memStore struct {
	mu      sync.RWMutex
	options map[string][]byte
}

// NewStore creates a new in-memory option store.
func NewStore() *memStore {
	return &memStore{options: make(map[string][]byte)}
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.options[key]
	if !ok {
		logrus.WithField("option", key).Debug("Option not found")
		return nil, core.ErrOptionNotFound
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (s *memStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.options[key] = stored
	logrus.WithFields(logrus.Fields{
		"option":       key,
		"value_length": len(value),
	}).Info("Option saved successfully")
	return nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.options, key)
	logrus.WithField("option", key).Info("Option deleted")
	return nil
}
