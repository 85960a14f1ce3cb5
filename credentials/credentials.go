// Package credentials stores storage-backend credentials under random keys,
// so clients can reference them without resending secrets.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"

	"vidcrush/utils"

	"github.com/cockroachdb/pebble"
)

var ErrNotFound = errors.New("credentials not found")

type Store struct {
	db *pebble.DB
}

// Open opens the credentials database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open credentials store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Register stores creds under a freshly generated key and returns the key.
func (s *Store) Register(creds map[string]string) (string, error) {
	key, err := utils.GenerateRandomHex(16)
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	if err := s.Put(key, creds); err != nil {
		return "", err
	}
	return key, nil
}

// Put stores creds under key, replacing existing ones.
func (s *Store) Put(key string, creds map[string]string) error {
	encoded, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return s.db.Set([]byte(key), encoded, pebble.Sync)
}

func (s *Store) Get(key string) (map[string]string, error) {
	value, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	creds := make(map[string]string)
	if err := json.Unmarshal(value, &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

func (s *Store) Delete(key string) error {
	return s.db.Delete([]byte(key), pebble.Sync)
}
