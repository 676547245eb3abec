package models

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"

	"github.com/cfilipov/containerdeck/internal/db"
)

const settingCacheTTL = 60 * time.Second

const keyJWTSecret = "jwtSecret"

type SettingStore struct {
	db    *bolt.DB
	mu    sync.RWMutex
	cache map[string]settingEntry
}

type settingEntry struct {
	value   string
	found   bool
	expires time.Time
}

func NewSettingStore(database *bolt.DB) *SettingStore {
	return &SettingStore{
		db:    database,
		cache: make(map[string]settingEntry),
	}
}

// Get retrieves a setting value by key. Returns "" if not found.
func (s *SettingStore) Get(key string) (string, error) {
	v, _, err := s.Lookup(key)
	return v, err
}

// Lookup is Get that also reports whether the key exists.
func (s *SettingStore) Lookup(key string) (string, bool, error) {
	s.mu.RLock()
	if entry, ok := s.cache[key]; ok && time.Now().Before(entry.expires) {
		s.mu.RUnlock()
		return entry.value, entry.found, nil
	}
	s.mu.RUnlock()

	var val string
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(db.BucketSettings).Get([]byte(key)); v != nil {
			val, found = string(v), true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("get setting %q: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = settingEntry{value: val, found: found, expires: time.Now().Add(settingCacheTTL)}
	s.mu.Unlock()

	return val, found, nil
}

// Set stores a setting value (upsert).
func (s *SettingStore) Set(key, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(db.BucketSettings).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = settingEntry{value: value, found: true, expires: time.Now().Add(settingCacheTTL)}
	s.mu.Unlock()

	return nil
}

// Delete removes a setting. Deleting a missing key is not an error.
func (s *SettingStore) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(db.BucketSettings).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete setting %q: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = settingEntry{expires: time.Now().Add(settingCacheTTL)}
	s.mu.Unlock()

	return nil
}

// EnsureJWTSecret creates the session signing secret if it doesn't exist.
// Returns the secret value.
func (s *SettingStore) EnsureJWTSecret() (string, error) {
	secret, err := s.Get(keyJWTSecret)
	if err != nil {
		return "", err
	}
	if secret != "" {
		return secret, nil
	}

	raw, err := GenSecret(secretLength)
	if err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}

	secret = string(hash)
	if err := s.Set(keyJWTSecret, secret); err != nil {
		return "", err
	}

	slog.Info("generated new JWT secret")
	return secret, nil
}
