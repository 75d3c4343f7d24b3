package session

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/betbot/botdash/pkg/config"
	"github.com/betbot/botdash/pkg/persistence"
	"github.com/betbot/botdash/pkg/secretstore"
)

// MemoryStorage keeps the token for the life of the process only.
type MemoryStorage struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{m: make(map[string]string)}
}

func (s *MemoryStorage) GetString(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *MemoryStorage) SetString(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *MemoryStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// OpenStorage builds the configured backend. The returned close func is never nil.
func OpenStorage(cfg config.SessionConfig) (Storage, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.SessionBackendMemory:
		return NewMemoryStorage(), noop, nil
	case config.SessionBackendFile:
		return persistence.NewKV(persistence.NewJSONFileService(cfg.Path), "session"), noop, nil
	case config.SessionBackendBadger, "":
		key, err := secretstore.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, noop, fmt.Errorf("session store key: %w", err)
		}
		st, err := secretstore.Open(secretstore.OpenOptions{Path: cfg.Path, EncryptionKey: key})
		if err != nil {
			return nil, noop, err
		}
		return st, st.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown session backend: %s", cfg.Backend)
}

func decodeJSON(b []byte, v any) error {
	return json.Unmarshal(b, v)
}
