package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"novelstream/internal/config"
)

var ErrNotFound = errors.New("transcript not found")

// Record is one persisted blob of chat sessions, keyed by scope.
type Record struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Store interface {
	Load(ctx context.Context, key string) (Record, error)
	Save(ctx context.Context, rec Record) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	case "redis":
		return NewRedisStore(ctx, RedisConfig{Addr: cfg.RedisAddr, DB: cfg.RedisDB, Prefix: cfg.RedisPrefix})
	default:
		return nil, fmt.Errorf("unknown transcript store %q", cfg.Backend)
	}
}

type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: map[string]Record{}}
}

func (s *MemoryStore) Load(_ context.Context, key string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Data = append(json.RawMessage(nil), rec.Data...)
	return rec, nil
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	if rec.Key == "" {
		return errors.New("transcript key is required")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	rec.Data = append(json.RawMessage(nil), rec.Data...)
	s.mu.Lock()
	s.recs[rec.Key] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.recs, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
