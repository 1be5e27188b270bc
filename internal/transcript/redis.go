package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
	// TTL expires idle transcripts. Zero keeps them forever.
	TTL time.Duration
}

type RedisStore struct {
	rdb        redis.UniversalClient
	prefix     string
	ttl        time.Duration
	ownsClient bool
}

func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis transcript store requires an address")
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
	s, err := NewRedisStoreFromClient(ctx, rdb, cfg.Prefix)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	s.ttl = cfg.TTL
	s.ownsClient = true
	return s, nil
}

// NewRedisStoreFromClient wraps a caller-managed client; Close leaves it open.
func NewRedisStoreFromClient(ctx context.Context, rdb redis.UniversalClient, prefix string) (*RedisStore, error) {
	if prefix == "" {
		prefix = "novelstream"
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":transcript:" + k
}

func (s *RedisStore) Load(ctx context.Context, key string) (Record, error) {
	b, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load transcript %s: %w", key, err)
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, fmt.Errorf("decode transcript %s: %w", key, err)
	}
	return rec, nil
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	if rec.Key == "" {
		return errors.New("transcript key is required")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(rec.Key), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("save transcript %s: %w", rec.Key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}

func (s *RedisStore) Close() error {
	if s.ownsClient {
		return s.rdb.Close()
	}
	return nil
}
