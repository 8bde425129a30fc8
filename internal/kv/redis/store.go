package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"ermtutor/internal/kv"
)

// Config holds connection parameters for a Redis store.
type Config struct {
	Addrs    []string
	Password string
	TTL      time.Duration
}

// Store is a small rueidis-backed key-value store.
type Store struct {
	client rueidis.Client
	ttl    time.Duration
}

// NewStore connects to Redis. rueidis dials eagerly, so an unreachable server fails here.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("addrs is required")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Password:     cfg.Password,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &Store{client: client, ttl: cfg.TTL}, nil
}

// NewStoreForTest wraps an existing client.
func NewStoreForTest(c rueidis.Client, ttl time.Duration) *Store {
	return &Store{client: c, ttl: ttl}
}

// Get retrieves a value by key. A missing key returns kv.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := s.client.B().Get().Key(key).Build()
	data, err := s.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, kv.ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Set stores a value, expiring it after the configured TTL when one is set.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	var cmd rueidis.Completed
	if s.ttl > 0 {
		cmd = s.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(s.ttl).Build()
	} else {
		cmd = s.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// HealthCheck reports whether Redis answers.
func (s *Store) HealthCheck(ctx context.Context) error { return s.Ping(ctx) }

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}
