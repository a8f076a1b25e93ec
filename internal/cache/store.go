// Package cache keeps encoded feature collections between identical
// queries. Queries with BypassCache set never read or write it.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
)

// Store is a byte cache. Get reports ok=false on a miss.
type Store interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// LRU is an in-process store. Entry lifetime is fixed at construction, so
// the ttl passed to Set is ignored.
type LRU struct {
	c *lru.LRU[string, []byte]
}

func NewLRU(size int, ttl time.Duration) *LRU {
	if size <= 0 {
		size = 64
	}
	return &LRU{c: lru.NewLRU[string, []byte](size, nil, ttl)}
}

func (s *LRU) Name() string { return "lru" }

func (s *LRU) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	return v, ok, nil
}

func (s *LRU) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	s.c.Add(key, val)
	return nil
}

// Redis shares cached collections between server replicas.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

func (s *Redis) Name() string { return "redis" }

func (s *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis GET %q: %w", key, err)
	}
	return v, true, nil
}

func (s *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %q: %w", key, err)
	}
	return nil
}

func (s *Redis) Close() error {
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

// Chain consults stores in order and backfills the earlier ones on a hit
// further down. Set writes every store.
type Chain struct {
	stores []Store
}

func NewChain(stores ...Store) *Chain {
	var list []Store
	for _, s := range stores {
		if s != nil {
			list = append(list, s)
		}
	}
	return &Chain{stores: list}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var firstErr error
	for i, s := range c.stores {
		v, ok, err := s.Get(ctx, key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			for _, prev := range c.stores[:i] {
				_ = prev.Set(ctx, key, v, 0)
			}
			return v, true, nil
		}
	}
	return nil, false, firstErr
}

func (c *Chain) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	var errs []error
	for _, s := range c.stores {
		if err := s.Set(ctx, key, val, ttl); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
