// Package cache provides a Redis read-through cache in front of the store.
//
// Only function records are cached. Credentials hold sealed secrets and
// always come from the database. Redis failures are logged and the request
// falls through to the wrapped store.
//
// Each function has a version key that every invalidation increments. A
// read-through fill only writes when the version it saw before loading from
// the database is still current, so a fill that raced with a committed update
// cannot put the old row back.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artpar/fnhost/internal/core/function"
	"github.com/artpar/fnhost/internal/shell/store"
)

const keyPrefix = "fnhost:function:"

// fillScript sets KEYS[1] to ARGV[1] with TTL ARGV[2] milliseconds only if the
// version key KEYS[2] still holds ARGV[3] ("" when absent).
var fillScript = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or ""
if current ~= ARGV[3] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// DefaultTTL is used when Config.TTL is zero.
const DefaultTTL = 5 * time.Minute

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewClient creates a Redis client and checks the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Store decorates a store.Store with cached function reads.
type Store struct {
	store.Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// New wraps inner with a cache backed by client.
func New(inner store.Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		Store:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "cache"),
	}
}

func functionKey(id string) string {
	return keyPrefix + id
}

func versionKey(id string) string {
	return keyPrefix + id + ":version"
}

// GetFunction returns the cached record or loads it from the wrapped store.
func (s *Store) GetFunction(ctx context.Context, id string) (*function.Function, error) {
	data, err := s.client.Get(ctx, functionKey(id)).Bytes()
	switch {
	case err == nil:
		var fn function.Function
		if jsonErr := json.Unmarshal(data, &fn); jsonErr == nil {
			return &fn, nil
		}
		s.logger.Warn("discarding undecodable cache entry", "function_id", id)
	case !errors.Is(err, redis.Nil):
		s.logger.Warn("cache read failed", "function_id", id, "error", err)
	}

	seen, verErr := s.client.Get(ctx, versionKey(id)).Result()
	if errors.Is(verErr, redis.Nil) {
		seen, verErr = "", nil
	}

	fn, err := s.Store.GetFunction(ctx, id)
	if err != nil {
		return nil, err
	}
	if verErr == nil {
		s.fill(ctx, fn, seen)
	}
	return fn, nil
}

// UpdateFunction writes through and drops the cached entry.
func (s *Store) UpdateFunction(ctx context.Context, fn *function.Function) error {
	if err := s.Store.UpdateFunction(ctx, fn); err != nil {
		return err
	}
	s.invalidate(ctx, fn.ID)
	return nil
}

// DeleteFunction deletes and drops the cached entry.
func (s *Store) DeleteFunction(ctx context.Context, id string) error {
	if err := s.Store.DeleteFunction(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// WithTx runs fn in a transaction of the wrapped store. Entries touched in
// the transaction are invalidated after it commits; reads inside the
// transaction bypass the cache.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	var touched []string

	err := s.Store.WithTx(ctx, func(tx store.Store) error {
		return fn(&txStore{Store: tx, touched: &touched})
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, touched...)
	return nil
}

// fill caches fn unless the function was invalidated after version seen was
// read.
func (s *Store) fill(ctx context.Context, fn *function.Function, seen string) {
	data, err := json.Marshal(fn)
	if err != nil {
		return
	}
	keys := []string{functionKey(fn.ID), versionKey(fn.ID)}
	written, err := fillScript.Run(ctx, s.client, keys, data, s.ttl.Milliseconds(), seen).Int()
	switch {
	case err != nil:
		s.logger.Warn("cache write failed", "function_id", fn.ID, "error", err)
	case written == 0:
		s.logger.Debug("skipped stale cache fill", "function_id", fn.ID)
	}
}

func (s *Store) invalidate(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			keys[i] = functionKey(id)
			pipe.Incr(ctx, versionKey(id))
			pipe.PExpire(ctx, versionKey(id), 2*s.ttl)
		}
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		s.logger.Warn("cache invalidation failed", "keys", keys, "error", err)
	}
}

// txStore records which functions a transaction modifies.
type txStore struct {
	store.Store
	touched *[]string
}

func (t *txStore) UpdateFunction(ctx context.Context, fn *function.Function) error {
	if err := t.Store.UpdateFunction(ctx, fn); err != nil {
		return err
	}
	*t.touched = append(*t.touched, fn.ID)
	return nil
}

func (t *txStore) DeleteFunction(ctx context.Context, id string) error {
	if err := t.Store.DeleteFunction(ctx, id); err != nil {
		return err
	}
	*t.touched = append(*t.touched, id)
	return nil
}

func (t *txStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return fn(t)
}
