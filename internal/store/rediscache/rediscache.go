// Package rediscache provides an optional write-through memoization layer
// in front of any store.Store, built on github.com/redis/go-redis/v9 (the
// driver carried by the go-utils example pack's database/redis package).
// It exists because spec §4.5/§4.6 flag memoization of handler output and
// CID resolution as a real performance concern for a URL-as-program engine
// where identical sub-pipelines recur across requests. It is never the
// source of truth — only an accelerator: a cache hit must equal what the
// wrapped Store would have returned, and a cache miss or a Redis outage
// falls straight through to the wrapped Store.
package rediscache

import (
	"context"
	"errors"
	"time"

	"github.com/jgavinray/urlexec/internal/store"
	goredis "github.com/redis/go-redis/v9"
)

// client is the subset of *redis.Client used here, so tests can substitute
// a fake without dialing a real server.
type client interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// redisClient adapts *goredis.Client to the client interface.
type redisClient struct {
	rdb *goredis.Client
}

func (r redisClient) Get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", store.ErrNotFound
	}
	return v, err
}

func (r redisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

// Store wraps an underlying store.Store with a Redis-backed cache in front
// of Get and Resolve. Put and ListByPrefix pass straight through: Put must
// always reach the source of truth, and prefix listing is not cached.
type Store struct {
	next store.Store
	rdb  client
	ttl  time.Duration
}

// New wraps next with a memoization cache backed by the given
// *redis.Client, with entries expiring after ttl.
func New(next store.Store, rdb *goredis.Client, ttl time.Duration) *Store {
	return &Store{next: next, rdb: redisClient{rdb}, ttl: ttl}
}

// newWithClient is used by tests to inject a fake client.
func newWithClient(next store.Store, c client, ttl time.Duration) *Store {
	return &Store{next: next, rdb: c, ttl: ttl}
}

func blobKey(cid store.CID) string { return "urlexec:blob:" + string(cid) }

func entityKey(kind store.Kind, name string) string { return "urlexec:entity:" + string(kind) + ":" + name }

// Put always writes through to the wrapped Store; the cache is populated
// lazily on the next Get, keeping Put cheap and avoiding a write to a
// Redis instance that may not even be reachable.
func (s *Store) Put(ctx context.Context, data []byte) (store.CID, error) {
	return s.next.Put(ctx, data)
}

// Get checks the cache first; on a miss (including a Redis error) it falls
// through to the wrapped Store and populates the cache for next time.
func (s *Store) Get(ctx context.Context, cid store.CID) ([]byte, error) {
	if cached, err := s.rdb.Get(ctx, blobKey(cid)); err == nil {
		return []byte(cached), nil
	}

	data, err := s.next.Get(ctx, cid)
	if err != nil {
		return nil, err
	}
	_ = s.rdb.Set(ctx, blobKey(cid), string(data), s.ttl)
	return data, nil
}

// Resolve checks the cache first (CID-backed resolutions only — inline
// values are cheap enough on the wrapped Store not to need caching and
// caching secrets in a shared Redis instance is a policy decision this
// package should not make silently), falling through on a miss.
func (s *Store) Resolve(ctx context.Context, kind store.Kind, name string) (store.Resolved, error) {
	if cached, err := s.rdb.Get(ctx, entityKey(kind, name)); err == nil {
		return store.Resolved{CID: store.CID(cached)}, nil
	}

	r, err := s.next.Resolve(ctx, kind, name)
	if err != nil {
		return store.Resolved{}, err
	}
	if !r.IsInline {
		_ = s.rdb.Set(ctx, entityKey(kind, name), string(r.CID), s.ttl)
	}
	return r, nil
}

// ListByPrefix always passes through to the wrapped Store.
func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]store.CID, error) {
	return s.next.ListByPrefix(ctx, prefix)
}
