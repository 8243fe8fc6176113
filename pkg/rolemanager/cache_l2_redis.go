package rolemanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis"
)

// redisL2 is the cross-process L2 backend, for deployments running more than
// one instance of the engine against the same database. Entries are stored
// with a TTL as a safety net against a missed or delayed version bump; the
// version check on read is still what makes staleness correctness-bearing,
// the TTL just bounds how long a leaked stale entry can live.
type redisL2 struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisL2 opens a client against addr (host:port), authenticating with
// password (empty for no auth) and selecting db, for the cross-process
// Redis-backed L2 cache option. Entries expire after ttl as a backstop
// against a version bump that never lands (e.g. a crashed writer); ttl <= 0
// disables expiry.
func NewRedisL2(addr, password string, db int, ttl time.Duration) (L2Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping().Err(); err != nil {
		return nil, fmt.Errorf("connect to redis L2 backend: %w", err)
	}
	return &redisL2{client: client, ttl: ttl}, nil
}

func (r *redisL2) Get(_ context.Context, key string) (CacheEntry, bool, error) {
	raw, err := r.client.Get(key).Bytes()
	if errors.Is(err, redis.Nil) {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, &InfrastructureError{Op: "redisL2.Get", Err: err}
	}

	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return CacheEntry{}, false, &InfrastructureError{Op: "redisL2.Get", Err: err}
	}
	return entry, true, nil
}

func (r *redisL2) Set(_ context.Context, key string, entry CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return &InfrastructureError{Op: "redisL2.Set", Err: err}
	}
	if err := r.client.Set(key, raw, r.ttl).Err(); err != nil {
		return &InfrastructureError{Op: "redisL2.Set", Err: err}
	}
	return nil
}
