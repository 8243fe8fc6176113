package rolemanager

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheEntry is what L2Cache stores: a resolved rights set stamped with the
// permissions_version it was computed against. A read compares Version to
// the current global counter; a mismatch means the entry is stale and must
// be recomputed.
type CacheEntry struct {
	Rights  ResolvedRights
	Version int64
}

// L2Cache is the cross-request cache level. Unlike the L1 request cache, an
// L2 entry can outlive the request that created it, so every read must be
// checked against the current permissions_version before being trusted.
type L2Cache interface {
	Get(ctx context.Context, key string) (CacheEntry, bool, error)
	Set(ctx context.Context, key string, entry CacheEntry) error
}

func l2Key(k cacheKey) string {
	return fmt.Sprintf("%d:%d", k.userID, k.contextID)
}

// noopL2 is the L2Cache used when no cross-request backend is configured.
// Every lookup misses, so resolution always falls through to the database;
// correct but without the cross-request speedup.
type noopL2 struct{}

func newNoopL2() *noopL2 { return &noopL2{} }

func (*noopL2) Get(context.Context, string) (CacheEntry, bool, error) { return CacheEntry{}, false, nil }
func (*noopL2) Set(context.Context, string, CacheEntry) error         { return nil }

// inMemoryL2 is the bounded, single-process L2 backend: an LRU cache shared
// by every request the process handles, suitable for a single-instance
// deployment or as a read-through layer in front of redisL2.
type inMemoryL2 struct {
	cache *lru.Cache[string, CacheEntry]
}

// NewInMemoryL2 builds an in-process, bounded-size L2 cache backend
// (the in-process shared memory option), shared by every request
// the process handles.
func NewInMemoryL2(size int) (L2Cache, error) {
	c, err := lru.New[string, CacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create in-memory L2 cache: %w", err)
	}
	return &inMemoryL2{cache: c}, nil
}

// NewNoopL2 builds the pure-L1 fallback backend: every
// lookup misses, so resolution always falls through to the database.
func NewNoopL2() L2Cache { return newNoopL2() }

func (l *inMemoryL2) Get(_ context.Context, key string) (CacheEntry, bool, error) {
	v, ok := l.cache.Get(key)
	return v, ok, nil
}

func (l *inMemoryL2) Set(_ context.Context, key string, entry CacheEntry) error {
	l.cache.Add(key, entry)
	return nil
}
