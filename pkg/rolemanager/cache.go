package rolemanager

import (
	"context"
	"sync"
)

type cacheKey struct {
	userID    int64
	contextID int64 // 0 means the Global Context; real ids start at 1.
}

func newCacheKey(userID int64, contextID *int64) cacheKey {
	k := cacheKey{userID: userID}
	if contextID != nil {
		k.contextID = *contextID
	}
	return k
}

// requestCache is the L1 cache: per-request, never version-checked
// because it cannot outlive the request it was built for. It is attached to
// a context.Context so repeated HasRight/ResolveAll calls for the same user
// and context within one request share one lookup.
type requestCache struct {
	mu       sync.Mutex
	resolved map[cacheKey]ResolvedRights
}

type requestCacheKeyType struct{}

var requestCacheKey requestCacheKeyType

// withRequestCache attaches a fresh L1 cache to ctx. Call this once per
// inbound request; resolveAll looks for it and falls back to resolving
// without an L1 cache if it isn't present. explainRight never reads it.
func withRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestCacheKey, &requestCache{resolved: make(map[cacheKey]ResolvedRights)})
}

func requestCacheFrom(ctx context.Context) *requestCache {
	rc, _ := ctx.Value(requestCacheKey).(*requestCache)
	return rc
}

func (rc *requestCache) get(k cacheKey) (ResolvedRights, bool) {
	if rc == nil {
		return nil, false
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	v, ok := rc.resolved[k]
	return v, ok
}

func (rc *requestCache) put(k cacheKey, v ResolvedRights) {
	if rc == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.resolved[k] = v
}
