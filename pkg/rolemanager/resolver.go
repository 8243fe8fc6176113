package rolemanager

import (
	"context"
	"fmt"
	"sort"
)

// resolver implements the fast hasRight/resolveAll path and the explainRight path on
// top of a Store, an L2Cache, and whatever L1 request cache is attached to
// the context in play.
type resolver struct {
	store  Store
	l2     L2Cache
	logger *Logger
}

func newResolver(store Store, l2 L2Cache, logger *Logger) *resolver {
	if l2 == nil {
		l2 = newNoopL2()
	}
	if logger == nil {
		logger = NewLogger(nil)
	}
	return &resolver{store: store, l2: l2, logger: logger}
}

// resolveAll returns every right the user holds in the given context
// (nil for Global), checking the L1 request cache, then the L2 cache
// (validated against the current permissions_version), before falling back
// to FindCandidates and the specificity ranker.
func (r *resolver) resolveAll(ctx context.Context, userID int64, contextID *int64) (ResolvedRights, error) {
	key := newCacheKey(userID, contextID)

	if rc := requestCacheFrom(ctx); rc != nil {
		if v, ok := rc.get(key); ok {
			return v, nil
		}
	}

	version, err := r.store.PermissionsVersion(ctx)
	if err != nil {
		return nil, err
	}

	if entry, ok, err := r.l2.Get(ctx, l2Key(key)); err != nil {
		r.logger.Warn(ctx, "L2 cache read failed, falling back to database", "error", err)
	} else if ok && entry.Version == version {
		if rc := requestCacheFrom(ctx); rc != nil {
			rc.put(key, entry.Rights)
		}
		return entry.Rights, nil
	}

	candidates, err := r.store.FindCandidates(ctx, userID, contextID)
	if err != nil {
		return nil, err
	}
	resolved := rankCandidates(candidates)

	if truncated, err := r.store.ClosureTruncated(ctx, userID); err != nil {
		r.logger.Warn(ctx, "closure truncation check failed", "error", err)
	} else if truncated {
		r.logger.Warn(ctx, "group closure traversal truncated at max depth", "user_id", userID, "max_depth", maxGroupDepth)
	}

	if err := r.l2.Set(ctx, l2Key(key), CacheEntry{Rights: resolved, Version: version}); err != nil {
		r.logger.Warn(ctx, "L2 cache write failed", "error", err)
	}
	if rc := requestCacheFrom(ctx); rc != nil {
		rc.put(key, resolved)
	}

	return resolved, nil
}

// hasRight resolves the full rights set and returns the winning value for
// one right, if any candidate grants it.
func (r *resolver) hasRight(ctx context.Context, userID int64, rightName string, contextID *int64) (ResolvedRight, bool, error) {
	resolved, err := r.resolveAll(ctx, userID, contextID)
	if err != nil {
		return ResolvedRight{}, false, err
	}
	rr, ok := resolved[rightName]
	return rr, ok, nil
}

// rankCandidates applies the specificity ranker to every right named by candidates,
// keeping only the winner for each.
func rankCandidates(candidates []Candidate) ResolvedRights {
	order, byRight := groupByRight(candidates)
	out := make(ResolvedRights, len(order))
	for _, name := range order {
		w := winner(byRight[name])
		rr := ResolvedRight{RightName: name, RightType: w.RightType}
		if w.RightType == RightTypeRange && w.RangeValue != nil {
			rr.RangeValue = *w.RangeValue
		} else {
			rr.Value = true
		}
		out[name] = rr
	}
	return out
}

// explainRight always queries fresh (it never reads from either cache level)
// because its whole purpose is showing exactly which rules are in play right
// now, including ones a cached fast-path answer would have discarded.
func (r *resolver) explainRight(ctx context.Context, userID int64, rightName string, contextID *int64) (*Explanation, error) {
	candidates, err := r.store.FindCandidates(ctx, userID, contextID)
	if err != nil {
		return nil, err
	}

	var forRight []Candidate
	for _, c := range candidates {
		if c.RightName == rightName {
			forRight = append(forRight, c)
		}
	}

	if len(forRight) == 0 {
		return &Explanation{
			Decision: false,
			Reason:   fmt.Sprintf("no role assignment, direct or via group membership, grants %q", rightName),
		}, nil
	}

	sort.SliceStable(forRight, func(i, j int) bool {
		si, sj := specificity(forRight[i]), specificity(forRight[j])
		if si != sj {
			return si > sj
		}
		return beatsOnTie(forRight[i], forRight[j])
	})

	win := forRight[0]
	trace := make([]TraceEntry, 0, len(forRight))
	for i, c := range forRight {
		status := StatusOverridden
		if i == 0 {
			status = StatusApplied
		}
		trace = append(trace, TraceEntry{
			Source:      fmt.Sprintf("%s:%s", c.SourceKind, c.SourceDisplayName),
			Role:        c.RoleName,
			Context:     contextLabel(c),
			Value:       candidateValue(c),
			Specificity: specificity(c),
			Status:      status,
		})
	}

	return &Explanation{
		Decision: true,
		Value:    candidateValue(win),
		Reason:   fmt.Sprintf("granted by role %q via %s %q", win.RoleName, win.SourceKind, win.SourceDisplayName),
		Trace:    trace,
	}, nil
}

func contextLabel(c Candidate) string {
	if c.ContextKind == ContextGlobal {
		return "global"
	}
	return c.ContextDisplayName
}

func candidateValue(c Candidate) interface{} {
	if c.RightType == RightTypeRange && c.RangeValue != nil {
		return *c.RangeValue
	}
	return true
}
