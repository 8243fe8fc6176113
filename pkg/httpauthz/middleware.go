// Package httpauthz is a thin, optional chi middleware adapter around
// rolemanager.Facade.HasRight. It is explicitly outside the engine's core:
// it only calls the facade's public HasRight method, demonstrating the
// boundary rolemanager draws between the authorization engine and the HTTP
// layer without pulling any HTTP concern into the core package.
package httpauthz

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nsrbac/rolemanager/pkg/rolemanager"
)

// UserIDExtractor pulls the authenticated user id out of a request - from
// a session cookie, a bearer token, or whatever the caller's auth layer
// already established. httpauthz does not own authentication; it only
// consumes its result.
type UserIDExtractor func(r *http.Request) (userID int64, ok bool)

// ContextIDExtractor pulls the Context scope a request should be
// evaluated under. A nil *int64 return means the Global Context.
type ContextIDExtractor func(r *http.Request) *int64

// Middleware wires a rolemanager.Facade into chi handler chains.
type Middleware struct {
	facade      *rolemanager.Facade
	extractUser UserIDExtractor
	extractCtx  ContextIDExtractor
}

// New builds a Middleware. extractCtx may be nil, meaning every request is
// evaluated against the Global Context.
func New(facade *rolemanager.Facade, extractUser UserIDExtractor, extractCtx ContextIDExtractor) *Middleware {
	if extractCtx == nil {
		extractCtx = func(*http.Request) *int64 { return nil }
	}
	return &Middleware{facade: facade, extractUser: extractUser, extractCtx: extractCtx}
}

// RequireRight rejects the request with 401 if no user id can be
// extracted, 403 if the user's resolved rights for the request's context
// don't include rightName, and 500 if resolution itself fails. On success
// it attaches a request-scoped L1 cache to the context before calling
// next, so handlers downstream that also call HasRight/ResolveAll for
// the same user/context reuse this resolution instead of recomputing it.
func (m *Middleware) RequireRight(rightName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := m.extractUser(r)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			ctx := rolemanager.WithRequestScope(r.Context())
			contextID := m.extractCtx(r)

			_, granted, err := m.facade.HasRight(ctx, userID, rightName, contextID)
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, "authorization check failed")
				return
			}
			if !granted {
				writeJSONError(w, http.StatusForbidden, "insufficient rights")
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestScope attaches an L1 request cache to every request's context
// without an accompanying rights check, for handlers that call HasRight or
// ResolveAll themselves but still want the per-request cache sharing
// RequireRight gets for free.
func (m *Middleware) RequestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(rolemanager.WithRequestScope(r.Context())))
	})
}

// MountProtected is a small convenience for the common case: a chi.Router
// subtree where every route requires one right. Handlers register routes
// against the returned router exactly as they would against r itself.
func MountProtected(r chi.Router, pattern, rightName string, m *Middleware) chi.Router {
	var sub chi.Router
	r.Route(pattern, func(rt chi.Router) {
		rt.Use(m.RequireRight(rightName))
		sub = rt
	})
	return sub
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
