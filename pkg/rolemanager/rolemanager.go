// Package rolemanager provides a fine-grained, context-scoped Role-Based
// Access Control engine for Go applications: users and groups, a DAG of
// group-to-group membership, boolean and numeric-range rights, and roles
// that bind rights to values. Role assignments are evaluated per Context
// (tenant, project, workspace, or the Global Context) and resolved through
// a specificity ranker so the most targeted applicable rule wins.
//
// Core Features:
//   - Groups form a directed acyclic graph; a user inherits every right
//     granted to any ancestor of any group they belong to.
//   - Rights are boolean or range-valued; range values are fixed two
//     decimal places via github.com/shopspring/decimal.
//   - Role assignments are scoped to a Context or left Global; a Specific
//     context assignment always outranks a Global one for the same right.
//   - A two-level cache (per-request L1, cross-request L2) backed by a
//     monotonic permissions_version counter keeps reads fast without
//     serving stale answers across a mutation.
//   - explainRight produces a full decision trace for auditing and support.
//
// Basic Usage:
//
//	store := rolemanager.NewSQLStore(db)
//	facade := rolemanager.New(store, rolemanager.Options{})
//
//	roleID, _ := facade.Roles().Create(ctx, "editor")
//	rightID, _ := facade.Rights().Create(ctx, "publish_article", rightGroupID, rolemanager.RightTypeBoolean, nil)
//	facade.Roles().AttachRight(ctx, roleID, rightID, nil)
//	facade.Users().AssignRole(ctx, aliceID, nil, roleID)
//
//	_, granted, _ := facade.HasRight(ctx, aliceID, "publish_article", nil)
//
// Storage Interface:
//
// Store defines every persistence operation the engine needs. SQLStore is
// the Postgres-backed implementation; tests exercise a separate in-memory
// fake built against the same interface.
package rolemanager

import (
	"context"
	"strings"

	"github.com/nsrbac/rolemanager/pkg/password"
)

// VERSION is the engine's own release version, independent of
// permissions_version (the per-deployment authorization data version
// tracked in role_manager_config).
const VERSION = "1.0.0"

// Options configures a Facade.
type Options struct {
	// L2 is the cross-request cache backend. Defaults to a no-op cache
	// (every lookup falls through to the database) when nil.
	L2 L2Cache
	// Logger receives resolution warnings (cache errors, closure
	// truncation). Structural writes are not logged. Defaults to a
	// Logger wrapping slog.Default() when nil.
	Logger *Logger
	// PasswordVerifier backs Auth().Authenticate/SetPassword. Defaults to
	// password.NewArgon2Verifier() when nil.
	PasswordVerifier password.Verifier
}

// Facade is the engine's single entry point. Every mutating or
// entity-scoped operation lives on one of its sub-facades; resolution
// (hasRight/explainRight) lives directly on the Facade itself.
type Facade struct {
	store    Store
	resolver *resolver
	logger   *Logger
	verifier password.Verifier
}

// New builds a Facade over store.
func New(store Store, opts Options) *Facade {
	logger := opts.Logger
	if logger == nil {
		logger = NewLogger(nil)
	}
	verifier := opts.PasswordVerifier
	if verifier == nil {
		verifier = password.NewArgon2Verifier()
	}
	return &Facade{
		store:    store,
		resolver: newResolver(store, opts.L2, logger),
		logger:   logger,
		verifier: verifier,
	}
}

// WithRequestScope attaches a fresh L1 cache to ctx. Callers should do this
// once per inbound request (or per unit of work) before calling HasRight or
// ResolveAll, so repeated lookups within that scope share one resolution.
// ExplainRight does not use the L1 cache.
func WithRequestScope(ctx context.Context) context.Context {
	return withRequestCache(ctx)
}

// HasRight resolves every right the user holds in contextID (nil for
// Global) and reports whether rightName is among them, along with its
// granted value.
func (f *Facade) HasRight(ctx context.Context, userID int64, rightName string, contextID *int64) (ResolvedRight, bool, error) {
	return f.resolver.hasRight(ctx, userID, rightName, contextID)
}

// ResolveAll returns every right the user holds in contextID.
func (f *Facade) ResolveAll(ctx context.Context, userID int64, contextID *int64) (ResolvedRights, error) {
	return f.resolver.resolveAll(ctx, userID, contextID)
}

// ExplainRight produces a full decision trace for one right, bypassing both
// cache levels so the trace always reflects the current data.
func (f *Facade) ExplainRight(ctx context.Context, userID int64, rightName string, contextID *int64) (*Explanation, error) {
	return f.resolver.explainRight(ctx, userID, rightName, contextID)
}

// Users returns the user sub-facade.
func (f *Facade) Users() *UsersFacade { return &UsersFacade{f: f} }

// Groups returns the group sub-facade.
func (f *Facade) Groups() *GroupsFacade { return &GroupsFacade{f: f} }

// RightGroups returns the right-group sub-facade.
func (f *Facade) RightGroups() *RightGroupsFacade { return &RightGroupsFacade{f: f} }

// RightTypes returns the range-definition sub-facade.
func (f *Facade) RightTypes() *RightTypesFacade { return &RightTypesFacade{f: f} }

// Rights returns the right sub-facade.
func (f *Facade) Rights() *RightsFacade { return &RightsFacade{f: f} }

// Roles returns the role sub-facade.
func (f *Facade) Roles() *RolesFacade { return &RolesFacade{f: f} }

// Contexts returns the context sub-facade.
func (f *Facade) Contexts() *ContextsFacade { return &ContextsFacade{f: f} }

// Auth returns the authentication sub-facade.
func (f *Facade) Auth() *AuthFacade { return &AuthFacade{f: f, verifier: f.verifier} }

func requireNonEmpty(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Message: "must not be empty"}
	}
	return nil
}
