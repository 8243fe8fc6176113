package rolemanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	_ "github.com/lib/pq"
)

// maxGroupDepth bounds upward group traversal. A chain of subgroup edges
// deeper than this is treated as the closure's edge and logged, rather than
// walked indefinitely; real org charts are never this deep, and runaway
// traversal usually means a data entry mistake slipped past addSubgroup's
// cycle check.
const maxGroupDepth = 10

// Store defines the persistence operations the engine needs. SQLStore is the
// production implementation; tests exercise a separate in-memory fake built
// directly against this interface, so every method here must be expressible
// without relying on SQLStore's transaction boundaries.
type Store interface {
	// Users

	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByLogin(ctx context.Context, login string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	CreateUser(ctx context.Context, u *User) (int64, error)
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id int64) error
	CountUserContextRoles(ctx context.Context, userID int64) (int, error)

	// Groups

	GetGroup(ctx context.Context, id int64) (*Group, error)
	GetGroupByName(ctx context.Context, name string) (*Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	CreateGroup(ctx context.Context, g *Group) (int64, error)
	UpdateGroup(ctx context.Context, g *Group) error
	DeleteGroup(ctx context.Context, id int64) error

	AddGroupMember(ctx context.Context, userID, groupID int64) error
	RemoveGroupMember(ctx context.Context, userID, groupID int64) error
	ListUserGroups(ctx context.Context, userID int64) ([]int64, error)
	ListGroupMembers(ctx context.Context, groupID int64) ([]int64, error)
	CountGroupMembers(ctx context.Context, groupID int64) (int, error)

	AddSubgroup(ctx context.Context, parentGroupID, childGroupID int64) error
	RemoveSubgroup(ctx context.Context, parentGroupID, childGroupID int64) error
	ListGroupEdges(ctx context.Context) ([]GroupEdge, error)
	CountGroupEdges(ctx context.Context, groupID int64) (int, error)
	CountGroupContextRoles(ctx context.Context, groupID int64) (int, error)

	// Right groups and range definitions

	GetRightGroup(ctx context.Context, id int64) (*RightGroup, error)
	ListRightGroups(ctx context.Context) ([]RightGroup, error)
	CreateRightGroup(ctx context.Context, rg *RightGroup) (int64, error)
	UpdateRightGroup(ctx context.Context, rg *RightGroup) error
	DeleteRightGroup(ctx context.Context, id int64) error
	CountRightsInGroup(ctx context.Context, rightGroupID int64) (int, error)

	GetRightTypeRange(ctx context.Context, id int64) (*RightTypeRange, error)
	ListRightTypeRanges(ctx context.Context) ([]RightTypeRange, error)
	CreateRightTypeRange(ctx context.Context, r *RightTypeRange) (int64, error)
	UpdateRightTypeRange(ctx context.Context, r *RightTypeRange) error
	DeleteRightTypeRange(ctx context.Context, id int64) error
	CountRightsUsingRange(ctx context.Context, rangeID int64) (int, error)

	// Rights

	GetRight(ctx context.Context, id int64) (*Right, error)
	GetRightByName(ctx context.Context, name string) (*Right, error)
	ListRights(ctx context.Context) ([]Right, error)
	CreateRight(ctx context.Context, r *Right) (int64, error)
	UpdateRight(ctx context.Context, r *Right) error
	DeleteRight(ctx context.Context, id int64) error
	CountRoleRightsForRight(ctx context.Context, rightID int64) (int, error)

	// Roles

	GetRole(ctx context.Context, id int64) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	CreateRole(ctx context.Context, r *Role) (int64, error)
	UpdateRole(ctx context.Context, r *Role) error
	DeleteRole(ctx context.Context, id int64) error
	CountRoleAssignments(ctx context.Context, roleID int64) (int, error)

	AttachRight(ctx context.Context, rr *RoleRight) error
	DetachRight(ctx context.Context, roleID, rightID int64) error
	ListRoleRights(ctx context.Context, roleID int64) ([]RoleRight, error)

	// Contexts

	GetContext(ctx context.Context, id int64) (*Context, error)
	GetContextByName(ctx context.Context, name string) (*Context, error)
	ListContexts(ctx context.Context) ([]Context, error)
	CreateContext(ctx context.Context, c *Context) (int64, error)
	UpdateContext(ctx context.Context, c *Context) error
	DeleteContext(ctx context.Context, id int64) error
	CountContextAssignments(ctx context.Context, contextID int64) (int, error)

	// Assignments

	AssignUserContextRole(ctx context.Context, a *UserContextRole) error
	RevokeUserContextRole(ctx context.Context, userID int64, contextID *int64, roleID int64) error
	ListUserContextRoles(ctx context.Context, userID int64) ([]UserContextRole, error)

	AssignGroupContextRole(ctx context.Context, a *GroupContextRole) error
	RevokeGroupContextRole(ctx context.Context, groupID int64, contextID *int64, roleID int64) error
	ListGroupContextRoles(ctx context.Context, groupID int64) ([]GroupContextRole, error)

	// Resolution

	// FindCandidates returns every (role, right) rule reachable by the user,
	// either directly or via group membership, restricted to rules whose
	// context is Global or matches contextID. Distance is 0 for direct user
	// assignments and the subgroup distance for group-sourced ones.
	FindCandidates(ctx context.Context, userID int64, contextID *int64) ([]Candidate, error)

	// ClosureTruncated reports whether the user's group closure has at
	// least one ancestor beyond maxGroupDepth hops, i.e. whether
	// FindCandidates silently dropped candidates past the max group depth.
	// It is a best-effort diagnostic: callers log a warning on true and
	// otherwise ignore the result, never failing resolution because of it.
	ClosureTruncated(ctx context.Context, userID int64) (bool, error)

	// PermissionsVersion and BumpPermissionsVersion implement the global
	// mutation counter. Structural writes made through structuralWrite call
	// BumpPermissionsVersion after the write succeeds, as a separate
	// statement; the write and the bump are not one transaction. Only
	// SQLStore's AddSubgroup and RemoveSubgroup bump inside the write's own
	// transaction.
	PermissionsVersion(ctx context.Context) (int64, error)
	BumpPermissionsVersion(ctx context.Context) (int64, error)
}

// SQLStore is the Postgres-backed Store implementation.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an already-configured *sql.DB. The caller owns the
// connection's lifecycle (pooling, timeouts, TLS); NewSQLStore assumes the
// schema has already been brought up to date via Migrator.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) GetUser(ctx context.Context, id int64) (*User, error) {
	const q = `SELECT id, login, email, password_hash, first_name, last_name, created_at, updated_at
	           FROM role_manager_users WHERE id = $1`
	u := &User{}
	err := s.db.QueryRowContext(ctx, q, id).Scan(&u.ID, &u.Login, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "user", Key: id}
	}
	if err != nil {
		return nil, &InfrastructureError{Op: "GetUser", Err: err}
	}
	return u, nil
}

func (s *SQLStore) GetUserByLogin(ctx context.Context, login string) (*User, error) {
	const q = `SELECT id, login, email, password_hash, first_name, last_name, created_at, updated_at
	           FROM role_manager_users WHERE login = $1`
	u := &User{}
	err := s.db.QueryRowContext(ctx, q, login).Scan(&u.ID, &u.Login, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "user", Key: login}
	}
	if err != nil {
		return nil, &InfrastructureError{Op: "GetUserByLogin", Err: err}
	}
	return u, nil
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	const q = `SELECT id, login, email, password_hash, first_name, last_name, created_at, updated_at
	           FROM role_manager_users WHERE email = $1`
	u := &User{}
	err := s.db.QueryRowContext(ctx, q, email).Scan(&u.ID, &u.Login, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "user", Key: email}
	}
	if err != nil {
		return nil, &InfrastructureError{Op: "GetUserByEmail", Err: err}
	}
	return u, nil
}

func (s *SQLStore) ListUsers(ctx context.Context) ([]User, error) {
	const q = `SELECT id, login, email, password_hash, first_name, last_name, created_at, updated_at
	           FROM role_manager_users ORDER BY login`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, &InfrastructureError{Op: "ListUsers", Err: err}
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Login, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, &InfrastructureError{Op: "ListUsers", Err: err}
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateUser(ctx context.Context, u *User) (int64, error) {
	const q = `INSERT INTO role_manager_users (login, email, password_hash, first_name, last_name)
	           VALUES ($1, $2, $3, $4, $5) RETURNING id`
	var id int64
	err := s.db.QueryRowContext(ctx, q, u.Login, u.Email, u.PasswordHash, u.FirstName, u.LastName).Scan(&id)
	if isUniqueViolation(err) {
		return 0, &ConflictError{Entity: "user", Key: u.Login}
	}
	if err != nil {
		return 0, &InfrastructureError{Op: "CreateUser", Err: err}
	}
	return id, nil
}

func (s *SQLStore) UpdateUser(ctx context.Context, u *User) error {
	const q = `UPDATE role_manager_users SET login=$1, email=$2, password_hash=$3, first_name=$4, last_name=$5, updated_at=NOW()
	           WHERE id=$6`
	res, err := s.db.ExecContext(ctx, q, u.Login, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.ID)
	if isUniqueViolation(err) {
		return &ConflictError{Entity: "user", Key: u.Login}
	}
	if err != nil {
		return &InfrastructureError{Op: "UpdateUser", Err: err}
	}
	return requireRowAffected(res, "user", u.ID)
}

func (s *SQLStore) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM role_manager_users WHERE id=$1`, id)
	if isForeignKeyViolation(err) {
		return &DependencyError{Entity: "user", Reason: "has role assignments"}
	}
	if err != nil {
		return &InfrastructureError{Op: "DeleteUser", Err: err}
	}
	return requireRowAffected(res, "user", id)
}

func (s *SQLStore) CountUserContextRoles(ctx context.Context, userID int64) (int, error) {
	return s.countWhere(ctx, "role_manager_user_context_roles", "user_id", userID)
}

func (s *SQLStore) GetGroup(ctx context.Context, id int64) (*Group, error) {
	const q = `SELECT id, name, description, created_at, updated_at FROM role_manager_groups WHERE id=$1`
	g := &Group{}
	err := s.db.QueryRowContext(ctx, q, id).Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "group", Key: id}
	}
	if err != nil {
		return nil, &InfrastructureError{Op: "GetGroup", Err: err}
	}
	return g, nil
}

func (s *SQLStore) GetGroupByName(ctx context.Context, name string) (*Group, error) {
	const q = `SELECT id, name, description, created_at, updated_at FROM role_manager_groups WHERE name=$1`
	g := &Group{}
	err := s.db.QueryRowContext(ctx, q, name).Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "group", Key: name}
	}
	if err != nil {
		return nil, &InfrastructureError{Op: "GetGroupByName", Err: err}
	}
	return g, nil
}

func (s *SQLStore) ListGroups(ctx context.Context) ([]Group, error) {
	const q = `SELECT id, name, description, created_at, updated_at FROM role_manager_groups ORDER BY name`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, &InfrastructureError{Op: "ListGroups", Err: err}
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, &InfrastructureError{Op: "ListGroups", Err: err}
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateGroup(ctx context.Context, g *Group) (int64, error) {
	const q = `INSERT INTO role_manager_groups (name, description) VALUES ($1, $2) RETURNING id`
	var id int64
	err := s.db.QueryRowContext(ctx, q, g.Name, g.Description).Scan(&id)
	if isUniqueViolation(err) {
		return 0, &ConflictError{Entity: "group", Key: g.Name}
	}
	if err != nil {
		return 0, &InfrastructureError{Op: "CreateGroup", Err: err}
	}
	return id, nil
}

func (s *SQLStore) UpdateGroup(ctx context.Context, g *Group) error {
	const q = `UPDATE role_manager_groups SET name=$1, description=$2, updated_at=NOW() WHERE id=$3`
	res, err := s.db.ExecContext(ctx, q, g.Name, g.Description, g.ID)
	if isUniqueViolation(err) {
		return &ConflictError{Entity: "group", Key: g.Name}
	}
	if err != nil {
		return &InfrastructureError{Op: "UpdateGroup", Err: err}
	}
	return requireRowAffected(res, "group", g.ID)
}

func (s *SQLStore) DeleteGroup(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM role_manager_groups WHERE id=$1`, id)
	if isForeignKeyViolation(err) {
		return &DependencyError{Entity: "group", Reason: "has members, subgroup edges, or role assignments"}
	}
	if err != nil {
		return &InfrastructureError{Op: "DeleteGroup", Err: err}
	}
	return requireRowAffected(res, "group", id)
}

func (s *SQLStore) AddGroupMember(ctx context.Context, userID, groupID int64) error {
	const q = `INSERT INTO role_manager_user_groups (user_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	_, err := s.db.ExecContext(ctx, q, userID, groupID)
	if err != nil {
		return &InfrastructureError{Op: "AddGroupMember", Err: err}
	}
	return nil
}

func (s *SQLStore) RemoveGroupMember(ctx context.Context, userID, groupID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM role_manager_user_groups WHERE user_id=$1 AND group_id=$2`, userID, groupID)
	if err != nil {
		return &InfrastructureError{Op: "RemoveGroupMember", Err: err}
	}
	return nil
}

func (s *SQLStore) ListUserGroups(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT group_id FROM role_manager_user_groups WHERE user_id=$1`, userID)
	if err != nil {
		return nil, &InfrastructureError{Op: "ListUserGroups", Err: err}
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, &InfrastructureError{Op: "ListUserGroups", Err: err}
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListGroupMembers(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM role_manager_user_groups WHERE group_id=$1`, groupID)
	if err != nil {
		return nil, &InfrastructureError{Op: "ListGroupMembers", Err: err}
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, &InfrastructureError{Op: "ListGroupMembers", Err: err}
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountGroupMembers(ctx context.Context, groupID int64) (int, error) {
	return s.countWhere(ctx, "role_manager_user_groups", "group_id", groupID)
}

// groupGraphLockKey is the pg_advisory_xact_lock key guarding the whole
// group_subgroups table. Two concurrent addSubgroup calls both read the
// edge list to check for a cycle before inserting; without this lock, two
// calls that are each individually fine can interleave into a cycle
// neither one could see coming.
const groupGraphLockKey = 0x726f6c656d677270 // "rolemgrp" as hex, arbitrary but stable

func (s *SQLStore) AddSubgroup(ctx context.Context, parentGroupID, childGroupID int64) error {
	if parentGroupID == childGroupID {
		return ErrSelfParent
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &InfrastructureError{Op: "AddSubgroup", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, groupGraphLockKey); err != nil {
		return &InfrastructureError{Op: "AddSubgroup", Err: err}
	}

	rows, err := tx.QueryContext(ctx, `SELECT parent_group_id, child_group_id FROM role_manager_group_subgroups`)
	if err != nil {
		return &InfrastructureError{Op: "AddSubgroup", Err: err}
	}
	var edges []GroupEdge
	for rows.Next() {
		var e GroupEdge
		if err := rows.Scan(&e.ParentGroupID, &e.ChildGroupID); err != nil {
			rows.Close()
			return &InfrastructureError{Op: "AddSubgroup", Err: err}
		}
		edges = append(edges, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return &InfrastructureError{Op: "AddSubgroup", Err: err}
	}

	if wouldCycle(parentGroupID, childGroupID, edges) {
		return ErrCyclicGroupEdge
	}

	const insert = `INSERT INTO role_manager_group_subgroups (parent_group_id, child_group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := tx.ExecContext(ctx, insert, parentGroupID, childGroupID); err != nil {
		if isForeignKeyViolation(err) {
			return &NotFoundError{Entity: "group", Key: parentGroupID}
		}
		return &InfrastructureError{Op: "AddSubgroup", Err: err}
	}

	const bump = `UPDATE role_manager_config SET value = value + 1 WHERE key = 'permissions_version'`
	if _, err := tx.ExecContext(ctx, bump); err != nil {
		return &InfrastructureError{Op: "AddSubgroup", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &InfrastructureError{Op: "AddSubgroup", Err: err}
	}
	return nil
}

func (s *SQLStore) RemoveSubgroup(ctx context.Context, parentGroupID, childGroupID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &InfrastructureError{Op: "RemoveSubgroup", Err: err}
	}
	defer tx.Rollback()

	const del = `DELETE FROM role_manager_group_subgroups WHERE parent_group_id=$1 AND child_group_id=$2`
	if _, err := tx.ExecContext(ctx, del, parentGroupID, childGroupID); err != nil {
		return &InfrastructureError{Op: "RemoveSubgroup", Err: err}
	}
	const bump = `UPDATE role_manager_config SET value = value + 1 WHERE key = 'permissions_version'`
	if _, err := tx.ExecContext(ctx, bump); err != nil {
		return &InfrastructureError{Op: "RemoveSubgroup", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &InfrastructureError{Op: "RemoveSubgroup", Err: err}
	}
	return nil
}

func (s *SQLStore) ListGroupEdges(ctx context.Context) ([]GroupEdge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT parent_group_id, child_group_id FROM role_manager_group_subgroups`)
	if err != nil {
		return nil, &InfrastructureError{Op: "ListGroupEdges", Err: err}
	}
	defer rows.Close()

	var out []GroupEdge
	for rows.Next() {
		var e GroupEdge
		if err := rows.Scan(&e.ParentGroupID, &e.ChildGroupID); err != nil {
			return nil, &InfrastructureError{Op: "ListGroupEdges", Err: err}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) CountGroupEdges(ctx context.Context, groupID int64) (int, error) {
	const q = `SELECT COUNT(*) FROM role_manager_group_subgroups WHERE parent_group_id=$1 OR child_group_id=$1`
	var n int
	if err := s.db.QueryRowContext(ctx, q, groupID).Scan(&n); err != nil {
		return 0, &InfrastructureError{Op: "CountGroupEdges", Err: err}
	}
	return n, nil
}

func (s *SQLStore) CountGroupContextRoles(ctx context.Context, groupID int64) (int, error) {
	return s.countWhere(ctx, "role_manager_group_context_roles", "group_id", groupID)
}

func (s *SQLStore) GetRightGroup(ctx context.Context, id int64) (*RightGroup, error) {
	rg := &RightGroup{}
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM role_manager_rightgroups WHERE id=$1`, id).Scan(&rg.ID, &rg.Name)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "right_group", Key: id}
	}
	if err != nil {
		return nil, &InfrastructureError{Op: "GetRightGroup", Err: err}
	}
	return rg, nil
}

func (s *SQLStore) ListRightGroups(ctx context.Context) ([]RightGroup, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM role_manager_rightgroups ORDER BY name`)
	if err != nil {
		return nil, &InfrastructureError{Op: "ListRightGroups", Err: err}
	}
	defer rows.Close()

	var out []RightGroup
	for rows.Next() {
		var rg RightGroup
		if err := rows.Scan(&rg.ID, &rg.Name); err != nil {
			return nil, &InfrastructureError{Op: "ListRightGroups", Err: err}
		}
		out = append(out, rg)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateRightGroup(ctx context.Context, rg *RightGroup) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `INSERT INTO role_manager_rightgroups (name) VALUES ($1) RETURNING id`, rg.Name).Scan(&id)
	if isUniqueViolation(err) {
		return 0, &ConflictError{Entity: "right_group", Key: rg.Name}
	}
	if err != nil {
		return 0, &InfrastructureError{Op: "CreateRightGroup", Err: err}
	}
	return id, nil
}

func (s *SQLStore) UpdateRightGroup(ctx context.Context, rg *RightGroup) error {
	res, err := s.db.ExecContext(ctx, `UPDATE role_manager_rightgroups SET name=$1 WHERE id=$2`, rg.Name, rg.ID)
	if isUniqueViolation(err) {
		return &ConflictError{Entity: "right_group", Key: rg.Name}
	}
	if err != nil {
		return &InfrastructureError{Op: "UpdateRightGroup", Err: err}
	}
	return requireRowAffected(res, "right_group", rg.ID)
}

func (s *SQLStore) DeleteRightGroup(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM role_manager_rightgroups WHERE id=$1`, id)
	if isForeignKeyViolation(err) {
		return &DependencyError{Entity: "right_group", Reason: "has rights"}
	}
	if err != nil {
		return &InfrastructureError{Op: "DeleteRightGroup", Err: err}
	}
	return requireRowAffected(res, "right_group", id)
}

func (s *SQLStore) CountRightsInGroup(ctx context.Context, rightGroupID int64) (int, error) {
	return s.countWhere(ctx, "role_manager_rights", "rightgroup_id", rightGroupID)
}

func (s *SQLStore) GetRightTypeRange(ctx context.Context, id int64) (*RightTypeRange, error) {
	r := &RightTypeRange{}
	err := s.db.QueryRowContext(ctx, `SELECT id, name, min_value, max_value FROM role_manager_righttype_ranges WHERE id=$1`, id).
		Scan(&r.ID, &r.Name, &r.MinValue, &r.MaxValue)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "righttype_range", Key: id}
	}
	if err != nil {
		return nil, &InfrastructureError{Op: "GetRightTypeRange", Err: err}
	}
	return r, nil
}

func (s *SQLStore) ListRightTypeRanges(ctx context.Context) ([]RightTypeRange, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, min_value, max_value FROM role_manager_righttype_ranges ORDER BY name`)
	if err != nil {
		return nil, &InfrastructureError{Op: "ListRightTypeRanges", Err: err}
	}
	defer rows.Close()

	var out []RightTypeRange
	for rows.Next() {
		var r RightTypeRange
		if err := rows.Scan(&r.ID, &r.Name, &r.MinValue, &r.MaxValue); err != nil {
			return nil, &InfrastructureError{Op: "ListRightTypeRanges", Err: err}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateRightTypeRange(ctx context.Context, r *RightTypeRange) (int64, error) {
	var id int64
	const q = `INSERT INTO role_manager_righttype_ranges (name, min_value, max_value) VALUES ($1, $2, $3) RETURNING id`
	err := s.db.QueryRowContext(ctx, q, r.Name, r.MinValue, r.MaxValue).Scan(&id)
	if isUniqueViolation(err) {
		return 0, &ConflictError{Entity: "righttype_range", Key: r.Name}
	}
	if err != nil {
		return 0, &InfrastructureError{Op: "CreateRightTypeRange", Err: err}
	}
	return id, nil
}

func (s *SQLStore) UpdateRightTypeRange(ctx context.Context, r *RightTypeRange) error {
	const q = `UPDATE role_manager_righttype_ranges SET name=$1, min_value=$2, max_value=$3 WHERE id=$4`
	res, err := s.db.ExecContext(ctx, q, r.Name, r.MinValue, r.MaxValue, r.ID)
	if isUniqueViolation(err) {
		return &ConflictError{Entity: "righttype_range", Key: r.Name}
	}
	if err != nil {
		return &InfrastructureError{Op: "UpdateRightTypeRange", Err: err}
	}
	return requireRowAffected(res, "righttype_range", r.ID)
}

func (s *SQLStore) DeleteRightTypeRange(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM role_manager_righttype_ranges WHERE id=$1`, id)
	if isForeignKeyViolation(err) {
		return &DependencyError{Entity: "righttype_range", Reason: "referenced by a right"}
	}
	if err != nil {
		return &InfrastructureError{Op: "DeleteRightTypeRange", Err: err}
	}
	return requireRowAffected(res, "righttype_range", id)
}

func (s *SQLStore) CountRightsUsingRange(ctx context.Context, rangeID int64) (int, error) {
	return s.countWhere(ctx, "role_manager_rights", "righttype_range_id", rangeID)
}

func (s *SQLStore) GetRight(ctx context.Context, id int64) (*Right, error) {
	const q = `SELECT id, name, rightgroup_id, type, righttype_range_id FROM role_manager_rights WHERE id=$1`
	r := &Right{}
	err := s.db.QueryRowContext(ctx, q, id).Scan(&r.ID, &r.Name, &r.RightGroupID, &r.Type, &r.RightTypeRangeID)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "right", Key: id}
	}
	if err != nil {
		return nil, &InfrastructureError{Op: "GetRight", Err: err}
	}
	return r, nil
}

func (s *SQLStore) GetRightByName(ctx context.Context, name string) (*Right, error) {
	const q = `SELECT id, name, rightgroup_id, type, righttype_range_id FROM role_manager_rights WHERE name=$1`
	r := &Right{}
	err := s.db.QueryRowContext(ctx, q, name).Scan(&r.ID, &r.Name, &r.RightGroupID, &r.Type, &r.RightTypeRangeID)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "right", Key: name}
	}
	if err != nil {
		return nil, &InfrastructureError{Op: "GetRightByName", Err: err}
	}
	return r, nil
}

func (s *SQLStore) ListRights(ctx context.Context) ([]Right, error) {
	const q = `SELECT id, name, rightgroup_id, type, righttype_range_id FROM role_manager_rights ORDER BY name`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, &InfrastructureError{Op: "ListRights", Err: err}
	}
	defer rows.Close()

	var out []Right
	for rows.Next() {
		var r Right
		if err := rows.Scan(&r.ID, &r.Name, &r.RightGroupID, &r.Type, &r.RightTypeRangeID); err != nil {
			return nil, &InfrastructureError{Op: "ListRights", Err: err}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateRight(ctx context.Context, r *Right) (int64, error) {
	const q = `INSERT INTO role_manager_rights (name, rightgroup_id, type, righttype_range_id) VALUES ($1, $2, $3, $4) RETURNING id`
	var id int64
	err := s.db.QueryRowContext(ctx, q, r.Name, r.RightGroupID, r.Type, r.RightTypeRangeID).Scan(&id)
	if isUniqueViolation(err) {
		return 0, &ConflictError{Entity: "right", Key: r.Name}
	}
	if err != nil {
		return 0, &InfrastructureError{Op: "CreateRight", Err: err}
	}
	return id, nil
}

func (s *SQLStore) UpdateRight(ctx context.Context, r *Right) error {
	const q = `UPDATE role_manager_rights SET name=$1, rightgroup_id=$2, type=$3, righttype_range_id=$4 WHERE id=$5`
	res, err := s.db.ExecContext(ctx, q, r.Name, r.RightGroupID, r.Type, r.RightTypeRangeID, r.ID)
	if isUniqueViolation(err) {
		return &ConflictError{Entity: "right", Key: r.Name}
	}
	if err != nil {
		return &InfrastructureError{Op: "UpdateRight", Err: err}
	}
	return requireRowAffected(res, "right", r.ID)
}

func (s *SQLStore) DeleteRight(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM role_manager_rights WHERE id=$1`, id)
	if isForeignKeyViolation(err) {
		return &DependencyError{Entity: "right", Reason: "referenced by a role"}
	}
	if err != nil {
		return &InfrastructureError{Op: "DeleteRight", Err: err}
	}
	return requireRowAffected(res, "right", id)
}

func (s *SQLStore) CountRoleRightsForRight(ctx context.Context, rightID int64) (int, error) {
	return s.countWhere(ctx, "role_manager_role_rights", "right_id", rightID)
}

func (s *SQLStore) GetRole(ctx context.Context, id int64) (*Role, error) {
	r := &Role{}
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM role_manager_roles WHERE id=$1`, id).Scan(&r.ID, &r.Name)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "role", Key: id}
	}
	if err != nil {
		return nil, &InfrastructureError{Op: "GetRole", Err: err}
	}
	return r, nil
}

func (s *SQLStore) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	r := &Role{}
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM role_manager_roles WHERE name=$1`, name).Scan(&r.ID, &r.Name)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "role", Key: name}
	}
	if err != nil {
		return nil, &InfrastructureError{Op: "GetRoleByName", Err: err}
	}
	return r, nil
}

func (s *SQLStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM role_manager_roles ORDER BY name`)
	if err != nil {
		return nil, &InfrastructureError{Op: "ListRoles", Err: err}
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, &InfrastructureError{Op: "ListRoles", Err: err}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateRole(ctx context.Context, r *Role) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `INSERT INTO role_manager_roles (name) VALUES ($1) RETURNING id`, r.Name).Scan(&id)
	if isUniqueViolation(err) {
		return 0, &ConflictError{Entity: "role", Key: r.Name}
	}
	if err != nil {
		return 0, &InfrastructureError{Op: "CreateRole", Err: err}
	}
	return id, nil
}

func (s *SQLStore) UpdateRole(ctx context.Context, r *Role) error {
	res, err := s.db.ExecContext(ctx, `UPDATE role_manager_roles SET name=$1 WHERE id=$2`, r.Name, r.ID)
	if isUniqueViolation(err) {
		return &ConflictError{Entity: "role", Key: r.Name}
	}
	if err != nil {
		return &InfrastructureError{Op: "UpdateRole", Err: err}
	}
	return requireRowAffected(res, "role", r.ID)
}

func (s *SQLStore) DeleteRole(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM role_manager_roles WHERE id=$1`, id)
	if isForeignKeyViolation(err) {
		return &DependencyError{Entity: "role", Reason: "referenced by a user or group assignment"}
	}
	if err != nil {
		return &InfrastructureError{Op: "DeleteRole", Err: err}
	}
	return requireRowAffected(res, "role", id)
}

func (s *SQLStore) CountRoleAssignments(ctx context.Context, roleID int64) (int, error) {
	nu, err := s.countWhere(ctx, "role_manager_user_context_roles", "role_id", roleID)
	if err != nil {
		return 0, err
	}
	ng, err := s.countWhere(ctx, "role_manager_group_context_roles", "role_id", roleID)
	if err != nil {
		return 0, err
	}
	return nu + ng, nil
}

func (s *SQLStore) AttachRight(ctx context.Context, rr *RoleRight) error {
	const q = `INSERT INTO role_manager_role_rights (role_id, right_id, range_value) VALUES ($1, $2, $3)
	           ON CONFLICT (role_id, right_id) DO UPDATE SET range_value = EXCLUDED.range_value`
	_, err := s.db.ExecContext(ctx, q, rr.RoleID, rr.RightID, rr.RangeValue)
	if err != nil {
		return &InfrastructureError{Op: "AttachRight", Err: err}
	}
	return nil
}

func (s *SQLStore) DetachRight(ctx context.Context, roleID, rightID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM role_manager_role_rights WHERE role_id=$1 AND right_id=$2`, roleID, rightID)
	if err != nil {
		return &InfrastructureError{Op: "DetachRight", Err: err}
	}
	return nil
}

func (s *SQLStore) ListRoleRights(ctx context.Context, roleID int64) ([]RoleRight, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role_id, right_id, range_value FROM role_manager_role_rights WHERE role_id=$1`, roleID)
	if err != nil {
		return nil, &InfrastructureError{Op: "ListRoleRights", Err: err}
	}
	defer rows.Close()

	var out []RoleRight
	for rows.Next() {
		var rr RoleRight
		var rv sql.NullString
		if err := rows.Scan(&rr.RoleID, &rr.RightID, &rv); err != nil {
			return nil, &InfrastructureError{Op: "ListRoleRights", Err: err}
		}
		if rv.Valid {
			d, err := decimal.NewFromString(rv.String)
			if err != nil {
				return nil, &InfrastructureError{Op: "ListRoleRights", Err: err}
			}
			rr.RangeValue = &d
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetContext(ctx context.Context, id int64) (*Context, error) {
	c := &Context{}
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM role_manager_contexts WHERE id=$1`, id).Scan(&c.ID, &c.Name)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "context", Key: id}
	}
	if err != nil {
		return nil, &InfrastructureError{Op: "GetContext", Err: err}
	}
	return c, nil
}

func (s *SQLStore) GetContextByName(ctx context.Context, name string) (*Context, error) {
	c := &Context{}
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM role_manager_contexts WHERE name=$1`, name).Scan(&c.ID, &c.Name)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "context", Key: name}
	}
	if err != nil {
		return nil, &InfrastructureError{Op: "GetContextByName", Err: err}
	}
	return c, nil
}

func (s *SQLStore) ListContexts(ctx context.Context) ([]Context, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM role_manager_contexts ORDER BY name`)
	if err != nil {
		return nil, &InfrastructureError{Op: "ListContexts", Err: err}
	}
	defer rows.Close()

	var out []Context
	for rows.Next() {
		var c Context
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, &InfrastructureError{Op: "ListContexts", Err: err}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateContext(ctx context.Context, c *Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `INSERT INTO role_manager_contexts (name) VALUES ($1) RETURNING id`, c.Name).Scan(&id)
	if isUniqueViolation(err) {
		return 0, &ConflictError{Entity: "context", Key: c.Name}
	}
	if err != nil {
		return 0, &InfrastructureError{Op: "CreateContext", Err: err}
	}
	return id, nil
}

func (s *SQLStore) UpdateContext(ctx context.Context, c *Context) error {
	res, err := s.db.ExecContext(ctx, `UPDATE role_manager_contexts SET name=$1 WHERE id=$2`, c.Name, c.ID)
	if isUniqueViolation(err) {
		return &ConflictError{Entity: "context", Key: c.Name}
	}
	if err != nil {
		return &InfrastructureError{Op: "UpdateContext", Err: err}
	}
	return requireRowAffected(res, "context", c.ID)
}

func (s *SQLStore) DeleteContext(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM role_manager_contexts WHERE id=$1`, id)
	if isForeignKeyViolation(err) {
		return &DependencyError{Entity: "context", Reason: "referenced by an assignment"}
	}
	if err != nil {
		return &InfrastructureError{Op: "DeleteContext", Err: err}
	}
	return requireRowAffected(res, "context", id)
}

func (s *SQLStore) CountContextAssignments(ctx context.Context, contextID int64) (int, error) {
	nu, err := s.countWhere(ctx, "role_manager_user_context_roles", "context_id", contextID)
	if err != nil {
		return 0, err
	}
	ng, err := s.countWhere(ctx, "role_manager_group_context_roles", "context_id", contextID)
	if err != nil {
		return 0, err
	}
	return nu + ng, nil
}

func (s *SQLStore) AssignUserContextRole(ctx context.Context, a *UserContextRole) error {
	const q = `INSERT INTO role_manager_user_context_roles (user_id, context_id, role_id) VALUES ($1, $2, $3)
	           ON CONFLICT (user_id, role_id, COALESCE(context_id, 0)) DO NOTHING`
	_, err := s.db.ExecContext(ctx, q, a.UserID, a.ContextID, a.RoleID)
	if err != nil {
		return &InfrastructureError{Op: "AssignUserContextRole", Err: err}
	}
	return nil
}

func (s *SQLStore) RevokeUserContextRole(ctx context.Context, userID int64, contextID *int64, roleID int64) error {
	const q = `DELETE FROM role_manager_user_context_roles WHERE user_id=$1 AND role_id=$2 AND COALESCE(context_id, 0) = COALESCE($3, 0)`
	_, err := s.db.ExecContext(ctx, q, userID, roleID, contextID)
	if err != nil {
		return &InfrastructureError{Op: "RevokeUserContextRole", Err: err}
	}
	return nil
}

func (s *SQLStore) ListUserContextRoles(ctx context.Context, userID int64) ([]UserContextRole, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, context_id, role_id FROM role_manager_user_context_roles WHERE user_id=$1`, userID)
	if err != nil {
		return nil, &InfrastructureError{Op: "ListUserContextRoles", Err: err}
	}
	defer rows.Close()

	var out []UserContextRole
	for rows.Next() {
		var a UserContextRole
		if err := rows.Scan(&a.UserID, &a.ContextID, &a.RoleID); err != nil {
			return nil, &InfrastructureError{Op: "ListUserContextRoles", Err: err}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) AssignGroupContextRole(ctx context.Context, a *GroupContextRole) error {
	const q = `INSERT INTO role_manager_group_context_roles (group_id, context_id, role_id) VALUES ($1, $2, $3)
	           ON CONFLICT (group_id, role_id, COALESCE(context_id, 0)) DO NOTHING`
	_, err := s.db.ExecContext(ctx, q, a.GroupID, a.ContextID, a.RoleID)
	if err != nil {
		return &InfrastructureError{Op: "AssignGroupContextRole", Err: err}
	}
	return nil
}

func (s *SQLStore) RevokeGroupContextRole(ctx context.Context, groupID int64, contextID *int64, roleID int64) error {
	const q = `DELETE FROM role_manager_group_context_roles WHERE group_id=$1 AND role_id=$2 AND COALESCE(context_id, 0) = COALESCE($3, 0)`
	_, err := s.db.ExecContext(ctx, q, groupID, roleID, contextID)
	if err != nil {
		return &InfrastructureError{Op: "RevokeGroupContextRole", Err: err}
	}
	return nil
}

func (s *SQLStore) ListGroupContextRoles(ctx context.Context, groupID int64) ([]GroupContextRole, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT group_id, context_id, role_id FROM role_manager_group_context_roles WHERE group_id=$1`, groupID)
	if err != nil {
		return nil, &InfrastructureError{Op: "ListGroupContextRoles", Err: err}
	}
	defer rows.Close()

	var out []GroupContextRole
	for rows.Next() {
		var a GroupContextRole
		if err := rows.Scan(&a.GroupID, &a.ContextID, &a.RoleID); err != nil {
			return nil, &InfrastructureError{Op: "ListGroupContextRoles", Err: err}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// FindCandidates is the single query behind the candidate enumerator. The
// recursive term walks role_manager_group_subgroups upward from the user's
// direct groups, capping at maxGroupDepth and keeping the minimum distance
// per group; the outer SELECT then joins both the user's direct assignments
// (distance 0) and the closure's group assignments against role_rights,
// restricted to rules whose context is Global or equal to contextID.
func (s *SQLStore) FindCandidates(ctx context.Context, userID int64, contextID *int64) ([]Candidate, error) {
	const q = `
WITH RECURSIVE closure(group_id, distance) AS (
    SELECT group_id, 0
    FROM role_manager_user_groups
    WHERE user_id = $1
    UNION
    SELECT gs.parent_group_id, c.distance + 1
    FROM closure c
    JOIN role_manager_group_subgroups gs ON gs.child_group_id = c.group_id
    WHERE c.distance < $2
),
ranked_closure AS (
    SELECT group_id, MIN(distance) AS distance
    FROM closure
    GROUP BY group_id
),
from_user AS (
    SELECT
        'user'::text AS source_kind,
        u.id AS source_id,
        u.login AS source_display_name,
        r.name AS role_name,
        CASE WHEN ucr.context_id IS NULL THEN 'global' ELSE 'specific' END AS context_kind,
        COALESCE(ctx.name, '') AS context_display_name,
        rt.name AS right_name,
        rt.type AS right_type,
        rr.range_value,
        0 AS distance
    FROM role_manager_user_context_roles ucr
    JOIN role_manager_users u ON u.id = ucr.user_id
    JOIN role_manager_roles r ON r.id = ucr.role_id
    JOIN role_manager_role_rights rr ON rr.role_id = r.id
    JOIN role_manager_rights rt ON rt.id = rr.right_id
    LEFT JOIN role_manager_contexts ctx ON ctx.id = ucr.context_id
    WHERE ucr.user_id = $1
      AND (ucr.context_id IS NULL OR ucr.context_id = $3)
),
from_group AS (
    SELECT
        'group'::text AS source_kind,
        g.id AS source_id,
        g.name AS source_display_name,
        r.name AS role_name,
        CASE WHEN gcr.context_id IS NULL THEN 'global' ELSE 'specific' END AS context_kind,
        COALESCE(ctx.name, '') AS context_display_name,
        rt.name AS right_name,
        rt.type AS right_type,
        rr.range_value,
        rc.distance
    FROM role_manager_group_context_roles gcr
    JOIN ranked_closure rc ON rc.group_id = gcr.group_id
    JOIN role_manager_groups g ON g.id = gcr.group_id
    JOIN role_manager_roles r ON r.id = gcr.role_id
    JOIN role_manager_role_rights rr ON rr.role_id = r.id
    JOIN role_manager_rights rt ON rt.id = rr.right_id
    LEFT JOIN role_manager_contexts ctx ON ctx.id = gcr.context_id
    WHERE gcr.context_id IS NULL OR gcr.context_id = $3
)
SELECT * FROM from_user
UNION ALL
SELECT * FROM from_group
`
	rows, err := s.db.QueryContext(ctx, q, userID, maxGroupDepth, contextID)
	if err != nil {
		return nil, &InfrastructureError{Op: "FindCandidates", Err: err}
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var rv sql.NullString
		if err := rows.Scan(&c.SourceKind, &c.SourceID, &c.SourceDisplayName, &c.RoleName,
			&c.ContextKind, &c.ContextDisplayName, &c.RightName, &c.RightType, &rv, &c.Distance); err != nil {
			return nil, &InfrastructureError{Op: "FindCandidates", Err: err}
		}
		if rv.Valid {
			d, err := decimal.NewFromString(rv.String)
			if err != nil {
				return nil, &InfrastructureError{Op: "FindCandidates", Err: err}
			}
			c.RangeValue = &d
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClosureTruncated recomputes the user's group closure one hop past
// maxGroupDepth and reports whether anything was found there, i.e.
// whether the maxGroupDepth-bounded closure FindCandidates used actually
// dropped ancestors instead of just running out of edges.
func (s *SQLStore) ClosureTruncated(ctx context.Context, userID int64) (bool, error) {
	const q = `
WITH RECURSIVE closure(group_id, distance) AS (
    SELECT group_id, 0
    FROM role_manager_user_groups
    WHERE user_id = $1
    UNION
    SELECT gs.parent_group_id, c.distance + 1
    FROM closure c
    JOIN role_manager_group_subgroups gs ON gs.child_group_id = c.group_id
    WHERE c.distance < $2
)
SELECT EXISTS (SELECT 1 FROM closure WHERE distance = $2)`
	var truncated bool
	if err := s.db.QueryRowContext(ctx, q, userID, maxGroupDepth+1).Scan(&truncated); err != nil {
		return false, &InfrastructureError{Op: "ClosureTruncated", Err: err}
	}
	return truncated, nil
}

func (s *SQLStore) PermissionsVersion(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM role_manager_config WHERE key = 'permissions_version'`).Scan(&v)
	if err != nil {
		return 0, &InfrastructureError{Op: "PermissionsVersion", Err: err}
	}
	return v, nil
}

// BumpPermissionsVersion increments the counter and returns the new value.
// Callers that need the bump inside a larger transaction should instead
// issue the equivalent UPDATE ... RETURNING against their own *sql.Tx; this
// method exists for the common single-statement case.
func (s *SQLStore) BumpPermissionsVersion(ctx context.Context) (int64, error) {
	var v int64
	const q = `UPDATE role_manager_config SET value = value + 1 WHERE key = 'permissions_version' RETURNING value`
	err := s.db.QueryRowContext(ctx, q).Scan(&v)
	if err != nil {
		return 0, &InfrastructureError{Op: "BumpPermissionsVersion", Err: err}
	}
	return v, nil
}

func (s *SQLStore) countWhere(ctx context.Context, table, column string, id int64) (int, error) {
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1`, table, column)
	var n int
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&n); err != nil {
		return 0, &InfrastructureError{Op: "countWhere:" + table, Err: err}
	}
	return n, nil
}

func requireRowAffected(res sql.Result, entity string, key interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &InfrastructureError{Op: "RowsAffected", Err: err}
	}
	if n == 0 {
		return &NotFoundError{Entity: entity, Key: key}
	}
	return nil
}

// isUniqueViolation and isForeignKeyViolation inspect a lib/pq error code.
// They intentionally avoid importing github.com/lib/pq's Error type at the
// call sites above so every CRUD method reads the same regardless of driver.
func isUniqueViolation(err error) bool {
	return pqErrorCode(err) == "23505"
}

func isForeignKeyViolation(err error) bool {
	return pqErrorCode(err) == "23503"
}

func pqErrorCode(err error) string {
	if err == nil {
		return ""
	}
	type pqError interface {
		Error() string
		SQLState() string
	}
	if pe, ok := err.(pqError); ok {
		return pe.SQLState()
	}
	return ""
}
