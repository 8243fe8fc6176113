package rolemanager

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// UsersFacade groups user-scoped operations.
type UsersFacade struct{ f *Facade }

func (u *UsersFacade) Create(ctx context.Context, login, email, passwordHash, firstName, lastName string) (int64, error) {
	if err := requireNonEmpty("login", login); err != nil {
		return 0, err
	}
	if err := requireNonEmpty("email", email); err != nil {
		return 0, err
	}
	return u.f.store.CreateUser(ctx, &User{Login: login, Email: email, PasswordHash: passwordHash, FirstName: firstName, LastName: lastName})
}

func (u *UsersFacade) Get(ctx context.Context, id int64) (*User, error) { return u.f.store.GetUser(ctx, id) }

func (u *UsersFacade) GetByLogin(ctx context.Context, login string) (*User, error) {
	return u.f.store.GetUserByLogin(ctx, login)
}

func (u *UsersFacade) GetByEmail(ctx context.Context, email string) (*User, error) {
	return u.f.store.GetUserByEmail(ctx, email)
}

func (u *UsersFacade) List(ctx context.Context) ([]User, error) { return u.f.store.ListUsers(ctx) }

func (u *UsersFacade) Update(ctx context.Context, user *User) error { return u.f.store.UpdateUser(ctx, user) }

// Delete refuses to remove a user who still holds any direct role
// assignment. Group membership, and roles assigned to the user's groups,
// do not block deletion.
func (u *UsersFacade) Delete(ctx context.Context, id int64) error {
	n, err := u.f.store.CountUserContextRoles(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return &DependencyError{Entity: "user", Reason: "has role assignments"}
	}
	return u.f.store.DeleteUser(ctx, id)
}

func (u *UsersFacade) Groups(ctx context.Context, userID int64) ([]int64, error) {
	return u.f.store.ListUserGroups(ctx, userID)
}

func (u *UsersFacade) AddToGroup(ctx context.Context, userID, groupID int64) error {
	return structuralWrite(ctx, u.f.store, func() error { return u.f.store.AddGroupMember(ctx, userID, groupID) })
}

func (u *UsersFacade) RemoveFromGroup(ctx context.Context, userID, groupID int64) error {
	return structuralWrite(ctx, u.f.store, func() error { return u.f.store.RemoveGroupMember(ctx, userID, groupID) })
}

func (u *UsersFacade) AssignRole(ctx context.Context, userID int64, contextID *int64, roleID int64) error {
	return structuralWrite(ctx, u.f.store, func() error {
		return u.f.store.AssignUserContextRole(ctx, &UserContextRole{UserID: userID, ContextID: contextID, RoleID: roleID})
	})
}

func (u *UsersFacade) RevokeRole(ctx context.Context, userID int64, contextID *int64, roleID int64) error {
	return structuralWrite(ctx, u.f.store, func() error {
		return u.f.store.RevokeUserContextRole(ctx, userID, contextID, roleID)
	})
}

func (u *UsersFacade) Roles(ctx context.Context, userID int64) ([]UserContextRole, error) {
	return u.f.store.ListUserContextRoles(ctx, userID)
}

// GroupsFacade groups group-scoped operations.
type GroupsFacade struct{ f *Facade }

func (g *GroupsFacade) Create(ctx context.Context, name, description string) (int64, error) {
	if err := requireNonEmpty("name", name); err != nil {
		return 0, err
	}
	return g.f.store.CreateGroup(ctx, &Group{Name: name, Description: description})
}

func (g *GroupsFacade) Get(ctx context.Context, id int64) (*Group, error) { return g.f.store.GetGroup(ctx, id) }

func (g *GroupsFacade) GetByName(ctx context.Context, name string) (*Group, error) {
	return g.f.store.GetGroupByName(ctx, name)
}

func (g *GroupsFacade) List(ctx context.Context) ([]Group, error) { return g.f.store.ListGroups(ctx) }

func (g *GroupsFacade) Update(ctx context.Context, group *Group) error { return g.f.store.UpdateGroup(ctx, group) }

func (g *GroupsFacade) Delete(ctx context.Context, id int64) error {
	if n, err := g.f.store.CountGroupMembers(ctx, id); err != nil {
		return err
	} else if n > 0 {
		return &DependencyError{Entity: "group", Reason: "has members"}
	}
	if n, err := g.f.store.CountGroupEdges(ctx, id); err != nil {
		return err
	} else if n > 0 {
		return &DependencyError{Entity: "group", Reason: "has subgroup edges"}
	}
	if n, err := g.f.store.CountGroupContextRoles(ctx, id); err != nil {
		return err
	} else if n > 0 {
		return &DependencyError{Entity: "group", Reason: "has role assignments"}
	}
	return g.f.store.DeleteGroup(ctx, id)
}

func (g *GroupsFacade) Members(ctx context.Context, groupID int64) ([]int64, error) {
	return g.f.store.ListGroupMembers(ctx, groupID)
}

// AddSubgroup makes childGroupID a subgroup of parentGroupID: members of
// childGroupID (and its own subgroups) inherit everything parentGroupID
// grants. Returns ErrSelfParent or ErrCyclicGroupEdge if the edge would be
// invalid; the version bump happens inside the store call, alongside the
// advisory lock guarding the cycle check.
func (g *GroupsFacade) AddSubgroup(ctx context.Context, parentGroupID, childGroupID int64) error {
	return g.f.store.AddSubgroup(ctx, parentGroupID, childGroupID)
}

func (g *GroupsFacade) RemoveSubgroup(ctx context.Context, parentGroupID, childGroupID int64) error {
	return g.f.store.RemoveSubgroup(ctx, parentGroupID, childGroupID)
}

func (g *GroupsFacade) Edges(ctx context.Context) ([]GroupEdge, error) { return g.f.store.ListGroupEdges(ctx) }

func (g *GroupsFacade) AssignRole(ctx context.Context, groupID int64, contextID *int64, roleID int64) error {
	return structuralWrite(ctx, g.f.store, func() error {
		return g.f.store.AssignGroupContextRole(ctx, &GroupContextRole{GroupID: groupID, ContextID: contextID, RoleID: roleID})
	})
}

func (g *GroupsFacade) RevokeRole(ctx context.Context, groupID int64, contextID *int64, roleID int64) error {
	return structuralWrite(ctx, g.f.store, func() error {
		return g.f.store.RevokeGroupContextRole(ctx, groupID, contextID, roleID)
	})
}

func (g *GroupsFacade) Roles(ctx context.Context, groupID int64) ([]GroupContextRole, error) {
	return g.f.store.ListGroupContextRoles(ctx, groupID)
}

// RightGroupsFacade groups right-group-scoped operations.
type RightGroupsFacade struct{ f *Facade }

func (rg *RightGroupsFacade) Create(ctx context.Context, name string) (int64, error) {
	if err := requireNonEmpty("name", name); err != nil {
		return 0, err
	}
	return rg.f.store.CreateRightGroup(ctx, &RightGroup{Name: name})
}

func (rg *RightGroupsFacade) Get(ctx context.Context, id int64) (*RightGroup, error) {
	return rg.f.store.GetRightGroup(ctx, id)
}

func (rg *RightGroupsFacade) List(ctx context.Context) ([]RightGroup, error) { return rg.f.store.ListRightGroups(ctx) }

func (rg *RightGroupsFacade) Update(ctx context.Context, r *RightGroup) error {
	return rg.f.store.UpdateRightGroup(ctx, r)
}

func (rg *RightGroupsFacade) Delete(ctx context.Context, id int64) error {
	if n, err := rg.f.store.CountRightsInGroup(ctx, id); err != nil {
		return err
	} else if n > 0 {
		return &DependencyError{Entity: "right_group", Reason: "has rights"}
	}
	return rg.f.store.DeleteRightGroup(ctx, id)
}

// RightTypesFacade groups range-definition operations.
type RightTypesFacade struct{ f *Facade }

func (rt *RightTypesFacade) Create(ctx context.Context, name string, min, max decimal.Decimal) (int64, error) {
	if err := requireNonEmpty("name", name); err != nil {
		return 0, err
	}
	if min.GreaterThan(max) {
		return 0, &ValidationError{Field: "min_value", Message: "must not exceed max_value"}
	}
	return rt.f.store.CreateRightTypeRange(ctx, &RightTypeRange{Name: name, MinValue: min, MaxValue: max})
}

func (rt *RightTypesFacade) Get(ctx context.Context, id int64) (*RightTypeRange, error) {
	return rt.f.store.GetRightTypeRange(ctx, id)
}

func (rt *RightTypesFacade) List(ctx context.Context) ([]RightTypeRange, error) {
	return rt.f.store.ListRightTypeRanges(ctx)
}

func (rt *RightTypesFacade) Update(ctx context.Context, r *RightTypeRange) error {
	if r.MinValue.GreaterThan(r.MaxValue) {
		return &ValidationError{Field: "min_value", Message: "must not exceed max_value"}
	}
	return rt.f.store.UpdateRightTypeRange(ctx, r)
}

func (rt *RightTypesFacade) Delete(ctx context.Context, id int64) error {
	if n, err := rt.f.store.CountRightsUsingRange(ctx, id); err != nil {
		return err
	} else if n > 0 {
		return &DependencyError{Entity: "righttype_range", Reason: "referenced by a right"}
	}
	return rt.f.store.DeleteRightTypeRange(ctx, id)
}

// RightsFacade groups right-scoped operations.
type RightsFacade struct{ f *Facade }

func (r *RightsFacade) Create(ctx context.Context, name string, rightGroupID int64, rightType RightType, rightTypeRangeID *int64) (int64, error) {
	if err := requireNonEmpty("name", name); err != nil {
		return 0, err
	}
	if rightType == RightTypeRange && rightTypeRangeID == nil {
		return 0, &ValidationError{Field: "righttype_range_id", Message: "required for a range right"}
	}
	if rightType == RightTypeBoolean && rightTypeRangeID != nil {
		return 0, &ValidationError{Field: "righttype_range_id", Message: "must be empty for a boolean right"}
	}
	return r.f.store.CreateRight(ctx, &Right{Name: name, RightGroupID: rightGroupID, Type: rightType, RightTypeRangeID: rightTypeRangeID})
}

func (r *RightsFacade) Get(ctx context.Context, id int64) (*Right, error) { return r.f.store.GetRight(ctx, id) }

func (r *RightsFacade) GetByName(ctx context.Context, name string) (*Right, error) {
	return r.f.store.GetRightByName(ctx, name)
}

func (r *RightsFacade) List(ctx context.Context) ([]Right, error) { return r.f.store.ListRights(ctx) }

func (r *RightsFacade) Update(ctx context.Context, right *Right) error {
	return structuralWrite(ctx, r.f.store, func() error { return r.f.store.UpdateRight(ctx, right) })
}

func (r *RightsFacade) Delete(ctx context.Context, id int64) error {
	if n, err := r.f.store.CountRoleRightsForRight(ctx, id); err != nil {
		return err
	} else if n > 0 {
		return &DependencyError{Entity: "right", Reason: "referenced by a role"}
	}
	return structuralWrite(ctx, r.f.store, func() error { return r.f.store.DeleteRight(ctx, id) })
}

// RolesFacade groups role-scoped operations.
type RolesFacade struct{ f *Facade }

func (ro *RolesFacade) Create(ctx context.Context, name string) (int64, error) {
	if err := requireNonEmpty("name", name); err != nil {
		return 0, err
	}
	var id int64
	err := structuralWrite(ctx, ro.f.store, func() error {
		var createErr error
		id, createErr = ro.f.store.CreateRole(ctx, &Role{Name: name})
		return createErr
	})
	return id, err
}

func (ro *RolesFacade) Get(ctx context.Context, id int64) (*Role, error) { return ro.f.store.GetRole(ctx, id) }

func (ro *RolesFacade) GetByName(ctx context.Context, name string) (*Role, error) {
	return ro.f.store.GetRoleByName(ctx, name)
}

func (ro *RolesFacade) List(ctx context.Context) ([]Role, error) { return ro.f.store.ListRoles(ctx) }

func (ro *RolesFacade) Update(ctx context.Context, role *Role) error {
	return structuralWrite(ctx, ro.f.store, func() error { return ro.f.store.UpdateRole(ctx, role) })
}

func (ro *RolesFacade) Delete(ctx context.Context, id int64) error {
	n, err := ro.f.store.CountRoleAssignments(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return &DependencyError{Entity: "role", Reason: "referenced by a user or group assignment"}
	}
	return structuralWrite(ctx, ro.f.store, func() error { return ro.f.store.DeleteRole(ctx, id) })
}

// AttachRight grants right to role. rangeValue is required when the right
// is range-typed and must fall within the right's configured bounds; it is
// rejected when the right is boolean-typed.
func (ro *RolesFacade) AttachRight(ctx context.Context, roleID, rightID int64, rangeValue *decimal.Decimal) error {
	right, err := ro.f.store.GetRight(ctx, rightID)
	if err != nil {
		return err
	}
	if right.Type == RightTypeRange {
		if rangeValue == nil {
			return &ValidationError{Field: "range_value", Message: "required for a range right"}
		}
		if right.RightTypeRangeID != nil {
			bounds, err := ro.f.store.GetRightTypeRange(ctx, *right.RightTypeRangeID)
			if err != nil {
				return err
			}
			if rangeValue.LessThan(bounds.MinValue) || rangeValue.GreaterThan(bounds.MaxValue) {
				return &ValidationError{Field: "range_value", Message: fmt.Sprintf(
					"%s is outside the allowed range [%s, %s]",
					rangeValue.StringFixed(2), bounds.MinValue.StringFixed(2), bounds.MaxValue.StringFixed(2),
				)}
			}
		}
	} else if rangeValue != nil {
		return &ValidationError{Field: "range_value", Message: "must be empty for a boolean right"}
	}

	return structuralWrite(ctx, ro.f.store, func() error {
		return ro.f.store.AttachRight(ctx, &RoleRight{RoleID: roleID, RightID: rightID, RangeValue: rangeValue})
	})
}

func (ro *RolesFacade) DetachRight(ctx context.Context, roleID, rightID int64) error {
	return structuralWrite(ctx, ro.f.store, func() error { return ro.f.store.DetachRight(ctx, roleID, rightID) })
}

func (ro *RolesFacade) Rights(ctx context.Context, roleID int64) ([]RoleRight, error) {
	return ro.f.store.ListRoleRights(ctx, roleID)
}

// ContextsFacade groups context-scoped operations.
type ContextsFacade struct{ f *Facade }

func (c *ContextsFacade) Create(ctx context.Context, name string) (int64, error) {
	if err := requireNonEmpty("name", name); err != nil {
		return 0, err
	}
	return c.f.store.CreateContext(ctx, &Context{Name: name})
}

func (c *ContextsFacade) Get(ctx context.Context, id int64) (*Context, error) { return c.f.store.GetContext(ctx, id) }

func (c *ContextsFacade) GetByName(ctx context.Context, name string) (*Context, error) {
	return c.f.store.GetContextByName(ctx, name)
}

func (c *ContextsFacade) List(ctx context.Context) ([]Context, error) { return c.f.store.ListContexts(ctx) }

func (c *ContextsFacade) Update(ctx context.Context, context *Context) error {
	return c.f.store.UpdateContext(ctx, context)
}

func (c *ContextsFacade) Delete(ctx context.Context, id int64) error {
	n, err := c.f.store.CountContextAssignments(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return &DependencyError{Entity: "context", Reason: "referenced by an assignment"}
	}
	return c.f.store.DeleteContext(ctx, id)
}
